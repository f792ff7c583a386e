package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/filograficos/identity-service/internal/core/port"
	"github.com/filograficos/identity-service/internal/infra/kafka"
)

// BusNotifier hands deliveries to the message bus so a downstream mailer owns
// rendering and transport. The message carries the template name and its
// variables verbatim; it is the mailer's job to render them.
type BusNotifier struct {
	producer *kafka.Producer
	logger   *zap.Logger
}

// NewBusNotifier constructs a Kafka-backed notifier.
func NewBusNotifier(producer *kafka.Producer, log *zap.Logger) *BusNotifier {
	return &BusNotifier{producer: producer, logger: log}
}

type deliveryRequest struct {
	RequestID string            `json:"request_id"`
	Recipient string            `json:"recipient"`
	Template  string            `json:"template"`
	Variables map[string]string `json:"variables,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Send enqueues a delivery request on the notification topic.
func (n *BusNotifier) Send(ctx context.Context, recipient string, template port.NotificationTemplate, vars map[string]string) error {
	request := deliveryRequest{
		RequestID: uuid.NewString(),
		Recipient: recipient,
		Template:  string(template),
		Variables: vars,
		CreatedAt: time.Now().UTC(),
	}

	bytes, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("marshal delivery request: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: n.producer.TopicName("notification.requested"),
		Key:   sarama.StringEncoder(recipient),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case n.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ port.Notifier = (*BusNotifier)(nil)
