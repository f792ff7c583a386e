package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/filograficos/identity-service/internal/core/port"
	"github.com/filograficos/identity-service/internal/infra/logger"
)

// LogNotifier records deliveries in the structured log without sending them.
// It stands in wherever no delivery channel is configured. Variables that
// carry secrets (codes, raw tokens) are masked.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a notifier backed by structured logging.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

// Send logs the delivery request.
func (n *LogNotifier) Send(_ context.Context, recipient string, template port.NotificationTemplate, vars map[string]string) error {
	if n == nil || n.logger == nil {
		return nil
	}

	fields := []zap.Field{
		zap.String("recipient", logger.MaskEmail(recipient)),
		zap.String("template", string(template)),
	}
	for key, value := range vars {
		if sensitiveVars[key] {
			value = logger.MaskString(value)
		}
		fields = append(fields, zap.String("var_"+key, value))
	}

	n.logger.Info("notification dispatched", fields...)
	return nil
}

// sensitiveVars lists template variables that must never appear in logs.
var sensitiveVars = map[string]bool{
	"code":  true,
	"token": true,
	"link":  true,
}

var _ port.Notifier = (*LogNotifier)(nil)
