package notify

import (
	"context"
	"net/url"

	"github.com/filograficos/identity-service/internal/core/port"
)

// LinkNotifier decorates another notifier, expanding the verification token
// into a clickable URL before the template is rendered.
type LinkNotifier struct {
	next    port.Notifier
	baseURL string
}

// NewLinkNotifier builds the decorator. An empty base URL disables expansion.
func NewLinkNotifier(next port.Notifier, baseURL string) *LinkNotifier {
	return &LinkNotifier{next: next, baseURL: baseURL}
}

// Send forwards to the wrapped notifier, adding a "link" variable for
// verification emails when a base URL is configured.
func (n *LinkNotifier) Send(ctx context.Context, recipient string, template port.NotificationTemplate, vars map[string]string) error {
	if n.baseURL != "" && template == port.TemplateVerificationLink {
		if token, ok := vars["token"]; ok && token != "" {
			expanded := make(map[string]string, len(vars)+1)
			for k, v := range vars {
				expanded[k] = v
			}
			expanded["link"] = n.baseURL + "?token=" + url.QueryEscape(token)
			vars = expanded
		}
	}
	return n.next.Send(ctx, recipient, template, vars)
}

var _ port.Notifier = (*LinkNotifier)(nil)
