package port

import "context"

// NotificationTemplate selects the message rendered for a delivery.
type NotificationTemplate string

const (
	TemplateVerificationLink NotificationTemplate = "verification_link"
	TemplateLoginOTP         NotificationTemplate = "login_otp"
	TemplateRecoveryOTP      NotificationTemplate = "recovery_otp"
	TemplatePasswordChanged  NotificationTemplate = "password_changed"
)

// Notifier delivers messages to an identity out of band, typically email.
// Delivery is best-effort from the caller's perspective: failures are logged
// and never roll back the triggering operation.
type Notifier interface {
	Send(ctx context.Context, recipient string, template NotificationTemplate, vars map[string]string) error
}
