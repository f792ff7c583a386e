package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	lg   *zap.Logger
	once sync.Once
)

// New returns a singleton zap.Logger: JSON production encoding when env is
// "production", colored console output otherwise.
func New(env string) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		if env != "production" {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}

		lg, err = cfg.Build()
	})

	return lg, err
}

// RequestIDKey is used to store a request identifier on the context.
type RequestIDKey struct{}

// PII masking helpers. Emails and IPs never reach logs unmasked.

// MaskEmail keeps at most the first three characters of the local part and
// the full domain: john.doe@example.com -> joh***@example.com.
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "***"
	}

	local, domain := email[:at], email[at:]
	visible := len(local)
	if visible > 3 {
		visible = 3
	}

	return local[:visible] + "***" + domain
}

// MaskIP keeps the first two octets of an IPv4 address or the first four
// groups of an IPv6 address.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}

	if octets := strings.Split(ip, "."); len(octets) == 4 {
		return octets[0] + "." + octets[1] + ".*.*"
	}

	if groups := strings.Split(ip, ":"); len(groups) >= 4 && strings.Contains(ip, ":") {
		return strings.Join(groups[:4], ":") + ":*:*:*:*"
	}

	return "***"
}

// MaskString is generic masking for arbitrary sensitive strings, showing the
// first and last two characters.
func MaskString(s string) string {
	if len(s) <= 4 {
		if s == "" {
			return ""
		}
		return "***"
	}

	return s[:2] + "***" + s[len(s)-2:]
}
