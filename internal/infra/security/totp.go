package security

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// TOTPVerifier checks RFC 6238 time-based codes against a base32 shared
// secret. Skew widens the accepted window by that many periods in each
// direction to absorb clock drift.
type TOTPVerifier struct {
	Period time.Duration
	Digits int
	Skew   int
}

// NewTOTPVerifier returns a verifier with the common authenticator-app
// parameters: 30-second period, 6 digits, one period of skew.
func NewTOTPVerifier() *TOTPVerifier {
	return &TOTPVerifier{
		Period: 30 * time.Second,
		Digits: 6,
		Skew:   1,
	}
}

// Verify reports whether the code matches the secret at the given instant.
func (v *TOTPVerifier) Verify(code, secret string, at time.Time) bool {
	if code == "" || secret == "" {
		return false
	}

	normalized := strings.ToUpper(strings.TrimRight(secret, "="))
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(normalized)
	if err != nil {
		return false
	}

	period := v.Period
	if period <= 0 {
		period = 30 * time.Second
	}
	digits := v.Digits
	if digits <= 0 {
		digits = 6
	}

	counter := uint64(at.Unix()) / uint64(period.Seconds())
	for offset := -v.Skew; offset <= v.Skew; offset++ {
		candidate := hotpCode(key, counter+uint64(int64(offset)), digits)
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(code)) == 1 {
			return true
		}
	}
	return false
}

// hotpCode computes an RFC 4226 HMAC-based one-time code.
func hotpCode(key []byte, counter uint64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	truncated := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, truncated%mod)
}
