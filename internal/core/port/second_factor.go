package port

import "time"

// SecondFactorVerifier checks a device-generated code against a shared
// secret. Implementations are pure: no storage access, so the emailed-OTP
// path and a TOTP authenticator can be swapped behind the same engine.
type SecondFactorVerifier interface {
	Verify(code, secret string, at time.Time) bool
}
