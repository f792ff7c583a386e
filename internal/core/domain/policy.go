package domain

import "time"

// PolicyConfig is the singleton record of lifetimes and thresholds shared by
// the authentication engines. The stored record may omit fields; Normalized
// fills gaps from the defaults so consumers never see zero lifetimes.
type PolicyConfig struct {
	TokenLifetime        time.Duration
	SessionLifetime      time.Duration
	RenewThreshold       time.Duration
	VerificationLifetime time.Duration
	OTPLifetime          time.Duration
	MaxFailedAttempts    int
	OTPMaxAttempts       int
	LockoutWindowDays    int
	MaxLockoutsInWindow  int
	PasswordHistoryLimit int
	UpdatedAt            time.Time
}

// DefaultPolicyConfig returns the baseline policy applied when no stored
// configuration exists.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		TokenLifetime:        time.Hour,
		SessionLifetime:      time.Hour,
		RenewThreshold:       15 * time.Minute,
		VerificationLifetime: 24 * time.Hour,
		OTPLifetime:          15 * time.Minute,
		MaxFailedAttempts:    5,
		OTPMaxAttempts:       3,
		LockoutWindowDays:    30,
		MaxLockoutsInWindow:  3,
		PasswordHistoryLimit: 5,
	}
}

// Normalized returns a copy with zero or negative fields replaced by the
// corresponding defaults.
func (p PolicyConfig) Normalized() PolicyConfig {
	def := DefaultPolicyConfig()
	if p.TokenLifetime <= 0 {
		p.TokenLifetime = def.TokenLifetime
	}
	if p.SessionLifetime <= 0 {
		p.SessionLifetime = def.SessionLifetime
	}
	if p.RenewThreshold <= 0 {
		p.RenewThreshold = def.RenewThreshold
	}
	if p.VerificationLifetime <= 0 {
		p.VerificationLifetime = def.VerificationLifetime
	}
	if p.OTPLifetime <= 0 {
		p.OTPLifetime = def.OTPLifetime
	}
	if p.MaxFailedAttempts <= 0 {
		p.MaxFailedAttempts = def.MaxFailedAttempts
	}
	if p.OTPMaxAttempts <= 0 {
		p.OTPMaxAttempts = def.OTPMaxAttempts
	}
	if p.LockoutWindowDays <= 0 {
		p.LockoutWindowDays = def.LockoutWindowDays
	}
	if p.MaxLockoutsInWindow <= 0 {
		p.MaxLockoutsInWindow = def.MaxLockoutsInWindow
	}
	if p.PasswordHistoryLimit <= 0 {
		p.PasswordHistoryLimit = def.PasswordHistoryLimit
	}
	return p
}

// LockoutWindow converts the configured day count to a duration.
func (p PolicyConfig) LockoutWindow() time.Duration {
	return time.Duration(p.LockoutWindowDays) * 24 * time.Hour
}
