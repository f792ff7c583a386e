package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	rateLimitProblemType  = "https://auth.filograficos.example.com/errors/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"
)

// RateLimitStore defines the persistence operations required by the middleware.
type RateLimitStore interface {
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
}

// IdentifierFunc extracts the identifier used to scope rate limits (e.g., client IP).
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule configures a sliding-window limit for a particular identifier.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

// RateLimiter evaluates sliding-window rules against a shared store. Store
// failures never reject a request; the affected rule is skipped and logged.
type RateLimiter struct {
	store  RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

// ruleOutcome is the decision for one rule on one request. reset anchors to
// the oldest attempt still inside the window so the advertised reset instant
// is the earliest point at which a slot actually frees up.
type ruleOutcome struct {
	allowed    bool
	limit      int
	remaining  int
	reset      time.Time
	retryAfter time.Duration
}

// ProblemDetails represents an RFC 9457 compatible error payload for rate limits.
type ProblemDetails struct {
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Status     int            `json:"status"`
	Detail     string         `json:"detail"`
	Instance   string         `json:"instance"`
	RetryAfter int            `json:"retry_after"`
	TraceID    string         `json:"trace_id,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// NewRateLimiter builds a reusable rate limiter middleware helper.
func NewRateLimiter(store RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RateLimiter{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// ClientIPIdentifier builds an IdentifierFunc using the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		if ip == "" {
			return "", false
		}
		return ip, true
	}
}

// RateLimit returns a Gin middleware enforcing the provided rules. Rules with
// a missing identifier func, non-positive limit, or non-positive window are
// discarded up front.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	active := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Identifier == nil || rule.Limit <= 0 || rule.Window <= 0 {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		active = append(active, rule)
	}

	return func(c *gin.Context) {
		if len(active) == 0 || rl.store == nil {
			c.Next()
			return
		}

		now := rl.now()
		var tightest *ruleOutcome

		for _, rule := range active {
			identifier, ok := rule.Identifier(c)
			if !ok || identifier == "" {
				continue
			}

			outcome, err := rl.check(c.Request.Context(), rule, rule.Name+":"+identifier, now)
			if err != nil {
				rl.logger.Warn("rate limit check failed",
					zap.String("rule", rule.Name),
					zap.String("identifier", identifier),
					zap.Error(err),
				)
				continue
			}

			if tightest == nil || outcome.tighterThan(*tightest) {
				snapshot := outcome
				tightest = &snapshot
			}

			if !outcome.allowed {
				rl.writeHeaders(c, outcome)
				rl.reject(c, outcome)
				return
			}
		}

		if tightest != nil {
			rl.writeHeaders(c, *tightest)
		}

		c.Next()
	}
}

// check trims the window, counts what is left, and records the attempt only
// when the request is admitted. Rejected requests must not consume a slot.
func (rl *RateLimiter) check(ctx context.Context, rule RateLimitRule, key string, now time.Time) (ruleOutcome, error) {
	if err := rl.store.TrimWindow(ctx, key, rule.Window, now); err != nil {
		return ruleOutcome{}, err
	}

	count, err := rl.store.CountAttempts(ctx, key, rule.Window, now)
	if err != nil {
		return ruleOutcome{}, err
	}

	oldest, hasAttempts, err := rl.store.OldestAttempt(ctx, key, rule.Window, now)
	if err != nil {
		return ruleOutcome{}, err
	}

	reset := now.Add(rule.Window)
	if hasAttempts {
		reset = oldest.Add(rule.Window)
	}

	outcome := ruleOutcome{
		allowed: true,
		limit:   rule.Limit,
		reset:   reset,
	}

	if count >= rule.Limit {
		outcome.allowed = false
		outcome.retryAfter = clampDuration(reset.Sub(now))
		return outcome, nil
	}

	if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
		return ruleOutcome{}, err
	}

	if remaining := rule.Limit - count - 1; remaining > 0 {
		outcome.remaining = remaining
	}

	outcome.retryAfter = clampDuration(reset.Sub(now))
	if !hasAttempts {
		outcome.reset = now.Add(rule.Window)
	}

	return outcome, nil
}

// tighterThan reports whether this outcome should drive the response headers
// over the current one: rejections win, then fewer remaining slots, then the
// earlier reset.
func (o ruleOutcome) tighterThan(current ruleOutcome) bool {
	if !o.allowed && current.allowed {
		return true
	}

	if o.allowed == current.allowed {
		if o.remaining < current.remaining {
			return true
		}
		if o.remaining == current.remaining && o.reset.Before(current.reset) {
			return true
		}
	}

	return false
}

func (rl *RateLimiter) writeHeaders(c *gin.Context, outcome ruleOutcome) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(outcome.limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(outcome.remaining))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(outcome.reset.Unix(), 10))

	if !outcome.allowed {
		headers.Set("Retry-After", strconv.Itoa(retrySeconds(outcome.retryAfter)))
	}
}

func (rl *RateLimiter) reject(c *gin.Context, outcome ruleOutcome) {
	seconds := retrySeconds(outcome.retryAfter)

	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many requests. Try again in %d seconds.", seconds),
		Instance:   instance,
		RetryAfter: seconds,
		TraceID:    GetTraceID(c),
	})
}

func retrySeconds(d time.Duration) int {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 0 {
		return 0
	}
	return seconds
}

func clampDuration(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
