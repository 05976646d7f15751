package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/notifyhub/notice-dispatch/internal/domain"
)

// MediumLimiters holds one token bucket per delivery medium.
// Email is throttled to the configured rate with burst equal to the rate;
// on-site writes are only bounded by the database and are never throttled.
type MediumLimiters struct {
	limiters map[domain.Medium]*rate.Limiter
}

// New creates limiters allowing emailPerSec messages per second.
// A non-positive rate disables email throttling.
func New(emailPerSec int) *MediumLimiters {
	email := rate.NewLimiter(rate.Inf, 0)
	if emailPerSec > 0 {
		email = rate.NewLimiter(rate.Limit(emailPerSec), emailPerSec)
	}
	return &MediumLimiters{
		limiters: map[domain.Medium]*rate.Limiter{
			domain.MediumSite:  rate.NewLimiter(rate.Inf, 0),
			domain.MediumEmail: email,
		},
	}
}

// Wait blocks until the medium's limiter grants a token.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (ml *MediumLimiters) Wait(ctx context.Context, m domain.Medium) error {
	l, ok := ml.limiters[m]
	if !ok {
		return domain.ErrInvalidMedium
	}
	return l.Wait(ctx)
}
