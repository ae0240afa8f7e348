package board

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Sender is the outbound notification collaborator. Send fails with a
// transient delivery error on network or provider failure; the workflow
// core retries it, so implementations must tolerate an occasional
// duplicate delivery.
type Sender interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// Directory resolves a user identifier to notification recipients.
type Directory interface {
	EmailsFor(ctx context.Context, userID string) ([]string, error)
}

// RateLimitedSender wraps a Sender with a token-bucket limiter so digest
// bursts stay inside the mail provider's send quota.
type RateLimitedSender struct {
	inner   Sender
	limiter *rate.Limiter
}

// NewRateLimitedSender creates a sender allowing perSecond sends with the
// given burst.
func NewRateLimitedSender(inner Sender, perSecond float64, burst int) *RateLimitedSender {
	return &RateLimitedSender{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Send waits for limiter capacity, then delegates to the wrapped sender.
func (s *RateLimitedSender) Send(ctx context.Context, to []string, subject, body string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("board: rate limit wait: %w", err)
	}
	return s.inner.Send(ctx, to, subject, body)
}
