package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limited wraps a Client with a token-bucket limiter.
type Limited struct {
	next    Client
	limiter *rate.Limiter
}

// Limit allows perMinute calls per minute with the given burst (minimum 1).
func Limit(next Client, perMinute float64, burst int) *Limited {
	if burst < 1 {
		burst = 1
	}
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perMinute/60), burst),
	}
}

// Complete waits for a token, then delegates. Cancellation while waiting
// returns the context error.
func (l *Limited) Complete(ctx context.Context, prompt string) (*Response, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("llm rate limit: %w", err)
	}
	return l.next.Complete(ctx, prompt)
}
