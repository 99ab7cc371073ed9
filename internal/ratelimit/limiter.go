package ratelimit

import "context"

// RateLimiter throttles sends per key. The mailer keys by SMTP host so that
// concurrently running processes share one budget per server.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}
