package ratelimit

import "context"

// RateLimiter bounds payment dispatch throughput per backend node.
type RateLimiter interface {
	Allow(ctx context.Context, node string) (bool, error)
	Wait(ctx context.Context, node string) error
}
