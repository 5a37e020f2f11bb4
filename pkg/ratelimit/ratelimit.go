// Package ratelimit guards booking creation and OAuth initiation with a keyed
// fixed-window counter. The contract is independent of the backing store: an
// in-memory window for single-instance deployments, redis for shared ones.
package ratelimit

import "context"

type Limiter interface {
	// Allow reports whether one more request under key fits the current window.
	Allow(ctx context.Context, key string) bool
}
