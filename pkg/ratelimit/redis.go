package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Redis is a fixed-window limiter over a shared redis counter, for multi-instance
// deployments. INCR creates the key, EXPIRE bounds the window; redis evicts it.
// On redis failure the limiter fails open so an outage never blocks bookings.
type Redis struct {
	log    *logrus.Entry
	client *redis.Client
	window time.Duration
	max    int
}

func NewRedis(log *logrus.Logger, client *redis.Client, window time.Duration, max int) *Redis {
	return &Redis{
		log:    log.WithField("component", "ratelimit"),
		client: client,
		window: window,
		max:    max,
	}
}

func (r *Redis) Allow(ctx context.Context, key string) bool {
	count, err := r.client.Incr(ctx, "ratelimit:"+key).Result()
	if err != nil {
		r.log.Warnf("err incrementing counter for %s: %v", key, err)
		return true
	}
	if count == 1 {
		if err = r.client.Expire(ctx, "ratelimit:"+key, r.window).Err(); err != nil {
			r.log.Warnf("err setting window ttl for %s: %v", key, err)
		}
	}
	return count <= int64(r.max)
}
