// Package ratelimit throttles repeated calls per caller key. Used on the
// password login route, where brute forcing is worth slowing down.
package ratelimit

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

type (
	// PerKey keeps one token bucket per key, with the oldest buckets
	// evicted once too many distinct callers show up.
	PerKey struct {
		buckets *lru.Cache[string, *rate.Limiter]
		limit   rate.Limit
		burst   int
	}
)

const maxTrackedKeys = 4096

// New allows up to perMinute calls per key per minute, with a burst of the
// same size.
func New(perMinute int) *PerKey {
	buckets, _ := lru.New[string, *rate.Limiter](maxTrackedKeys)
	return &PerKey{
		buckets: buckets,
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
	}
}

// Allow reports whether the caller identified by key may proceed.
func (p *PerKey) Allow(key string) bool {
	limiter, ok := p.buckets.Get(key)
	if !ok {
		limiter = rate.NewLimiter(p.limit, p.burst)
		// two goroutines racing here create two buckets for the same key;
		// one wins the cache, the loser hands out at most one extra token
		p.buckets.Add(key, limiter)
	}
	return limiter.Allow()
}
