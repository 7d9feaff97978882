// Package cache provides a Redis-backed cache for reviewer workload counts.
// Candidate listing hits the count query once per reviewer per request, so the
// counts are cached with a short TTL and invalidated on every reassignment.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/openlend/review_service/pkg/logger"
)

const defaultTTL = 30 * time.Second

// Workload caches per-reviewer active assignment counts. A nil *Workload is
// valid and behaves as a pass-through, so callers never branch on whether
// Redis is configured.
type Workload struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewWorkload creates a workload cache on the given client. A nil client
// yields a nil cache, which every method tolerates.
func NewWorkload(client *redis.Client, ttl time.Duration, log *logger.Logger) *Workload {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if log == nil {
		log = logger.NewDefault("workload-cache")
	}
	return &Workload{client: client, ttl: ttl, log: log}
}

func key(reviewerID string) string {
	return "workload:" + reviewerID
}

// Get returns the cached count for the reviewer and whether it was present.
// Cache errors are logged and reported as misses.
func (w *Workload) Get(ctx context.Context, reviewerID string) (int, bool) {
	if w == nil {
		return 0, false
	}
	val, err := w.client.Get(ctx, key(reviewerID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			w.log.WithError(err).Warn("workload cache read failed")
		}
		return 0, false
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, false
	}
	return count, true
}

// Set stores the count for the reviewer under the cache TTL.
func (w *Workload) Set(ctx context.Context, reviewerID string, count int) {
	if w == nil {
		return
	}
	if err := w.client.Set(ctx, key(reviewerID), fmt.Sprintf("%d", count), w.ttl).Err(); err != nil {
		w.log.WithError(err).Warn("workload cache write failed")
	}
}

// Invalidate drops the cached counts for the given reviewers. Called after a
// reassignment changes who carries which applications.
func (w *Workload) Invalidate(ctx context.Context, reviewerIDs ...string) {
	if w == nil || len(reviewerIDs) == 0 {
		return
	}
	keys := make([]string, len(reviewerIDs))
	for i, id := range reviewerIDs {
		keys[i] = key(id)
	}
	if err := w.client.Del(ctx, keys...).Err(); err != nil {
		w.log.WithError(err).Warn("workload cache invalidation failed")
	}
}
