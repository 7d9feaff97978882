package assignment

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/openlend/review_service/internal/app/cache"
	"github.com/openlend/review_service/internal/app/domain/reviewer"
	"github.com/openlend/review_service/internal/app/storage/memory"
)

// countingStore wraps the memory store to observe workload count queries.
type countingStore struct {
	*memory.Store
	countCalls int
}

func (c *countingStore) CountActiveAssignments(ctx context.Context, reviewerID, excludeID string) (int, error) {
	c.countCalls++
	return c.Store.CountActiveAssignments(ctx, reviewerID, excludeID)
}

func TestCandidatesUseWorkloadCache(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	workloads := cache.NewWorkload(client, time.Minute, nil)

	store := &countingStore{Store: memory.New()}
	ctx := context.Background()
	if _, err := store.CreateReviewer(ctx, reviewer.Reviewer{ID: "r-1", Name: "Asha", Active: true}); err != nil {
		t.Fatalf("seed reviewer: %v", err)
	}

	svc := NewService(store, store, workloads, nil)
	f := &fixture{store: store.Store, svc: svc}
	target := f.newApplication(t, "u-1")

	if _, err := svc.Candidates(ctx, admin, target.ID); err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if store.countCalls != 1 {
		t.Fatalf("expected 1 count query on cold cache, got %d", store.countCalls)
	}

	// Second listing is served from the cache.
	if _, err := svc.Candidates(ctx, admin, target.ID); err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if store.countCalls != 1 {
		t.Fatalf("expected cached count, got %d queries", store.countCalls)
	}

	// Assignment invalidates the touched reviewer, so the next listing
	// recounts.
	if _, err := svc.Assign(ctx, admin, target.ID, AssignInput{ReviewerIDs: []string{"r-1"}, ApprovalThreshold: 1}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := svc.Candidates(ctx, admin, target.ID); err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if store.countCalls != 2 {
		t.Fatalf("expected recount after invalidation, got %d queries", store.countCalls)
	}
}
