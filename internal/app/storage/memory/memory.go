// Package memory is an in-memory implementation of the storage interfaces.
// It is safe for concurrent use and is primarily intended for tests and local
// development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openlend/review_service/internal/app/domain/loanapp"
	"github.com/openlend/review_service/internal/app/domain/reviewer"
	"github.com/openlend/review_service/internal/app/storage"
)

// Store keeps applications and reviewers in maps guarded by one mutex. The
// review ledger is keyed by reviewer ID internally so the one-record-per-
// reviewer invariant holds structurally; the ordered view is assembled at
// read time.
type Store struct {
	mu           sync.RWMutex
	nextID       int64
	applications map[string]loanapp.Application
	reviews      map[string]map[string]loanapp.Review
	reviewOrder  map[string][]string
	reviewers    map[string]reviewer.Reviewer
}

var _ storage.ApplicationStore = (*Store)(nil)
var _ storage.ReviewerStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:       1,
		applications: make(map[string]loanapp.Application),
		reviews:      make(map[string]map[string]loanapp.Review),
		reviewOrder:  make(map[string][]string),
		reviewers:    make(map[string]reviewer.Reviewer),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// ApplicationStore implementation ---------------------------------------------

func (s *Store) CreateApplication(_ context.Context, app loanapp.Application) (loanapp.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if app.ID == "" {
		app.ID = s.nextIDLocked()
	} else if _, exists := s.applications[app.ID]; exists {
		return loanapp.Application{}, fmt.Errorf("application %s already exists", app.ID)
	}

	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now
	app.Reviews = nil
	app.AssignedReviewers = append([]string(nil), app.AssignedReviewers...)
	app.StatusHistory = append([]loanapp.StatusChange(nil), app.StatusHistory...)

	s.applications[app.ID] = app
	s.reviews[app.ID] = make(map[string]loanapp.Review)
	return s.assembleLocked(app.ID), nil
}

func (s *Store) GetApplication(_ context.Context, id string) (loanapp.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.applications[id]; !ok {
		return loanapp.Application{}, fmt.Errorf("application %s: %w", id, storage.ErrNotFound)
	}
	return s.assembleLocked(id), nil
}

func (s *Store) ListApplications(_ context.Context, ownerID string) ([]loanapp.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]loanapp.Application, 0)
	for id, app := range s.applications {
		if ownerID == "" || app.OwnerID == ownerID {
			result = append(result, s.assembleLocked(id))
		}
	}
	return result, nil
}

func (s *Store) ListApplicationsForReviewer(_ context.Context, reviewerID string) ([]loanapp.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]loanapp.Application, 0)
	for id, app := range s.applications {
		if app.IsAssigned(reviewerID) {
			result = append(result, s.assembleLocked(id))
		}
	}
	return result, nil
}

func (s *Store) ReplaceAssignment(_ context.Context, id string, reviewerIDs []string, threshold int, change loanapp.StatusChange) (loanapp.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.applications[id]
	if !ok {
		return loanapp.Application{}, fmt.Errorf("application %s: %w", id, storage.ErrNotFound)
	}

	now := time.Now().UTC()
	app.AssignedReviewers = append([]string(nil), reviewerIDs...)
	app.ApprovalThreshold = threshold
	app.AssignedAt = now
	app.UpdatedAt = now
	if app.Status != change.To {
		app.StatusHistory = append(app.StatusHistory, change)
	}
	app.Status = change.To

	// Reassignment discards the prior ledger, including records of reviewers
	// retained across the reassignment.
	ledger := make(map[string]loanapp.Review, len(reviewerIDs))
	order := make([]string, 0, len(reviewerIDs))
	for _, rid := range reviewerIDs {
		ledger[rid] = loanapp.Review{
			ReviewerID: rid,
			Verdict:    loanapp.VerdictPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		order = append(order, rid)
	}
	s.reviews[id] = ledger
	s.reviewOrder[id] = order
	s.applications[id] = app

	return s.assembleLocked(id), nil
}

func (s *Store) UpsertReview(_ context.Context, id string, rev loanapp.Review) (loanapp.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.applications[id]
	if !ok {
		return loanapp.Application{}, fmt.Errorf("application %s: %w", id, storage.ErrNotFound)
	}
	if !app.IsAssigned(rev.ReviewerID) {
		return loanapp.Application{}, fmt.Errorf("reviewer %s on application %s: %w", rev.ReviewerID, id, storage.ErrReviewerNotAssigned)
	}

	now := time.Now().UTC()
	ledger := s.reviews[id]
	if existing, ok := ledger[rev.ReviewerID]; ok {
		rev.CreatedAt = existing.CreatedAt
	} else {
		rev.CreatedAt = now
		s.reviewOrder[id] = append(s.reviewOrder[id], rev.ReviewerID)
	}
	rev.UpdatedAt = now
	ledger[rev.ReviewerID] = cloneReview(rev)

	app.UpdatedAt = now
	s.applications[id] = app
	return s.assembleLocked(id), nil
}

func (s *Store) SetPrimaryReviewer(_ context.Context, id, reviewerID string) (loanapp.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.applications[id]
	if !ok {
		return loanapp.Application{}, fmt.Errorf("application %s: %w", id, storage.ErrNotFound)
	}
	if !app.IsAssigned(reviewerID) {
		return loanapp.Application{}, fmt.Errorf("reviewer %s on application %s: %w", reviewerID, id, storage.ErrReviewerNotAssigned)
	}

	app.PrimaryReviewer = reviewerID
	app.UpdatedAt = time.Now().UTC()
	s.applications[id] = app
	return s.assembleLocked(id), nil
}

func (s *Store) UpdateStatus(_ context.Context, id string, change loanapp.StatusChange) (loanapp.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.applications[id]
	if !ok {
		return loanapp.Application{}, fmt.Errorf("application %s: %w", id, storage.ErrNotFound)
	}

	app.Status = change.To
	app.StatusHistory = append(app.StatusHistory, change)
	app.UpdatedAt = time.Now().UTC()
	s.applications[id] = app
	return s.assembleLocked(id), nil
}

func (s *Store) CountActiveAssignments(_ context.Context, reviewerID, excludeID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for id, app := range s.applications {
		if id == excludeID {
			continue
		}
		if app.Status != loanapp.StatusPending && app.Status != loanapp.StatusUnderReview {
			continue
		}
		if app.IsAssigned(reviewerID) {
			count++
		}
	}
	return count, nil
}

// ReviewerStore implementation -------------------------------------------------

func (s *Store) CreateReviewer(_ context.Context, rev reviewer.Reviewer) (reviewer.Reviewer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rev.ID == "" {
		rev.ID = s.nextIDLocked()
	} else if _, exists := s.reviewers[rev.ID]; exists {
		return reviewer.Reviewer{}, fmt.Errorf("reviewer %s already exists", rev.ID)
	}

	now := time.Now().UTC()
	rev.CreatedAt = now
	rev.UpdatedAt = now

	s.reviewers[rev.ID] = rev
	return rev, nil
}

func (s *Store) UpdateReviewer(_ context.Context, rev reviewer.Reviewer) (reviewer.Reviewer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.reviewers[rev.ID]
	if !ok {
		return reviewer.Reviewer{}, fmt.Errorf("reviewer %s: %w", rev.ID, storage.ErrNotFound)
	}

	rev.CreatedAt = original.CreatedAt
	rev.UpdatedAt = time.Now().UTC()
	s.reviewers[rev.ID] = rev
	return rev, nil
}

func (s *Store) GetReviewer(_ context.Context, id string) (reviewer.Reviewer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rev, ok := s.reviewers[id]
	if !ok {
		return reviewer.Reviewer{}, fmt.Errorf("reviewer %s: %w", id, storage.ErrNotFound)
	}
	return rev, nil
}

func (s *Store) ListReviewers(_ context.Context, activeOnly bool) ([]reviewer.Reviewer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]reviewer.Reviewer, 0, len(s.reviewers))
	for _, rev := range s.reviewers {
		if activeOnly && !rev.Active {
			continue
		}
		result = append(result, rev)
	}
	return result, nil
}

// Helpers ----------------------------------------------------------------------

// assembleLocked builds a caller-safe copy of the application with the review
// ledger in assignment order. Callers must hold at least a read lock.
func (s *Store) assembleLocked(id string) loanapp.Application {
	app := s.applications[id]
	app.AssignedReviewers = append([]string(nil), app.AssignedReviewers...)
	app.StatusHistory = append([]loanapp.StatusChange(nil), app.StatusHistory...)

	ledger := s.reviews[id]
	order := s.reviewOrder[id]
	if len(ledger) > 0 {
		reviews := make([]loanapp.Review, 0, len(ledger))
		for _, rid := range order {
			if rev, ok := ledger[rid]; ok {
				reviews = append(reviews, cloneReview(rev))
			}
		}
		app.Reviews = reviews
	}
	return app
}

func cloneReview(rev loanapp.Review) loanapp.Review {
	rev.DocumentsReviewed = append([]string(nil), rev.DocumentsReviewed...)
	if rev.Risk != nil {
		risk := *rev.Risk
		risk.Recommendations = append([]string(nil), risk.Recommendations...)
		rev.Risk = &risk
	}
	return rev
}
