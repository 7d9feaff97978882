// Package assignment implements administrator reviewer assignment and the
// workload-ordered candidate listing that supports it.
package assignment

import (
	"context"
	stderrors "errors"
	"sort"
	"time"

	"github.com/openlend/review_service/internal/app/auth"
	"github.com/openlend/review_service/internal/app/cache"
	"github.com/openlend/review_service/internal/app/domain/loanapp"
	"github.com/openlend/review_service/internal/app/domain/reviewer"
	"github.com/openlend/review_service/internal/app/storage"
	"github.com/openlend/review_service/internal/errors"
	"github.com/openlend/review_service/pkg/logger"
)

// Service manages the reviewer panel on an application.
type Service struct {
	apps      storage.ApplicationStore
	reviewers storage.ReviewerStore
	workloads *cache.Workload
	log       *logger.Logger
}

// NewService creates the assignment service. The workload cache may be nil,
// in which case every candidate listing counts from storage.
func NewService(apps storage.ApplicationStore, reviewers storage.ReviewerStore, workloads *cache.Workload, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("assignment")
	}
	return &Service{apps: apps, reviewers: reviewers, workloads: workloads, log: log}
}

// AssignInput is the administrator's assignment request.
type AssignInput struct {
	ReviewerIDs       []string `json:"reviewer_ids"`
	ApprovalThreshold int      `json:"approval_threshold"`
}

// AssignResult reports the updated application and whether the requested
// threshold can actually be met by the assigned panel.
type AssignResult struct {
	Application        loanapp.Application `json:"application"`
	ThresholdReachable bool                `json:"threshold_reachable"`
}

// Assign replaces the application's reviewer panel. The application moves to
// under_review and any earlier reviews are discarded; reviewers kept across
// the call start over.
func (s *Service) Assign(ctx context.Context, p auth.Principal, appID string, input AssignInput) (AssignResult, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return AssignResult{}, err
	}
	if len(input.ReviewerIDs) < loanapp.MinReviewers || len(input.ReviewerIDs) > loanapp.MaxReviewers {
		return AssignResult{}, errors.Validationf("between %d and %d reviewers must be assigned", loanapp.MinReviewers, loanapp.MaxReviewers)
	}
	if input.ApprovalThreshold < loanapp.MinThreshold || input.ApprovalThreshold > loanapp.MaxThreshold {
		return AssignResult{}, errors.Validationf("approval_threshold must be between %d and %d", loanapp.MinThreshold, loanapp.MaxThreshold)
	}

	seen := make(map[string]struct{}, len(input.ReviewerIDs))
	var invalid []string
	for _, id := range input.ReviewerIDs {
		if id == "" {
			return AssignResult{}, errors.Validation("reviewer IDs must be non-empty")
		}
		if _, dup := seen[id]; dup {
			return AssignResult{}, errors.Validationf("duplicate reviewer %s in assignment", id)
		}
		seen[id] = struct{}{}

		rev, err := s.reviewers.GetReviewer(ctx, id)
		if err != nil {
			if stderrors.Is(err, storage.ErrNotFound) {
				invalid = append(invalid, id)
				continue
			}
			return AssignResult{}, errors.Internal("reviewer lookup failed", err)
		}
		if !rev.Active {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		return AssignResult{}, errors.Validation("some reviewers do not resolve to active identities").
			WithDetails("invalid_reviewers", invalid)
	}

	app, err := s.apps.GetApplication(ctx, appID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return AssignResult{}, errors.NotFound("application", appID)
		}
		return AssignResult{}, errors.Internal("application lookup failed", err)
	}
	if app.Status.Terminal() {
		return AssignResult{}, errors.InvalidState("cannot reassign reviewers after a final decision")
	}

	reachable := input.ApprovalThreshold <= len(input.ReviewerIDs)
	if !reachable {
		s.log.WithField("application_id", appID).
			WithField("threshold", input.ApprovalThreshold).
			WithField("reviewers", len(input.ReviewerIDs)).
			Warn("approval threshold exceeds panel size and cannot be met")
	}

	updated, err := s.apps.ReplaceAssignment(ctx, appID, input.ReviewerIDs, input.ApprovalThreshold, loanapp.StatusChange{
		From:    app.Status,
		To:      loanapp.StatusUnderReview,
		ActorID: p.ID,
		At:      time.Now().UTC(),
	})
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return AssignResult{}, errors.NotFound("application", appID)
		}
		return AssignResult{}, errors.Internal("assignment failed", err)
	}

	// Both the outgoing and incoming panels change workload.
	touched := append(append([]string(nil), app.AssignedReviewers...), input.ReviewerIDs...)
	s.workloads.Invalidate(ctx, touched...)

	s.log.WithField("application_id", appID).
		WithField("reviewers", len(input.ReviewerIDs)).
		WithField("threshold", input.ApprovalThreshold).
		Info("reviewers assigned")
	return AssignResult{Application: updated, ThresholdReachable: reachable}, nil
}

// Candidate is a directory entry annotated with its current workload and
// whether it already sits on this application's panel.
type Candidate struct {
	reviewer.Profile
	ActiveAssignments int  `json:"active_assignments"`
	Assigned          bool `json:"assigned"`
}

// Candidates lists active reviewers ordered by ascending workload, the
// application being assigned excluded from the counts. Ties break on name.
func (s *Service) Candidates(ctx context.Context, p auth.Principal, appID string) ([]Candidate, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}
	app, err := s.apps.GetApplication(ctx, appID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("application", appID)
		}
		return nil, errors.Internal("application lookup failed", err)
	}

	active, err := s.reviewers.ListReviewers(ctx, true)
	if err != nil {
		return nil, errors.Internal("reviewer listing failed", err)
	}

	appActive := app.Status == loanapp.StatusPending || app.Status == loanapp.StatusUnderReview

	candidates := make([]Candidate, 0, len(active))
	for _, rev := range active {
		// The cache holds the global count; the application being assigned is
		// discounted here so cached values stay comparable across requests.
		count, ok := s.workloads.Get(ctx, rev.ID)
		if !ok {
			count, err = s.apps.CountActiveAssignments(ctx, rev.ID, "")
			if err != nil {
				return nil, errors.Internal("workload count failed", err)
			}
			s.workloads.Set(ctx, rev.ID, count)
		}
		assigned := app.IsAssigned(rev.ID)
		if appActive && assigned && count > 0 {
			count--
		}
		candidates = append(candidates, Candidate{
			Profile:           rev.PublicProfile(),
			ActiveAssignments: count,
			Assigned:          assigned,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].ActiveAssignments != candidates[j].ActiveAssignments {
			return candidates[i].ActiveAssignments < candidates[j].ActiveAssignments
		}
		return candidates[i].Name < candidates[j].Name
	})
	return candidates, nil
}
