// Package selection implements the owner's choice of a primary reviewer as
// their point of contact.
package selection

import (
	"context"
	stderrors "errors"

	"github.com/openlend/review_service/internal/app/auth"
	"github.com/openlend/review_service/internal/app/domain/loanapp"
	"github.com/openlend/review_service/internal/app/domain/reviewer"
	"github.com/openlend/review_service/internal/app/storage"
	"github.com/openlend/review_service/internal/errors"
	"github.com/openlend/review_service/pkg/logger"
)

// Service manages the primary-reviewer channel on an application.
type Service struct {
	apps      storage.ApplicationStore
	reviewers storage.ReviewerStore
	log       *logger.Logger
}

// NewService creates the selection service.
func NewService(apps storage.ApplicationStore, reviewers storage.ReviewerStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("selection")
	}
	return &Service{apps: apps, reviewers: reviewers, log: log}
}

// SelectPrimary records the owner's chosen point of contact and returns the
// chosen reviewer's public profile. Selection opens once review activity has
// started or an approval exists, and only assigned reviewers are eligible.
// Selecting again replaces the earlier choice.
func (s *Service) SelectPrimary(ctx context.Context, p auth.Principal, appID, reviewerID string) (reviewer.Profile, error) {
	if reviewerID == "" {
		return reviewer.Profile{}, errors.Validation("reviewer_id is required")
	}

	app, err := s.apps.GetApplication(ctx, appID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return reviewer.Profile{}, errors.NotFound("application", appID)
		}
		return reviewer.Profile{}, errors.Internal("application lookup failed", err)
	}
	if err := auth.RequireOwner(p, app); err != nil {
		return reviewer.Profile{}, err
	}
	if !app.CanSelectReviewer() {
		return reviewer.Profile{}, errors.InvalidState("reviewer selection is not open for this application")
	}

	if _, err := s.apps.SetPrimaryReviewer(ctx, appID, reviewerID); err != nil {
		switch {
		case stderrors.Is(err, storage.ErrReviewerNotAssigned):
			return reviewer.Profile{}, errors.Validation("the chosen reviewer is not assigned to this application")
		case stderrors.Is(err, storage.ErrNotFound):
			return reviewer.Profile{}, errors.NotFound("application", appID)
		default:
			return reviewer.Profile{}, errors.Internal("primary reviewer selection failed", err)
		}
	}

	s.log.WithField("application_id", appID).
		WithField("reviewer_id", reviewerID).
		Info("primary reviewer selected")

	rev, err := s.reviewers.GetReviewer(ctx, reviewerID)
	if err != nil {
		// Assigned but absent from the directory; return the bare identity.
		if stderrors.Is(err, storage.ErrNotFound) {
			return reviewer.Profile{ID: reviewerID}, nil
		}
		return reviewer.Profile{}, errors.Internal("reviewer lookup failed", err)
	}
	return rev.PublicProfile(), nil
}

// Option is an assigned reviewer presented to the owner, annotated with the
// verdict they have recorded so far.
type Option struct {
	reviewer.Profile
	Verdict loanapp.Verdict `json:"verdict"`
}

// Options is the selection view for the owner, partitioned by verdict.
type Options struct {
	CanSelect       bool     `json:"can_select"`
	PrimaryReviewer string   `json:"primary_reviewer,omitempty"`
	Approved        []Option `json:"approved"`
	Pending         []Option `json:"pending"`
	Rejected        []Option `json:"rejected"`
}

// ListOptions returns the assigned reviewers the owner can choose from,
// partitioned by the verdict each has recorded. Assigned IDs that no longer
// resolve in the directory are omitted.
func (s *Service) ListOptions(ctx context.Context, p auth.Principal, appID string) (Options, error) {
	app, err := s.apps.GetApplication(ctx, appID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return Options{}, errors.NotFound("application", appID)
		}
		return Options{}, errors.Internal("application lookup failed", err)
	}
	if err := auth.RequireOwner(p, app); err != nil {
		return Options{}, err
	}

	result := Options{
		CanSelect:       app.CanSelectReviewer(),
		PrimaryReviewer: app.PrimaryReviewer,
		Approved:        []Option{},
		Pending:         []Option{},
		Rejected:        []Option{},
	}
	for _, id := range app.AssignedReviewers {
		rev, err := s.reviewers.GetReviewer(ctx, id)
		if err != nil {
			if stderrors.Is(err, storage.ErrNotFound) {
				s.log.WithField("application_id", appID).
					WithField("reviewer_id", id).
					Warn("assigned reviewer missing from directory")
				continue
			}
			return Options{}, errors.Internal("reviewer lookup failed", err)
		}

		verdict := loanapp.VerdictPending
		if record, ok := app.ReviewFor(id); ok {
			verdict = record.Verdict
		}
		opt := Option{Profile: rev.PublicProfile(), Verdict: verdict}
		switch verdict {
		case loanapp.VerdictApproved:
			result.Approved = append(result.Approved, opt)
		case loanapp.VerdictRejected:
			result.Rejected = append(result.Rejected, opt)
		default:
			result.Pending = append(result.Pending, opt)
		}
	}
	return result, nil
}
