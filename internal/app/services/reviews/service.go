// Package reviews implements verdict submission and the review summary.
package reviews

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/openlend/review_service/internal/app/auth"
	"github.com/openlend/review_service/internal/app/domain/loanapp"
	"github.com/openlend/review_service/internal/app/storage"
	"github.com/openlend/review_service/internal/errors"
	"github.com/openlend/review_service/pkg/logger"
)

// Service records reviewer verdicts and reports ledger state.
type Service struct {
	store storage.ApplicationStore
	log   *logger.Logger
}

// NewService creates the review service.
func NewService(store storage.ApplicationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("reviews")
	}
	return &Service{store: store, log: log}
}

// SubmitInput is a reviewer's verdict payload.
type SubmitInput struct {
	Verdict           loanapp.Verdict         `json:"verdict"`
	Comments          string                  `json:"comments,omitempty"`
	DocumentsReviewed []string                `json:"documents_reviewed,omitempty"`
	Risk              *loanapp.RiskAssessment `json:"risk_assessment,omitempty"`
}

// Submit records the caller's verdict on an application and returns the
// stored record. Each reviewer holds exactly one record; submitting again
// overwrites it in place.
func (s *Service) Submit(ctx context.Context, p auth.Principal, appID string, input SubmitInput) (loanapp.Review, error) {
	if input.Verdict != loanapp.VerdictApproved && input.Verdict != loanapp.VerdictRejected {
		return loanapp.Review{}, errors.Validationf("verdict must be %q or %q", loanapp.VerdictApproved, loanapp.VerdictRejected)
	}
	if input.Risk != nil {
		if input.Risk.CreditScore != 0 && (input.Risk.CreditScore < loanapp.MinCreditScore || input.Risk.CreditScore > loanapp.MaxCreditScore) {
			return loanapp.Review{}, errors.Validationf("credit_score must be between %d and %d", loanapp.MinCreditScore, loanapp.MaxCreditScore)
		}
		switch input.Risk.RiskLevel {
		case loanapp.RiskLow, loanapp.RiskMedium, loanapp.RiskHigh:
		default:
			return loanapp.Review{}, errors.Validationf("unknown risk_level %q", input.Risk.RiskLevel)
		}
	}

	app, err := s.store.GetApplication(ctx, appID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return loanapp.Review{}, errors.NotFound("application", appID)
		}
		return loanapp.Review{}, errors.Internal("application lookup failed", err)
	}
	if err := auth.RequireAssignedReviewer(p, app, p.ID); err != nil {
		return loanapp.Review{}, err
	}
	if app.Status.Terminal() {
		return loanapp.Review{}, errors.InvalidState("application has already reached a final decision")
	}

	now := time.Now().UTC()
	updated, err := s.store.UpsertReview(ctx, appID, loanapp.Review{
		ReviewerID:        p.ID,
		Verdict:           input.Verdict,
		Comments:          input.Comments,
		DocumentsReviewed: input.DocumentsReviewed,
		Risk:              input.Risk,
		ReviewedAt:        now,
	})
	if err != nil {
		switch {
		case stderrors.Is(err, storage.ErrReviewerNotAssigned):
			// The assignment changed between the access check and the write.
			return loanapp.Review{}, errors.Forbidden("reviewer is not assigned to this application")
		case stderrors.Is(err, storage.ErrNotFound):
			return loanapp.Review{}, errors.NotFound("application", appID)
		default:
			return loanapp.Review{}, errors.Internal("review submission failed", err)
		}
	}

	s.log.WithField("application_id", appID).
		WithField("reviewer_id", p.ID).
		WithField("verdict", input.Verdict).
		Info("review recorded")

	stored, ok := updated.ReviewFor(p.ID)
	if !ok {
		return loanapp.Review{}, errors.Internal("stored review missing after upsert", nil)
	}
	return stored, nil
}

// Summary is the aggregate ledger view exposed to owners, assigned
// reviewers, and administrators.
type Summary struct {
	ApplicationID     string           `json:"application_id"`
	Status            loanapp.Status   `json:"status"`
	ApprovalThreshold int              `json:"approval_threshold"`
	Counts            loanapp.Counts   `json:"counts"`
	CanSelectReviewer bool             `json:"can_select_reviewer"`
	Reviews           []loanapp.Review `json:"reviews"`
}

// GetSummary aggregates the ledger for one application. Reviews appear in
// assignment order; reviewers who have not acted yet show as pending.
func (s *Service) GetSummary(ctx context.Context, p auth.Principal, appID string) (Summary, error) {
	app, err := s.store.GetApplication(ctx, appID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return Summary{}, errors.NotFound("application", appID)
		}
		return Summary{}, errors.Internal("application lookup failed", err)
	}
	if err := auth.RequireSummaryAccess(p, app); err != nil {
		return Summary{}, err
	}

	reviews := app.Reviews
	if reviews == nil {
		reviews = []loanapp.Review{}
	}
	return Summary{
		ApplicationID:     app.ID,
		Status:            app.Status,
		ApprovalThreshold: app.ApprovalThreshold,
		Counts:            app.CountVerdicts(),
		CanSelectReviewer: app.CanSelectReviewer(),
		Reviews:           reviews,
	}, nil
}
