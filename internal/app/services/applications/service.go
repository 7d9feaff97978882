// Package applications implements loan application intake, reads, and the
// administrative status transitions that close out a review.
package applications

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/openlend/review_service/internal/app/auth"
	"github.com/openlend/review_service/internal/app/domain/loanapp"
	"github.com/openlend/review_service/internal/app/storage"
	"github.com/openlend/review_service/internal/errors"
	"github.com/openlend/review_service/pkg/logger"
)

// Term bounds accepted at intake.
const (
	minTermMonths = 1
	maxTermMonths = 360
)

// Service manages the application lifecycle outside of review semantics.
type Service struct {
	store storage.ApplicationStore
	log   *logger.Logger
}

// NewService creates the application service. A nil logger falls back to a
// default one.
func NewService(store storage.ApplicationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("applications")
	}
	return &Service{store: store, log: log}
}

// SubmitInput is the intake payload.
type SubmitInput struct {
	Amount     float64 `json:"amount"`
	Purpose    string  `json:"purpose"`
	TermMonths int     `json:"term_months"`
}

// Submit files a new application owned by the caller. It starts in pending
// with no reviewers assigned.
func (s *Service) Submit(ctx context.Context, p auth.Principal, input SubmitInput) (loanapp.Application, error) {
	if input.Amount <= 0 {
		return loanapp.Application{}, errors.Validation("amount must be positive")
	}
	if strings.TrimSpace(input.Purpose) == "" {
		return loanapp.Application{}, errors.Validation("purpose is required")
	}
	if input.TermMonths < minTermMonths || input.TermMonths > maxTermMonths {
		return loanapp.Application{}, errors.Validationf("term_months must be between %d and %d", minTermMonths, maxTermMonths)
	}

	app, err := s.store.CreateApplication(ctx, loanapp.Application{
		OwnerID:    p.ID,
		Amount:     input.Amount,
		Purpose:    strings.TrimSpace(input.Purpose),
		TermMonths: input.TermMonths,
		Status:     loanapp.StatusPending,
	})
	if err != nil {
		return loanapp.Application{}, errors.Internal("failed to create application", err)
	}

	s.log.WithField("application_id", app.ID).WithField("owner_id", p.ID).Info("application submitted")
	return app, nil
}

// Get returns one application. Owners, assigned reviewers, and administrators
// may read it.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (loanapp.Application, error) {
	app, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return loanapp.Application{}, mapStoreErr(err, id)
	}
	if err := auth.RequireApplicationAccess(p, app); err != nil {
		return loanapp.Application{}, err
	}
	return app, nil
}

// List returns the applications visible to the caller: all of them for an
// administrator, the caller's own for an applicant, the caller's assignments
// for a reviewer.
func (s *Service) List(ctx context.Context, p auth.Principal) ([]loanapp.Application, error) {
	var (
		apps []loanapp.Application
		err  error
	)
	switch p.Role {
	case auth.RoleAdmin:
		apps, err = s.store.ListApplications(ctx, "")
	case auth.RoleReviewer:
		apps, err = s.store.ListApplicationsForReviewer(ctx, p.ID)
	default:
		apps, err = s.store.ListApplications(ctx, p.ID)
	}
	if err != nil {
		return nil, errors.Internal("failed to list applications", err)
	}
	return apps, nil
}

// UpdateStatus applies an administrative transition that closes out (or
// reopens visibility into) a review. Terminal decisions must be consistent
// with the ledger: approval requires the threshold to be met, partial
// approval requires at least one approving reviewer.
func (s *Service) UpdateStatus(ctx context.Context, p auth.Principal, id string, to loanapp.Status) (loanapp.Application, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return loanapp.Application{}, err
	}
	if !to.Valid() {
		return loanapp.Application{}, errors.Validationf("unknown status %q", to)
	}

	app, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return loanapp.Application{}, mapStoreErr(err, id)
	}

	if app.Status.Terminal() {
		return loanapp.Application{}, errors.InvalidState("application has already reached a final decision")
	}
	if app.Status == to {
		return app, nil
	}
	if to.Terminal() {
		if app.Status != loanapp.StatusUnderReview {
			return loanapp.Application{}, errors.InvalidState("a final decision requires the application to be under review")
		}
		counts := app.CountVerdicts()
		switch to {
		case loanapp.StatusApproved:
			if counts.Approved < app.ApprovalThreshold {
				return loanapp.Application{}, errors.InvalidState("approval threshold has not been met").
					WithDetails("approved", counts.Approved).
					WithDetails("threshold", app.ApprovalThreshold)
			}
		case loanapp.StatusPartiallyApproved:
			if counts.Approved == 0 {
				return loanapp.Application{}, errors.InvalidState("partial approval requires at least one approving reviewer")
			}
		}
	}

	updated, err := s.store.UpdateStatus(ctx, id, loanapp.StatusChange{
		From:    app.Status,
		To:      to,
		ActorID: p.ID,
		At:      time.Now().UTC(),
	})
	if err != nil {
		return loanapp.Application{}, mapStoreErr(err, id)
	}

	s.log.WithField("application_id", id).
		WithField("from", app.Status).
		WithField("to", to).
		Info("application status updated")
	return updated, nil
}

func mapStoreErr(err error, id string) error {
	if stderrors.Is(err, storage.ErrNotFound) {
		return errors.NotFound("application", id)
	}
	return errors.Internal("storage failure", err)
}
