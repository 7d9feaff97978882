// Package reviewers implements the DSA reviewer directory.
package reviewers

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/openlend/review_service/internal/app/auth"
	"github.com/openlend/review_service/internal/app/domain/reviewer"
	"github.com/openlend/review_service/internal/app/storage"
	"github.com/openlend/review_service/internal/errors"
	"github.com/openlend/review_service/pkg/logger"
)

// Service manages directory entries for reviewer-capable identities.
type Service struct {
	store storage.ReviewerStore
	log   *logger.Logger
}

// NewService creates the directory service.
func NewService(store storage.ReviewerStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("reviewers")
	}
	return &Service{store: store, log: log}
}

// Input is the create/update payload for a directory entry.
type Input struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Specialization string `json:"specialization,omitempty"`
	Active         *bool  `json:"active,omitempty"`
}

func (in Input) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return errors.Validation("name is required")
	}
	if strings.TrimSpace(in.Email) == "" {
		return errors.Validation("email is required")
	}
	return nil
}

// Create registers a new reviewer. Entries start active unless the payload
// says otherwise.
func (s *Service) Create(ctx context.Context, p auth.Principal, input Input) (reviewer.Reviewer, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return reviewer.Reviewer{}, err
	}
	if err := input.validate(); err != nil {
		return reviewer.Reviewer{}, err
	}

	active := true
	if input.Active != nil {
		active = *input.Active
	}
	rev, err := s.store.CreateReviewer(ctx, reviewer.Reviewer{
		Name:           strings.TrimSpace(input.Name),
		Email:          strings.TrimSpace(input.Email),
		Specialization: strings.TrimSpace(input.Specialization),
		Active:         active,
	})
	if err != nil {
		return reviewer.Reviewer{}, errors.Internal("failed to create reviewer", err)
	}

	s.log.WithField("reviewer_id", rev.ID).Info("reviewer registered")
	return rev, nil
}

// Update modifies an existing entry. Deactivating a reviewer stops future
// assignments; existing ones are unaffected.
func (s *Service) Update(ctx context.Context, p auth.Principal, id string, input Input) (reviewer.Reviewer, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return reviewer.Reviewer{}, err
	}
	if err := input.validate(); err != nil {
		return reviewer.Reviewer{}, err
	}

	existing, err := s.store.GetReviewer(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return reviewer.Reviewer{}, errors.NotFound("reviewer", id)
		}
		return reviewer.Reviewer{}, errors.Internal("reviewer lookup failed", err)
	}

	existing.Name = strings.TrimSpace(input.Name)
	existing.Email = strings.TrimSpace(input.Email)
	existing.Specialization = strings.TrimSpace(input.Specialization)
	if input.Active != nil {
		existing.Active = *input.Active
	}

	updated, err := s.store.UpdateReviewer(ctx, existing)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return reviewer.Reviewer{}, errors.NotFound("reviewer", id)
		}
		return reviewer.Reviewer{}, errors.Internal("failed to update reviewer", err)
	}

	s.log.WithField("reviewer_id", id).Info("reviewer updated")
	return updated, nil
}

// Get returns one directory entry.
func (s *Service) Get(ctx context.Context, id string) (reviewer.Reviewer, error) {
	rev, err := s.store.GetReviewer(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return reviewer.Reviewer{}, errors.NotFound("reviewer", id)
		}
		return reviewer.Reviewer{}, errors.Internal("reviewer lookup failed", err)
	}
	return rev, nil
}

// List returns directory entries, optionally restricted to active ones.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]reviewer.Reviewer, error) {
	revs, err := s.store.ListReviewers(ctx, activeOnly)
	if err != nil {
		return nil, errors.Internal("reviewer listing failed", err)
	}
	return revs, nil
}
