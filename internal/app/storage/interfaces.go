// Package storage declares the persistence interfaces the workflow services
// depend on. Implementations must make the review upsert and assignment
// replacement atomic; see the memory and postgres packages.
package storage

import (
	"context"
	"errors"

	"github.com/openlend/review_service/internal/app/domain/loanapp"
	"github.com/openlend/review_service/internal/app/domain/reviewer"
)

// Sentinel errors implementations return so services can map them onto the
// caller-facing taxonomy.
var (
	// ErrNotFound reports an identifier that does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrReviewerNotAssigned reports a review write for a reviewer who is not
	// in the application's current assigned set at the time of the write.
	ErrReviewerNotAssigned = errors.New("reviewer not assigned")
)

// ApplicationStore persists loan applications and their review ledgers.
type ApplicationStore interface {
	CreateApplication(ctx context.Context, app loanapp.Application) (loanapp.Application, error)
	GetApplication(ctx context.Context, id string) (loanapp.Application, error)
	// ListApplications returns applications filtered by owner; an empty
	// ownerID returns all.
	ListApplications(ctx context.Context, ownerID string) ([]loanapp.Application, error)
	// ListApplicationsForReviewer returns applications where the reviewer is
	// in the assigned set.
	ListApplicationsForReviewer(ctx context.Context, reviewerID string) ([]loanapp.Application, error)

	// ReplaceAssignment atomically swaps the assigned reviewer set, records
	// the threshold, stamps AssignedAt, moves the application to
	// under_review, and reinitializes the ledger with one pending placeholder
	// per reviewer. Prior reviews are discarded.
	ReplaceAssignment(ctx context.Context, id string, reviewerIDs []string, threshold int, change loanapp.StatusChange) (loanapp.Application, error)

	// UpsertReview atomically writes the reviewer's record: overwrite when
	// one exists, insert otherwise. Fails with ErrReviewerNotAssigned when
	// the reviewer is not in the current assigned set, which also covers
	// writes racing a reassignment.
	UpsertReview(ctx context.Context, id string, rev loanapp.Review) (loanapp.Application, error)

	// SetPrimaryReviewer atomically verifies membership and records the
	// owner's chosen point of contact.
	SetPrimaryReviewer(ctx context.Context, id, reviewerID string) (loanapp.Application, error)

	// UpdateStatus applies a status transition and appends it to the
	// application's history.
	UpdateStatus(ctx context.Context, id string, change loanapp.StatusChange) (loanapp.Application, error)

	// CountActiveAssignments returns how many applications other than
	// excludeID the reviewer is assigned to with status pending or
	// under_review. Used for candidate workload.
	CountActiveAssignments(ctx context.Context, reviewerID, excludeID string) (int, error)
}

// ReviewerStore persists the DSA reviewer directory.
type ReviewerStore interface {
	CreateReviewer(ctx context.Context, rev reviewer.Reviewer) (reviewer.Reviewer, error)
	UpdateReviewer(ctx context.Context, rev reviewer.Reviewer) (reviewer.Reviewer, error)
	GetReviewer(ctx context.Context, id string) (reviewer.Reviewer, error)
	// ListReviewers returns directory entries, restricted to active ones when
	// activeOnly is set.
	ListReviewers(ctx context.Context, activeOnly bool) ([]reviewer.Reviewer, error)
}
