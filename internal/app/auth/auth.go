// Package auth centralizes the access-control policy for the review
// workflow. Every operation checks its caller through one predicate here
// instead of scattering role comparisons across handlers.
package auth

import (
	"github.com/openlend/review_service/internal/app/domain/loanapp"
	"github.com/openlend/review_service/internal/errors"
)

// Role is a closed capability tag. The identity provider supplies exactly one
// per caller and the core trusts it.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleReviewer  Role = "reviewer"
	RoleApplicant Role = "applicant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleReviewer, RoleApplicant:
		return true
	}
	return false
}

// Principal is the authenticated caller identity.
type Principal struct {
	ID   string
	Role Role
}

// RequireAdmin gates administrative operations.
func RequireAdmin(p Principal) error {
	if p.Role != RoleAdmin {
		return errors.Forbidden("administrator role required")
	}
	return nil
}

// RequireOwner gates owner-only operations on an application.
func RequireOwner(p Principal, app loanapp.Application) error {
	if p.ID != app.OwnerID {
		return errors.Forbidden("only the application owner may perform this operation")
	}
	return nil
}

// RequireAssignedReviewer gates verdict submission: the caller must be acting
// as themselves and be a current member of the assigned set.
func RequireAssignedReviewer(p Principal, app loanapp.Application, reviewerID string) error {
	if p.Role != RoleReviewer || p.ID != reviewerID {
		return errors.Forbidden("callers may only submit their own review")
	}
	if !app.IsAssigned(reviewerID) {
		return errors.Forbidden("reviewer is not assigned to this application")
	}
	return nil
}

// RequireSummaryAccess gates the review summary: owner, any assigned
// reviewer, or an administrator.
func RequireSummaryAccess(p Principal, app loanapp.Application) error {
	if p.Role == RoleAdmin || p.ID == app.OwnerID || app.IsAssigned(p.ID) {
		return nil
	}
	return errors.Forbidden("no access to this application's reviews")
}

// RequireApplicationAccess gates reads of the application itself; same
// audience as the summary.
func RequireApplicationAccess(p Principal, app loanapp.Application) error {
	return RequireSummaryAccess(p, app)
}
