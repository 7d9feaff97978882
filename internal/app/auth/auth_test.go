package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openlend/review_service/internal/app/domain/loanapp"
	"github.com/openlend/review_service/internal/errors"
)

func TestRequireAdmin(t *testing.T) {
	assert.NoError(t, RequireAdmin(Principal{ID: "u-1", Role: RoleAdmin}))
	assert.True(t, errors.Is(RequireAdmin(Principal{ID: "u-2", Role: RoleApplicant}), errors.CodeForbidden))
	assert.True(t, errors.Is(RequireAdmin(Principal{ID: "r-1", Role: RoleReviewer}), errors.CodeForbidden))
}

func TestRequireAssignedReviewer(t *testing.T) {
	app := loanapp.Application{AssignedReviewers: []string{"r-1", "r-2"}}

	assert.NoError(t, RequireAssignedReviewer(Principal{ID: "r-1", Role: RoleReviewer}, app, "r-1"))

	// Acting on someone else's behalf is rejected even for assigned reviewers.
	err := RequireAssignedReviewer(Principal{ID: "r-1", Role: RoleReviewer}, app, "r-2")
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	err = RequireAssignedReviewer(Principal{ID: "r-9", Role: RoleReviewer}, app, "r-9")
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	err = RequireAssignedReviewer(Principal{ID: "r-1", Role: RoleAdmin}, app, "r-1")
	assert.True(t, errors.Is(err, errors.CodeForbidden))
}

func TestRequireSummaryAccess(t *testing.T) {
	app := loanapp.Application{OwnerID: "u-1", AssignedReviewers: []string{"r-1"}}

	assert.NoError(t, RequireSummaryAccess(Principal{ID: "u-1", Role: RoleApplicant}, app))
	assert.NoError(t, RequireSummaryAccess(Principal{ID: "r-1", Role: RoleReviewer}, app))
	assert.NoError(t, RequireSummaryAccess(Principal{ID: "ops", Role: RoleAdmin}, app))

	err := RequireSummaryAccess(Principal{ID: "u-2", Role: RoleApplicant}, app)
	assert.True(t, errors.Is(err, errors.CodeForbidden))
}

func TestRequireOwner(t *testing.T) {
	app := loanapp.Application{OwnerID: "u-1"}
	assert.NoError(t, RequireOwner(Principal{ID: "u-1", Role: RoleApplicant}, app))
	assert.True(t, errors.Is(RequireOwner(Principal{ID: "u-2", Role: RoleApplicant}, app), errors.CodeForbidden))
}
