package assignment

import (
	"context"
	"testing"
	"time"

	"github.com/openlend/review_service/internal/app/auth"
	"github.com/openlend/review_service/internal/app/domain/loanapp"
	"github.com/openlend/review_service/internal/app/domain/reviewer"
	"github.com/openlend/review_service/internal/app/storage/memory"
	"github.com/openlend/review_service/internal/errors"
)

var admin = auth.Principal{ID: "ops-1", Role: auth.RoleAdmin}

type fixture struct {
	store *memory.Store
	svc   *Service
}

func newFixture(t *testing.T, reviewerIDs ...string) *fixture {
	t.Helper()
	store := memory.New()
	for _, id := range reviewerIDs {
		if _, err := store.CreateReviewer(context.Background(), reviewer.Reviewer{
			ID: id, Name: "Reviewer " + id, Email: id + "@bank.test", Active: true,
		}); err != nil {
			t.Fatalf("seed reviewer: %v", err)
		}
	}
	return &fixture{store: store, svc: NewService(store, store, nil, nil)}
}

func (f *fixture) newApplication(t *testing.T, ownerID string) loanapp.Application {
	t.Helper()
	app, err := f.store.CreateApplication(context.Background(), loanapp.Application{
		OwnerID: ownerID, Amount: 10000, Purpose: "inventory", TermMonths: 12, Status: loanapp.StatusPending,
	})
	if err != nil {
		t.Fatalf("seed application: %v", err)
	}
	return app
}

func TestAssignValidation(t *testing.T) {
	f := newFixture(t, "r-1", "r-2", "r-3", "r-4", "r-5")
	app := f.newApplication(t, "u-1")
	ctx := context.Background()

	cases := []struct {
		name  string
		input AssignInput
		code  errors.Code
	}{
		{"no reviewers", AssignInput{ReviewerIDs: nil, ApprovalThreshold: 1}, errors.CodeValidation},
		{"too many reviewers", AssignInput{ReviewerIDs: []string{"r-1", "r-2", "r-3", "r-4", "r-5", "r-6"}, ApprovalThreshold: 1}, errors.CodeValidation},
		{"threshold too low", AssignInput{ReviewerIDs: []string{"r-1"}, ApprovalThreshold: 0}, errors.CodeValidation},
		{"threshold too high", AssignInput{ReviewerIDs: []string{"r-1"}, ApprovalThreshold: 6}, errors.CodeValidation},
		{"duplicate reviewer", AssignInput{ReviewerIDs: []string{"r-1", "r-1"}, ApprovalThreshold: 1}, errors.CodeValidation},
		{"unknown reviewer", AssignInput{ReviewerIDs: []string{"ghost"}, ApprovalThreshold: 1}, errors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Assign(ctx, admin, app.ID, tc.input)
			if !errors.Is(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}

	t.Run("non-admin forbidden", func(t *testing.T) {
		owner := auth.Principal{ID: "u-1", Role: auth.RoleApplicant}
		_, err := f.svc.Assign(ctx, owner, app.ID, AssignInput{ReviewerIDs: []string{"r-1"}, ApprovalThreshold: 1})
		if !errors.Is(err, errors.CodeForbidden) {
			t.Fatalf("expected forbidden, got %v", err)
		}
	})

	t.Run("inactive reviewer", func(t *testing.T) {
		rev, err := f.store.GetReviewer(ctx, "r-5")
		if err != nil {
			t.Fatalf("get reviewer: %v", err)
		}
		rev.Active = false
		if _, err := f.store.UpdateReviewer(ctx, rev); err != nil {
			t.Fatalf("deactivate: %v", err)
		}
		_, err = f.svc.Assign(ctx, admin, app.ID, AssignInput{ReviewerIDs: []string{"r-5"}, ApprovalThreshold: 1})
		if !errors.Is(err, errors.CodeValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("missing application", func(t *testing.T) {
		_, err := f.svc.Assign(ctx, admin, "missing", AssignInput{ReviewerIDs: []string{"r-1"}, ApprovalThreshold: 1})
		if !errors.Is(err, errors.CodeNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestAssignMovesUnderReviewAndResetsLedger(t *testing.T) {
	f := newFixture(t, "r-1", "r-2", "r-3")
	app := f.newApplication(t, "u-1")
	ctx := context.Background()

	result, err := f.svc.Assign(ctx, admin, app.ID, AssignInput{ReviewerIDs: []string{"r-1", "r-2"}, ApprovalThreshold: 2})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if result.Application.Status != loanapp.StatusUnderReview {
		t.Fatalf("expected under_review, got %s", result.Application.Status)
	}
	if !result.ThresholdReachable {
		t.Fatal("threshold 2 with 2 reviewers should be reachable")
	}
	if result.Application.AssignedAt.IsZero() {
		t.Fatal("expected assignment timestamp")
	}
	if len(result.Application.Reviews) != 2 {
		t.Fatalf("expected 2 pending placeholders, got %d", len(result.Application.Reviews))
	}

	// r-1 records a verdict, then the panel is replaced with r-1 retained.
	if _, err := f.store.UpsertReview(ctx, app.ID, loanapp.Review{ReviewerID: "r-1", Verdict: loanapp.VerdictApproved}); err != nil {
		t.Fatalf("review: %v", err)
	}
	result, err = f.svc.Assign(ctx, admin, app.ID, AssignInput{ReviewerIDs: []string{"r-1", "r-3"}, ApprovalThreshold: 1})
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}

	updated := result.Application
	if updated.ApprovalThreshold != 1 {
		t.Fatalf("expected threshold 1, got %d", updated.ApprovalThreshold)
	}
	counts := updated.CountVerdicts()
	if counts.Approved != 0 || counts.Pending != 2 {
		t.Fatalf("reassignment should reset the ledger, got %+v", counts)
	}
	rec, ok := updated.ReviewFor("r-1")
	if !ok || rec.Verdict != loanapp.VerdictPending {
		t.Fatalf("retained reviewer should start over, got %+v", rec)
	}
	if len(updated.StatusHistory) != 1 {
		t.Fatalf("reassignment within under_review should not add history, got %d entries", len(updated.StatusHistory))
	}
}

func TestAssignTerminalRejected(t *testing.T) {
	f := newFixture(t, "r-1")
	app := f.newApplication(t, "u-1")
	ctx := context.Background()

	if _, err := f.svc.Assign(ctx, admin, app.ID, AssignInput{ReviewerIDs: []string{"r-1"}, ApprovalThreshold: 1}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.store.UpdateStatus(ctx, app.ID, loanapp.StatusChange{
		From: loanapp.StatusUnderReview, To: loanapp.StatusRejected, ActorID: admin.ID, At: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("reject: %v", err)
	}

	_, err := f.svc.Assign(ctx, admin, app.ID, AssignInput{ReviewerIDs: []string{"r-1"}, ApprovalThreshold: 1})
	if !errors.Is(err, errors.CodeInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestAssignUnreachableThreshold(t *testing.T) {
	f := newFixture(t, "r-1", "r-2")
	app := f.newApplication(t, "u-1")

	result, err := f.svc.Assign(context.Background(), admin, app.ID, AssignInput{ReviewerIDs: []string{"r-1", "r-2"}, ApprovalThreshold: 4})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if result.ThresholdReachable {
		t.Fatal("threshold 4 with 2 reviewers must be flagged unreachable")
	}
	if result.Application.ApprovalThreshold != 4 {
		t.Fatalf("threshold should be stored as requested, got %d", result.Application.ApprovalThreshold)
	}
}

func TestCandidatesSortedByWorkload(t *testing.T) {
	f := newFixture(t, "r-1", "r-2", "r-3")
	ctx := context.Background()

	// r-1 carries two active applications, r-2 one, r-3 none.
	other1 := f.newApplication(t, "u-9")
	other2 := f.newApplication(t, "u-9")
	if _, err := f.svc.Assign(ctx, admin, other1.ID, AssignInput{ReviewerIDs: []string{"r-1", "r-2"}, ApprovalThreshold: 1}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.svc.Assign(ctx, admin, other2.ID, AssignInput{ReviewerIDs: []string{"r-1"}, ApprovalThreshold: 1}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	target := f.newApplication(t, "u-1")
	candidates, err := f.svc.Candidates(ctx, admin, target.ID)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}

	wantOrder := []string{"r-3", "r-2", "r-1"}
	wantCounts := []int{0, 1, 2}
	for i, c := range candidates {
		if c.ID != wantOrder[i] {
			t.Fatalf("position %d: expected %s, got %s", i, wantOrder[i], c.ID)
		}
		if c.ActiveAssignments != wantCounts[i] {
			t.Fatalf("%s: expected %d active assignments, got %d", c.ID, wantCounts[i], c.ActiveAssignments)
		}
	}
}

func TestCandidatesExcludeTargetApplicationAndInactive(t *testing.T) {
	f := newFixture(t, "r-1", "r-2")
	ctx := context.Background()

	target := f.newApplication(t, "u-1")
	if _, err := f.svc.Assign(ctx, admin, target.ID, AssignInput{ReviewerIDs: []string{"r-1"}, ApprovalThreshold: 1}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	rev, err := f.store.GetReviewer(ctx, "r-2")
	if err != nil {
		t.Fatalf("get reviewer: %v", err)
	}
	rev.Active = false
	if _, err := f.store.UpdateReviewer(ctx, rev); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	candidates, err := f.svc.Candidates(ctx, admin, target.ID)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != "r-1" {
		t.Fatalf("expected only r-1, got %+v", candidates)
	}
	// The application being staffed does not count against its own panel.
	if candidates[0].ActiveAssignments != 0 {
		t.Fatalf("expected workload 0, got %d", candidates[0].ActiveAssignments)
	}
	if !candidates[0].Assigned {
		t.Fatal("r-1 should be flagged as already assigned")
	}
}

func TestCandidatesTieBreakOnName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, r := range []reviewer.Reviewer{
		{ID: "z-1", Name: "Aisha", Active: true},
		{ID: "a-1", Name: "Zoe", Active: true},
	} {
		if _, err := f.store.CreateReviewer(ctx, r); err != nil {
			t.Fatalf("seed reviewer: %v", err)
		}
	}

	target := f.newApplication(t, "u-1")
	candidates, err := f.svc.Candidates(ctx, admin, target.ID)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if candidates[0].Name != "Aisha" || candidates[1].Name != "Zoe" {
		t.Fatalf("expected name order on equal workload, got %+v", candidates)
	}
}

func TestCandidatesRequireAdmin(t *testing.T) {
	f := newFixture(t, "r-1")
	target := f.newApplication(t, "u-1")

	_, err := f.svc.Candidates(context.Background(), auth.Principal{ID: "u-1", Role: auth.RoleApplicant}, target.ID)
	if !errors.Is(err, errors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
