package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openlend/review_service/internal/app"
	"github.com/openlend/review_service/internal/app/auth"
	"github.com/openlend/review_service/internal/app/domain/loanapp"
	"github.com/openlend/review_service/internal/app/domain/reviewer"
	"github.com/openlend/review_service/internal/middleware"
)

const testSecret = "handler-test-secret"

func newTestApp(t *testing.T) (*app.Application, http.Handler) {
	t.Helper()
	application, err := app.New(app.Options{})
	if err != nil {
		t.Fatalf("build application: %v", err)
	}
	return application, NewHandler(application).Router(testSecret)
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	_, router := newTestApp(t)
	return router
}

func token(t *testing.T, id string, role auth.Role) string {
	t.Helper()
	tok, err := middleware.NewToken(testSecret, id, role, time.Minute)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func doRequest(t *testing.T, router http.Handler, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthAndMetricsOpen(t *testing.T) {
	router := newTestRouter(t)

	if rec := doRequest(t, router, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}
	if rec := doRequest(t, router, http.MethodGet, "/metrics", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
}

func TestAuthenticationRequired(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/applications", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

// TestReviewWorkflow walks one application through the whole lifecycle:
// intake, assignment of a three-reviewer panel with threshold two, verdicts,
// the final decision, and the owner's primary-reviewer choice.
func TestReviewWorkflow(t *testing.T) {
	application, router := newTestApp(t)

	adminTok := token(t, "ops-1", auth.RoleAdmin)
	ownerTok := token(t, "u-1", auth.RoleApplicant)

	// Register the panel in the directory.
	reviewerIDs := make([]string, 0, 3)
	for _, name := range []string{"Asha Rao", "Ben Okoye", "Carla Mendes"} {
		rec := doRequest(t, router, http.MethodPost, "/reviewers", adminTok, map[string]interface{}{
			"name": name, "email": name + "@bank.test",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create reviewer: expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var rev reviewer.Reviewer
		decode(t, rec, &rev)
		reviewerIDs = append(reviewerIDs, rev.ID)
	}
	r1Tok := token(t, reviewerIDs[0], auth.RoleReviewer)
	r2Tok := token(t, reviewerIDs[1], auth.RoleReviewer)
	r3Tok := token(t, reviewerIDs[2], auth.RoleReviewer)

	// Intake.
	rec := doRequest(t, router, http.MethodPost, "/applications", ownerTok, map[string]interface{}{
		"amount": 50000, "purpose": "warehouse expansion", "term_months": 48,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created loanapp.Application
	decode(t, rec, &created)
	appPath := "/applications/" + created.ID

	// Selection is closed before any review activity.
	rec = doRequest(t, router, http.MethodPost, appPath+"/primary-reviewer", ownerTok, map[string]interface{}{
		"reviewer_id": reviewerIDs[0],
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("early selection: expected 409, got %d", rec.Code)
	}

	// Candidates are visible to the admin only.
	rec = doRequest(t, router, http.MethodGet, appPath+"/assignments/candidates", ownerTok, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("candidates as owner: expected 403, got %d", rec.Code)
	}
	rec = doRequest(t, router, http.MethodGet, appPath+"/assignments/candidates", adminTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("candidates: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var candidates []map[string]interface{}
	decode(t, rec, &candidates)
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}

	// Assign the panel with threshold 2.
	rec = doRequest(t, router, http.MethodPost, appPath+"/assignments", adminTok, map[string]interface{}{
		"reviewer_ids": reviewerIDs, "approval_threshold": 2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("assign: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var assigned struct {
		Application        loanapp.Application `json:"application"`
		ThresholdReachable bool                `json:"threshold_reachable"`
	}
	decode(t, rec, &assigned)
	if assigned.Application.Status != loanapp.StatusUnderReview {
		t.Fatalf("expected under_review, got %s", assigned.Application.Status)
	}
	if !assigned.ThresholdReachable {
		t.Fatal("threshold 2 over 3 reviewers should be reachable")
	}

	// An outsider with a reviewer token cannot submit.
	rec = doRequest(t, router, http.MethodPost, appPath+"/reviews", token(t, "r-ghost", auth.RoleReviewer), map[string]interface{}{
		"verdict": "approved",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unassigned review: expected 403, got %d", rec.Code)
	}

	// Verdicts: two approvals, one rejection.
	for _, step := range []struct {
		tok     string
		verdict string
	}{
		{r1Tok, "approved"},
		{r2Tok, "rejected"},
		{r3Tok, "approved"},
	} {
		rec = doRequest(t, router, http.MethodPost, appPath+"/reviews", step.tok, map[string]interface{}{
			"verdict": step.verdict, "comments": "reviewed in full",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("review %s: expected 200, got %d: %s", step.verdict, rec.Code, rec.Body.String())
		}
	}

	// The owner reads the summary.
	rec = doRequest(t, router, http.MethodGet, appPath+"/reviews", ownerTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d", rec.Code)
	}
	var summary struct {
		Counts            loanapp.Counts `json:"counts"`
		CanSelectReviewer bool           `json:"can_select_reviewer"`
	}
	decode(t, rec, &summary)
	if summary.Counts.Approved != 2 || summary.Counts.Rejected != 1 || summary.Counts.Pending != 0 {
		t.Fatalf("unexpected counts %+v", summary.Counts)
	}
	if !summary.CanSelectReviewer {
		t.Fatal("selection should be open")
	}

	// Threshold met: the admin approves.
	rec = doRequest(t, router, http.MethodPatch, appPath+"/status", adminTok, map[string]interface{}{
		"status": "approved",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// The owner picks a point of contact from the approving reviewers.
	rec = doRequest(t, router, http.MethodGet, appPath+"/primary-reviewer/options", ownerTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("options: expected 200, got %d", rec.Code)
	}
	var opts struct {
		CanSelect bool                     `json:"can_select"`
		Approved  []map[string]interface{} `json:"approved"`
		Pending   []map[string]interface{} `json:"pending"`
		Rejected  []map[string]interface{} `json:"rejected"`
	}
	decode(t, rec, &opts)
	if !opts.CanSelect || len(opts.Approved) != 2 || len(opts.Pending) != 0 || len(opts.Rejected) != 1 {
		t.Fatalf("unexpected options %+v", opts)
	}

	rec = doRequest(t, router, http.MethodPost, appPath+"/primary-reviewer", ownerTok, map[string]interface{}{
		"reviewer_id": reviewerIDs[0],
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("select: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var selected reviewer.Profile
	decode(t, rec, &selected)
	if selected.ID != reviewerIDs[0] {
		t.Fatalf("expected profile of %s, got %+v", reviewerIDs[0], selected)
	}

	rec = doRequest(t, router, http.MethodGet, appPath, ownerTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get application: expected 200, got %d", rec.Code)
	}
	var final loanapp.Application
	decode(t, rec, &final)
	if final.PrimaryReviewer != reviewerIDs[0] {
		t.Fatalf("expected primary %s, got %q", reviewerIDs[0], final.PrimaryReviewer)
	}

	// Only the owner may select.
	rec = doRequest(t, router, http.MethodPost, appPath+"/primary-reviewer", adminTok, map[string]interface{}{
		"reviewer_id": reviewerIDs[1],
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("select as admin: expected 403, got %d", rec.Code)
	}

	// Every mutation above left an audit event; the newest is the selection.
	events := application.Audit.Recent(100)
	if len(events) == 0 {
		t.Fatal("expected audit events")
	}
	if events[0].Action != "selection.primary" || events[0].ActorID != "u-1" {
		t.Fatalf("unexpected newest audit event %+v", events[0])
	}
}

func TestValidationAndNotFoundMapping(t *testing.T) {
	router := newTestRouter(t)
	ownerTok := token(t, "u-1", auth.RoleApplicant)
	adminTok := token(t, "ops-1", auth.RoleAdmin)

	rec := doRequest(t, router, http.MethodPost, "/applications", ownerTok, map[string]interface{}{
		"amount": -5, "purpose": "x", "term_months": 12,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad amount: expected 400, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/applications/does-not-exist", adminTok, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing application: expected 404, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/applications", ownerTok, map[string]interface{}{
		"amount": 100, "purpose": "x", "term_months": 12, "unexpected": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: expected 400, got %d", rec.Code)
	}
}
