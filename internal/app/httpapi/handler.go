// Package httpapi exposes the review workflow over HTTP.
package httpapi

import (
	"net/http"
	"strings"

	"github.com/openlend/review_service/internal/app"
	"github.com/openlend/review_service/internal/app/audit"
	"github.com/openlend/review_service/internal/app/auth"
	"github.com/openlend/review_service/internal/app/domain/loanapp"
	"github.com/openlend/review_service/internal/app/services/applications"
	"github.com/openlend/review_service/internal/app/services/assignment"
	"github.com/openlend/review_service/internal/app/services/reviews"
	"github.com/openlend/review_service/internal/errors"
	"github.com/openlend/review_service/internal/middleware"
	"github.com/openlend/review_service/pkg/logger"
)

// Handler serves the REST API.
type Handler struct {
	app *app.Application
	log *logger.Logger
}

// NewHandler creates the API handler over an assembled application.
func NewHandler(application *app.Application) *Handler {
	return &Handler{app: application, log: application.Log.WithField("component", "httpapi")}
}

// Router assembles the full middleware chain. The health and metrics
// endpoints stay outside authentication.
func (h *Handler) Router(jwtSecret string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", h.app.Metrics.Handler())

	authed := middleware.Authenticate(jwtSecret)
	mux.Handle("/applications", authed(http.HandlerFunc(h.handleApplications)))
	mux.Handle("/applications/", authed(http.HandlerFunc(h.handleApplicationSubtree)))
	mux.Handle("/reviewers", authed(http.HandlerFunc(h.handleReviewers)))
	mux.Handle("/reviewers/", authed(http.HandlerFunc(h.handleReviewerByID)))

	return h.app.Metrics.Middleware(mux)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleApplications covers the collection: POST files a new application, GET
// lists what the caller may see.
func (h *Handler) handleApplications(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, errors.Unauthorized("no caller identity"))
		return
	}

	switch r.Method {
	case http.MethodPost:
		var input applications.SubmitInput
		if err := decodeJSON(r, &input); err != nil {
			h.writeError(w, err)
			return
		}
		created, err := h.app.Applications.Submit(r.Context(), p, input)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.app.Metrics.ApplicationsSubmitted.Inc()
		h.app.Audit.Record(audit.Event{
			ActorID: p.ID, Action: audit.ActionSubmitApplication, ApplicationID: created.ID,
		})
		h.writeJSON(w, http.StatusCreated, created)

	case http.MethodGet:
		apps, err := h.app.Applications.List(r.Context(), p)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, apps)

	default:
		h.writeError(w, errors.Validationf("method %s not allowed", r.Method))
	}
}

// handleApplicationSubtree routes /applications/{id}[/...] by splitting the
// remaining path.
func (h *Handler) handleApplicationSubtree(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, errors.Unauthorized("no caller identity"))
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/applications/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		h.writeError(w, errors.NotFound("route", r.URL.Path))
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1:
		h.handleApplicationByID(w, r, p, id)
	case len(parts) == 2 && parts[1] == "status":
		h.handleStatus(w, r, p, id)
	case len(parts) == 2 && parts[1] == "assignments":
		h.handleAssignments(w, r, p, id)
	case len(parts) == 3 && parts[1] == "assignments" && parts[2] == "candidates":
		h.handleCandidates(w, r, p, id)
	case len(parts) == 2 && parts[1] == "reviews":
		h.handleReviews(w, r, p, id)
	case len(parts) == 2 && parts[1] == "primary-reviewer":
		h.handlePrimaryReviewer(w, r, p, id)
	case len(parts) == 3 && parts[1] == "primary-reviewer" && parts[2] == "options":
		h.handleSelectionOptions(w, r, p, id)
	default:
		h.writeError(w, errors.NotFound("route", r.URL.Path))
	}
}

func (h *Handler) handleApplicationByID(w http.ResponseWriter, r *http.Request, p auth.Principal, id string) {
	if r.Method != http.MethodGet {
		h.writeError(w, errors.Validationf("method %s not allowed", r.Method))
		return
	}
	app, err := h.app.Applications.Get(r.Context(), p, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request, p auth.Principal, id string) {
	if r.Method != http.MethodPatch {
		h.writeError(w, errors.Validationf("method %s not allowed", r.Method))
		return
	}
	var input struct {
		Status loanapp.Status `json:"status"`
	}
	if err := decodeJSON(r, &input); err != nil {
		h.writeError(w, err)
		return
	}
	app, err := h.app.Applications.UpdateStatus(r.Context(), p, id, input.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.app.Metrics.StatusTransitions.WithLabelValues(string(input.Status)).Inc()
	h.app.Audit.Record(audit.Event{
		ActorID: p.ID, Action: audit.ActionUpdateStatus, ApplicationID: id,
		Details: map[string]interface{}{"to": input.Status},
	})
	h.writeJSON(w, http.StatusOK, app)
}

func (h *Handler) handleAssignments(w http.ResponseWriter, r *http.Request, p auth.Principal, id string) {
	if r.Method != http.MethodPost {
		h.writeError(w, errors.Validationf("method %s not allowed", r.Method))
		return
	}
	var input assignment.AssignInput
	if err := decodeJSON(r, &input); err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.app.Assignment.Assign(r.Context(), p, id, input)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.app.Metrics.AssignmentsTotal.Inc()
	h.app.Audit.Record(audit.Event{
		ActorID: p.ID, Action: audit.ActionAssignReviewers, ApplicationID: id,
		Details: map[string]interface{}{
			"reviewers": input.ReviewerIDs,
			"threshold": input.ApprovalThreshold,
		},
	})
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleCandidates(w http.ResponseWriter, r *http.Request, p auth.Principal, id string) {
	if r.Method != http.MethodGet {
		h.writeError(w, errors.Validationf("method %s not allowed", r.Method))
		return
	}
	candidates, err := h.app.Assignment.Candidates(r.Context(), p, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, candidates)
}

func (h *Handler) handleReviews(w http.ResponseWriter, r *http.Request, p auth.Principal, id string) {
	switch r.Method {
	case http.MethodPost:
		var input reviews.SubmitInput
		if err := decodeJSON(r, &input); err != nil {
			h.writeError(w, err)
			return
		}
		rev, err := h.app.Reviews.Submit(r.Context(), p, id, input)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.app.Metrics.ReviewsSubmitted.WithLabelValues(string(input.Verdict)).Inc()
		h.app.Audit.Record(audit.Event{
			ActorID: p.ID, Action: audit.ActionSubmitReview, ApplicationID: id,
			Details: map[string]interface{}{"verdict": input.Verdict},
		})
		h.writeJSON(w, http.StatusOK, rev)

	case http.MethodGet:
		summary, err := h.app.Reviews.GetSummary(r.Context(), p, id)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, summary)

	default:
		h.writeError(w, errors.Validationf("method %s not allowed", r.Method))
	}
}

func (h *Handler) handlePrimaryReviewer(w http.ResponseWriter, r *http.Request, p auth.Principal, id string) {
	if r.Method != http.MethodPost {
		h.writeError(w, errors.Validationf("method %s not allowed", r.Method))
		return
	}
	var input struct {
		ReviewerID string `json:"reviewer_id"`
	}
	if err := decodeJSON(r, &input); err != nil {
		h.writeError(w, err)
		return
	}
	prof, err := h.app.Selection.SelectPrimary(r.Context(), p, id, input.ReviewerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.app.Metrics.PrimarySelections.Inc()
	h.app.Audit.Record(audit.Event{
		ActorID: p.ID, Action: audit.ActionSelectPrimary, ApplicationID: id,
		Details: map[string]interface{}{"reviewer_id": input.ReviewerID},
	})
	h.writeJSON(w, http.StatusOK, prof)
}

func (h *Handler) handleSelectionOptions(w http.ResponseWriter, r *http.Request, p auth.Principal, id string) {
	if r.Method != http.MethodGet {
		h.writeError(w, errors.Validationf("method %s not allowed", r.Method))
		return
	}
	opts, err := h.app.Selection.ListOptions(r.Context(), p, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, opts)
}

// handleReviewers covers the directory collection.
func (h *Handler) handleReviewers(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, errors.Unauthorized("no caller identity"))
		return
	}

	switch r.Method {
	case http.MethodPost:
		var input reviewersInput
		if err := decodeJSON(r, &input); err != nil {
			h.writeError(w, err)
			return
		}
		rev, err := h.app.Reviewers.Create(r.Context(), p, input.toService())
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.app.Audit.Record(audit.Event{ActorID: p.ID, Action: audit.ActionCreateReviewer})
		h.writeJSON(w, http.StatusCreated, rev)

	case http.MethodGet:
		activeOnly := r.URL.Query().Get("active") == "true"
		revs, err := h.app.Reviewers.List(r.Context(), activeOnly)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, revs)

	default:
		h.writeError(w, errors.Validationf("method %s not allowed", r.Method))
	}
}

func (h *Handler) handleReviewerByID(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, errors.Unauthorized("no caller identity"))
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/reviewers/"), "/")
	if id == "" || strings.Contains(id, "/") {
		h.writeError(w, errors.NotFound("route", r.URL.Path))
		return
	}

	switch r.Method {
	case http.MethodGet:
		rev, err := h.app.Reviewers.Get(r.Context(), id)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, rev)

	case http.MethodPut:
		var input reviewersInput
		if err := decodeJSON(r, &input); err != nil {
			h.writeError(w, err)
			return
		}
		rev, err := h.app.Reviewers.Update(r.Context(), p, id, input.toService())
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.app.Audit.Record(audit.Event{ActorID: p.ID, Action: audit.ActionUpdateReviewer})
		h.writeJSON(w, http.StatusOK, rev)

	default:
		h.writeError(w, errors.Validationf("method %s not allowed", r.Method))
	}
}
