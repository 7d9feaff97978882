package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/openlend/review_service/internal/app/services/reviewers"
	"github.com/openlend/review_service/internal/errors"
)

// Request bodies are small; anything larger is malformed.
const maxBodyBytes = 1 << 20

type reviewersInput struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Specialization string `json:"specialization,omitempty"`
	Active         *bool  `json:"active,omitempty"`
}

func (in reviewersInput) toService() reviewers.Input {
	return reviewers.Input{
		Name:           in.Name,
		Email:          in.Email,
		Specialization: in.Specialization,
		Active:         in.Active,
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Validation("invalid request body: " + err.Error())
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.WithError(err).Error("response encoding failed")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	svcErr := errors.GetServiceError(err)
	if svcErr == nil {
		svcErr = errors.Internal("unexpected error", err)
	}
	if svcErr.Code == errors.CodeInternal {
		h.log.WithError(err).Error("request failed")
	}
	h.writeJSON(w, svcErr.HTTPStatus, map[string]interface{}{"error": svcErr})
}
