package httpd

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aryasetiap/protextify-backendv2-sub000/internal/models"
	"github.com/aryasetiap/protextify-backendv2-sub000/internal/service"
)

// Requester identity comes from the upstream API gateway, which verifies
// the JWT and forwards the subject in a trusted header.
const requesterHeader = "X-User-Id"

func (h *Handler) SubmitCheck(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.SubmissionID == "" {
		writeError(w, http.StatusBadRequest, "submission_id is required")
		return
	}

	requesterID := r.Header.Get(requesterHeader)
	if requesterID == "" {
		writeError(w, http.StatusUnauthorized, "Missing requester identity")
		return
	}

	result, err := h.checkService.SubmitCheck(r.Context(), req.SubmissionID, requesterID, req.Options)
	if err != nil {
		h.handleCheckError(w, err)
		return
	}

	writeSuccess(w, result)
}

func (h *Handler) Recheck(w http.ResponseWriter, r *http.Request) {
	submissionID := chi.URLParam(r, "submission_id")

	requesterID := r.Header.Get(requesterHeader)
	if requesterID == "" {
		writeError(w, http.StatusUnauthorized, "Missing requester identity")
		return
	}

	var req struct {
		Options models.CheckOption `json:"options"`
	}
	if r.Body != nil {
		// Options are optional on a recheck.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := h.checkService.Recheck(r.Context(), submissionID, requesterID, req.Options)
	if err != nil {
		h.handleCheckError(w, err)
		return
	}

	writeSuccess(w, result)
}

func (h *Handler) GetCheck(w http.ResponseWriter, r *http.Request) {
	submissionID := chi.URLParam(r, "submission_id")

	requesterID := r.Header.Get(requesterHeader)
	if requesterID == "" {
		writeError(w, http.StatusUnauthorized, "Missing requester identity")
		return
	}

	check, err := h.checkService.GetCheck(r.Context(), submissionID, requesterID)
	if err != nil {
		h.handleCheckError(w, err)
		return
	}

	writeSuccess(w, check)
}

func (h *Handler) GetCheckStatus(w http.ResponseWriter, r *http.Request) {
	submissionID := chi.URLParam(r, "submission_id")

	requesterID := r.Header.Get(requesterHeader)
	if requesterID == "" {
		writeError(w, http.StatusUnauthorized, "Missing requester identity")
		return
	}

	status, err := h.checkService.QueryStatus(r.Context(), submissionID, requesterID)
	if err != nil {
		h.handleCheckError(w, err)
		return
	}

	writeSuccess(w, status)
}

func (h *Handler) handleCheckError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSubmissionNotFound),
		errors.Is(err, service.ErrCheckNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "Access denied")
	case errors.Is(err, service.ErrSubmissionNotSubmitted),
		errors.Is(err, service.ErrContentTooShort),
		errors.Is(err, service.ErrContentTooLong):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error().Err(err).Msg("Check request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
