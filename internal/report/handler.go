package report

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"examportal/internal/app/apiresp"
	"examportal/internal/auth"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ExamReport(w http.ResponseWriter, r *http.Request) {
	user, examID, ok := h.reportRequest(w, r)
	if !ok {
		return
	}

	report, err := h.svc.BuildReport(r.Context(), examID, user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, report)
}

func (h *Handler) ExamReportXLSX(w http.ResponseWriter, r *http.Request) {
	user, examID, ok := h.reportRequest(w, r)
	if !ok {
		return
	}

	report, err := h.svc.BuildReport(r.Context(), examID, user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	data, err := ExportXLSX(report)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	filename := fmt.Sprintf("exam-%d-results.xlsx", examID)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) reportRequest(w http.ResponseWriter, r *http.Request) (*auth.User, int64, bool) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return nil, 0, false
	}
	examID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || examID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid exam id")
		return nil, 0, false
	}
	return user, examID, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrExamNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, "exam not found")
	case errors.Is(err, ErrExamForbidden):
		apiresp.WriteError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, ErrInvalidInput):
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request")
	default:
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}
