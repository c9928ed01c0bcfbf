package question

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"examportal/internal/app/apiresp"
	"examportal/internal/auth"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc questionService
}

type questionService interface {
	Create(ctx context.Context, in CreateInput) (*Question, error)
	Update(ctx context.Context, in UpdateInput) (*Question, error)
	Delete(ctx context.Context, questionID, actorID int64) error
	List(ctx context.Context, ownerID int64) ([]Question, error)
	Get(ctx context.Context, questionID, actorID int64) (*Question, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type questionRequest struct {
	Text          string        `json:"text"`
	Type          string        `json:"type"`
	Points        int           `json:"points"`
	Options       []OptionInput `json:"options"`
	CorrectAnswer string        `json:"correct_answer"`
	Tolerance     *int          `json:"tolerance"`
	TimeLimitSecs int           `json:"time_limit_secs"`
	MediaType     string        `json:"media_type"`
	MediaURL      string        `json:"media_url"`
}

func NewHandler(svc questionService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	item, err := h.svc.Create(r.Context(), CreateInput{
		QuestionInput: req.toInput(),
		CreatedBy:     user.ID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: item})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	user, questionID, ok := h.questionRequest(w, r)
	if !ok {
		return
	}

	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	item, err := h.svc.Update(r.Context(), UpdateInput{
		QuestionInput: req.toInput(),
		ID:            questionID,
		ActorID:       user.ID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: item})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	user, questionID, ok := h.questionRequest(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), questionID, user.ID); err != nil {
		if errors.Is(err, ErrQuestionInUse) {
			writeJSON(w, r, http.StatusConflict, response{OK: false, Error: err.Error()})
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": "deleted"}})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	items, err := h.svc.List(r.Context(), user.ID)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user, questionID, ok := h.questionRequest(w, r)
	if !ok {
		return
	}

	item, err := h.svc.Get(r.Context(), questionID, user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: item})
}

func (h *Handler) questionRequest(w http.ResponseWriter, r *http.Request) (*auth.User, int64, bool) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return nil, 0, false
	}
	questionID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || questionID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid question id"})
		return nil, 0, false
	}
	return user, questionID, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrQuestionNotFound):
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: "question not found"})
	case errors.Is(err, ErrQuestionForbidden):
		writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: "forbidden"})
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
	}
}

func (req questionRequest) toInput() QuestionInput {
	return QuestionInput{
		Text:          req.Text,
		Type:          req.Type,
		Points:        req.Points,
		Options:       req.Options,
		CorrectAnswer: req.CorrectAnswer,
		Tolerance:     req.Tolerance,
		TimeLimitSecs: req.TimeLimitSecs,
		MediaType:     req.MediaType,
		MediaURL:      req.MediaURL,
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
