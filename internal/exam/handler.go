package exam

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"examportal/internal/app/apiresp"
	"examportal/internal/auth"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc examService
}

type examService interface {
	StartOrResume(ctx context.Context, accessCode string, studentID int64) (*StartResult, error)
	GetCurrentStep(ctx context.Context, submissionID int64) (*StepView, error)
	SubmitAnswer(ctx context.Context, in SubmitAnswerInput) (*AnswerFeedback, error)
	Advance(ctx context.Context, submissionID int64) (*AdvanceResult, error)
	Finish(ctx context.Context, submissionID int64) (*ResultSummary, error)
	Result(ctx context.Context, submissionID int64) (*SubmissionResult, error)
	SaveGeolocation(ctx context.Context, in GeolocationInput) error
	GetSubmissionOwner(ctx context.Context, submissionID int64) (int64, error)
	CreateExam(ctx context.Context, in CreateExamInput) (*ExamRecord, error)
	UpdateExam(ctx context.Context, in UpdateExamInput) (*ExamRecord, error)
	DeleteExam(ctx context.Context, examID, actorID int64) error
	ListExams(ctx context.Context, ownerID int64) ([]ExamRecord, error)
	GetExam(ctx context.Context, examID, actorID int64) (*ExamRecord, error)
	PublishExam(ctx context.Context, examID, actorID int64, publish bool) (*ExamRecord, error)
	ReplaceExamQuestions(ctx context.Context, in ReplaceExamQuestionsInput) ([]ExamQuestionItem, error)
	ListExamQuestions(ctx context.Context, examID, actorID int64) ([]ExamQuestionItem, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type startSubmissionRequest struct {
	AccessCode string `json:"access_code"`
}

type submitAnswerRequest struct {
	SelectedOptions optionList `json:"selected_options"`
	TextAnswer      string     `json:"text_answer"`
	TimeTakenSecs   int        `json:"time_taken_secs"`
}

// optionList accepts either a JSON array of strings or a single string,
// which is treated as a one-element set.
type optionList []string

func (o *optionList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*o = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return errors.New("selected_options must be a string or an array of strings")
	}
	*o = []string{single}
	return nil
}

type geolocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

type examManageRequest struct {
	Title           string `json:"title"`
	Subject         string `json:"subject"`
	Description     string `json:"description"`
	Instructions    string `json:"instructions"`
	DurationMinutes int    `json:"duration_minutes"`
	StartAt         string `json:"start_at"`
	EndAt           string `json:"end_at"`
}

type publishExamRequest struct {
	Publish *bool `json:"publish"`
}

type replaceExamQuestionsRequest struct {
	QuestionIDs []int64 `json:"question_ids"`
}

func NewHandler(svc examService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) StartSubmission(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	var req startSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.AccessCode) == "" {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "access_code is required"})
		return
	}

	result, err := h.svc.StartOrResume(r.Context(), req.AccessCode, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAccessCode), errors.Is(err, ErrExamNotStarted), errors.Is(err, ErrExamEnded):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request"})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	status := http.StatusOK
	if !result.Resumed && !result.AlreadyCompleted {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, response{OK: true, Data: result})
}

func (h *Handler) GetStep(w http.ResponseWriter, r *http.Request) {
	submissionID, _, ok := h.submissionRequest(w, r)
	if !ok {
		return
	}

	step, err := h.svc.GetCurrentStep(r.Context(), submissionID)
	if err != nil {
		h.writeSubmissionError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: step})
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	submissionID, _, ok := h.submissionRequest(w, r)
	if !ok {
		return
	}

	questionID, err := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
	if err != nil || questionID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid question id"})
		return
	}

	var req submitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	feedback, err := h.svc.SubmitAnswer(r.Context(), SubmitAnswerInput{
		SubmissionID:    submissionID,
		QuestionID:      questionID,
		SelectedOptions: []string(req.SelectedOptions),
		TextAnswer:      req.TextAnswer,
		TimeTakenSecs:   req.TimeTakenSecs,
	})
	if err != nil {
		h.writeSubmissionError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: feedback})
}

func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	submissionID, _, ok := h.submissionRequest(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Advance(r.Context(), submissionID)
	if err != nil {
		h.writeSubmissionError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: result})
}

func (h *Handler) Finish(w http.ResponseWriter, r *http.Request) {
	submissionID, _, ok := h.submissionRequest(w, r)
	if !ok {
		return
	}

	summary, err := h.svc.Finish(r.Context(), submissionID)
	if err != nil {
		h.writeSubmissionError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: summary})
}

func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	submissionID, _, ok := h.submissionRequest(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Result(r.Context(), submissionID)
	if err != nil {
		h.writeSubmissionError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: result})
}

func (h *Handler) SaveGeolocation(w http.ResponseWriter, r *http.Request) {
	submissionID, _, ok := h.submissionRequest(w, r)
	if !ok {
		return
	}

	var req geolocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	err := h.svc.SaveGeolocation(r.Context(), GeolocationInput{
		SubmissionID: submissionID,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		Accuracy:     req.Accuracy,
		IPAddress:    clientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.writeSubmissionError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": "saved"}})
}

func (h *Handler) ListExams(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	items, err := h.svc.ListExams(r.Context(), user.ID)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

func (h *Handler) GetExam(w http.ResponseWriter, r *http.Request) {
	user, examID, ok := h.examRequest(w, r)
	if !ok {
		return
	}

	item, err := h.svc.GetExam(r.Context(), examID, user.ID)
	if err != nil {
		h.writeExamError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: item})
}

func (h *Handler) CreateExam(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	var req examManageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	startAt, endAt, err := parseExamSchedule(req.StartAt, req.EndAt)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		return
	}

	item, err := h.svc.CreateExam(r.Context(), CreateExamInput{
		Title:           req.Title,
		Subject:         req.Subject,
		Description:     req.Description,
		Instructions:    req.Instructions,
		DurationMinutes: req.DurationMinutes,
		StartAt:         startAt,
		EndAt:           endAt,
		CreatedBy:       user.ID,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "title is required"})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: item})
}

func (h *Handler) UpdateExam(w http.ResponseWriter, r *http.Request) {
	user, examID, ok := h.examRequest(w, r)
	if !ok {
		return
	}

	var req examManageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	startAt, endAt, err := parseExamSchedule(req.StartAt, req.EndAt)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		return
	}

	item, err := h.svc.UpdateExam(r.Context(), UpdateExamInput{
		ID:              examID,
		Title:           req.Title,
		Subject:         req.Subject,
		Description:     req.Description,
		Instructions:    req.Instructions,
		DurationMinutes: req.DurationMinutes,
		StartAt:         startAt,
		EndAt:           endAt,
		ActorID:         user.ID,
	})
	if err != nil {
		h.writeExamError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: item})
}

func (h *Handler) DeleteExam(w http.ResponseWriter, r *http.Request) {
	user, examID, ok := h.examRequest(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteExam(r.Context(), examID, user.ID); err != nil {
		if errors.Is(err, ErrExamInUse) {
			writeJSON(w, r, http.StatusConflict, response{OK: false, Error: err.Error()})
			return
		}
		h.writeExamError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": "deleted"}})
}

func (h *Handler) PublishExam(w http.ResponseWriter, r *http.Request) {
	user, examID, ok := h.examRequest(w, r)
	if !ok {
		return
	}

	publish := true
	var req publishExamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Publish != nil {
		publish = *req.Publish
	}

	item, err := h.svc.PublishExam(r.Context(), examID, user.ID, publish)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "cannot publish an exam without questions"})
			return
		}
		h.writeExamError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: item})
}

func (h *Handler) ListExamQuestions(w http.ResponseWriter, r *http.Request) {
	user, examID, ok := h.examRequest(w, r)
	if !ok {
		return
	}

	items, err := h.svc.ListExamQuestions(r.Context(), examID, user.ID)
	if err != nil {
		h.writeExamError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

func (h *Handler) ReplaceExamQuestions(w http.ResponseWriter, r *http.Request) {
	user, examID, ok := h.examRequest(w, r)
	if !ok {
		return
	}

	var req replaceExamQuestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	items, err := h.svc.ReplaceExamQuestions(r.Context(), ReplaceExamQuestionsInput{
		ExamID:      examID,
		QuestionIDs: req.QuestionIDs,
		ActorID:     user.ID,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrQuestionNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "question_ids must be unique positive ids"})
		default:
			h.writeExamError(w, r, err)
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

// submissionRequest parses the submission id, requires a user and checks
// ownership. Teachers may inspect any submission.
func (h *Handler) submissionRequest(w http.ResponseWriter, r *http.Request) (int64, *auth.User, bool) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return 0, nil, false
	}

	submissionID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || submissionID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid submission id"})
		return 0, nil, false
	}

	if err := h.authorizeSubmissionAccess(r, user, submissionID); err != nil {
		switch {
		case errors.Is(err, ErrSubmissionNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrSubmissionForbidden):
			writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: "forbidden"})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return 0, nil, false
	}
	return submissionID, user, true
}

func (h *Handler) examRequest(w http.ResponseWriter, r *http.Request) (*auth.User, int64, bool) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return nil, 0, false
	}
	examID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || examID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid exam id"})
		return nil, 0, false
	}
	return user, examID, true
}

func (h *Handler) authorizeSubmissionAccess(r *http.Request, user *auth.User, submissionID int64) error {
	if user.Role == "teacher" {
		return nil
	}

	ownerID, err := h.svc.GetSubmissionOwner(r.Context(), submissionID)
	if err != nil {
		return err
	}
	if ownerID != user.ID {
		return ErrSubmissionForbidden
	}
	return nil
}

func (h *Handler) writeSubmissionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrSubmissionNotFound), errors.Is(err, ErrQuestionNotFound):
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrSubmissionForbidden):
		writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: "forbidden"})
	case errors.Is(err, ErrSubmissionFinal):
		writeJSON(w, r, http.StatusConflict, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrSubmissionNotFinal), errors.Is(err, ErrQuestionNotInExam), errors.Is(err, ErrInvalidInput):
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
	}
}

func (h *Handler) writeExamError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrExamNotFound):
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: "exam not found"})
	case errors.Is(err, ErrExamForbidden):
		writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: "forbidden"})
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request"})
	default:
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
	}
}

func parseExamSchedule(startRaw, endRaw string) (*time.Time, *time.Time, error) {
	parseOne := func(raw string) (*time.Time, error) {
		v := strings.TrimSpace(raw)
		if v == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, err
		}
		return &t, nil
	}
	startAt, err := parseOne(startRaw)
	if err != nil {
		return nil, nil, errors.New("start_at must be RFC3339")
	}
	endAt, err := parseOne(endRaw)
	if err != nil {
		return nil, nil, errors.New("end_at must be RFC3339")
	}
	if startAt != nil && endAt != nil && endAt.Before(*startAt) {
		return nil, nil, errors.New("end_at must not be before start_at")
	}
	return startAt, endAt, nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}
