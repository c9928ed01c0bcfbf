package exam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"examportal/internal/auth"

	"github.com/go-chi/chi/v5"
)

type mockExamService struct {
	startOrResumeFn        func(ctx context.Context, accessCode string, studentID int64) (*StartResult, error)
	getCurrentStepFn       func(ctx context.Context, submissionID int64) (*StepView, error)
	submitAnswerFn         func(ctx context.Context, in SubmitAnswerInput) (*AnswerFeedback, error)
	advanceFn              func(ctx context.Context, submissionID int64) (*AdvanceResult, error)
	finishFn               func(ctx context.Context, submissionID int64) (*ResultSummary, error)
	resultFn               func(ctx context.Context, submissionID int64) (*SubmissionResult, error)
	saveGeolocationFn      func(ctx context.Context, in GeolocationInput) error
	getSubmissionOwnerFn   func(ctx context.Context, submissionID int64) (int64, error)
	createExamFn           func(ctx context.Context, in CreateExamInput) (*ExamRecord, error)
	updateExamFn           func(ctx context.Context, in UpdateExamInput) (*ExamRecord, error)
	deleteExamFn           func(ctx context.Context, examID, actorID int64) error
	listExamsFn            func(ctx context.Context, ownerID int64) ([]ExamRecord, error)
	getExamFn              func(ctx context.Context, examID, actorID int64) (*ExamRecord, error)
	publishExamFn          func(ctx context.Context, examID, actorID int64, publish bool) (*ExamRecord, error)
	replaceExamQuestionsFn func(ctx context.Context, in ReplaceExamQuestionsInput) ([]ExamQuestionItem, error)
	listExamQuestionsFn    func(ctx context.Context, examID, actorID int64) ([]ExamQuestionItem, error)
}

func (m *mockExamService) StartOrResume(ctx context.Context, accessCode string, studentID int64) (*StartResult, error) {
	if m.startOrResumeFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.startOrResumeFn(ctx, accessCode, studentID)
}

func (m *mockExamService) GetCurrentStep(ctx context.Context, submissionID int64) (*StepView, error) {
	if m.getCurrentStepFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getCurrentStepFn(ctx, submissionID)
}

func (m *mockExamService) SubmitAnswer(ctx context.Context, in SubmitAnswerInput) (*AnswerFeedback, error) {
	if m.submitAnswerFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.submitAnswerFn(ctx, in)
}

func (m *mockExamService) Advance(ctx context.Context, submissionID int64) (*AdvanceResult, error) {
	if m.advanceFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.advanceFn(ctx, submissionID)
}

func (m *mockExamService) Finish(ctx context.Context, submissionID int64) (*ResultSummary, error) {
	if m.finishFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.finishFn(ctx, submissionID)
}

func (m *mockExamService) Result(ctx context.Context, submissionID int64) (*SubmissionResult, error) {
	if m.resultFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.resultFn(ctx, submissionID)
}

func (m *mockExamService) SaveGeolocation(ctx context.Context, in GeolocationInput) error {
	if m.saveGeolocationFn == nil {
		return errors.New("not implemented")
	}
	return m.saveGeolocationFn(ctx, in)
}

func (m *mockExamService) GetSubmissionOwner(ctx context.Context, submissionID int64) (int64, error) {
	if m.getSubmissionOwnerFn == nil {
		return 0, errors.New("not implemented")
	}
	return m.getSubmissionOwnerFn(ctx, submissionID)
}

func (m *mockExamService) CreateExam(ctx context.Context, in CreateExamInput) (*ExamRecord, error) {
	if m.createExamFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createExamFn(ctx, in)
}

func (m *mockExamService) UpdateExam(ctx context.Context, in UpdateExamInput) (*ExamRecord, error) {
	if m.updateExamFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.updateExamFn(ctx, in)
}

func (m *mockExamService) DeleteExam(ctx context.Context, examID, actorID int64) error {
	if m.deleteExamFn == nil {
		return errors.New("not implemented")
	}
	return m.deleteExamFn(ctx, examID, actorID)
}

func (m *mockExamService) ListExams(ctx context.Context, ownerID int64) ([]ExamRecord, error) {
	if m.listExamsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listExamsFn(ctx, ownerID)
}

func (m *mockExamService) GetExam(ctx context.Context, examID, actorID int64) (*ExamRecord, error) {
	if m.getExamFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getExamFn(ctx, examID, actorID)
}

func (m *mockExamService) PublishExam(ctx context.Context, examID, actorID int64, publish bool) (*ExamRecord, error) {
	if m.publishExamFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.publishExamFn(ctx, examID, actorID, publish)
}

func (m *mockExamService) ReplaceExamQuestions(ctx context.Context, in ReplaceExamQuestionsInput) ([]ExamQuestionItem, error) {
	if m.replaceExamQuestionsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.replaceExamQuestionsFn(ctx, in)
}

func (m *mockExamService) ListExamQuestions(ctx context.Context, examID, actorID int64) ([]ExamQuestionItem, error) {
	if m.listExamQuestionsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listExamQuestionsFn(ctx, examID, actorID)
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func withUser(r *http.Request, user *auth.User) *http.Request {
	return r.WithContext(auth.ContextWithUser(r.Context(), user))
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) response {
	t.Helper()
	var body response
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return body
}

func TestStartSubmissionCreatedForFreshAttempt(t *testing.T) {
	h := NewHandler(&mockExamService{
		startOrResumeFn: func(ctx context.Context, accessCode string, studentID int64) (*StartResult, error) {
			if accessCode != "ABCD2345" {
				t.Fatalf("unexpected access code %q", accessCode)
			}
			if studentID != 7 {
				t.Fatalf("unexpected student id %d", studentID)
			}
			return &StartResult{Submission: Submission{ID: 1, Status: StatusInProgress}}, nil
		},
	})

	payload := []byte(`{"access_code":"ABCD2345"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions/start", bytes.NewReader(payload))
	req = withUser(req, &auth.User{ID: 7, Role: "student"})
	w := httptest.NewRecorder()

	h.StartSubmission(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if body := decodeBody(t, w); !body.OK {
		t.Fatalf("expected ok response, got %+v", body)
	}
}

func TestStartSubmissionOKWhenResumed(t *testing.T) {
	h := NewHandler(&mockExamService{
		startOrResumeFn: func(ctx context.Context, accessCode string, studentID int64) (*StartResult, error) {
			return &StartResult{Submission: Submission{ID: 1, Status: StatusInProgress}, Resumed: true}, nil
		},
	})

	payload := []byte(`{"access_code":"ABCD2345"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions/start", bytes.NewReader(payload))
	req = withUser(req, &auth.User{ID: 7, Role: "student"})
	w := httptest.NewRecorder()

	h.StartSubmission(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for resumed attempt, got %d", w.Code)
	}
}

func TestStartSubmissionRequiresAccessCode(t *testing.T) {
	h := NewHandler(&mockExamService{})

	payload := []byte(`{"access_code":"   "}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions/start", bytes.NewReader(payload))
	req = withUser(req, &auth.User{ID: 7, Role: "student"})
	w := httptest.NewRecorder()

	h.StartSubmission(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestStartSubmissionUnknownCode(t *testing.T) {
	h := NewHandler(&mockExamService{
		startOrResumeFn: func(ctx context.Context, accessCode string, studentID int64) (*StartResult, error) {
			return nil, ErrInvalidAccessCode
		},
	})

	payload := []byte(`{"access_code":"NOPE0000"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions/start", bytes.NewReader(payload))
	req = withUser(req, &auth.User{ID: 7, Role: "student"})
	w := httptest.NewRecorder()

	h.StartSubmission(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetStepForbiddenForOtherStudent(t *testing.T) {
	h := NewHandler(&mockExamService{
		getSubmissionOwnerFn: func(ctx context.Context, submissionID int64) (int64, error) {
			return 99, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions/3/step", nil)
	req = withChiParam(req, "id", "3")
	req = withUser(req, &auth.User{ID: 7, Role: "student"})
	w := httptest.NewRecorder()

	h.GetStep(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestGetStepTeacherSkipsOwnerLookup(t *testing.T) {
	h := NewHandler(&mockExamService{
		getSubmissionOwnerFn: func(ctx context.Context, submissionID int64) (int64, error) {
			t.Fatal("owner lookup should not run for teachers")
			return 0, nil
		},
		getCurrentStepFn: func(ctx context.Context, submissionID int64) (*StepView, error) {
			return &StepView{RemainingSecs: 120, TotalQuestions: 5}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions/3/step", nil)
	req = withChiParam(req, "id", "3")
	req = withUser(req, &auth.User{ID: 1, Role: "teacher"})
	w := httptest.NewRecorder()

	h.GetStep(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestSubmitAnswerConflictWhenFinal(t *testing.T) {
	h := NewHandler(&mockExamService{
		getSubmissionOwnerFn: func(ctx context.Context, submissionID int64) (int64, error) {
			return 7, nil
		},
		submitAnswerFn: func(ctx context.Context, in SubmitAnswerInput) (*AnswerFeedback, error) {
			return nil, ErrSubmissionFinal
		},
	})

	payload := []byte(`{"selected_options":["1"]}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/submissions/3/answers/9", bytes.NewReader(payload))
	req = withChiParam(req, "id", "3")
	req = withChiParam(req, "questionID", "9")
	req = withUser(req, &auth.User{ID: 7, Role: "student"})
	w := httptest.NewRecorder()

	h.SubmitAnswer(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestSubmitAnswerAcceptsScalarSelection(t *testing.T) {
	var got []string
	h := NewHandler(&mockExamService{
		getSubmissionOwnerFn: func(ctx context.Context, submissionID int64) (int64, error) {
			return 7, nil
		},
		submitAnswerFn: func(ctx context.Context, in SubmitAnswerInput) (*AnswerFeedback, error) {
			got = in.SelectedOptions
			return &AnswerFeedback{IsCorrect: true, PointsAwarded: 2}, nil
		},
	})

	payload := []byte(`{"selected_options":"1"}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/submissions/3/answers/9", bytes.NewReader(payload))
	req = withChiParam(req, "id", "3")
	req = withChiParam(req, "questionID", "9")
	req = withUser(req, &auth.User{ID: 7, Role: "student"})
	w := httptest.NewRecorder()

	h.SubmitAnswer(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(got) != 1 || got[0] != "1" {
		t.Fatalf("expected singleton selection, got %v", got)
	}
}

func TestSubmitAnswerRejectsQuestionOutsideExam(t *testing.T) {
	h := NewHandler(&mockExamService{
		getSubmissionOwnerFn: func(ctx context.Context, submissionID int64) (int64, error) {
			return 7, nil
		},
		submitAnswerFn: func(ctx context.Context, in SubmitAnswerInput) (*AnswerFeedback, error) {
			return nil, ErrQuestionNotInExam
		},
	})

	payload := []byte(`{"text_answer":"paris"}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/submissions/3/answers/9", bytes.NewReader(payload))
	req = withChiParam(req, "id", "3")
	req = withChiParam(req, "questionID", "9")
	req = withUser(req, &auth.User{ID: 7, Role: "student"})
	w := httptest.NewRecorder()

	h.SubmitAnswer(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestResultBadRequestWhileInProgress(t *testing.T) {
	h := NewHandler(&mockExamService{
		getSubmissionOwnerFn: func(ctx context.Context, submissionID int64) (int64, error) {
			return 7, nil
		},
		resultFn: func(ctx context.Context, submissionID int64) (*SubmissionResult, error) {
			return nil, ErrSubmissionNotFinal
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions/3/result", nil)
	req = withChiParam(req, "id", "3")
	req = withUser(req, &auth.User{ID: 7, Role: "student"})
	w := httptest.NewRecorder()

	h.Result(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestPublishExamRejectsEmptyExam(t *testing.T) {
	h := NewHandler(&mockExamService{
		publishExamFn: func(ctx context.Context, examID, actorID int64, publish bool) (*ExamRecord, error) {
			return nil, ErrInvalidInput
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/exams/4/publish", bytes.NewReader([]byte(`{}`)))
	req = withChiParam(req, "id", "4")
	req = withUser(req, &auth.User{ID: 1, Role: "teacher"})
	w := httptest.NewRecorder()

	h.PublishExam(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestDeleteExamConflictWhenSubmissionsExist(t *testing.T) {
	h := NewHandler(&mockExamService{
		deleteExamFn: func(ctx context.Context, examID, actorID int64) error {
			return ErrExamInUse
		},
	})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/exams/4", nil)
	req = withChiParam(req, "id", "4")
	req = withUser(req, &auth.User{ID: 1, Role: "teacher"})
	w := httptest.NewRecorder()

	h.DeleteExam(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestSubmissionRoutesRequireSession(t *testing.T) {
	h := NewHandler(&mockExamService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions/3/step", nil)
	req = withChiParam(req, "id", "3")
	w := httptest.NewRecorder()

	h.GetStep(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
