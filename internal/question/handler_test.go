package question

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"examportal/internal/auth"

	"github.com/go-chi/chi/v5"
)

type mockQuestionService struct {
	createFn func(ctx context.Context, in CreateInput) (*Question, error)
	updateFn func(ctx context.Context, in UpdateInput) (*Question, error)
	deleteFn func(ctx context.Context, questionID, actorID int64) error
	listFn   func(ctx context.Context, ownerID int64) ([]Question, error)
	getFn    func(ctx context.Context, questionID, actorID int64) (*Question, error)
}

func (m *mockQuestionService) Create(ctx context.Context, in CreateInput) (*Question, error) {
	if m.createFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createFn(ctx, in)
}

func (m *mockQuestionService) Update(ctx context.Context, in UpdateInput) (*Question, error) {
	if m.updateFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.updateFn(ctx, in)
}

func (m *mockQuestionService) Delete(ctx context.Context, questionID, actorID int64) error {
	if m.deleteFn == nil {
		return errors.New("not implemented")
	}
	return m.deleteFn(ctx, questionID, actorID)
}

func (m *mockQuestionService) List(ctx context.Context, ownerID int64) ([]Question, error) {
	if m.listFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listFn(ctx, ownerID)
}

func (m *mockQuestionService) Get(ctx context.Context, questionID, actorID int64) (*Question, error) {
	if m.getFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getFn(ctx, questionID, actorID)
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestCreateUsesSessionUserAsOwner(t *testing.T) {
	var gotCreatedBy int64
	h := NewHandler(&mockQuestionService{
		createFn: func(ctx context.Context, in CreateInput) (*Question, error) {
			gotCreatedBy = in.CreatedBy
			return &Question{ID: 1, Text: in.Text, Type: in.Type}, nil
		},
	})

	payload := []byte(`{"text":"Capital of France?","type":"direct","correct_answer":"Paris"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/questions", bytes.NewReader(payload))
	req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: 42, Role: "teacher"}))
	w := httptest.NewRecorder()

	h.Create(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if gotCreatedBy != 42 {
		t.Fatalf("expected created_by 42, got %d", gotCreatedBy)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	h := NewHandler(&mockQuestionService{
		createFn: func(ctx context.Context, in CreateInput) (*Question, error) {
			return nil, ErrInvalidInput
		},
	})

	payload := []byte(`{"text":"","type":"mcq"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/questions", bytes.NewReader(payload))
	req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: 1, Role: "teacher"}))
	w := httptest.NewRecorder()

	h.Create(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestDeleteConflictWhenQuestionInUse(t *testing.T) {
	h := NewHandler(&mockQuestionService{
		deleteFn: func(ctx context.Context, questionID, actorID int64) error {
			return ErrQuestionInUse
		},
	})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/questions/5", nil)
	req = withChiParam(req, "id", "5")
	req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: 1, Role: "teacher"}))
	w := httptest.NewRecorder()

	h.Delete(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestGetForbiddenForNonOwner(t *testing.T) {
	h := NewHandler(&mockQuestionService{
		getFn: func(ctx context.Context, questionID, actorID int64) (*Question, error) {
			return nil, ErrQuestionForbidden
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/questions/7", nil)
	req = withChiParam(req, "id", "7")
	req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: 2, Role: "teacher"}))
	w := httptest.NewRecorder()

	h.Get(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestGetUnauthorizedWithoutUser(t *testing.T) {
	h := NewHandler(&mockQuestionService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/questions/7", nil)
	req = withChiParam(req, "id", "7")
	w := httptest.NewRecorder()

	h.Get(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
