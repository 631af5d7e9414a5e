package handlers_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"shortreel/internal/domain"
	"shortreel/internal/http/handlers"
	"shortreel/internal/http/httpapi"
	"shortreel/internal/tasks"
)

type memTaskRepo struct {
	tasks map[string]*domain.Task
}

func (m *memTaskRepo) Create(_ context.Context, task *domain.Task) error {
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

func (m *memTaskRepo) GetByID(_ context.Context, id string) (*domain.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTaskRepo) ListByResource(_ context.Context, resourceID string) ([]domain.Task, error) {
	var out []domain.Task
	for _, t := range m.tasks {
		if t.ResourceID == resourceID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memTaskRepo) UpdateStatus(_ context.Context, id string, status domain.TaskStatus, progress int, message string) (bool, error) {
	t, ok := m.tasks[id]
	if !ok || t.Status.Terminal() {
		return false, nil
	}
	t.Status = status
	t.Progress = progress
	t.Message = message
	return true, nil
}

func (m *memTaskRepo) SetResult(_ context.Context, id string, result []byte) (bool, error) {
	t, ok := m.tasks[id]
	if !ok || t.Status.Terminal() {
		return false, nil
	}
	t.Status = domain.TaskStatusCompleted
	t.Result = result
	t.Progress = 100
	return true, nil
}

func (m *memTaskRepo) SetError(_ context.Context, id string, errMsg string) (bool, error) {
	t, ok := m.tasks[id]
	if !ok || t.Status.Terminal() {
		return false, nil
	}
	t.Status = domain.TaskStatusFailed
	t.Error = errMsg
	return true, nil
}

func testRouter(t *testing.T) (http.Handler, *tasks.Ledger) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	ledger := tasks.NewLedger(&memTaskRepo{tasks: map[string]*domain.Task{}}, logger)
	app := handlers.NewApp(nil, nil, nil, ledger, logger)
	return httpapi.NewRouter(app, ""), ledger
}

func TestHealth(t *testing.T) {
	router, _ := testRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGetTaskAndResultPayload(t *testing.T) {
	router, ledger := testRouter(t)
	task, err := ledger.Create(context.Background(), domain.TaskKindImageGeneration, "img_1")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	ledger.SetResult(context.Background(), task.ID, map[string]any{"image_url": "https://x/y.png"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks/"+task.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Result struct {
			ImageURL string `json:"image_url"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != task.ID || got.Status != string(domain.TaskStatusCompleted) {
		t.Fatalf("unexpected task view %+v", got)
	}
	if got.Result.ImageURL != "https://x/y.png" {
		t.Fatalf("result payload not passed through: %+v", got.Result)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	router, _ := testRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListTasksRequiresResourceID(t *testing.T) {
	router, _ := testRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks/", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListTasksByResource(t *testing.T) {
	router, ledger := testRouter(t)
	if _, err := ledger.Create(context.Background(), domain.TaskKindVideoMerge, "ep_7"); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks/?resource_id=ep_7", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got struct {
		Tasks []struct {
			ResourceID string `json:"resource_id"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got.Tasks) != 1 || got.Tasks[0].ResourceID != "ep_7" {
		t.Fatalf("unexpected list %+v", got)
	}
}

func TestCreateImageGenerationRequiresPrompt(t *testing.T) {
	router, _ := testRouter(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/images/generations", strings.NewReader(`{"prompt":"  "}`))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateVideoMergeRequiresClips(t *testing.T) {
	router, _ := testRouter(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/video-merges/", strings.NewReader(`{"title":"ep1","clips":[]}`))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
