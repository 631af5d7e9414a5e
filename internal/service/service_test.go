package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"shortreel/internal/assemble"
	"shortreel/internal/domain"
	"shortreel/internal/media"
	"shortreel/internal/providers"
	"shortreel/internal/providers/image"
	"shortreel/internal/storage"
	"shortreel/internal/tasks"
)

type memTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*domain.Task
}

func newMemTaskRepo() *memTaskRepo { return &memTaskRepo{tasks: map[string]*domain.Task{}} }

func (m *memTaskRepo) Create(_ context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

func (m *memTaskRepo) GetByID(_ context.Context, id string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTaskRepo) ListByResource(_ context.Context, resourceID string) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Task
	for _, t := range m.tasks {
		if t.ResourceID == resourceID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memTaskRepo) UpdateStatus(_ context.Context, id string, status domain.TaskStatus, progress int, message string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status.Terminal() {
		return false, nil
	}
	t.Status = domain.TaskStatusCompleted
	t.Progress = 100
	t.Result = result
	return true, nil
}

func (m *memTaskRepo) SetError(_ context.Context, id string, errMsg string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status.Terminal() {
		return false, nil
	}
	t.Status = domain.TaskStatusFailed
	t.Error = errMsg
	return true, nil
}

type memImageGenRepo struct {
	mu   sync.Mutex
	next int64
	gens map[int64]*domain.ImageGeneration
}

func newMemImageGenRepo() *memImageGenRepo {
	return &memImageGenRepo{gens: map[int64]*domain.ImageGeneration{}}
}

func (m *memImageGenRepo) Create(_ context.Context, gen *domain.ImageGeneration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	gen.ID = m.next
	cp := *gen
	m.gens[gen.ID] = &cp
	return nil
}

func (m *memImageGenRepo) GetByID(_ context.Context, id int64) (*domain.ImageGeneration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gens[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *memImageGenRepo) MarkProcessing(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.gens[id]; ok {
		g.Status = domain.GenerationProcessing
	}
	return nil
}

func (m *memImageGenRepo) MarkCompleted(_ context.Context, id int64, imageURL, localPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.gens[id]; ok {
		g.Status = domain.GenerationCompleted
		g.ImageURL = imageURL
		g.LocalPath = localPath
	}
	return nil
}

func (m *memImageGenRepo) MarkFailed(_ context.Context, id int64, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.gens[id]; ok {
		g.Status = domain.GenerationFailed
		g.ErrorMsg = errMsg
	}
	return nil
}

type memMergeRepo struct {
	mu     sync.Mutex
	next   int64
	merges map[int64]*domain.VideoMerge
}

func newMemMergeRepo() *memMergeRepo { return &memMergeRepo{merges: map[int64]*domain.VideoMerge{}} }

func (m *memMergeRepo) Create(_ context.Context, merge *domain.VideoMerge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	merge.ID = m.next
	cp := *merge
	m.merges[merge.ID] = &cp
	return nil
}

func (m *memMergeRepo) GetByID(_ context.Context, id int64) (*domain.VideoMerge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.merges[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *memMergeRepo) MarkProcessing(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.merges[id]; ok {
		g.Status = domain.GenerationProcessing
	}
	return nil
}

func (m *memMergeRepo) MarkCompleted(_ context.Context, id int64, mergedURL string, duration int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.merges[id]; ok {
		g.Status = domain.GenerationCompleted
		g.MergedURL = mergedURL
		g.Duration = duration
	}
	return nil
}

func (m *memMergeRepo) MarkFailed(_ context.Context, id int64, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.merges[id]; ok {
		g.Status = domain.GenerationFailed
		g.ErrorMsg = errMsg
	}
	return nil
}

type staticConfigRepo struct {
	configs []domain.ProviderConfig
}

func (s *staticConfigRepo) ListByCapability(_ context.Context, capability domain.Capability) ([]domain.ProviderConfig, error) {
	var out []domain.ProviderConfig
	for _, c := range s.configs {
		if c.Capability == capability {
			out = append(out, c)
		}
	}
	return out, nil
}

func waitForTerminal(t *testing.T, repo *memTaskRepo, taskID string) *domain.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := repo.GetByID(context.Background(), taskID)
		if err == nil && task.Status.Terminal() {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached a terminal state", taskID)
	return nil
}

func TestImageServiceEndToEnd(t *testing.T) {
	logger := zerolog.New(io.Discard)

	// The asset endpoint plays the provider CDN so localization has
	// something real to download.
	assets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
	}))
	defer assets.Close()

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":[{"url":"`+assets.URL+`/out.png"}]}`)
	}))
	defer provider.Close()

	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	localizer := media.NewLocalizer(store, "http://localhost:5679/static", nil, logger)

	configRepo := &staticConfigRepo{configs: []domain.ProviderConfig{{
		ID:         1,
		Capability: domain.CapabilityImage,
		Provider:   "openai",
		BaseURL:    provider.URL,
		APIKey:     "k",
		Models:     []string{"dall-e-3"},
		IsDefault:  true,
		IsActive:   true,
	}}}
	resolver, err := providers.NewResolver(configRepo, time.Minute, logger)
	if err != nil {
		t.Fatalf("NewResolver error: %v", err)
	}
	defer resolver.Close()

	taskRepo := newMemTaskRepo()
	genRepo := newMemImageGenRepo()
	ledger := tasks.NewLedger(taskRepo, logger)
	executor := tasks.NewExecutor(2, logger)
	adapter := image.NewAdapter(image.Options{Refs: localizer, Logger: logger})

	svc := NewImageService(genRepo, ledger, executor, resolver, adapter, localizer, logger)

	gen, err := svc.CreateAndGenerate(context.Background(), ImageRequest{Prompt: "a lighthouse"})
	if err != nil {
		t.Fatalf("CreateAndGenerate error: %v", err)
	}
	if gen.TaskID == "" || gen.Status != domain.GenerationPending {
		t.Fatalf("unexpected initial record %+v", gen)
	}

	task := waitForTerminal(t, taskRepo, gen.TaskID)
	if task.Status != domain.TaskStatusCompleted {
		t.Fatalf("expected completed task, got %s (%s)", task.Status, task.Error)
	}
	var payload struct {
		GenerationID int64  `json:"generation_id"`
		ImageURL     string `json:"image_url"`
		LocalPath    string `json:"local_path"`
	}
	if err := json.Unmarshal(task.Result, &payload); err != nil {
		t.Fatalf("decode result payload: %v", err)
	}
	if payload.GenerationID != gen.ID {
		t.Fatalf("result payload references wrong generation: %+v", payload)
	}
	if !strings.HasPrefix(payload.LocalPath, "images/") {
		t.Fatalf("expected localized copy under images/, got %q", payload.LocalPath)
	}
	if !store.Exists(payload.LocalPath) {
		t.Fatalf("localized file missing from storage")
	}

	got, err := svc.Get(context.Background(), gen.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Status != domain.GenerationCompleted || got.LocalPath != payload.LocalPath {
		t.Fatalf("generation row out of sync: %+v", got)
	}
}

func TestImageServiceNotConfiguredFailsTask(t *testing.T) {
	logger := zerolog.New(io.Discard)
	store, _ := storage.NewFileStore(t.TempDir())
	localizer := media.NewLocalizer(store, "http://localhost:5679/static", nil, logger)
	resolver, err := providers.NewResolver(&staticConfigRepo{}, time.Minute, logger)
	if err != nil {
		t.Fatalf("NewResolver error: %v", err)
	}
	defer resolver.Close()

	taskRepo := newMemTaskRepo()
	genRepo := newMemImageGenRepo()
	svc := NewImageService(genRepo, tasks.NewLedger(taskRepo, logger), tasks.NewExecutor(1, logger), resolver,
		image.NewAdapter(image.Options{Logger: logger}), localizer, logger)

	gen, err := svc.CreateAndGenerate(context.Background(), ImageRequest{Prompt: "x"})
	if err != nil {
		t.Fatalf("CreateAndGenerate error: %v", err)
	}
	task := waitForTerminal(t, taskRepo, gen.TaskID)
	if task.Status != domain.TaskStatusFailed {
		t.Fatalf("expected failed task, got %s", task.Status)
	}
	if !strings.Contains(task.Error, "not configured") {
		t.Fatalf("expected not-configured error, got %q", task.Error)
	}
	row, _ := svc.Get(context.Background(), gen.ID)
	if row.Status != domain.GenerationFailed {
		t.Fatalf("generation row not failed: %+v", row)
	}
}

func TestMergeServiceAllUnresolvableFailsLedger(t *testing.T) {
	logger := zerolog.New(io.Discard)
	store, _ := storage.NewFileStore(t.TempDir())
	localizer := media.NewLocalizer(store, "http://localhost:5679/static", nil, logger)
	merger := assemble.NewMerger(assemble.MergerOptions{
		Store:     store,
		Localizer: localizer,
		Logger:    logger,
		TempDir:   t.TempDir(),
	})

	taskRepo := newMemTaskRepo()
	mergeRepo := newMemMergeRepo()
	svc := NewMergeService(mergeRepo, tasks.NewLedger(taskRepo, logger), tasks.NewExecutor(1, logger), merger, localizer, logger)

	merge, err := svc.Create(context.Background(), MergeRequest{
		Title: "ep1",
		Clips: []domain.MergeClip{
			{VideoURL: "videos/does-not-exist-1.mp4", Duration: 5},
			{VideoURL: "videos/does-not-exist-2.mp4", Duration: 5},
		},
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	task := waitForTerminal(t, taskRepo, merge.TaskID)
	if task.Status != domain.TaskStatusFailed {
		t.Fatalf("expected failed task, got %s", task.Status)
	}
	if !strings.Contains(task.Error, "no valid video segments") {
		t.Fatalf("unexpected error message %q", task.Error)
	}
	row, _ := svc.Get(context.Background(), merge.ID)
	if row.Status != domain.GenerationFailed {
		t.Fatalf("merge row not failed: %+v", row)
	}
}
