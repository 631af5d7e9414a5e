package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"shortreel/internal/domain"
)

// taskView is the wire shape of a ledger entry. Result is embedded as raw
// JSON so clients see the payload the worker stored, not a re-encoding.
type taskView struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	Progress    int             `json:"progress"`
	Message     string          `json:"message,omitempty"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	ResourceID  string          `json:"resource_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

func toTaskView(t *domain.Task) taskView {
	return taskView{
		ID:          t.ID,
		Type:        string(t.Type),
		Status:      string(t.Status),
		Progress:    t.Progress,
		Message:     t.Message,
		Error:       t.Error,
		Result:      json.RawMessage(t.Result),
		ResourceID:  t.ResourceID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CompletedAt: t.CompletedAt,
	}
}

func (a *App) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := a.Ledger.Get(r.Context(), id)
	if err != nil {
		a.serviceError(w, err)
		return
	}
	a.json(w, http.StatusOK, toTaskView(task))
}

func (a *App) ListTasks(w http.ResponseWriter, r *http.Request) {
	resourceID := r.URL.Query().Get("resource_id")
	if resourceID == "" {
		a.jsonError(w, http.StatusBadRequest, "resource_id is required")
		return
	}
	list, err := a.Ledger.ListByResource(r.Context(), resourceID)
	if err != nil {
		a.serviceError(w, err)
		return
	}
	views := make([]taskView, 0, len(list))
	for i := range list {
		views = append(views, toTaskView(&list[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"tasks": views})
}
