package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"shortreel/internal/service"
)

func (a *App) CreateVideoMerge(w http.ResponseWriter, r *http.Request) {
	var req service.MergeRequest
	if !a.decode(w, r, &req) {
		return
	}
	if len(req.Clips) == 0 {
		a.jsonError(w, http.StatusBadRequest, "clips are required")
		return
	}

	merge, err := a.Merges.Create(r.Context(), req)
	if err != nil {
		a.serviceError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]any{
		"merge_id": merge.ID,
		"task_id":  merge.TaskID,
		"status":   merge.Status,
	})
}

func (a *App) GetVideoMerge(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		a.jsonError(w, http.StatusBadRequest, "invalid merge id")
		return
	}
	merge, err := a.Merges.Get(r.Context(), id)
	if err != nil {
		a.serviceError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"id":           merge.ID,
		"task_id":      merge.TaskID,
		"title":        merge.Title,
		"status":       merge.Status,
		"merged_url":   merge.MergedURL,
		"duration":     merge.Duration,
		"error_msg":    merge.ErrorMsg,
		"created_at":   merge.CreatedAt,
		"completed_at": merge.CompletedAt,
	})
}
