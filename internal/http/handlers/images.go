package handlers

import (
	"net/http"
	"strings"

	"shortreel/internal/service"
)

func (a *App) CreateImageGeneration(w http.ResponseWriter, r *http.Request) {
	var req service.ImageRequest
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		a.jsonError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	gen, err := a.Images.CreateAndGenerate(r.Context(), req)
	if err != nil {
		a.serviceError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]any{
		"generation_id": gen.ID,
		"task_id":       gen.TaskID,
		"status":        gen.Status,
	})
}
