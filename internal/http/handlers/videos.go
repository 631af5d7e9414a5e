package handlers

import (
	"net/http"
	"strings"

	"shortreel/internal/service"
)

func (a *App) CreateVideoGeneration(w http.ResponseWriter, r *http.Request) {
	var req service.VideoRequest
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" && strings.TrimSpace(req.ImageURL) == "" &&
		strings.TrimSpace(req.FirstFrameURL) == "" && len(req.ReferenceImages) == 0 {
		a.jsonError(w, http.StatusBadRequest, "prompt or an input image is required")
		return
	}

	gen, err := a.Videos.CreateAndGenerate(r.Context(), req)
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
