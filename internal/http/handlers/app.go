// Package handlers exposes the polling HTTP surface: submit a generation or
// merge, then follow its task. All heavy lifting lives in the service layer.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"shortreel/internal/domain"
	"shortreel/internal/service"
	"shortreel/internal/tasks"
)

type App struct {
	Images *service.ImageService
	Videos *service.VideoService
	Merges *service.MergeService
	Ledger *tasks.Ledger
	Logger zerolog.Logger
}

func NewApp(images *service.ImageService, videos *service.VideoService, merges *service.MergeService, ledger *tasks.Ledger, logger zerolog.Logger) *App {
	return &App{Images: images, Videos: videos, Merges: merges, Ledger: ledger, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) jsonError(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, map[string]string{"error": msg})
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.jsonError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

// serviceError maps domain sentinels onto status codes.
func (a *App) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.jsonError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrNotConfigured):
		a.jsonError(w, http.StatusConflict, err.Error())
	default:
		a.Logger.Error().Err(err).Msg("request failed")
		a.jsonError(w, http.StatusInternalServerError, "internal error")
	}
}

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
