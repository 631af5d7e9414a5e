package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"shortreel/internal/http/handlers"
)

// NewRouter wires the polling API plus the static file server over the
// storage root.
func NewRouter(app *handlers.App, storageRoot string) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", app.ListTasks)
		r.Get("/{id}", app.GetTask)
	})

	r.Post("/images/generations", app.CreateImageGeneration)
	r.Post("/videos/generations", app.CreateVideoGeneration)

	r.Route("/video-merges", func(r chi.Router) {
		r.Post("/", app.CreateVideoMerge)
		r.Get("/{id}", app.GetVideoMerge)
	})

	if storageRoot != "" {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.Dir(storageRoot)))
		r.Get("/static/*", func(w http.ResponseWriter, req *http.Request) {
			fileServer.ServeHTTP(w, req)
		})
	}

	return r
}
