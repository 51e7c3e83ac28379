package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"curator/internal/http/handlers"
	"curator/internal/middleware"
)

func NewRouter(app *handlers.App, log zerolog.Logger, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.CORS(allowedOrigins),
		middleware.Logger(log),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/vision/models", app.VisionModels)

	r.Route("/v1/caption-jobs", func(r chi.Router) {
		r.Post("/", app.JobsCreate)
		r.Get("/", app.JobsList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.JobsGet)
			r.Get("/progress", app.JobsProgress)
			r.Get("/items", app.JobsItems)
			r.Post("/pause", app.JobsPause)
			r.Post("/resume", app.JobsResume)
			r.Post("/cancel", app.JobsCancel)
		})
	})

	return r
}
