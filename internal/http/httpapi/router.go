package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"createtree/internal/http/handlers"
	"createtree/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(app.Config.CORSAllowedOrigins),
		middleware.I18N(app.Config.DefaultLocale, app.CountryLookup),
		middleware.AuthJWT(app.Config.JWTSecret),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	r.Get("/v1/styles", app.Styles)

	// Generation endpoints call paid upstream APIs; polling is not limited.
	generate := middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute)
	r.Route("/v1/images", func(r chi.Router) {
		r.Use(generate)
		r.Post("/transform", app.ImagesTransform)
		r.Post("/jobs", app.ImagesSubmit)
	})
	r.With(generate).Post("/v1/music/jobs", app.MusicSubmit)

	r.Route("/v1/jobs/{jobId}", func(r chi.Router) {
		r.Get("/", app.JobStatus)
		r.Delete("/", app.JobCancel)
	})

	if app.Assets != nil {
		r.Handle("/static/*", app.Static())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"not_found","message":"route not found"}}`))
	})

	return r
}
