package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/rcwells1879/veilpix-sub000/internal/http/handlers"
	"github.com/rcwells1879/veilpix-sub000/internal/middleware"
)

// NewRouter assembles the HTTP surface. Identity resolution runs for
// every route; the generation endpoints themselves decide between the
// credit and free-tier paths based on what identity resolved.
func NewRouter(app *handlers.App, lookup middleware.CountryLookup) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(app.Config.AllowedOrigins),
		middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute),
		middleware.Identity(app.Config.JWTSecret, lookup),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/images", func(r chi.Router) {
			r.Post("/edit", app.ImagesEdit)
			r.Post("/filter", app.ImagesFilter)
			r.Post("/adjust", app.ImagesAdjust)
			r.Post("/combine", app.ImagesCombine)
		})
		r.Get("/usage", app.UsageStatus)
		r.Route("/credits", func(r chi.Router) {
			r.Get("/", app.CreditsBalance)
			r.Post("/topup", app.CreditsTopup)
		})
	})

	return r
}
