package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"propvid/internal/http/handlers"
	"propvid/internal/infra"
	"propvid/internal/middleware"
)

type RouterOptions struct {
	App       *handlers.App
	Logger    infra.Logger
	JWTSecret string

	// CORSOrigins lists the browser origins allowed to call the API.
	CORSOrigins []string
	// DefaultLocale seeds locale detection when the request carries no hint.
	DefaultLocale string
	// CountryLookup feeds GeoIP-based locale detection; nil disables it.
	CountryLookup middleware.CountryLookup

	// RateLimitPerMin caps submission requests per client IP. Zero disables
	// the limiter.
	RateLimitPerMin int

	// StaticDir, when set, is served under /static/ (the dev storage
	// backend).
	StaticDir string
}

func NewRouter(opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	app := opts.App

	r.Get("/v1/healthz", app.Health)

	// Callback surface for the render service; authenticated by job + user
	// id pairing, not by bearer token.
	r.Post("/v1/callbacks/video-complete", app.VideoComplete)
	r.Post("/v1/callbacks/video-error", app.VideoError)
	r.Post("/v1/webhook-proxy", app.WebhookProxy)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(opts.JWTSecret))
		if opts.RateLimitPerMin > 0 {
			r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).
				Post("/v1/videos", app.VideosCreate)
			r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).
				Post("/v1/uploads/image", app.UploadImage)
		} else {
			r.Post("/v1/videos", app.VideosCreate)
			r.Post("/v1/uploads/image", app.UploadImage)
		}
		r.Get("/v1/videos", app.VideosList)
		r.Get("/v1/videos/{id}", app.VideoGet)
		r.Get("/v1/videos/{id}/events", app.VideoEvents)
		r.Get("/v1/events", app.UserEvents)
	})

	if opts.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	return r
}
