package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"propvid/internal/domain"
	"propvid/internal/infra"
	"propvid/internal/middleware"
	"propvid/internal/notify"
	"propvid/internal/storage"
	"propvid/internal/video"
)

// StatusSubscriber provides the cancellable event streams behind the SSE
// endpoints.
type StatusSubscriber interface {
	SubscribeVideo(ctx context.Context, videoID string) (<-chan notify.Event, func())
	SubscribeUser(ctx context.Context, userID string) (<-chan notify.Event, func())
}

// App bundles the dependencies the HTTP handlers need. One instance serves
// all requests.
type App struct {
	Service    *video.Service
	Uploader   *storage.ImageUploader
	Subscriber StatusSubscriber
	Logger     infra.Logger

	// ProxyClient performs outbound webhook-proxy calls; its Timeout bounds
	// the upstream wait.
	ProxyClient *http.Client
}

type AppOptions struct {
	Service      *video.Service
	Uploader     *storage.ImageUploader
	Subscriber   StatusSubscriber
	Logger       infra.Logger
	ProxyTimeout time.Duration
}

func NewApp(opts AppOptions) *App {
	timeout := opts.ProxyTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &App{
		Service:     opts.Service,
		Uploader:    opts.Uploader,
		Subscriber:  opts.Subscriber,
		Logger:      opts.Logger,
		ProxyClient: &http.Client{Timeout: timeout},
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, codeStr, msg string) {
	a.json(w, code, map[string]any{
		"error":   codeStr,
		"message": msg,
	})
}

// domainError maps a service error to the matching HTTP error response.
func (a *App) domainError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "video not found")
		return
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case domain.KindAuthentication:
		a.error(w, http.StatusUnauthorized, "unauthorized", err.Error())
	default:
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
