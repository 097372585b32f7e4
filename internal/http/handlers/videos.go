package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"propvid/internal/domain"
	"propvid/internal/middleware"
	"propvid/internal/video"
)

type templatePayload struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Prompt      string `json:"prompt"`
	Style       string `json:"style"`
	Duration    int    `json:"duration"`
	Orientation string `json:"orientation"`
}

type videoCreateRequest struct {
	ImageURL string          `json:"image_url"`
	Template templatePayload `json:"template"`
}

type videoCreateResponse struct {
	VideoID string `json:"video_id"`
	Status  string `json:"status"`
}

func (p templatePayload) toDomain() domain.Template {
	return domain.Template{
		ID:          p.ID,
		Title:       p.Title,
		Prompt:      p.Prompt,
		Style:       p.Style,
		Duration:    p.Duration,
		Orientation: p.Orientation,
	}
}

// VideosCreate submits a new generation job. The image must already be
// uploaded; completion arrives asynchronously and is observable via the
// status endpoints and the event stream.
func (a *App) VideosCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	var req videoCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	videoID, err := a.Service.CreateVideo(r.Context(), userID, req.ImageURL, req.Template.toDomain())
	if err != nil {
		a.createError(w, r, err)
		return
	}

	a.json(w, http.StatusAccepted, videoCreateResponse{
		VideoID: videoID,
		Status:  string(domain.VideoStatusProcessing),
	})
}

// createError reports a failed submission with the user message in the
// request locale; the raw cause stays in the logs.
func (a *App) createError(w http.ResponseWriter, r *http.Request, err error) {
	a.Logger.Error().Err(err).Msg("video submission failed")
	status := http.StatusBadGateway
	codeStr := "upstream_failed"
	switch domain.KindOf(err) {
	case domain.KindValidation:
		status, codeStr = http.StatusBadRequest, "bad_request"
	case domain.KindAuthentication:
		status, codeStr = http.StatusUnauthorized, "unauthorized"
	case domain.KindTimeout:
		status, codeStr = http.StatusGatewayTimeout, "upstream_timeout"
	case domain.KindInternal:
		status, codeStr = http.StatusInternalServerError, "internal"
	}
	locale := middleware.LocaleFromContext(r.Context())
	a.error(w, status, codeStr, video.LocalizedUserMessage(err, locale))
}

type videoResponse struct {
	ID           string `json:"id"`
	TemplateID   string `json:"template_id"`
	ImageURL     string `json:"image_url"`
	Status       string `json:"status"`
	VideoURL     string `json:"video_url,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Progress     *int   `json:"progress,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func toVideoResponse(v *domain.Video, gen *domain.Generation) videoResponse {
	resp := videoResponse{
		ID:           v.ID,
		TemplateID:   v.TemplateID,
		ImageURL:     v.ImagePath,
		Status:       string(v.Status),
		VideoURL:     v.VideoURL,
		ErrorMessage: v.ErrorMessage,
		CreatedAt:    v.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    v.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if gen != nil {
		progress := gen.Progress
		resp.Progress = &progress
	}
	return resp
}

func (a *App) VideosList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	videos, err := a.Service.ListVideos(r.Context(), userID)
	if err != nil {
		a.domainError(w, err)
		return
	}

	out := make([]videoResponse, 0, len(videos))
	for i := range videos {
		out = append(out, toVideoResponse(&videos[i], nil))
	}
	a.json(w, http.StatusOK, map[string]any{"videos": out})
}

func (a *App) VideoGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	videoID := chi.URLParam(r, "id")
	if videoID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}

	v, gen, err := a.Service.GetVideo(r.Context(), videoID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "video not found")
			return
		}
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, toVideoResponse(v, gen))
}
