package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"propvid/internal/domain"
)

type completeCallbackRequest struct {
	VideoID  string `json:"videoId"`
	VideoURL string `json:"videoUrl"`
	UserID   string `json:"userId"`
}

type errorCallbackRequest struct {
	VideoID string `json:"videoId"`
	UserID  string `json:"userId"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
}

// callbackEnvelope is the response shape the render service expects on its
// callback posts.
type callbackEnvelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// VideoComplete receives the success callback from the render service.
// Delivery is at-least-once; replays of an already-completed video are
// answered 200 without another write.
func (a *App) VideoComplete(w http.ResponseWriter, r *http.Request) {
	var req completeCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.callbackError(w, "invalid payload")
		return
	}

	if err := a.Service.Complete(r.Context(), req.VideoID, req.UserID, req.VideoURL); err != nil {
		a.Logger.Warn().Err(err).Str("video_id", req.VideoID).Msg("completion callback rejected")
		a.callbackError(w, callbackMessage(err))
		return
	}

	a.json(w, http.StatusOK, callbackEnvelope{
		Success: true,
		Message: "Video completion processed",
		Data: map[string]any{
			"videoId": req.VideoID,
			"status":  string(domain.VideoStatusCompleted),
		},
	})
}

// VideoError receives the failure callback from the render service. Same
// idempotency contract as VideoComplete.
func (a *App) VideoError(w http.ResponseWriter, r *http.Request) {
	var req errorCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.callbackError(w, "invalid payload")
		return
	}

	if err := a.Service.Fail(r.Context(), req.VideoID, req.UserID, req.Error.Message); err != nil {
		a.Logger.Warn().Err(err).Str("video_id", req.VideoID).Msg("error callback rejected")
		a.callbackError(w, callbackMessage(err))
		return
	}

	a.json(w, http.StatusOK, callbackEnvelope{
		Success: true,
		Message: "Video error processed",
		Data: map[string]any{
			"videoId": req.VideoID,
			"status":  string(domain.VideoStatusFailed),
		},
	})
}

func (a *App) callbackError(w http.ResponseWriter, msg string) {
	a.json(w, http.StatusBadRequest, callbackEnvelope{
		Success: false,
		Message: msg,
	})
}

func callbackMessage(err error) string {
	if errors.Is(err, domain.ErrNotFound) {
		return "Video not found"
	}
	var derr *domain.Error
	if errors.As(err, &derr) && derr.Kind == domain.KindValidation {
		return derr.Message
	}
	return "Failed to process callback"
}
