package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"propvid/internal/domain"
	"propvid/internal/notify"
)

// VideoEvents streams status updates for one video as server-sent events.
// The stream ends after a terminal event; clients resubscribe per job, there
// is no replay or reconnect handling.
func (a *App) VideoEvents(w http.ResponseWriter, r *http.Request) {
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
	if a.Subscriber == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "event streaming is not enabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	// Subscribe before the snapshot read. Pub/sub does not retain: a
	// callback landing between the two would be published to nobody, and
	// the snapshot is what catches it.
	events, cancel := a.Subscriber.SubscribeVideo(r.Context(), videoID)
	defer cancel()

	v, gen, err := a.Service.GetVideo(r.Context(), videoID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "video not found")
			return
		}
		a.domainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	snapshot := notify.Event{
		VideoID:  videoID,
		UserID:   userID,
		Status:   v.Status,
		VideoURL: v.VideoURL,
		Error:    v.ErrorMessage,
	}
	if gen != nil {
		snapshot.Progress = gen.Progress
	}
	writeSSE(w, snapshot)
	flusher.Flush()
	if v.Status.Terminal() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			writeSSE(w, ev)
			flusher.Flush()
			if ev.Status.Terminal() {
				return
			}
		}
	}
}

// UserEvents streams status updates for every job the caller owns. Unlike
// the per-video stream it carries many jobs, so it has no terminal event;
// it runs until the client disconnects.
func (a *App) UserEvents(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	if a.Subscriber == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "event streaming is not enabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	events, cancel := a.Subscriber.SubscribeUser(r.Context(), userID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev notify.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
}
