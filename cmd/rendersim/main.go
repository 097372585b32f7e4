// rendersim is a local stand-in for the external render service. It accepts
// webhook submissions, answers "accepted" and reports a terminal state to the
// submitted callback URLs after a short delay.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"propvid/internal/infra"
	"propvid/internal/render"
)

type simulator struct {
	logger   infra.Logger
	client   *http.Client
	delay    time.Duration
	failWith string
	videoURL string
}

func main() {
	_ = godotenv.Load()

	logger := infra.NewLogger(os.Getenv("APP_ENV"), "rendersim")

	port := envOr("RENDERSIM_PORT", "9090")
	delayMS, _ := strconv.Atoi(envOr("RENDERSIM_DELAY_MS", "2000"))

	sim := &simulator{
		logger: logger,
		client: &http.Client{Timeout: 10 * time.Second},
		delay:  time.Duration(delayMS) * time.Millisecond,
		// When set, every job fails with this message instead of completing.
		failWith: os.Getenv("RENDERSIM_FAIL_MESSAGE"),
		videoURL: envOr("RENDERSIM_VIDEO_URL", "https://cdn.example.com/renders/sample.mp4"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /", sim.handleSubmit)

	server := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		logger.Info().Msgf("render simulator listening on :%s", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("simulator server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *simulator) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req render.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.VideoID == "" || req.UserID == "" || req.Callbacks.Success == "" || req.Callbacks.Error == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	s.logger.Info().
		Str("video_id", req.VideoID).
		Str("template_id", req.TemplateID).
		Str("aspect_ratio", req.Template.AspectRatio).
		Msg("job accepted")

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "accepted")

	go s.finish(req)
}

func (s *simulator) finish(req render.SubmitRequest) {
	time.Sleep(s.delay)

	var target string
	var payload map[string]any
	if s.failWith != "" {
		target = req.Callbacks.Error
		payload = map[string]any{
			"videoId": req.VideoID,
			"userId":  req.UserID,
			"error":   map[string]string{"message": s.failWith},
		}
	} else {
		target = req.Callbacks.Success
		payload = map[string]any{
			"videoId":  req.VideoID,
			"userId":   req.UserID,
			"videoUrl": s.videoURL,
		}
	}

	body, _ := json.Marshal(payload)
	resp, err := s.client.Post(target, "application/json", bytes.NewReader(body))
	if err != nil {
		s.logger.Error().Err(err).Str("video_id", req.VideoID).Msg("callback delivery failed")
		return
	}
	defer resp.Body.Close()
	s.logger.Info().
		Str("video_id", req.VideoID).
		Int("status", resp.StatusCode).
		Msg("callback delivered")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
