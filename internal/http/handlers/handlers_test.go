package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"propvid/internal/domain"
	"propvid/internal/middleware"
	"propvid/internal/notify"
	"propvid/internal/render"
	"propvid/internal/storage"
	"propvid/internal/video"
)

type stubVideos struct {
	mu   sync.Mutex
	rows map[string]*domain.Video
}

func newStubVideos() *stubVideos {
	return &stubVideos{rows: make(map[string]*domain.Video)}
}

func (s *stubVideos) Create(ctx context.Context, v *domain.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.rows[v.ID] = &cp
	return nil
}

func (s *stubVideos) GetForUser(ctx context.Context, videoID, userID string) (*domain.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[videoID]
	if !ok || row.UserID != userID {
		return nil, domain.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *stubVideos) ListByUser(ctx context.Context, userID string) ([]domain.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Video
	for _, row := range s.rows {
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *stubVideos) MarkProcessing(ctx context.Context, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[videoID]; ok && row.Status == domain.VideoStatusPending {
		row.Status = domain.VideoStatusProcessing
	}
	return nil
}

func (s *stubVideos) MarkCompleted(ctx context.Context, videoID, userID, videoURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[videoID]; ok && row.UserID == userID {
		row.Status = domain.VideoStatusCompleted
		row.VideoURL = videoURL
	}
	return nil
}

func (s *stubVideos) MarkFailed(ctx context.Context, videoID, userID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[videoID]; ok && row.UserID == userID {
		row.Status = domain.VideoStatusFailed
		row.ErrorMessage = errMsg
	}
	return nil
}

type stubGens struct {
	mu   sync.Mutex
	rows map[string]*domain.Generation
}

func newStubGens() *stubGens {
	return &stubGens{rows: make(map[string]*domain.Generation)}
}

func (s *stubGens) Create(ctx context.Context, gen *domain.Generation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *gen
	s.rows[gen.VideoID] = &cp
	return nil
}

func (s *stubGens) GetByVideoID(ctx context.Context, videoID string) (*domain.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[videoID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *stubGens) MarkCompleted(ctx context.Context, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[videoID]; ok {
		row.Status = domain.VideoStatusCompleted
		row.Progress = 100
	}
	return nil
}

func (s *stubGens) MarkFailed(ctx context.Context, videoID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[videoID]; ok {
		row.Status = domain.VideoStatusFailed
		row.ErrorMessage = errMsg
	}
	return nil
}

type acceptAllRenderer struct{}

func (acceptAllRenderer) Submit(ctx context.Context, req render.SubmitRequest) error { return nil }

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (s *memStore) Put(ctx context.Context, key string, data []byte, opts storage.PutOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if opts.NoOverwrite {
		if _, ok := s.objects[key]; ok {
			return storage.ErrKeyExists
		}
	}
	s.objects[key] = data
	return nil
}

func (s *memStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memStore) PublicURL(key string) string {
	return "http://localhost:8080/static/" + key
}

type testEnv struct {
	app    *App
	videos *stubVideos
	gens   *stubGens
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	videos := newStubVideos()
	gens := newStubGens()
	svc := video.NewService(video.Options{
		Videos:          videos,
		Progress:        gens,
		Renderer:        acceptAllRenderer{},
		Logger:          zerolog.Nop(),
		CallbackBaseURL: "http://localhost:8080",
		MaxRetries:      1,
		AttemptTimeout:  time.Second,
		Sleep:           func(ctx context.Context, d time.Duration) error { return nil },
	})
	app := NewApp(AppOptions{
		Service:      svc,
		Uploader:     storage.NewImageUploader(newMemStore()),
		Logger:       zerolog.Nop(),
		ProxyTimeout: time.Second,
	})
	return &testEnv{app: app, videos: videos, gens: gens}
}

func (env *testEnv) submit(t *testing.T, userID string) string {
	t.Helper()
	videoID, err := env.app.Service.CreateVideo(
		context.Background(), userID, "http://localhost:8080/static/u/img.png",
		domain.Template{ID: "t1", Title: "Garden View"},
	)
	if err != nil {
		t.Fatalf("CreateVideo() error = %v", err)
	}
	return videoID
}

func authedRequest(method, target, userID string, body []byte) *http.Request {
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), userID))
	return req
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestVideosCreate(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(videoCreateRequest{
		ImageURL: "http://localhost:8080/static/u/img.png",
		Template: templatePayload{ID: "t1", Title: "Garden View", Orientation: "portrait"},
	})
	req := authedRequest(http.MethodPost, "/v1/videos", "user-1", body)
	rec := httptest.NewRecorder()
	env.app.VideosCreate(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body %s", rec.Code, rec.Body.String())
	}
	var resp videoCreateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.VideoID == "" || resp.Status != "processing" {
		t.Errorf("response = %+v", resp)
	}
}

func TestVideosCreateRequiresUser(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/videos", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	env.app.VideosCreate(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestVideosCreateValidationMessage(t *testing.T) {
	env := newTestEnv(t)

	body := []byte(`{"image_url":"","template":{"id":"t1"}}`)
	req := authedRequest(http.MethodPost, "/v1/videos", "user-1", body)
	rec := httptest.NewRecorder()
	env.app.VideosCreate(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Failed to create video.") {
		t.Errorf("body = %s, want user-facing message", rec.Body.String())
	}
}

func TestVideoGet(t *testing.T) {
	env := newTestEnv(t)
	videoID := env.submit(t, "user-1")

	req := withURLParam(authedRequest(http.MethodGet, "/v1/videos/"+videoID, "user-1", nil), "id", videoID)
	rec := httptest.NewRecorder()
	env.app.VideoGet(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp videoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != videoID || resp.Status != "processing" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Progress == nil || *resp.Progress != 0 {
		t.Errorf("progress = %v, want 0", resp.Progress)
	}
}

func TestVideoGetForeignUser(t *testing.T) {
	env := newTestEnv(t)
	videoID := env.submit(t, "user-1")

	req := withURLParam(authedRequest(http.MethodGet, "/v1/videos/"+videoID, "user-2", nil), "id", videoID)
	rec := httptest.NewRecorder()
	env.app.VideoGet(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestVideosList(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t, "user-1")
	env.submit(t, "user-1")
	env.submit(t, "user-2")

	req := authedRequest(http.MethodGet, "/v1/videos", "user-1", nil)
	rec := httptest.NewRecorder()
	env.app.VideosList(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Videos []videoResponse `json:"videos"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Videos) != 2 {
		t.Errorf("videos = %d, want 2", len(resp.Videos))
	}
}

func TestVideoCompleteCallback(t *testing.T) {
	env := newTestEnv(t)
	videoID := env.submit(t, "user-1")

	body := []byte(`{"videoId":"` + videoID + `","userId":"user-1","videoUrl":"https://cdn/out.mp4"}`)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/callbacks/video-complete", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		env.app.VideoComplete(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: status = %d, want 200, body %s", i+1, rec.Code, rec.Body.String())
		}
		var resp callbackEnvelope
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if !resp.Success || resp.Data["status"] != "completed" {
			t.Errorf("delivery %d: envelope = %+v", i+1, resp)
		}
	}

	row, _ := env.videos.GetForUser(context.Background(), videoID, "user-1")
	if row.Status != domain.VideoStatusCompleted || row.VideoURL != "https://cdn/out.mp4" {
		t.Errorf("video = %s/%q", row.Status, row.VideoURL)
	}
}

func TestVideoErrorCallback(t *testing.T) {
	env := newTestEnv(t)
	videoID := env.submit(t, "user-1")

	body := []byte(`{"videoId":"` + videoID + `","userId":"user-1","error":{"message":"render exploded"}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/callbacks/video-error", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.app.VideoError(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	row, _ := env.videos.GetForUser(context.Background(), videoID, "user-1")
	if row.Status != domain.VideoStatusFailed || row.ErrorMessage != "render exploded" {
		t.Errorf("video = %s/%q", row.Status, row.ErrorMessage)
	}
}

func TestCallbackRejections(t *testing.T) {
	env := newTestEnv(t)
	videoID := env.submit(t, "user-1")

	tests := []struct {
		name string
		body string
	}{
		{"missing videoId", `{"userId":"user-1","videoUrl":"https://cdn/out.mp4"}`},
		{"missing userId", `{"videoId":"` + videoID + `","videoUrl":"https://cdn/out.mp4"}`},
		{"missing videoUrl", `{"videoId":"` + videoID + `","userId":"user-1"}`},
		{"foreign user", `{"videoId":"` + videoID + `","userId":"user-2","videoUrl":"https://cdn/out.mp4"}`},
		{"malformed json", `{`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/callbacks/video-complete", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			env.app.VideoComplete(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var resp callbackEnvelope
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Success {
				t.Error("success = true on rejection")
			}
		})
	}

	row, _ := env.videos.GetForUser(context.Background(), videoID, "user-1")
	if row.Status != domain.VideoStatusProcessing {
		t.Errorf("status = %s, rejected callbacks must not write", row.Status)
	}
}

func TestUploadImage(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("image", "house.png")
	part.Write([]byte("\x89PNG\r\n\x1a\nfake"))
	mw.Close()

	req := authedRequest(http.MethodPost, "/v1/uploads/image", "user-1", buf.Bytes())
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.app.UploadImage(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(resp["path"], "user-1/") {
		t.Errorf("path = %q, want user-1/ prefix", resp["path"])
	}
	if resp["url"] == "" {
		t.Error("url missing")
	}
}

func TestUploadImageRejectsWrongType(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("image", "notes.txt")
	part.Write([]byte("plain text"))
	mw.Close()

	req := authedRequest(http.MethodPost, "/v1/uploads/image", "user-1", buf.Bytes())
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.app.UploadImage(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", rec.Code, rec.Body.String())
	}
}

func TestWebhookProxy(t *testing.T) {
	env := newTestEnv(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("accepted"))
	}))
	defer upstream.Close()

	body, _ := json.Marshal(map[string]any{"url": upstream.URL, "payload": map[string]string{"k": "v"}})
	req := httptest.NewRequest(http.MethodPost, "/v1/webhook-proxy", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.app.WebhookProxy(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status int    `json:"status"`
		Body   string `json:"body"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != http.StatusOK || resp.Body != "accepted" {
		t.Errorf("response = %+v", resp)
	}
}

func TestWebhookProxyUpstreamTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.app.ProxyClient.Timeout = 50 * time.Millisecond

	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		upstream.Close()
	}()

	body, _ := json.Marshal(map[string]any{"url": upstream.URL})
	req := httptest.NewRequest(http.MethodPost, "/v1/webhook-proxy", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.app.WebhookProxy(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504, body %s", rec.Code, rec.Body.String())
	}
}

func TestWebhookProxyRejectsBadURL(t *testing.T) {
	env := newTestEnv(t)

	for _, target := range []string{"", "ftp://example.com/x", "not a url"} {
		body, _ := json.Marshal(map[string]any{"url": target})
		req := httptest.NewRequest(http.MethodPost, "/v1/webhook-proxy", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		env.app.WebhookProxy(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("url %q: status = %d, want 400", target, rec.Code)
		}
	}
}

// fakeSubscriber stands in for the redis-backed subscriber. The hook runs
// inside SubscribeVideo so tests can interleave a state change with the
// subscription itself.
type fakeSubscriber struct {
	videoCh          chan notify.Event
	userCh           chan notify.Event
	onSubscribeVideo func()
}

func (f *fakeSubscriber) SubscribeVideo(ctx context.Context, videoID string) (<-chan notify.Event, func()) {
	if f.onSubscribeVideo != nil {
		f.onSubscribeVideo()
	}
	return f.videoCh, func() {}
}

func (f *fakeSubscriber) SubscribeUser(ctx context.Context, userID string) (<-chan notify.Event, func()) {
	return f.userCh, func() {}
}

func eventsRequest(userID, videoID string) *http.Request {
	req := authedRequest(http.MethodGet, "/v1/videos/"+videoID+"/events", userID, nil)
	return withURLParam(req, "id", videoID)
}

// A completion callback that lands between the subscription and the snapshot
// read is published to nobody. The snapshot must still pick it up, so the
// stream ends with the completed state instead of waiting on a channel that
// will never deliver.
func TestVideoEventsCallbackDuringSubscribe(t *testing.T) {
	env := newTestEnv(t)
	videoID := env.submit(t, "user-1")

	sub := &fakeSubscriber{videoCh: make(chan notify.Event)}
	sub.onSubscribeVideo = func() {
		if err := env.app.Service.Complete(context.Background(), videoID, "user-1", "https://cdn.example.com/out.mp4"); err != nil {
			t.Errorf("complete: %v", err)
		}
	}
	env.app.Subscriber = sub

	req := eventsRequest("user-1", videoID)
	ctx, cancel := context.WithTimeout(req.Context(), 200*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	env.app.VideoEvents(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q, body %s", ct, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"status":"completed"`) {
		t.Errorf("body = %q, want completed snapshot", rec.Body.String())
	}
}

func TestVideoEventsStreamsUntilTerminal(t *testing.T) {
	env := newTestEnv(t)
	videoID := env.submit(t, "user-1")

	ch := make(chan notify.Event, 2)
	ch <- notify.Event{VideoID: videoID, UserID: "user-1", Status: domain.VideoStatusProcessing, Progress: 50}
	ch <- notify.Event{VideoID: videoID, UserID: "user-1", Status: domain.VideoStatusCompleted, Progress: 100, VideoURL: "https://cdn.example.com/out.mp4"}
	env.app.Subscriber = &fakeSubscriber{videoCh: ch}

	rec := httptest.NewRecorder()
	env.app.VideoEvents(rec, eventsRequest("user-1", videoID))

	body := rec.Body.String()
	if !strings.Contains(body, `"progress":50`) {
		t.Errorf("body = %q, want progress event", body)
	}
	if !strings.Contains(body, `"status":"completed"`) {
		t.Errorf("body = %q, want terminal event", body)
	}
}

func TestVideoEventsUnknownVideo(t *testing.T) {
	env := newTestEnv(t)
	env.app.Subscriber = &fakeSubscriber{videoCh: make(chan notify.Event)}

	rec := httptest.NewRecorder()
	env.app.VideoEvents(rec, eventsRequest("user-1", "no-such-video"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body %s", rec.Code, rec.Body.String())
	}
}

func TestUserEvents(t *testing.T) {
	env := newTestEnv(t)

	ch := make(chan notify.Event, 1)
	ch <- notify.Event{VideoID: "v1", UserID: "user-1", Status: domain.VideoStatusCompleted, VideoURL: "https://cdn.example.com/out.mp4"}
	close(ch)
	env.app.Subscriber = &fakeSubscriber{userCh: ch}

	req := authedRequest(http.MethodGet, "/v1/events", "user-1", nil)
	rec := httptest.NewRecorder()
	env.app.UserEvents(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q, body %s", ct, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"video_id":"v1"`) {
		t.Errorf("body = %q, want forwarded event", rec.Body.String())
	}
}

func TestUploadImageRejectsOversizedBody(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("image", "huge.png")
	part.Write([]byte("\x89PNG\r\n\x1a\n"))
	part.Write(bytes.Repeat([]byte{0xff}, int(storage.MaxUploadBytes)+uploadFormOverhead+1))
	mw.Close()

	req := authedRequest(http.MethodPost, "/v1/uploads/image", "user-1", buf.Bytes())
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.app.UploadImage(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413, body %s", rec.Code, rec.Body.String())
	}
}
