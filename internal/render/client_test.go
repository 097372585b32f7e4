package render

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"propvid/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Options{WebhookURL: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client, srv
}

func sampleRequest() SubmitRequest {
	return SubmitRequest{
		VideoID:    "vid-1",
		UserID:     "user-1",
		ImageURL:   "https://x/img.png",
		TemplateID: "t1",
		Template: TemplateSpec{
			ID:          "t1",
			Title:       "Cinematic Exterior",
			Prompt:      "Create a cinematic property video showcasing Cinematic Exterior",
			Style:       "cinematic",
			Duration:    10,
			AspectRatio: "9:16",
		},
		Callbacks: Callbacks{
			Success: "http://localhost:8080/v1/callbacks/video-complete",
			Error:   "http://localhost:8080/v1/callbacks/video-error",
		},
	}
}

func TestNewClientRequiresWebhookURL(t *testing.T) {
	if _, err := NewClient(Options{}); err != ErrMissingWebhookURL {
		t.Fatalf("NewClient() error = %v, want ErrMissingWebhookURL", err)
	}
}

func TestSubmitAccepted(t *testing.T) {
	var got SubmitRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Write([]byte("Accepted"))
	})

	if err := client.Submit(context.Background(), sampleRequest()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if got.VideoID != "vid-1" || got.Template.AspectRatio != "9:16" {
		t.Errorf("payload = %+v", got)
	}
	if got.Callbacks.Success == "" || got.Callbacks.Error == "" {
		t.Error("payload missing callback URLs")
	}
}

func TestSubmitRejectsUnexpectedBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	})

	err := client.Submit(context.Background(), sampleRequest())
	if err == nil {
		t.Fatal("Submit() expected error for non-accepted body")
	}
	if kind := domain.KindOf(err); kind != domain.KindUpstreamProtocol {
		t.Errorf("error kind = %v, want upstream_protocol", kind)
	}
	if domain.StatusOf(err) != 0 {
		t.Error("2xx protocol error must not carry a retryable status")
	}
}

func TestSubmitNon2xxCarriesStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "downstream overloaded", http.StatusServiceUnavailable)
	})

	err := client.Submit(context.Background(), sampleRequest())
	if err == nil {
		t.Fatal("Submit() expected error")
	}
	if status := domain.StatusOf(err); status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", status)
	}
}

func TestSubmitTimeoutClassified(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte("accepted"))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := client.Submit(ctx, sampleRequest())
	if err == nil {
		t.Fatal("Submit() expected timeout error")
	}
	if kind := domain.KindOf(err); kind != domain.KindTimeout {
		t.Errorf("error kind = %v, want timeout", kind)
	}
}

func TestSubmitNetworkErrorClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client, err := NewClient(Options{WebhookURL: url})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	submitErr := client.Submit(context.Background(), sampleRequest())
	if submitErr == nil {
		t.Fatal("Submit() expected error against closed server")
	}
	if kind := domain.KindOf(submitErr); kind != domain.KindNetwork {
		t.Errorf("error kind = %v, want network", kind)
	}
}
