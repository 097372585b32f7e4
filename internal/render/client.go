package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"propvid/internal/domain"
	"propvid/internal/infra"
)

// ErrMissingWebhookURL indicates the client was configured without a target.
var ErrMissingWebhookURL = errors.New("render: webhook url is required")

const maxResponseBytes = 4 << 10

// Options configures the render webhook client.
type Options struct {
	WebhookURL string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client submits generation jobs to the external render service webhook.
// One Submit call is one attempt; retry policy belongs to the caller.
type Client struct {
	webhookURL string
	httpClient *http.Client
	logger     *infra.Logger
}

// TemplateSpec is the template descriptor forwarded to the render service.
type TemplateSpec struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Prompt      string `json:"prompt"`
	Style       string `json:"style"`
	Duration    int    `json:"duration"`
	AspectRatio string `json:"aspectRatio"`
}

// Callbacks are the endpoints the render service reports terminal state to.
type Callbacks struct {
	Success string `json:"success"`
	Error   string `json:"error"`
}

// SubmitRequest is the render webhook payload.
type SubmitRequest struct {
	VideoID    string       `json:"videoId"`
	UserID     string       `json:"userId"`
	ImageURL   string       `json:"imageUrl"`
	TemplateID string       `json:"templateId"`
	Template   TemplateSpec `json:"template"`
	Callbacks  Callbacks    `json:"callbacks"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.WebhookURL) == "" {
		return nil, ErrMissingWebhookURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		webhookURL: opts.WebhookURL,
		httpClient: httpClient,
		logger:     opts.Logger,
	}, nil
}

// Submit POSTs the job to the webhook. Acceptance requires an HTTP success
// status and a body that is the literal string "accepted" (case-insensitive);
// a success status with any other body is a protocol error, since it usually
// means a misconfigured downstream accepted a malformed job.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("render: encode payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("render: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/plain")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return domain.E(domain.KindTimeout, "render webhook request timed out", err)
		}
		return domain.E(domain.KindNetwork, "render webhook unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.E(domain.KindNetwork, "render webhook response read failed", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.Error{
			Kind:       domain.KindUpstreamProtocol,
			Message:    fmt.Sprintf("render webhook failed: %d %s", resp.StatusCode, strings.TrimSpace(string(body))),
			HTTPStatus: resp.StatusCode,
		}
	}

	if !strings.EqualFold(string(body), "accepted") {
		return domain.E(domain.KindUpstreamProtocol,
			fmt.Sprintf("unexpected response from render webhook: %q", string(body)), nil)
	}

	if c.logger != nil {
		c.logger.Debug().Str("video_id", req.VideoID).Msg("render webhook accepted job")
	}
	return nil
}
