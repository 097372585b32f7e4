package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

type proxyRequest struct {
	URL     string          `json:"url"`
	Payload json.RawMessage `json:"payload"`
}

// WebhookProxy forwards a JSON payload to the given webhook URL on behalf of
// browser clients that cannot reach it directly. Upstream timeouts map to
// 504 so the caller can tell a dead webhook apart from a bad request.
func (a *App) WebhookProxy(w http.ResponseWriter, r *http.Request) {
	var req proxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	target, err := url.Parse(req.URL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "a valid http(s) url is required")
		return
	}

	body := req.Payload
	if len(body) == 0 {
		body = json.RawMessage("{}")
	}
	upstream, err := http.NewRequestWithContext(r.Context(), http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to build upstream request")
		return
	}
	upstream.Header.Set("Content-Type", "application/json")

	resp, err := a.ProxyClient.Do(upstream)
	if err != nil {
		if isTimeout(err) {
			a.error(w, http.StatusGatewayTimeout, "upstream_timeout", "webhook did not respond in time")
			return
		}
		a.Logger.Warn().Err(err).Str("url", target.String()).Msg("webhook proxy call failed")
		a.error(w, http.StatusBadRequest, "upstream_failed", "failed to reach webhook")
		return
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	a.json(w, http.StatusOK, map[string]any{
		"status": resp.StatusCode,
		"body":   string(respBody),
	})
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "Client.Timeout")
}
