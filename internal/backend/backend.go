package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ent0n29/chatrelay/internal/config"
	"github.com/ent0n29/chatrelay/internal/reliability"
	"github.com/ent0n29/chatrelay/internal/session"
	"github.com/ent0n29/chatrelay/internal/stream"
)

// maxErrorBody caps how much of a failed response is kept for the client.
const maxErrorBody = 64 << 10

var ErrMissingCredentials = errors.New("backend credentials are not configured")

// Backend turns session history into a streaming model request.
type Backend interface {
	Name() string
	// Open sends the request and returns the raw response body once the
	// backend accepted it. A non-2xx response is returned as *StatusError.
	Open(ctx context.Context, history []session.Turn) (io.ReadCloser, error)
	// NewExtractor returns fresh per-request framing state.
	NewExtractor(onError stream.DecodeErrorFunc) stream.Extractor
}

// StatusError is a backend rejection seen before any streaming began.
type StatusError struct {
	Backend string
	Code    int
	Status  string
	Body    string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s http status %s", e.Backend, e.Status)
	}
	return fmt.Sprintf("%s http status %s: %s", e.Backend, e.Status, e.Body)
}

// Message is the text surfaced to the client: the body when present, else the status line.
func (e *StatusError) Message() string {
	if body := strings.TrimSpace(e.Body); body != "" {
		return body
	}
	return e.Status
}

// StatusCode exposes the HTTP status for reliability.Classify.
func (e *StatusError) StatusCode() int { return e.Code }

// Retryable reports whether the status is usually transient. The relay never
// retries; the flag only feeds logs and metrics.
func (e *StatusError) Retryable() bool { return reliability.IsRetryableHTTPStatus(e.Code) }

// ErrorCode classifies an Open failure for metrics.
func ErrorCode(err error) string {
	if errors.Is(err, ErrMissingCredentials) {
		return "missing_credentials"
	}
	return string(reliability.Classify(err))
}

// Options holds settings shared by every backend.
type Options struct {
	Client        *http.Client
	MaxFrameBytes int
}

// New selects the backend named in cfg. The choice is fixed for the process.
func New(cfg config.Config, opts Options) (Backend, error) {
	if opts.Client == nil {
		// No timeout: a generation may legitimately stream for minutes.
		opts.Client = &http.Client{}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case config.BackendOllama, "":
		return NewOllama(OllamaConfig{
			URL:           cfg.OllamaURL,
			Model:         cfg.OllamaModel,
			MaxFrameBytes: opts.MaxFrameBytes,
		}, opts.Client), nil
	case config.BackendGemini:
		return NewGemini(GeminiConfig{
			BaseURL:       cfg.GeminiBaseURL,
			Model:         cfg.GeminiModel,
			APIKey:        cfg.GeminiAPIKey,
			MaxFrameBytes: opts.MaxFrameBytes,
		}, opts.Client), nil
	case config.BackendMock:
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}

// postStream issues a JSON POST and hands back the body of a 2xx response.
func postStream(ctx context.Context, client *http.Client, name, url string, payload any) (io.ReadCloser, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send %s request: %w", name, err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer res.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, &StatusError{
			Backend: name,
			Code:    res.StatusCode,
			Status:  res.Status,
			Body:    strings.TrimSpace(string(raw)),
		}
	}
	return res.Body, nil
}
