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

	"github.com/storyloom/orchestrator/internal/domain"
)

// HTTPBackend calls a JSON generation endpoint: POST {base}/generate with a
// Request body, 200 with a Response body on success. Status codes map onto
// the error taxonomy: 429 is rate-limited, 5xx and transport failures are
// transient, other non-2xx are permanent.
type HTTPBackend struct {
	id         string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// HTTPOption configures an HTTPBackend.
type HTTPOption func(*HTTPBackend)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(b *HTTPBackend) { b.httpClient = client }
}

// WithAPIKey sets the bearer token sent with each request. The key is passed
// through opaquely; authentication schemes are the backend's concern.
func WithAPIKey(key string) HTTPOption {
	return func(b *HTTPBackend) { b.apiKey = key }
}

// NewHTTPBackend creates an HTTP adapter for the backend with the given id.
func NewHTTPBackend(id, baseURL string, opts ...HTTPOption) *HTTPBackend {
	b := &HTTPBackend{
		id:         id,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ID implements Backend.
func (b *HTTPBackend) ID() string { return b.id }

// Generate implements Backend.
func (b *HTTPBackend) Generate(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		// Includes per-call timeouts: a slow call counts as one attempt
		// and is retried per policy.
		return nil, &domain.BackendCallError{BackendID: b.id, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.BackendCallError{BackendID: b.id, Transient: true, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &domain.BackendCallError{
			BackendID:   b.id,
			StatusCode:  resp.StatusCode,
			RateLimited: true,
			Err:         errBody(respBody),
		}
	case resp.StatusCode >= 500:
		return nil, &domain.BackendCallError{
			BackendID:  b.id,
			StatusCode: resp.StatusCode,
			Transient:  true,
			Err:        errBody(respBody),
		}
	default:
		return nil, &domain.BackendCallError{
			BackendID:  b.id,
			StatusCode: resp.StatusCode,
			Err:        errBody(respBody),
		}
	}

	var result Response
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &domain.BackendCallError{BackendID: b.id, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	return &result, nil
}

func errBody(body []byte) error {
	const max = 256
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		s = s[:max] + "..."
	}
	if s == "" {
		return errors.New("empty error body")
	}
	return errors.New(s)
}
