// transport.go -- Request/response transport to the trusted exchange backend.
package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Transport posts a JSON body and returns the raw response body.
// Implementations must be safe for concurrent use.
type Transport interface {
	Post(ctx context.Context, url string, body any) ([]byte, error)
}

// maxResponseBytes caps how much of an exchange response is read.
const maxResponseBytes = 1 << 20

// maxErrorBody caps the response excerpt kept on a StatusError.
const maxErrorBody = 512

// HTTPTransport is the net/http Transport. No retries: a failed exchange is
// reported once and the visitor retries by reloading.
type HTTPTransport struct {
	Client *http.Client
}

// NewHTTPTransport returns an HTTPTransport whose requests time out after timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{Client: &http.Client{Timeout: timeout}}
}

// Post sends body as JSON. Non-2xx responses become *StatusError.
func (t *HTTPTransport) Post(ctx context.Context, url string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting exchange request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading exchange response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt := data
		if len(excerpt) > maxErrorBody {
			excerpt = excerpt[:maxErrorBody]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: string(excerpt)}
	}
	return data, nil
}
