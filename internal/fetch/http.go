package fetch

import (
	"context"
	"fmt"
	"io"
	"time"

	"sjsage522/storefrontscraper/helpers"
)

// EngineHTTP is the plain HTTP engine name
const EngineHTTP = "http"

// HTTPEngine fetches pages with a single GET carrying browser-like headers.
// It is fast but is the first to be served a block page.
type HTTPEngine struct {
	timeout time.Duration
}

// NewHTTPEngine creates the plain HTTP engine
func NewHTTPEngine(timeout time.Duration) *HTTPEngine {
	return &HTTPEngine{timeout: timeout}
}

func (e *HTTPEngine) Name() string {
	return EngineHTTP
}

// Fetch returns the UTF-8 body of url
func (e *HTTPEngine) Fetch(ctx context.Context, url string) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	body, err := helpers.FetchWithRandomHeaders(ctx, url)
	if err != nil {
		return "", err
	}

	content, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read body of %s: %w", url, err)
	}
	return string(content), nil
}
