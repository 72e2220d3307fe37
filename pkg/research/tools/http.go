package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/mikeboe/deep-research/pkg/research"
)

const userAgent = "deep-research/1.0 (+https://github.com/mikeboe/deep-research)"

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// statusError maps a non-2xx response into the research error taxonomy.
func statusError(provider string, code int, body []byte) error {
	if len(body) > 300 {
		body = body[:300]
	}
	err := fmt.Errorf("%s returned status %d: %s", provider, code, string(body))
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden || code == http.StatusPaymentRequired:
		return research.Unavailable(err)
	case code == http.StatusTooManyRequests || code >= 500:
		return research.Transient(err)
	default:
		return err
	}
}

// transportError marks network failures as transient; cancellation is kept as is.
func transportError(provider string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return research.Transient(fmt.Errorf("%s request failed: %w", provider, err))
	}
	return fmt.Errorf("%s request failed: %w", provider, err)
}

// waitTurn blocks on the provider's rate gate. Running out of deadline while waiting
// is transient; cancellation is returned as is.
func waitTurn(ctx context.Context, limiter *rate.Limiter, provider string) error {
	err := limiter.Wait(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return research.Transient(fmt.Errorf("%s rate limit: %w", provider, err))
}

func missingKey(provider, env string) error {
	return research.Unavailable(fmt.Errorf("%s: %s is not set", provider, env))
}

// do sends req and returns the body of a 2xx response.
func do(client *http.Client, provider string, req *http.Request) ([]byte, error) {
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return nil, transportError(provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(provider, fmt.Errorf("failed to read response body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(provider, resp.StatusCode, body)
	}
	return body, nil
}

// postJSON sends payload as JSON and decodes the response into out.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	body, err := do(client, provider, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", provider, err)
	}
	return nil
}
