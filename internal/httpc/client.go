// Package httpc provides an HTTP client with sensible defaults for talking
// to a depthview status server.
package httpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout        = 5 * time.Second
	DefaultConnectTimeout = 2 * time.Second
)

// NewClient creates an HTTP client with the specified timeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: DefaultConnectTimeout,
			}).DialContext,
			MaxIdleConns:    4,
			IdleConnTimeout: 30 * time.Second,
		},
	}
}

// Client is the shared client.
var Client = NewClient(DefaultTimeout)

// GetJSON fetches url and decodes the JSON body into out.
// Non-2xx responses are errors.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("httpc: %w", err)
	}
	resp, err := Client.Do(req)
	if err != nil {
		return fmt.Errorf("httpc: get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("httpc: get %s: %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("httpc: decode %s: %w", url, err)
	}
	return nil
}
