// Package probe checks the liveness endpoint over HTTP.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnhealthy is returned when the endpoint answers with a non-200 status.
var ErrUnhealthy = errors.New("service unhealthy")

var client = &http.Client{Timeout: 10 * time.Second}

// LivenessURL is the local liveness endpoint for port.
func LivenessURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d/health-check", port)
}

// Liveness performs a single GET against url. Only 200 counts as healthy.
func Liveness(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// WaitForLiveness polls url every interval until it is healthy or timeout
// elapses. It returns the last probe error on timeout.
func WaitForLiveness(ctx context.Context, url string, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		err := Liveness(ctx, url)
		if err == nil {
			return nil
		}
		// Keep the last real answer rather than the deadline error.
		if lastErr == nil || ctx.Err() == nil {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("service not live after %s: %w", timeout, lastErr)
		case <-ticker.C:
		}
	}
}
