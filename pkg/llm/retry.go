package llm

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"
)

const (
	maxRetries     = 3
	retryBaseDelay = 100 * time.Millisecond
	retryMaxDelay  = 2 * time.Second
)

// doWithRetry runs an HTTP request with exponential backoff. The request is
// rebuilt through build for every attempt so bodies stay readable. Transport
// errors, rate limits, and 5xx responses are retried; any other response is
// returned to the caller as is.
func doWithRetry(ctx context.Context, client *http.Client, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(retryBaseDelay) * math.Pow(2, float64(attempt-1)))
			if delay > retryMaxDelay {
				delay = retryMaxDelay
			}
			// Jitter to avoid synchronized retries across workers.
			delay += time.Duration(float64(delay) * 0.1 * (2*rand.Float64() - 1))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := build()
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}
		lastErr = fmt.Errorf("retryable status %s", resp.Status)
		resp.Body.Close()
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries+1, lastErr)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
