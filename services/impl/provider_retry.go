package impl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ragdock/services"
)

const (
	providerMaxAttempts = 3
	backoffBase         = 2 * time.Second
	backoffCap          = 10 * time.Second
)

// retryWithBackoff runs fn up to providerMaxAttempts times, sleeping
// 2s, 4s, 8s (capped at 10s) between attempts. A Retry-After hint from
// the provider overrides the computed delay. Non-retriable errors
// return immediately.
func retryWithBackoff(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < providerMaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffBase << (attempt - 1)
			if delay > backoffCap {
				delay = backoffCap
			}
			var provErr *services.ProviderError
			if errors.As(lastErr, &provErr) && provErr.RetryAfter > 0 {
				delay = time.Duration(provErr.RetryAfter) * time.Second
				if delay > backoffCap {
					delay = backoffCap
				}
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !services.IsRetriable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", providerMaxAttempts, lastErr)
}

// normalizeProviderError maps a transport error or non-2xx response to
// the shared taxonomy. Timeouts become ErrTimeout so callers can treat
// them as retriable without inspecting status codes.
func normalizeProviderError(err error, resp *http.Response, body []byte) error {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("provider request timed out: %w", services.ErrTimeout)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("provider request timed out: %w", services.ErrTimeout)
		}
		return &services.ProviderError{Message: err.Error()}
	}

	retryAfter := 0
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			retryAfter = secs
		}
	}

	msg := string(body)
	if len(msg) > 512 {
		msg = msg[:512]
	}

	return &services.ProviderError{
		Status:     resp.StatusCode,
		RetryAfter: retryAfter,
		Message:    msg,
	}
}
