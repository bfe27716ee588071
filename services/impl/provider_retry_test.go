package impl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/ragdock/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimeoutError struct{}

func (fakeTimeoutError) Error() string   { return "i/o timeout" }
func (fakeTimeoutError) Timeout() bool   { return true }
func (fakeTimeoutError) Temporary() bool { return true }

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout sentinel", services.ErrTimeout, true},
		{"wrapped timeout", fmt.Errorf("embed: %w", services.ErrTimeout), true},
		{"rate limited", &services.ProviderError{Status: 429}, true},
		{"server error", &services.ProviderError{Status: 500}, true},
		{"bad gateway", &services.ProviderError{Status: 502}, true},
		{"transport failure without status", &services.ProviderError{Message: "connection refused"}, true},
		{"unauthorized", &services.ProviderError{Status: 401}, false},
		{"bad request", &services.ProviderError{Status: 400}, false},
		{"not found", &services.ProviderError{Status: 404}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, services.IsRetriable(tt.err))
		})
	}
}

func TestRetryWithBackoffFirstAttemptSucceeds(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), func() error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithBackoffNonRetriableReturnsImmediately(t *testing.T) {
	calls := 0
	authErr := &services.ProviderError{Status: 401, Message: "bad key"}

	start := time.Now()
	err := retryWithBackoff(context.Background(), func() error {
		calls++
		return authErr
	})

	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second, "non-retriable errors must not wait out a backoff")

	var provErr *services.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, 401, provErr.Status)
}

func TestRetryWithBackoffCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	go func() {
		// Let the first attempt fail, then cancel while the retry sleeps
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := retryWithBackoff(ctx, func() error {
		calls++
		return &services.ProviderError{Status: 429}
	})

	assert.Equal(t, 1, calls)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalizeProviderErrorTimeout(t *testing.T) {
	err := normalizeProviderError(fakeTimeoutError{}, nil, nil)
	assert.ErrorIs(t, err, services.ErrTimeout)

	err = normalizeProviderError(fmt.Errorf("request: %w", context.DeadlineExceeded), nil, nil)
	assert.ErrorIs(t, err, services.ErrTimeout)
}

func TestNormalizeProviderErrorTransport(t *testing.T) {
	err := normalizeProviderError(errors.New("connection refused"), nil, nil)

	var provErr *services.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, 0, provErr.Status)
	assert.True(t, services.IsRetriable(err))
}

func TestNormalizeProviderErrorResponse(t *testing.T) {
	resp := &http.Response{
		StatusCode: 429,
		Header:     http.Header{"Retry-After": []string{"7"}},
	}

	err := normalizeProviderError(nil, resp, []byte("slow down"))

	var provErr *services.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, 429, provErr.Status)
	assert.Equal(t, 7, provErr.RetryAfter)
	assert.Equal(t, "slow down", provErr.Message)
}

func TestNormalizeProviderErrorTruncatesBody(t *testing.T) {
	resp := &http.Response{StatusCode: 500, Header: http.Header{}}
	body := make([]byte, 2048)
	for i := range body {
		body[i] = 'x'
	}

	err := normalizeProviderError(nil, resp, body)

	var provErr *services.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Len(t, provErr.Message, 512)
}
