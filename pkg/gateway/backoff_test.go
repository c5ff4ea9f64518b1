package gateway_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/bookrent/pkg/gateway"
)

func TestBackoff(t *testing.T) {
	t.Parallel()

	t.Run("exponential", func(t *testing.T) {
		t.Parallel()
		b := gateway.Exponential(100*time.Millisecond, time.Second, 0)
		assert.Equal(t, time.Duration(0), b(0))
		assert.Equal(t, 100*time.Millisecond, b(1))
		assert.Equal(t, 200*time.Millisecond, b(2))
		assert.Equal(t, 400*time.Millisecond, b(3))
		assert.Equal(t, time.Second, b(10))
	})

	t.Run("exponential jitter stays in band", func(t *testing.T) {
		t.Parallel()
		b := gateway.Exponential(time.Second, time.Minute, 0.1)
		for range 50 {
			d := b(1)
			assert.GreaterOrEqual(t, d, 900*time.Millisecond)
			assert.LessOrEqual(t, d, 1100*time.Millisecond)
		}
	})

	t.Run("constant", func(t *testing.T) {
		t.Parallel()
		b := gateway.Constant(time.Second)
		assert.Equal(t, time.Duration(0), b(0))
		assert.Equal(t, time.Second, b(7))
	})
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("x"), false},
		{"bad request", &gateway.GatewayError{StatusCode: http.StatusBadRequest}, false},
		{"unauthorized", &gateway.GatewayError{StatusCode: http.StatusUnauthorized}, false},
		{"rate limited", &gateway.GatewayError{StatusCode: http.StatusTooManyRequests}, true},
		{"server error", &gateway.GatewayError{StatusCode: http.StatusBadGateway}, true},
		{"decode failure", &gateway.GatewayError{Err: errors.New("decode response")}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, gateway.IsRetryable(tt.err))
		})
	}
}

func TestRetry(t *testing.T) {
	t.Parallel()
	fast := gateway.Constant(time.Millisecond)

	t.Run("retries retryable errors until success", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := gateway.Retry(context.Background(), fast, 5, func(context.Context) error {
			calls++
			if calls < 3 {
				return &gateway.GatewayError{StatusCode: http.StatusServiceUnavailable}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on terminal error", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := gateway.Retry(context.Background(), fast, 5, func(context.Context) error {
			calls++
			return &gateway.GatewayError{StatusCode: http.StatusBadRequest}
		})
		require.Error(t, err)
		assert.Equal(t, "API Error: 400", err.Error())
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after attempts", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := gateway.Retry(context.Background(), fast, 3, func(context.Context) error {
			calls++
			return &gateway.GatewayError{StatusCode: http.StatusInternalServerError}
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("honours context while waiting", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := gateway.Retry(ctx, gateway.Constant(time.Hour), 3, func(context.Context) error {
			return &gateway.GatewayError{StatusCode: http.StatusInternalServerError}
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
