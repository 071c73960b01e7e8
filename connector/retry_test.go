package connector

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/syssam/dsr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"bad_conn", fmt.Errorf("dialect/sql: query: %w", driver.ErrBadConn), true},
		{"serialization", &pq.Error{Code: "40001"}, true},
		{"syntax", &pq.Error{Code: "42601"}, false},
		{"unavailable", dsr.NewClientError(http.StatusServiceUnavailable, "", nil), true},
		{"too_many_requests", dsr.NewClientError(http.StatusTooManyRequests, "", nil), true},
		{"not_found", dsr.NewClientError(http.StatusNotFound, "", nil), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestRetry(t *testing.T) {
	ctx := context.Background()
	transient := dsr.NewClientError(http.StatusBadGateway, "", nil)

	t.Run("succeeds_after_transient", func(t *testing.T) {
		calls := 0
		n, err := Retry(ctx, 3, time.Millisecond, func(context.Context) error {
			calls++
			if calls < 2 {
				return transient
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("exhausted", func(t *testing.T) {
		n, err := Retry(ctx, 3, 0, func(context.Context) error { return transient })
		assert.ErrorIs(t, err, dsr.ErrClient)
		assert.Equal(t, 3, n)
	})

	t.Run("permanent", func(t *testing.T) {
		n, err := Retry(ctx, 3, 0, func(context.Context) error { return errors.New("boom") })
		require.Error(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("at_least_once", func(t *testing.T) {
		n, err := Retry(ctx, 0, 0, func(context.Context) error { return nil })
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(ctx)
		n, err := Retry(ctx, 5, time.Hour, func(context.Context) error {
			cancel()
			return transient
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, err, dsr.ErrClient)
		assert.Equal(t, 1, n)
	})
}

func TestNewBackOff(t *testing.T) {
	b := newBackOff(10 * time.Millisecond)
	b.Reset()
	for _, want := range []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond} {
		assert.Equal(t, want, b.NextBackOff())
	}

	zero := newBackOff(0)
	assert.Zero(t, zero.NextBackOff())
}
