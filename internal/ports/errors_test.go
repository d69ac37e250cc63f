package ports

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreError(t *testing.T) {
	tests := []struct {
		name     string
		err      *StoreError
		wantMsg  string
		wantBase error
	}{
		{
			name:     "single attempt",
			err:      NewStoreError("upsert", ErrStoreUnavailable),
			wantMsg:  "store error: operation=upsert, err=store unavailable",
			wantBase: ErrStoreUnavailable,
		},
		{
			name:     "exhausted retries",
			err:      &StoreError{Operation: "upsert", Attempts: 4, Err: ErrVersionConflict},
			wantMsg:  "store error: operation=upsert, err=version conflict, attempts=4",
			wantBase: ErrVersionConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
			assert.True(t, errors.Is(tt.err, tt.wantBase), "Should unwrap to underlying error")

			var storeErr *StoreError
			assert.True(t, errors.As(fmt.Errorf("wrapped: %w", tt.err), &storeErr))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "version conflict", err: ErrVersionConflict, want: true},
		{name: "unavailable wrapped", err: fmt.Errorf("write: %w", ErrStoreUnavailable), want: true},
		{name: "store error around conflict", err: NewStoreError("upsert", ErrVersionConflict), want: true},
		{name: "not found", err: ErrBlobNotFound, want: false},
		{name: "plain error", err: errors.New("disk on fire"), want: false},
		{
			name: "cancelled even when unavailable",
			err:  fmt.Errorf("%w: %w", ErrStoreUnavailable, context.Canceled),
			want: false,
		},
		{name: "deadline", err: context.DeadlineExceeded, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
