package common

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
)

func TestSafeCall(t *testing.T) {
	logger := arbor.NewNoOpLogger()
	sentinel := errors.New("boom")

	tests := []struct {
		name    string
		fn      func(ctx context.Context) error
		wantErr error
	}{
		{"success", func(ctx context.Context) error { return nil }, nil},
		{"error passthrough", func(ctx context.Context) error { return sentinel }, sentinel},
		{"panic becomes error", func(ctx context.Context) error { panic("kaboom") }, ErrPanicked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SafeCall(context.Background(), logger, tt.name, tt.fn)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
