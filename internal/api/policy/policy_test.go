package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticToken_Authorize(t *testing.T) {
	authorizer := NewStaticToken("secret-token")

	tests := []struct {
		name    string
		token   string
		action  string
		wantErr error
	}{
		{
			name:   "valid token authorizes requeue",
			token:  "secret-token",
			action: ActionRequeueJob,
		},
		{
			name:   "valid token authorizes outbox retry",
			token:  "secret-token",
			action: ActionRetryOutbox,
		},
		{
			name:   "valid token authorizes cache invalidation",
			token:  "secret-token",
			action: ActionInvalidateCache,
		},
		{
			name:    "empty token is unauthorized",
			token:   "",
			action:  ActionRequeueJob,
			wantErr: ErrUnauthorized,
		},
		{
			name:    "wrong token is forbidden",
			token:   "wrong-token",
			action:  ActionRequeueJob,
			wantErr: ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authorizer.Authorize(context.Background(), tt.token, tt.action)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
