package handler

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanhnd/jobengine/internal/api/storage"
)

func TestLedgerCursor_RoundTrip(t *testing.T) {
	original := &storage.LedgerCursor{
		ClaimedAt: time.Date(2025, 6, 1, 12, 30, 45, 123456789, time.UTC),
		JobID:     "7b1e9c2a-5f3d-4e8b-9a6c-1d2e3f4a5b6c",
	}

	encoded := EncodeLedgerCursor(original)
	decoded, err := DecodeLedgerCursor(encoded)

	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.True(t, decoded.ClaimedAt.Equal(original.ClaimedAt))
	assert.Equal(t, original.JobID, decoded.JobID)
}

func TestDecodeLedgerCursor(t *testing.T) {
	tests := []struct {
		name    string
		cursor  string
		wantErr bool
		wantNil bool
	}{
		{
			name:    "empty cursor yields nil",
			cursor:  "",
			wantErr: false,
			wantNil: true,
		},
		{
			name:    "not base64",
			cursor:  "%%%not-base64%%%",
			wantErr: true,
		},
		{
			name:    "missing separator",
			cursor:  base64.StdEncoding.EncodeToString([]byte("1717243845123456789")),
			wantErr: true,
		},
		{
			name:    "non-numeric timestamp",
			cursor:  base64.StdEncoding.EncodeToString([]byte("abc|7b1e9c2a-5f3d-4e8b-9a6c-1d2e3f4a5b6c")),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := DecodeLedgerCursor(tt.cursor)

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, decoded)
			}
		})
	}
}
