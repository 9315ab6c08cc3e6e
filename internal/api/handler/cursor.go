package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/khanhnd/jobengine/internal/api/storage"
)

// DecodeLedgerCursor decodes an opaque keyset cursor from a query param
func DecodeLedgerCursor(cursorStr string) (*storage.LedgerCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	decodedParts := strings.Split(string(decoded), "|")
	if len(decodedParts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var claimedAt int64
	_, err = fmt.Sscanf(decodedParts[0], "%d", &claimedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid claimedAt in cursor: %w", err)
	}

	return &storage.LedgerCursor{
		ClaimedAt: time.Unix(0, claimedAt),
		JobID:     decodedParts[1],
	}, nil
}

// EncodeLedgerCursor encodes the keyset position of the last row of a page
func EncodeLedgerCursor(cursor *storage.LedgerCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.ClaimedAt.UnixNano(), cursor.JobID)
	return base64.StdEncoding.EncodeToString([]byte(cs))
}
