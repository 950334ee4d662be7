package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/platefull/jobqueue/internal/archive"
)

// DecodeEventCursor parses an opaque pagination cursor. An empty string
// means first page.
func DecodeEventCursor(cursorStr string) (*archive.EventCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &createdAt); err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &archive.EventCursor{
		CreatedAt: time.Unix(0, createdAt),
		EventID:   parts[1],
	}, nil
}

// EncodeEventCursor renders a cursor as an opaque base64 token.
func EncodeEventCursor(cursor *archive.EventCursor) string {
	raw := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.EventID)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}
