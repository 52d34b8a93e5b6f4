package source

import (
	"encoding/base64"
	"encoding/json"
	"time"

	apperrors "github.com/healthconnect/feed-engine/pkg/errors"
)

// cursor marks the position after the last item of a page: the keyset
// (created_at, id) of that item. Opaque to callers.
type cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        string    `json:"id"`
}

func encodeCursor(c cursor) string {
	raw, _ := json.Marshal(c)
	return base64.StdEncoding.EncodeToString(raw)
}

func decodeCursor(token string) (cursor, error) {
	var c cursor
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return c, apperrors.Fatal(err, "malformed cursor token")
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, apperrors.Fatal(err, "malformed cursor token")
	}
	return c, nil
}
