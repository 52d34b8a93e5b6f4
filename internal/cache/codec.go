package cache

import (
	"encoding/json"
	"time"

	"github.com/healthconnect/feed-engine/internal/domain"
	apperrors "github.com/healthconnect/feed-engine/pkg/errors"
)

// EncodeSnapshot serializes posts with the current time as the freshness
// stamp.
func EncodeSnapshot(posts []domain.Post, now time.Time) ([]byte, error) {
	snap := domain.CachedSnapshot{Posts: posts, CachedAt: now}
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, apperrors.Fatal(err, "snapshot encode failed")
	}
	return raw, nil
}

// DecodeSnapshot parses a stored snapshot. A snapshot without a freshness
// stamp is malformed.
func DecodeSnapshot(raw []byte) (domain.CachedSnapshot, error) {
	var snap domain.CachedSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.CachedSnapshot{}, apperrors.Fatal(err, "snapshot decode failed")
	}
	if snap.CachedAt.IsZero() {
		return domain.CachedSnapshot{}, apperrors.Fatal(nil, "snapshot missing freshness stamp")
	}
	return snap, nil
}
