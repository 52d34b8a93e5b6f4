package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthconnect/feed-engine/internal/cache"
	"github.com/healthconnect/feed-engine/internal/domain"
	apperrors "github.com/healthconnect/feed-engine/pkg/errors"
)

func TestSnapshotRoundTrip(t *testing.T) {
	posts := []domain.Post{
		{
			ID:        "p1",
			AuthorID:  "alice",
			Caption:   "morning walk",
			CreatedAt: time.Unix(1700000000, 0).UTC(),
			LikeCount: 2,
			LikedBy:   []string{"bob", "carol"},
		},
	}
	stamp := time.Unix(1700000100, 0).UTC()

	raw, err := cache.EncodeSnapshot(posts, stamp)
	require.NoError(t, err)

	snap, err := cache.DecodeSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, posts, snap.Posts)
	assert.True(t, snap.CachedAt.Equal(stamp))
}

func TestDecodeSnapshotRejectsGarbage(t *testing.T) {
	_, err := cache.DecodeSnapshot([]byte("not json"))
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
}

func TestDecodeSnapshotRejectsMissingStamp(t *testing.T) {
	_, err := cache.DecodeSnapshot([]byte(`{"posts":[]}`))
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
}

func TestSnapshotKey(t *testing.T) {
	assert.Equal(t, "feed:snapshot:viewer-1", cache.SnapshotKey("viewer-1"))
}
