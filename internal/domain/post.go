package domain

import (
	"slices"
	"time"
)

// Post is a single feed entry as observed by the viewer. IDs are opaque,
// author-assigned and never reused.
type Post struct {
	ID                string    `json:"id"`
	AuthorID          string    `json:"author_id"`
	AuthorDisplayName string    `json:"author_display_name"`
	Caption           string    `json:"caption"`
	MediaURLs         []string  `json:"media_urls,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	LikeCount         int       `json:"like_count"`
	CommentCount      int       `json:"comment_count"`
	LikedBy           []string  `json:"liked_by,omitempty"`
}

// IsLikedBy reports whether viewerID is in the post's like set.
func (p *Post) IsLikedBy(viewerID string) bool {
	return slices.Contains(p.LikedBy, viewerID)
}

// Clone returns a copy whose slices do not alias the original.
func (p Post) Clone() Post {
	p.MediaURLs = slices.Clone(p.MediaURLs)
	p.LikedBy = slices.Clone(p.LikedBy)
	return p
}

// FeedPage is one cursor-bounded window produced by the remote source.
type FeedPage struct {
	Items      []Post
	NextCursor string
	IsLastPage bool
}

// CachedSnapshot is the serialized form of the most recent first page plus
// its write time. Written only after a successful refresh, read only at cold
// start or when offline.
type CachedSnapshot struct {
	Posts    []Post    `json:"posts"`
	CachedAt time.Time `json:"cached_at"`
}

// FeedState is the reconciled, viewer-facing result: ordered by
// (CreatedAt desc, ID desc), no two entries share an ID.
type FeedState struct {
	Posts   []Post
	Cursor  string
	HasMore bool
	Offline bool
}

// SortPosts orders posts by CreatedAt descending, ties broken by ID
// descending so the order is deterministic rather than time-of-arrival.
func SortPosts(posts []Post) {
	slices.SortFunc(posts, func(a, b Post) int {
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		if b.CreatedAt.After(a.CreatedAt) {
			return 1
		}
		if a.ID > b.ID {
			return -1
		}
		if b.ID > a.ID {
			return 1
		}
		return 0
	})
}
