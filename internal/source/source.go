package source

import (
	"context"

	"github.com/healthconnect/feed-engine/internal/domain"
)

//go:generate go run go.uber.org/mock/mockgen -source=source.go -destination=mocks/mock.go

// Client is the remote paginated query source. The engine only ever talks to
// the document store through this interface.
type Client interface {
	// QueryFeedPage returns one page of posts ordered by
	// (created_at desc, id desc). An empty authorIDs slice means unfiltered.
	// cursor is the opaque token from a previous page, empty for the first.
	QueryFeedPage(ctx context.Context, authorIDs []string, cursor string, limit int) (domain.FeedPage, error)

	// MutatePostLike atomically updates the like set and the like counter
	// for postID on behalf of viewerID.
	MutatePostLike(ctx context.Context, postID, viewerID string, like bool) error

	// CreatePost persists a new post and returns it with the
	// server-assigned ID and timestamp.
	CreatePost(ctx context.Context, post domain.Post) (domain.Post, error)

	// DeletePost removes a post and its likes. Only the author may delete.
	DeletePost(ctx context.Context, postID, authorID string) error

	// AdjustCommentCount shifts the comment counter by delta, clamped at 0.
	AdjustCommentCount(ctx context.Context, postID string, delta int) error
}
