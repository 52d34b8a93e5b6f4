package domain

// MutationKind tags a queued optimistic change.
type MutationKind string

const (
	MutationLike         MutationKind = "LIKE"
	MutationUnlike       MutationKind = "UNLIKE"
	MutationCommentDelta MutationKind = "COMMENT_DELTA"
	MutationNewPost      MutationKind = "NEW_POST"
	MutationDelete       MutationKind = "DELETE"
)

// PendingMutation is a local-first change awaiting remote confirmation.
// Mutations for the same post apply in Seq order; a DELETE invalidates all
// earlier pending mutations for that post.
type PendingMutation struct {
	Seq          uint64
	Kind         MutationKind
	PostID       string
	ViewerID     string
	CommentDelta int
	Post         *Post // NEW_POST payload, carries the provisional ID
}

// MutationResult reports the asynchronous outcome of a pending mutation.
// Failures arrive here, never as a panic across the engine boundary.
type MutationResult struct {
	Seq       uint64
	Kind      MutationKind
	PostID    string
	// NewPostID is the server-assigned ID replacing a provisional one, set
	// only for confirmed NEW_POST mutations.
	NewPostID string
	Err       error
}
