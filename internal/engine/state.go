package engine

import (
	"slices"

	"github.com/healthconnect/feed-engine/internal/domain"
)

// pendingEntry wraps a queued mutation with its confirmation status. A
// confirmed entry stays in the queue until every earlier entry has resolved,
// so commits reach the base strictly in local issue order no matter what
// order confirmations arrive in.
type pendingEntry struct {
	m         domain.PendingMutation
	done      bool
	confirmed *domain.Post
}

// deriveLocked produces the viewer-facing state: authoritative base with the
// pending queue applied in issue order, then the global ordering rule. The
// derivation is pure, so repeating it over the same inputs is idempotent.
func (e *Engine) deriveLocked() domain.FeedState {
	posts := e.deriveMapLocked()

	list := make([]domain.Post, 0, len(posts))
	for _, p := range posts {
		list = append(list, p)
	}
	domain.SortPosts(list)

	return domain.FeedState{
		Posts:   list,
		Cursor:  e.cursor,
		HasMore: e.hasMore,
		Offline: e.offline,
	}
}

func (e *Engine) deriveMapLocked() map[string]domain.Post {
	posts := make(map[string]domain.Post, len(e.base)+len(e.pending))
	for id, p := range e.base {
		posts[id] = p.Clone()
	}
	for _, entry := range e.pending {
		applyMutation(posts, entry.m)
	}
	return posts
}

// visiblePostLocked returns the post as the viewer currently sees it, with
// pending mutations applied, or nil when absent.
func (e *Engine) visiblePostLocked(postID string) *domain.Post {
	posts := e.deriveMapLocked()
	if p, ok := posts[postID]; ok {
		return &p
	}
	return nil
}

func applyMutation(posts map[string]domain.Post, m domain.PendingMutation) {
	switch m.Kind {
	case domain.MutationLike:
		p, ok := posts[m.PostID]
		if !ok || p.IsLikedBy(m.ViewerID) {
			return
		}
		p.LikedBy = append(p.LikedBy, m.ViewerID)
		p.LikeCount++
		posts[m.PostID] = p
	case domain.MutationUnlike:
		p, ok := posts[m.PostID]
		if !ok || !p.IsLikedBy(m.ViewerID) {
			return
		}
		p.LikedBy = slices.DeleteFunc(p.LikedBy, func(id string) bool { return id == m.ViewerID })
		if p.LikeCount > 0 {
			p.LikeCount--
		}
		posts[m.PostID] = p
	case domain.MutationCommentDelta:
		p, ok := posts[m.PostID]
		if !ok {
			return
		}
		p.CommentCount = max(0, p.CommentCount+m.CommentDelta)
		posts[m.PostID] = p
	case domain.MutationNewPost:
		if m.Post == nil {
			return
		}
		posts[m.Post.ID] = m.Post.Clone()
	case domain.MutationDelete:
		delete(posts, m.PostID)
	}
}

// commitLocked folds a confirmed mutation into the authoritative base.
func (e *Engine) commitLocked(m domain.PendingMutation, confirmed *domain.Post) {
	switch m.Kind {
	case domain.MutationLike, domain.MutationUnlike, domain.MutationCommentDelta:
		p, ok := e.base[m.PostID]
		if !ok {
			return
		}
		single := map[string]domain.Post{m.PostID: p.Clone()}
		applyMutation(single, m)
		e.base[m.PostID] = single[m.PostID]
	case domain.MutationNewPost:
		if confirmed != nil {
			e.base[confirmed.ID] = *confirmed
		}
	case domain.MutationDelete:
		delete(e.base, m.PostID)
	}
}

// drainLocked pops confirmed entries off the head of the queue and commits
// them. An entry behind an unresolved one waits, which is what keeps base
// commits in issue order.
func (e *Engine) drainLocked() {
	for len(e.pending) > 0 && e.pending[0].done {
		entry := e.pending[0]
		e.pending = e.pending[1:]
		e.commitLocked(entry.m, entry.confirmed)
	}
}

// indexOfPendingLocked finds the queue position for seq, or -1 when the
// entry was invalidated (for example by a later DELETE).
func (e *Engine) indexOfPendingLocked(seq uint64) int {
	for i, entry := range e.pending {
		if entry.m.Seq == seq {
			return i
		}
	}
	return -1
}

// dropPendingForLocked invalidates every queued mutation targeting postID.
func (e *Engine) dropPendingForLocked(postID string) {
	e.pending = slices.DeleteFunc(e.pending, func(entry *pendingEntry) bool {
		if entry.m.PostID == postID {
			return true
		}
		return entry.m.Post != nil && entry.m.Post.ID == postID
	})
}
