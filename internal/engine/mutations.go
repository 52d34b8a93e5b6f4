package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/healthconnect/feed-engine/internal/domain"
	apperrors "github.com/healthconnect/feed-engine/pkg/errors"
	"github.com/healthconnect/feed-engine/pkg/retry"
)

const confirmTimeout = 30 * time.Second

// ApplyLike toggles the viewer's like on immediately and confirms it against
// the remote store in the background. A second ApplyLike without an
// intervening ApplyUnlike is a no-op.
func (e *Engine) ApplyLike(postID, viewerID string) error {
	return e.applyLikeMutation(postID, viewerID, true)
}

// ApplyUnlike is the inverse of ApplyLike, with the same discipline.
func (e *Engine) ApplyUnlike(postID, viewerID string) error {
	return e.applyLikeMutation(postID, viewerID, false)
}

func (e *Engine) applyLikeMutation(postID, viewerID string, like bool) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	visible := e.visiblePostLocked(postID)
	if visible == nil {
		e.mu.Unlock()
		return apperrors.NotFound(nil, "post not in feed")
	}
	if visible.IsLikedBy(viewerID) == like {
		e.mu.Unlock()
		return nil
	}
	if !e.limiter.Allow(viewerID) {
		e.mu.Unlock()
		return apperrors.Transient(nil, "mutation rate exceeded")
	}

	kind := domain.MutationLike
	if !like {
		kind = domain.MutationUnlike
	}
	m := e.enqueueLocked(domain.PendingMutation{
		Kind:     kind,
		PostID:   postID,
		ViewerID: viewerID,
	})
	e.mu.Unlock()

	go e.confirm(m, func(ctx context.Context) (*domain.Post, error) {
		return nil, e.source.MutatePostLike(ctx, postID, viewerID, like)
	})
	return nil
}

// ApplyNewPost inserts the post at the head immediately under a provisional
// ID. Remote confirmation replaces it in place with the server-assigned ID
// and timestamp; failure removes it.
func (e *Engine) ApplyNewPost(post domain.Post) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	if e.viewerID == "" {
		e.mu.Unlock()
		return ErrNotInitialized
	}
	if !e.limiter.Allow(post.AuthorID) {
		e.mu.Unlock()
		return apperrors.Transient(nil, "mutation rate exceeded")
	}

	if post.ID == "" {
		post.ID = "local-" + uuid.NewString()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	draft := post
	m := e.enqueueLocked(domain.PendingMutation{
		Kind:     domain.MutationNewPost,
		PostID:   draft.ID,
		ViewerID: draft.AuthorID,
		Post:     &draft,
	})
	e.mu.Unlock()

	go e.confirm(m, func(ctx context.Context) (*domain.Post, error) {
		created, err := e.source.CreatePost(ctx, draft)
		if err != nil {
			return nil, err
		}
		return &created, nil
	})
	return nil
}

// ApplyCommentDelta shifts a post's comment count when a comment is added or
// removed elsewhere. The count never goes below zero, even under concurrent
// deltas.
func (e *Engine) ApplyCommentDelta(postID string, delta int) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	if e.visiblePostLocked(postID) == nil {
		e.mu.Unlock()
		return apperrors.NotFound(nil, "post not in feed")
	}

	m := e.enqueueLocked(domain.PendingMutation{
		Kind:         domain.MutationCommentDelta,
		PostID:       postID,
		CommentDelta: delta,
	})
	e.mu.Unlock()

	go e.confirm(m, func(ctx context.Context) (*domain.Post, error) {
		return nil, e.source.AdjustCommentCount(ctx, postID, delta)
	})
	return nil
}

// ApplyDelete removes the post immediately and invalidates every earlier
// pending mutation targeting it.
func (e *Engine) ApplyDelete(postID, viewerID string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	if e.visiblePostLocked(postID) == nil {
		e.mu.Unlock()
		return apperrors.NotFound(nil, "post not in feed")
	}

	e.dropPendingForLocked(postID)
	m := e.enqueueLocked(domain.PendingMutation{
		Kind:     domain.MutationDelete,
		PostID:   postID,
		ViewerID: viewerID,
	})
	e.mu.Unlock()

	go e.confirm(m, func(ctx context.Context) (*domain.Post, error) {
		return nil, e.source.DeletePost(ctx, postID, viewerID)
	})
	return nil
}

func (e *Engine) enqueueLocked(m domain.PendingMutation) domain.PendingMutation {
	e.seq++
	m.Seq = e.seq
	e.pending = append(e.pending, &pendingEntry{m: m})
	return m
}

// confirm runs the remote side of a mutation with bounded retries and then
// reconciles the outcome. Only transient failures are retried.
func (e *Engine) confirm(m domain.PendingMutation, op func(ctx context.Context) (*domain.Post, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), confirmTimeout)
	defer cancel()

	var confirmed *domain.Post
	err := retry.Do(ctx, e.logger, string(m.Kind), func() error {
		p, opErr := op(ctx)
		if opErr == nil {
			confirmed = p
			return nil
		}
		if apperrors.Retryable(opErr) {
			return opErr
		}
		return retry.Permanent(opErr)
	}, retry.DefaultConfig())

	e.finishMutation(m, confirmed, err)
}

// finishMutation reconciles a confirmation or failure with current state.
// Successes mark the queue entry confirmed; the drain then commits entries
// to the base strictly in issue order, so a late confirmation of an older
// mutation can never clobber a newer one. Rollback of a failure is removal
// from the queue: the visible state is re-derived from base plus what
// remains.
func (e *Engine) finishMutation(m domain.PendingMutation, confirmed *domain.Post, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	idx := e.indexOfPendingLocked(m.Seq)
	if idx < 0 {
		// Invalidated by a later DELETE while in flight; nothing to
		// reconcile, but the caller still learns the outcome.
		e.emitLocked(domain.MutationResult{Seq: m.Seq, Kind: m.Kind, PostID: m.PostID, Err: err})
		return
	}
	entry := e.pending[idx]

	switch {
	case err == nil:
		entry.done = true
		entry.confirmed = confirmed
	case apperrors.IsNotFound(err):
		if m.Kind == domain.MutationDelete {
			// Deleting something already gone is success enough.
			entry.done = true
			err = nil
			break
		}
		// The post vanished remotely: drop it and everything queued on it.
		e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
		delete(e.base, m.PostID)
		e.dropPendingForLocked(m.PostID)
	default:
		// Transient or fatal: queue removal rolls the change back.
		e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	}

	e.drainLocked()

	res := domain.MutationResult{
		Seq:    m.Seq,
		Kind:   m.Kind,
		PostID: m.PostID,
		Err:    err,
	}
	if err == nil && m.Kind == domain.MutationNewPost && confirmed != nil {
		res.NewPostID = confirmed.ID
	}
	e.emitLocked(res)
}

func (e *Engine) emitLocked(res domain.MutationResult) {
	select {
	case e.results <- res:
	default:
		e.logger.Warn("Mutation result dropped, channel full",
			"kind", res.Kind, "post", res.PostID)
	}
}
