package source

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthconnect/feed-engine/internal/domain"
	apperrors "github.com/healthconnect/feed-engine/pkg/errors"
	"github.com/healthconnect/feed-engine/pkg/logger"
)

var sqBuilder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var ErrBadQuery = errors.New("bad query")

// Pgx implements Client over a Postgres document store. Pagination is
// keyset-based on (created_at, id) so pages stay stable under inserts.
type Pgx struct {
	pg     *pgxpool.Pool
	logger logger.Logger
}

func NewPgx(pg *pgxpool.Pool, logger logger.Logger) *Pgx {
	return &Pgx{
		pg:     pg,
		logger: logger.WithComponent("FeedSource"),
	}
}

var _ Client = (*Pgx)(nil)

func (p *Pgx) QueryFeedPage(ctx context.Context, authorIDs []string, cursorToken string, limit int) (domain.FeedPage, error) {
	builder := sqBuilder.
		Select(
			"p.id", "p.author_id", "p.author_name", "p.caption", "p.media_urls",
			"p.like_count", "p.comment_count", "p.created_at",
			"COALESCE(array_agg(l.user_id) FILTER (WHERE l.user_id IS NOT NULL), '{}')",
		).
		From("posts p").
		LeftJoin("post_likes l ON l.post_id = p.id").
		GroupBy("p.id").
		OrderBy("p.created_at DESC", "p.id DESC").
		Limit(uint64(limit))

	if len(authorIDs) > 0 {
		builder = builder.Where(sq.Eq{"p.author_id": authorIDs})
	}

	if cursorToken != "" {
		c, err := decodeCursor(cursorToken)
		if err != nil {
			return domain.FeedPage{}, err
		}
		builder = builder.Where(sq.Expr("(p.created_at, p.id) < (?, ?)", c.CreatedAt, c.ID))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return domain.FeedPage{}, ErrBadQuery
	}

	rows, err := p.pg.Query(ctx, query, args...)
	if err != nil {
		return domain.FeedPage{}, classify(err, "feed page query failed")
	}
	defer rows.Close()

	var items []domain.Post
	for rows.Next() {
		var post domain.Post
		if err := rows.Scan(
			&post.ID, &post.AuthorID, &post.AuthorDisplayName, &post.Caption, &post.MediaURLs,
			&post.LikeCount, &post.CommentCount, &post.CreatedAt, &post.LikedBy,
		); err != nil {
			return domain.FeedPage{}, apperrors.Fatal(err, "malformed feed page row")
		}
		items = append(items, post)
	}
	if err := rows.Err(); err != nil {
		return domain.FeedPage{}, classify(err, "feed page iteration failed")
	}

	page := domain.FeedPage{
		Items:      items,
		IsLastPage: len(items) < limit,
	}
	if len(items) > 0 {
		last := items[len(items)-1]
		page.NextCursor = encodeCursor(cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

// MutatePostLike updates the like row and the denormalized counter in one
// transaction, so like_count never drifts from the like set.
func (p *Pgx) MutatePostLike(ctx context.Context, postID, viewerID string, like bool) error {
	tx, err := p.pg.Begin(ctx)
	if err != nil {
		return classify(err, "begin like mutation")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if like {
		tag, err := tx.Exec(ctx,
			`INSERT INTO post_likes (post_id, user_id, created_at) VALUES ($1, $2, NOW())
			 ON CONFLICT DO NOTHING`, postID, viewerID)
		if err != nil {
			return classify(err, "insert like")
		}
		if tag.RowsAffected() == 1 {
			res, err := tx.Exec(ctx,
				`UPDATE posts SET like_count = like_count + 1 WHERE id = $1`, postID)
			if err != nil {
				return classify(err, "increment like count")
			}
			if res.RowsAffected() == 0 {
				return apperrors.NotFound(nil, "post vanished during like")
			}
		} else if exists, err := p.postExists(ctx, tx, postID); err != nil {
			return err
		} else if !exists {
			return apperrors.NotFound(nil, "post not found")
		}
	} else {
		tag, err := tx.Exec(ctx,
			`DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2`, postID, viewerID)
		if err != nil {
			return classify(err, "delete like")
		}
		if tag.RowsAffected() == 1 {
			if _, err := tx.Exec(ctx,
				`UPDATE posts SET like_count = GREATEST(0, like_count - 1) WHERE id = $1`, postID); err != nil {
				return classify(err, "decrement like count")
			}
		} else if exists, err := p.postExists(ctx, tx, postID); err != nil {
			return err
		} else if !exists {
			return apperrors.NotFound(nil, "post not found")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(err, "commit like mutation")
	}
	return nil
}

func (p *Pgx) CreatePost(ctx context.Context, post domain.Post) (domain.Post, error) {
	post.ID = uuid.NewString()

	query, args, err := sqBuilder.
		Insert("posts").
		Columns("id", "author_id", "author_name", "caption", "media_urls", "like_count", "comment_count", "created_at").
		Values(post.ID, post.AuthorID, post.AuthorDisplayName, post.Caption, post.MediaURLs, 0, 0, sq.Expr("NOW()")).
		Suffix("RETURNING created_at").
		ToSql()
	if err != nil {
		return domain.Post{}, ErrBadQuery
	}

	var createdAt time.Time
	if err := p.pg.QueryRow(ctx, query, args...).Scan(&createdAt); err != nil {
		return domain.Post{}, classify(err, "create post")
	}

	post.CreatedAt = createdAt
	post.LikeCount = 0
	post.CommentCount = 0
	post.LikedBy = nil
	return post, nil
}

func (p *Pgx) DeletePost(ctx context.Context, postID, authorID string) error {
	tag, err := p.pg.Exec(ctx,
		`DELETE FROM posts WHERE id = $1 AND author_id = $2`, postID, authorID)
	if err != nil {
		return classify(err, "delete post")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound(nil, "post not found or not owned by author")
	}
	return nil
}

func (p *Pgx) AdjustCommentCount(ctx context.Context, postID string, delta int) error {
	tag, err := p.pg.Exec(ctx,
		`UPDATE posts SET comment_count = GREATEST(0, comment_count + $2) WHERE id = $1`, postID, delta)
	if err != nil {
		return classify(err, "adjust comment count")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound(nil, "post not found")
	}
	return nil
}

func (p *Pgx) postExists(ctx context.Context, tx pgx.Tx, postID string) (bool, error) {
	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1)`, postID).Scan(&exists); err != nil {
		return false, classify(err, "post existence check")
	}
	return exists, nil
}

// classify maps driver errors onto the engine's taxonomy. Foreign-key
// violations mean the target row raced a delete; everything else from the
// wire is treated as transient.
func classify(err error, message string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return apperrors.Conflict(err, message)
	}
	return apperrors.Transient(err, message)
}
