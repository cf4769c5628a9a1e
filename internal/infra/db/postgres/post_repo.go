package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"social-pipeline/internal/domain"
	"social-pipeline/internal/domain/model"
	"social-pipeline/internal/domain/ports/repository"
)

var _ repository.PostRepository = (*postRepo)(nil)

type postRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewPostRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *postRepo {
	return &postRepo{pool: pool, tm: tm}
}

const postColumns = `id, row_number, url, tweet_index, platform, kind, text, state,
  scheduled_at, published_at, remote_id, remote_cid, attempts, last_error, created_at, updated_at`

func (r *postRepo) Save(ctx context.Context, tx repository.Tx, p *model.Post) error {
	if p == nil || p.ID == "" {
		return domain.ErrInvalidArgument
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	const q = `
INSERT INTO posts (` + postColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (id) DO UPDATE SET
  text = EXCLUDED.text,
  state = EXCLUDED.state,
  scheduled_at = EXCLUDED.scheduled_at,
  published_at = EXCLUDED.published_at,
  remote_id = EXCLUDED.remote_id,
  remote_cid = EXCLUDED.remote_cid,
  attempts = EXCLUDED.attempts,
  last_error = EXCLUDED.last_error,
  updated_at = EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.Row, p.URL, p.TweetIndex, string(p.Platform), string(p.Kind), p.Text, string(p.State),
		p.ScheduledAt, p.PublishedAt, p.RemoteID, p.RemoteCID, p.Attempts, p.LastError, p.CreatedAt, p.UpdatedAt)
	return err
}

// SaveAll stores posts in one transaction.
func (r *postRepo) SaveAll(ctx context.Context, posts []*model.Post) error {
	return r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for _, p := range posts {
			if err := r.Save(ctx, tx, p); err != nil {
				return fmt.Errorf("save post %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

func (r *postRepo) ListByRow(ctx context.Context, tx repository.Tx, row int, platform model.Platform) ([]*model.Post, error) {
	q := `SELECT ` + postColumns + ` FROM posts WHERE row_number = $1`
	args := []interface{}{row}
	if platform != "" {
		q += ` AND platform = $2`
		args = append(args, string(platform))
	}
	q += ` ORDER BY platform, kind, tweet_index, created_at`

	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// FetchDueAndMark claims due pending posts with FOR UPDATE SKIP LOCKED so
// concurrent dispatchers never publish the same post twice.
func (r *postRepo) FetchDueAndMark(ctx context.Context, now time.Time, limit int) ([]*model.Post, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []*model.Post
	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const fetchQuery = `
SELECT ` + postColumns + `
FROM posts
WHERE state = 'pending' AND scheduled_at IS NOT NULL AND scheduled_at <= $1
ORDER BY scheduled_at
LIMIT $2
FOR UPDATE SKIP LOCKED;`

		rows, err := queryRows(ctx, r.pool, tx, fetchQuery, now, limit)
		if err != nil {
			return err
		}
		due, err := scanPosts(rows)
		rows.Close()
		if err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}

		ids := make([]string, len(due))
		for i, p := range due {
			ids[i] = p.ID
			p.State = model.PostStatePublishing
			p.UpdatedAt = now
		}
		if _, err := execSQL(ctx, r.pool, tx,
			`UPDATE posts SET state = 'publishing', updated_at = $1 WHERE id = ANY($2)`, now, ids); err != nil {
			return err
		}
		out = due
		return nil
	})
	return out, err
}

func scanPosts(rows pgx.Rows) ([]*model.Post, error) {
	var out []*model.Post
	for rows.Next() {
		var (
			p                         model.Post
			platform, kind, state     string
			remoteID, remoteCID, last *string
		)
		if err := rows.Scan(
			&p.ID, &p.Row, &p.URL, &p.TweetIndex, &platform, &kind, &p.Text, &state,
			&p.ScheduledAt, &p.PublishedAt, &remoteID, &remoteCID, &p.Attempts, &last, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, scanErr(err)
		}
		p.Platform = model.Platform(platform)
		p.Kind = model.PostKind(kind)
		p.State = model.PostState(state)
		p.RemoteID = deref(remoteID)
		p.RemoteCID = deref(remoteCID)
		p.LastError = deref(last)
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
