package repository

import (
	"context"
	"time"

	"social-pipeline/internal/domain/model"
)

type PostRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Post) error
	SaveAll(ctx context.Context, posts []*model.Post) error
	ListByRow(ctx context.Context, tx Tx, row int, platform model.Platform) ([]*model.Post, error)
	// FetchDueAndMark claims up to limit pending posts scheduled at or
	// before now and marks them publishing.
	FetchDueAndMark(ctx context.Context, now time.Time, limit int) ([]*model.Post, error)
}
