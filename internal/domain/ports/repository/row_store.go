package repository

import (
	"context"

	"social-pipeline/internal/domain/model"
)

// RowStore is the spreadsheet-backed queue of WorkItems.
type RowStore interface {
	// Pending returns up to limit rows eligible for claiming, in sheet order.
	// limit <= 0 returns all of them.
	Pending(ctx context.Context, limit int) ([]*model.WorkItem, error)

	// Update writes the given cells of row and always touches last_update_ts.
	Update(ctx context.Context, row int, u model.RowUpdate) error
}
