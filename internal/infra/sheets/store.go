// Package sheets implements the row store on top of a spreadsheet whose
// first row is the header.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"social-pipeline/internal/domain"
	"social-pipeline/internal/domain/model"
	"social-pipeline/internal/domain/ports/repository"
)

var _ repository.RowStore = (*Store)(nil)

// CellRange is one A1-notation range and the values written to it.
type CellRange struct {
	Range  string
	Values [][]string
}

// ValuesAPI is the slice of the spreadsheet values API the store needs.
type ValuesAPI interface {
	Get(ctx context.Context, rng string) ([][]string, error)
	BatchUpdate(ctx context.Context, data []CellRange) error
}

// Store maps header names to columns and WorkItems to rows.
type Store struct {
	api        ValuesAPI
	sheet      string
	autoAppend bool
	now        func() time.Time
	log        *zerolog.Logger

	mu     sync.Mutex
	header []string
	index  map[string]int
	warned map[string]bool
}

func NewStore(api ValuesAPI, worksheet string, autoAppend bool, logger *zerolog.Logger) *Store {
	l := logger.With().Str("component", "SheetStore").Str("worksheet", worksheet).Logger()
	return &Store{
		api:        api,
		sheet:      worksheet,
		autoAppend: autoAppend,
		now:        time.Now,
		log:        &l,
		warned:     make(map[string]bool),
	}
}

// Pending reads the whole sheet and returns eligible rows in sheet order.
// Rows with an unknown status are logged and skipped.
func (s *Store) Pending(ctx context.Context, limit int) ([]*model.WorkItem, error) {
	grid, err := s.api.Get(ctx, quoteSheet(s.sheet))
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	if len(grid) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	s.setHeader(grid[0])
	header := append([]string(nil), s.header...)
	s.mu.Unlock()

	var out []*model.WorkItem
	for i, raw := range grid[1:] {
		row := i + 2
		cells := make(map[string]string, len(header))
		for c, name := range header {
			if name == "" {
				continue
			}
			if c < len(raw) {
				cells[name] = raw[c]
			} else {
				cells[name] = ""
			}
		}
		item, err := model.NewWorkItem(row, cells)
		if err != nil {
			s.log.Warn().Err(err).Int("row", row).Msg("skipping row")
			continue
		}
		if !item.Eligible() {
			continue
		}
		out = append(out, item)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Update writes the cells of u into row and always stamps last_update_ts.
func (s *Store) Update(ctx context.Context, row int, u model.RowUpdate) error {
	if row < 2 {
		return fmt.Errorf("%w: row %d", domain.ErrInvalidArgument, row)
	}
	cells := make(model.RowUpdate, len(u)+1)
	for k, v := range u {
		cells[k] = v
	}
	if _, ok := cells[model.ColLastUpdateTS]; !ok {
		cells[model.ColLastUpdateTS] = model.FormatTimestamp(s.now())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.header == nil {
		grid, err := s.api.Get(ctx, quoteSheet(s.sheet))
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		if len(grid) == 0 {
			return errors.New("sheet has no header row")
		}
		s.setHeader(grid[0])
	}

	names := make([]string, 0, len(cells))
	for k := range cells {
		names = append(names, k)
	}
	sort.Strings(names)

	var (
		data  []CellRange
		added []string // header cells written with this update
	)
	for _, name := range names {
		col, ok := s.index[name]
		if !ok {
			if !s.autoAppend {
				if !s.warned[name] {
					s.log.Warn().Str("column", name).Msg("column missing from header; skipping")
					s.warned[name] = true
				}
				continue
			}
			col = len(s.header) + len(added)
			added = append(added, name)
			data = append(data, s.cell(col, 1, name))
		}
		data = append(data, s.cell(col, row, cells[name]))
	}
	if len(data) == 0 {
		return nil
	}
	if err := s.api.BatchUpdate(ctx, data); err != nil {
		return fmt.Errorf("update row %d: %w", row, err)
	}
	// the cached header only learns columns the sheet accepted
	for _, name := range added {
		s.index[name] = len(s.header)
		s.header = append(s.header, name)
		s.log.Info().Str("column", name).Msg("appended column to header")
	}
	return nil
}

func (s *Store) setHeader(h []string) {
	s.header = make([]string, len(h))
	s.index = make(map[string]int, len(h))
	for i, name := range h {
		name = strings.TrimSpace(name)
		s.header[i] = name
		if name == "" {
			continue
		}
		if _, dup := s.index[name]; !dup {
			s.index[name] = i
		}
	}
}

func (s *Store) cell(col, row int, v string) CellRange {
	return CellRange{
		Range:  fmt.Sprintf("%s!%s%d", quoteSheet(s.sheet), ColumnLetter(col), row),
		Values: [][]string{{v}},
	}
}

// ColumnLetter converts a 0-based column index to A1 letters.
func ColumnLetter(idx int) string {
	var b []byte
	for n := idx + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
