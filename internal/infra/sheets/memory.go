package sheets

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/rs/zerolog"
)

// MemorySheet is an in-process grid behind the ValuesAPI. Get ignores the
// range and returns the whole grid.
type MemorySheet struct {
	mu     sync.Mutex
	grid   [][]string
	writes int
	GetErr error
	PutErr error
}

func NewMemorySheet(grid [][]string) *MemorySheet {
	cp := make([][]string, len(grid))
	for i, r := range grid {
		cp[i] = append([]string(nil), r...)
	}
	return &MemorySheet{grid: cp}
}

// NewMemoryStore returns a Store over a MemorySheet seeded with grid.
func NewMemoryStore(grid [][]string, autoAppend bool, logger *zerolog.Logger) (*Store, *MemorySheet) {
	ms := NewMemorySheet(grid)
	return NewStore(ms, "Sheet1", autoAppend, logger), ms
}

func (m *MemorySheet) Get(_ context.Context, _ string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	out := make([][]string, len(m.grid))
	for i, r := range m.grid {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

func (m *MemorySheet) BatchUpdate(_ context.Context, data []CellRange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return m.PutErr
	}
	for _, d := range data {
		col, row, err := parseCell(d.Range)
		if err != nil {
			return err
		}
		for r, vals := range d.Values {
			for c, v := range vals {
				m.set(row+r, col+c, v)
			}
		}
	}
	m.writes++
	return nil
}

// Cell returns the value at the 1-based row under the named header.
func (m *MemorySheet) Cell(row int, column string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.grid) == 0 || row < 1 || row > len(m.grid) {
		return ""
	}
	for i, h := range m.grid[0] {
		if h == column {
			if i < len(m.grid[row-1]) {
				return m.grid[row-1][i]
			}
			return ""
		}
	}
	return ""
}

// Header returns a copy of the first row.
func (m *MemorySheet) Header() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.grid) == 0 {
		return nil
	}
	return append([]string(nil), m.grid[0]...)
}

// Writes counts successful BatchUpdate calls.
func (m *MemorySheet) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *MemorySheet) set(row, col int, v string) {
	for len(m.grid) < row {
		m.grid = append(m.grid, nil)
	}
	r := m.grid[row-1]
	for len(r) <= col {
		r = append(r, "")
	}
	r[col] = v
	m.grid[row-1] = r
}

// parseCell reads "'Sheet'!C5" into a 0-based column and 1-based row.
func parseCell(rng string) (int, int, error) {
	if i := strings.LastIndexByte(rng, '!'); i >= 0 {
		rng = rng[i+1:]
	}
	split := strings.IndexFunc(rng, unicode.IsDigit)
	if split <= 0 {
		return 0, 0, fmt.Errorf("bad cell %q", rng)
	}
	col := 0
	for _, ch := range strings.ToUpper(rng[:split]) {
		if ch < 'A' || ch > 'Z' {
			return 0, 0, fmt.Errorf("bad cell %q", rng)
		}
		col = col*26 + int(ch-'A'+1)
	}
	row, err := strconv.Atoi(rng[split:])
	if err != nil {
		return 0, 0, fmt.Errorf("bad cell %q: %w", rng, err)
	}
	return col - 1, row, nil
}
