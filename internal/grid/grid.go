package grid

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

const (
	DefaultHeight = 10
	DefaultWidth  = 10
)

var ErrRagged = errors.New("grid rows have different lengths")
var ErrEmpty = errors.New("grid has no cells")
var ErrCellValue = errors.New("cell value is more than one character")

// Edges marks which sides of a cell typing may flow through.
// true = open, false = wall. Neighbouring cells are not kept in agreement:
// a cell may be open on the right while the cell to its right is walled on the left.
type Edges struct {
	Top    bool `json:"top"`
	Bottom bool `json:"bottom"`
	Left   bool `json:"left"`
	Right  bool `json:"right"`
}

// AllOpen returns edges with every side open.
func AllOpen() Edges {
	return Edges{Top: true, Bottom: true, Left: true, Right: true}
}

// Cell is a single square of the grid. The zero value is an empty cell
// walled on every side.
type Cell struct {
	Value string `json:"value"`
	Edges Edges  `json:"edges"`
}

// Grid is rows outer, columns inner.
type Grid [][]Cell

// New builds a height x width grid of zero cells.
func New(height, width int) Grid {
	g := make(Grid, height)
	for row := range g {
		g[row] = make([]Cell, width)
	}
	return g
}

// Height is the number of rows.
func (g Grid) Height() int { return len(g) }

// Width is the length of the first row, 0 for an empty grid.
func (g Grid) Width() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

func (g Grid) InBounds(row, col int) bool {
	return row >= 0 && row < g.Height() && col >= 0 && col < len(g[row])
}

// At returns a pointer to the cell so callers can mutate it in place.
// Callers check InBounds first.
func (g Grid) At(row, col int) *Cell {
	return &g[row][col]
}

// Clone deep-copies the grid. Cells hold no references so a row copy is enough.
func (g Grid) Clone() Grid {
	if g == nil {
		return nil
	}
	cp := make(Grid, len(g))
	for i, row := range g {
		cp[i] = make([]Cell, len(row))
		copy(cp[i], row)
	}
	return cp
}

// Equal reports whether two grids have the same shape and cells.
func (g Grid) Equal(other Grid) bool {
	if len(g) != len(other) {
		return false
	}
	for i := range g {
		if len(g[i]) != len(other[i]) {
			return false
		}
		for j := range g[i] {
			if g[i][j] != other[i][j] {
				return false
			}
		}
	}
	return true
}

// Validate checks the rectangle invariant and that no cell holds more than
// one character.
func (g Grid) Validate() error {
	if len(g) == 0 || len(g[0]) == 0 {
		return ErrEmpty
	}
	width := len(g[0])
	for i, row := range g {
		if len(row) != width {
			return fmt.Errorf("row %d has %d cells, want %d: %w", i, len(row), width, ErrRagged)
		}
		for j, c := range row {
			if utf8.RuneCountInString(c.Value) > 1 {
				return fmt.Errorf("cell (%d,%d) %q: %w", i, j, c.Value, ErrCellValue)
			}
		}
	}
	return nil
}

// Package is a grid together with its identity. An empty ID means the grid
// has never been saved.
type Package struct {
	ID        string    `json:"_id"`
	Owner     string    `json:"owner"`
	Grid      Grid      `json:"grid"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

func (p Package) Saved() bool { return p.ID != "" }

// Clone returns a copy that shares nothing with p.
func (p Package) Clone() Package {
	p.Grid = p.Grid.Clone()
	return p
}

// Summary is the list view of a saved package.
type Summary struct {
	ID        string    `json:"_id"`
	Owner     string    `json:"owner"`
	Rows      int       `json:"rows"`
	Cols      int       `json:"cols"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p Package) Summary() Summary {
	return Summary{
		ID:        p.ID,
		Owner:     p.Owner,
		Rows:      p.Grid.Height(),
		Cols:      p.Grid.Width(),
		UpdatedAt: p.UpdatedAt,
	}
}
