package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/DoyleJ11/gridsync/internal/grid"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("grid not found")
var ErrInvalidGrid = errors.New("invalid grid")

// Store persists grid packages. Save creates a package when p.ID is empty and
// replaces the stored one otherwise.
type Store interface {
	Save(ctx context.Context, p grid.Package) (grid.Package, error)
	// List returns summaries, most recently updated first. An empty owner lists everything.
	List(ctx context.Context, owner string) ([]grid.Summary, error)
	Get(ctx context.Context, id string) (grid.Package, error)
}

func validate(p grid.Package) error {
	if strings.TrimSpace(p.Owner) == "" {
		return fmt.Errorf("owner must be non-empty: %w", ErrInvalidGrid)
	}
	if err := p.Grid.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidGrid, err)
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}
