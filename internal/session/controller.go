package session

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/gridsync/internal/engine"
	"github.com/DoyleJ11/gridsync/internal/grid"
	"github.com/DoyleJ11/gridsync/pkg/types"
	"go.uber.org/zap"
)

const DefaultOwner = "currentUser"

// Publisher is the outbound half of the sync channel.
type Publisher interface {
	Send(msg types.Message)
}

// FocusTarget is whatever renders the grid. Both calls are best effort: a
// view without a control at (row, col) does nothing.
type FocusTarget interface {
	Focus(row, col int)
	ClearControl(row, col int)
}

type Options struct {
	Owner     string
	Height    int
	Width     int
	Publisher Publisher
	View      FocusTarget
	Logger    *zap.Logger
}

// pendingAction is the keystroke waiting for the next scheduling opportunity.
// Installing a new one replaces (cancels) the previous.
type pendingAction struct {
	seq uint64
	row int
	col int
	key engine.Key
}

// View is a point-in-time copy of the session for renderers and tests.
type View struct {
	Package   grid.Package
	Height    int
	Width     int
	Cursor    engine.Cursor
	Direction engine.Direction
	Version   int
	Pending   bool
	Saved     []grid.Summary
}

// Controller owns the open grid package, the cursor and the typing direction.
// It is not safe for concurrent use; Loop gives it a single goroutine.
type Controller struct {
	pkg     grid.Package
	height  int
	width   int
	nav     engine.State
	version int

	pending *pendingAction
	ticks   []func()
	seq     uint64

	saved []grid.Summary

	publisher Publisher
	view      FocusTarget
	log       *zap.Logger
}

func NewController(opts Options) *Controller {
	if opts.Owner == "" {
		opts.Owner = DefaultOwner
	}
	if opts.Height <= 0 {
		opts.Height = grid.DefaultHeight
	}
	if opts.Width <= 0 {
		opts.Width = grid.DefaultWidth
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	c := &Controller{
		pkg:       grid.Package{Owner: opts.Owner},
		height:    opts.Height,
		width:     opts.Width,
		nav:       engine.NewState(),
		publisher: opts.Publisher,
		view:      opts.View,
		log:       opts.Logger.Named("session"),
	}
	c.InitializeGrid()
	return c
}

// InitializeGrid rebuilds the grid at the configured size. Prior content is discarded.
func (c *Controller) InitializeGrid() {
	c.pkg.Grid = grid.New(c.height, c.width)
	c.version++
}

// SetSize reinitializes the grid at height x width. Nothing is migrated across
// a resize. A cursor left off the grid returns to the origin.
func (c *Controller) SetSize(height, width int) {
	if height <= 0 || width <= 0 {
		return
	}
	c.height, c.width = height, width
	c.InitializeGrid()
	if !c.pkg.Grid.InBounds(c.nav.Cursor.Row, c.nav.Cursor.Col) {
		c.MoveFocus(0, 0)
	}
	c.OnGridChange()
}

// MoveFocus puts the cursor on (col, row) if that cell exists. Off-grid
// targets are ignored.
func (c *Controller) MoveFocus(col, row int) bool {
	events, next, err := engine.Apply(c.pkg.Grid, c.nav, engine.Command{Type: engine.CmdMoveFocus, Row: row, Col: col})
	if err != nil {
		return false
	}
	c.nav = next
	c.dispatch(events)
	return true
}

func (c *Controller) Click(col, row int) bool {
	return c.MoveFocus(col, row)
}

func (c *Controller) CycleTypingDirection() engine.Direction {
	_, next, _ := engine.Apply(c.pkg.Grid, c.nav, engine.Command{Type: engine.CmdCycleDirection})
	c.nav = next
	c.log.Debug("typing direction changed", zap.String("direction", string(next.Direction())))
	return next.Direction()
}

// KeyDown records a keystroke on the control at (col, row). It takes effect on
// the next RunPending; a newer KeyDown before then cancels it.
func (c *Controller) KeyDown(col, row int, key engine.Key) {
	if c.pending != nil {
		c.log.Debug("cancelling pending keystroke",
			zap.Uint64("seq", c.pending.seq), zap.String("key", c.pending.key.Name))
	}
	c.seq++
	c.pending = &pendingAction{seq: c.seq, row: row, col: col, key: key}
}

func (c *Controller) HasPending() bool {
	return c.pending != nil || len(c.ticks) > 0
}

// RunPending fires the pending keystroke and then any deferred ticks it (or
// an earlier one) scheduled, until nothing is left. It returns how many ran.
func (c *Controller) RunPending() int {
	n := 0
	for c.HasPending() {
		if p := c.pending; p != nil {
			c.pending = nil
			c.fire(p)
			n++
			continue
		}
		tick := c.ticks[0]
		c.ticks = c.ticks[1:]
		tick()
		n++
	}
	return n
}

func (c *Controller) fire(p *pendingAction) {
	cmd := engine.Command{Type: engine.CmdKeyDown, Row: p.row, Col: p.col, Key: p.key}
	events, next, err := engine.Apply(c.pkg.Grid, c.nav, cmd)
	if err != nil {
		if !errors.Is(err, engine.ErrUnsupportedKey) {
			c.log.Debug("keystroke ignored", zap.String("key", p.key.Name), zap.Error(err))
		}
		return
	}
	c.nav = next
	c.dispatch(events)
	if engine.Mutates(events) {
		c.version++
		c.OnGridChange()
	}
}

func (c *Controller) dispatch(events []engine.Event) {
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtFocusMoved:
			if c.view != nil {
				c.view.Focus(ev.Row, ev.Col)
			}
		case engine.EvtControlCleared:
			if c.view != nil {
				c.view.ClearControl(ev.Row, ev.Col)
			}
		case engine.EvtRefocusScheduled:
			row, col := ev.Row, ev.Col
			c.ticks = append(c.ticks, func() { c.MoveFocus(col, row) })
		}
	}
}

// OnGridChange broadcasts the whole grid to the other sessions.
func (c *Controller) OnGridChange() {
	if c.publisher == nil {
		return
	}
	c.publisher.Send(types.NewGridUpdate(c.pkg.ID, c.pkg.Owner, c.pkg.Grid))
}

// HandleMessage is the inbound accept path. Only a GRID_UPDATE for the grid
// that is open here is applied; everything else is dropped.
func (c *Controller) HandleMessage(msg types.Message) bool {
	if msg.Type != types.TypeGridUpdate || msg.ID != c.pkg.ID {
		return false
	}
	if err := msg.Grid.Validate(); err != nil {
		c.log.Debug("dropping unusable grid update", zap.String("grid_id", msg.ID), zap.Error(err))
		return false
	}
	c.applyGridUpdate(msg.Grid)
	return true
}

// applyGridUpdate replaces the grid wholesale. A cursor left off a smaller
// grid returns to the origin, as with SetSize.
func (c *Controller) applyGridUpdate(g grid.Grid) {
	c.pkg.Grid = g.Clone()
	c.height = g.Height()
	c.width = g.Width()
	c.version++
	if !c.pkg.Grid.InBounds(c.nav.Cursor.Row, c.nav.Cursor.Col) {
		c.MoveFocus(0, 0)
	}
}

// ApplyLoaded adopts a package fetched from the store.
func (c *Controller) ApplyLoaded(p grid.Package) error {
	if err := p.Grid.Validate(); err != nil {
		return fmt.Errorf("load grid %s: %w", p.ID, err)
	}
	c.pkg.ID = p.ID
	c.pkg.Owner = p.Owner
	c.pkg.UpdatedAt = p.UpdatedAt
	c.applyGridUpdate(p.Grid)
	return nil
}

// SaveRequest is what a save submits: owner and grid, plus the id once the
// grid has been persisted.
func (c *Controller) SaveRequest() grid.Package {
	return grid.Package{ID: c.pkg.ID, Owner: c.pkg.Owner, Grid: c.pkg.Grid.Clone()}
}

// ApplySaved adopts the id the store assigned to a first save.
func (c *Controller) ApplySaved(saved grid.Package) {
	if c.pkg.ID == "" {
		c.pkg.ID = saved.ID
		c.log.Info("grid saved", zap.String("grid_id", saved.ID))
	}
	c.pkg.UpdatedAt = saved.UpdatedAt
}

func (c *Controller) SetSavedGrids(list []grid.Summary) { c.saved = list }

func (c *Controller) SavedGrids() []grid.Summary {
	return append([]grid.Summary(nil), c.saved...)
}

func (c *Controller) Cursor() engine.Cursor { return c.nav.Cursor }

func (c *Controller) Direction() engine.Direction { return c.nav.Direction() }

func (c *Controller) Package() grid.Package { return c.pkg.Clone() }

func (c *Controller) Dimensions() (height, width int) { return c.height, c.width }

func (c *Controller) Snapshot() View {
	return View{
		Package:   c.pkg.Clone(),
		Height:    c.height,
		Width:     c.width,
		Cursor:    c.nav.Cursor,
		Direction: c.nav.Direction(),
		Version:   c.version,
		Pending:   c.HasPending(),
		Saved:     c.SavedGrids(),
	}
}
