package engine

import (
	"errors"

	"github.com/DoyleJ11/gridsync/internal/grid"
)

var ErrOutOfBounds = errors.New("focus target out of bounds")
var ErrUnsupportedKey = errors.New("unsupported key")
var ErrUnsupportedCommand = errors.New("unsupported command")

// Key names as they arrive from the view. Printable keys use the character itself.
const (
	KeyArrowUp    = "ArrowUp"
	KeyArrowDown  = "ArrowDown"
	KeyArrowLeft  = "ArrowLeft"
	KeyArrowRight = "ArrowRight"
	KeyBackspace  = "Backspace"
)

type Key struct {
	Name string
	Ctrl bool
}

type Cursor struct {
	Row int
	Col int
}

// State is the navigation half of a session: where the cursor is and which
// way typing flows. The grid itself is passed to Apply separately.
type State struct {
	Cursor   Cursor
	DirIndex int
}

func (s State) Direction() Direction { return DirectionAt(s.DirIndex) }

type CommandType string

const (
	CmdMoveFocus      CommandType = "MoveFocus"
	CmdCycleDirection CommandType = "CycleDirection"
	CmdKeyDown        CommandType = "KeyDown"
)

/*
	CmdMoveFocus      -> EvtFocusMoved (or ErrOutOfBounds, cursor untouched)
	CmdCycleDirection -> EvtDirectionCycled
	CmdKeyDown arrow  -> EvtFocusMoved when the neighbour exists, nothing otherwise
	CmdKeyDown letter -> EvtCellWritten -> EvtFocusMoved if the travel edge is open
	CmdKeyDown bksp   -> EvtCellCleared -> EvtFocusMoved if the trailing edge is open
	CmdKeyDown ^bksp  -> EvtCellCleared + EvtControlCleared -> EvtRefocusScheduled
*/

// Command is addressed at the cell whose control received the key, which is
// not necessarily State.Cursor.
type Command struct {
	Type CommandType
	Row  int
	Col  int
	Key  Key
}

type EventType string

const (
	EvtFocusMoved       EventType = "FocusMoved"
	EvtCellWritten      EventType = "CellWritten"
	EvtCellCleared      EventType = "CellCleared"
	EvtControlCleared   EventType = "ControlCleared"
	EvtRefocusScheduled EventType = "RefocusScheduled"
	EvtDirectionCycled  EventType = "DirectionCycled"
)

type Event struct {
	Type      EventType
	Row       int
	Col       int
	Value     string
	Direction Direction
}

// Apply runs one command against g and s. Cell writes happen in place on g;
// the returned State carries the new cursor and direction. On error s is
// returned unchanged and g is untouched.
func Apply(g grid.Grid, s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdMoveFocus:
		events, next, ok := moveFocus(g, s, cmd.Col, cmd.Row)
		if !ok {
			return nil, s, ErrOutOfBounds
		}
		return events, next, nil

	case CmdCycleDirection:
		next := s
		next.DirIndex = (s.DirIndex + 1) % len(TypingDirections)
		return []Event{{Type: EvtDirectionCycled, Direction: next.Direction()}}, next, nil

	case CmdKeyDown:
		if !g.InBounds(cmd.Row, cmd.Col) {
			return nil, s, ErrOutOfBounds
		}
		if cmd.Key.Ctrl {
			return applyCtrlKey(g, s, cmd)
		}
		return applyKey(g, s, cmd)

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func applyKey(g grid.Grid, s State, cmd Command) ([]Event, State, error) {
	row, col := cmd.Row, cmd.Col
	cell := g.At(row, col)
	dir := s.Direction()

	switch cmd.Key.Name {
	case KeyArrowUp:
		return tryMove(g, s, nil, col, row-1)
	case KeyArrowDown:
		return tryMove(g, s, nil, col, row+1)
	case KeyArrowLeft:
		return tryMove(g, s, nil, col-1, row)
	case KeyArrowRight:
		return tryMove(g, s, nil, col+1, row)

	case KeyBackspace:
		cell.Value = ""
		events := []Event{{Type: EvtCellCleared, Row: row, Col: col}}

		// Step back against the typing direction through the trailing edge.
		back := dir.Opposite()
		if edgeOpen(cell.Edges, back) {
			dr, dc := back.delta()
			return tryMove(g, s, events, col+dc, row+dr)
		}
		return events, s, nil

	default:
		letter, ok := typedLetter(cmd.Key.Name)
		if !ok {
			return nil, s, ErrUnsupportedKey
		}
		cell.Value = letter
		events := []Event{{Type: EvtCellWritten, Row: row, Col: col, Value: letter}}

		if edgeOpen(cell.Edges, dir) {
			dr, dc := dir.delta()
			return tryMove(g, s, events, col+dc, row+dr)
		}
		return events, s, nil
	}
}

// Only Ctrl+Backspace does anything with the modifier held.
func applyCtrlKey(g grid.Grid, s State, cmd Command) ([]Event, State, error) {
	if cmd.Key.Name != KeyBackspace {
		return nil, s, ErrUnsupportedKey
	}
	g.At(cmd.Row, cmd.Col).Value = ""
	return []Event{
		{Type: EvtCellCleared, Row: cmd.Row, Col: cmd.Col},
		{Type: EvtControlCleared, Row: cmd.Row, Col: cmd.Col},
		{Type: EvtRefocusScheduled, Row: cmd.Row, Col: cmd.Col},
	}, s, nil
}

// tryMove appends a focus move when the target is on the grid. An off-grid
// target leaves the cursor where it was and adds nothing.
func tryMove(g grid.Grid, s State, events []Event, col, row int) ([]Event, State, error) {
	moved, next, ok := moveFocus(g, s, col, row)
	if !ok {
		return events, s, nil
	}
	return append(events, moved...), next, nil
}

func moveFocus(g grid.Grid, s State, col, row int) ([]Event, State, bool) {
	if !g.InBounds(row, col) {
		return nil, s, false
	}
	next := s
	next.Cursor = Cursor{Row: row, Col: col}
	return []Event{{Type: EvtFocusMoved, Row: row, Col: col}}, next, true
}
