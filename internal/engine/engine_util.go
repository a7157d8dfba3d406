package engine

import "github.com/DoyleJ11/gridsync/internal/grid"

func NewState() State {
	return State{Cursor: Cursor{Row: 0, Col: 0}, DirIndex: 0}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// Mutates reports whether any event changed cell contents.
func Mutates(events []Event) bool {
	return ContainsEvent(events, EvtCellWritten) || ContainsEvent(events, EvtCellCleared)
}

func edgeOpen(e grid.Edges, d Direction) bool {
	switch d {
	case DirRight:
		return e.Right
	case DirLeft:
		return e.Left
	case DirUp:
		return e.Top
	case DirDown:
		return e.Bottom
	}
	return false
}

// typedLetter accepts exactly one ASCII letter, case preserved.
func typedLetter(name string) (string, bool) {
	if len(name) != 1 {
		return "", false
	}
	c := name[0]
	if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return name, true
	}
	return "", false
}
