package tui

import (
	"github.com/DoyleJ11/gridsync/internal/engine"
	"github.com/gdamore/tcell/v2"
)

// action is what a key press means outside of typing into the focused cell.
type action int

const (
	actNone action = iota
	actQuit
	actCycle
	actSave
	actRefresh
	actLoadPrompt
	actResizePrompt
)

var commandKeys = map[tcell.Key]action{
	tcell.KeyEscape: actQuit,
	tcell.KeyCtrlC:  actQuit,
	tcell.KeyCtrlQ:  actQuit,
	tcell.KeyTab:    actCycle,
	tcell.KeyCtrlS:  actSave,
	tcell.KeyCtrlR:  actRefresh,
	tcell.KeyCtrlO:  actLoadPrompt,
	tcell.KeyCtrlN:  actResizePrompt,
}

var arrowKeys = map[tcell.Key]string{
	tcell.KeyUp:    engine.KeyArrowUp,
	tcell.KeyDown:  engine.KeyArrowDown,
	tcell.KeyLeft:  engine.KeyArrowLeft,
	tcell.KeyRight: engine.KeyArrowRight,
}

// translateKey maps a terminal key event onto an editor command or an engine
// key. ok is false for an event that is neither.
func translateKey(ev *tcell.EventKey) (act action, key engine.Key, ok bool) {
	if a, found := commandKeys[ev.Key()]; found {
		return a, engine.Key{}, true
	}

	ctrl := ev.Modifiers()&tcell.ModCtrl != 0
	if name, found := arrowKeys[ev.Key()]; found {
		return actNone, engine.Key{Name: name, Ctrl: ctrl}, true
	}

	switch ev.Key() {
	case tcell.KeyBackspace2:
		return actNone, engine.Key{Name: engine.KeyBackspace, Ctrl: ctrl}, true
	case tcell.KeyBackspace:
		// ^H: what most terminals send for Ctrl+Backspace.
		return actNone, engine.Key{Name: engine.KeyBackspace, Ctrl: true}, true
	case tcell.KeyRune:
		return actNone, engine.Key{Name: string(ev.Rune()), Ctrl: ctrl}, true
	}
	return actNone, engine.Key{}, false
}
