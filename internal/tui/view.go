// Package tui renders a grid session in the terminal and turns terminal input
// into session messages.
//
// Each cell is drawn in a 3x3 block on a 4-column pitch:
//
//	 ─       top edge (blank when open)
//	│A│      left edge, value, right edge
//	 ─       bottom edge
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/DoyleJ11/gridsync/internal/config"
	"github.com/DoyleJ11/gridsync/internal/engine"
	"github.com/DoyleJ11/gridsync/internal/grid"
	"github.com/DoyleJ11/gridsync/internal/session"
	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"
)

const (
	cellPitchX = 4
	cellPitchY = 3
	savedListN = 10
)

var (
	styleDefault = tcell.StyleDefault
	styleEdge    = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleFocus   = tcell.StyleDefault.Reverse(true)
	styleStatus  = tcell.StyleDefault.Bold(true)
	styleError   = tcell.StyleDefault.Foreground(tcell.ColorRed)
	styleHelp    = tcell.StyleDefault.Dim(true)
)

// Poster accepts session messages. *session.Loop satisfies it.
type Poster interface {
	Post(m session.Msg) bool
}

type prompt struct {
	label  string
	buf    []rune
	submit func(string)
}

// View draws session snapshots and implements session.FocusTarget.
// Render, Focus and ClearControl run on the session loop goroutine while Run
// reads terminal events on its own, so state is guarded by mu.
type View struct {
	screen tcell.Screen
	log    *zap.Logger

	mu     sync.Mutex
	poster Poster
	snap   session.View
	status session.Status
	focus  engine.Cursor
	prompt *prompt
}

func New(screen tcell.Screen, log *zap.Logger) *View {
	if log == nil {
		log = zap.NewNop()
	}
	screen.EnableMouse()
	return &View{screen: screen, log: log.Named("tui")}
}

// Attach sets where input goes. Call it before Run.
func (v *View) Attach(p Poster) {
	v.mu.Lock()
	v.poster = p
	v.mu.Unlock()
}

// Render is the session observer.
func (v *View) Render(snap session.View, status session.Status) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.snap = snap
	v.status = status
	v.focus = snap.Cursor
	v.draw()
}

func (v *View) Focus(row, col int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.snap.Package.Grid.InBounds(row, col) {
		return
	}
	v.focus = engine.Cursor{Row: row, Col: col}
	v.draw()
}

// ClearControl blanks the drawn value without waiting for the next snapshot.
func (v *View) ClearControl(row, col int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.snap.Package.Grid.InBounds(row, col) {
		return
	}
	x, y := cellOrigin(row, col)
	v.screen.SetContent(x+1, y+1, ' ', nil, v.valueStyle(row, col))
	v.screen.Show()
}

// Run reads terminal events until the user quits or ctx ends.
func (v *View) Run(ctx context.Context) error {
	events := make(chan tcell.Event, 16)
	quit := make(chan struct{})
	go v.screen.ChannelEvents(events, quit)
	defer close(quit)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !v.handleEvent(ev) {
				return nil
			}
		}
	}
}

// handleEvent returns false when the user asked to quit.
func (v *View) handleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		v.screen.Sync()
		v.mu.Lock()
		v.draw()
		v.mu.Unlock()

	case *tcell.EventMouse:
		if ev.Buttons()&tcell.Button1 == 0 {
			return true
		}
		x, y := ev.Position()
		v.mu.Lock()
		row, col, ok := v.cellAt(x, y)
		v.mu.Unlock()
		if ok {
			v.post(session.Click{Col: col, Row: row})
		}

	case *tcell.EventKey:
		return v.handleKey(ev)
	}
	return true
}

func (v *View) handleKey(ev *tcell.EventKey) bool {
	v.mu.Lock()
	if v.prompt != nil {
		v.editPrompt(ev)
		v.mu.Unlock()
		return true
	}
	focus := v.focus
	v.mu.Unlock()

	act, key, ok := translateKey(ev)
	if !ok {
		return true
	}

	switch act {
	case actQuit:
		return false
	case actCycle:
		v.post(session.CycleDirection{})
	case actSave:
		v.post(session.Save{})
	case actRefresh:
		v.post(session.RefreshSaved{})
	case actLoadPrompt:
		v.openPrompt("load id: ", func(id string) {
			if id = strings.TrimSpace(id); id != "" {
				v.post(session.Load{ID: id})
			}
		})
	case actResizePrompt:
		v.openPrompt("size HxW: ", func(s string) {
			h, w, err := parseSize(s)
			if err != nil {
				v.mu.Lock()
				v.status = session.Status{Text: "resize ignored", Err: err}
				v.draw()
				v.mu.Unlock()
				return
			}
			v.post(session.Resize{Height: h, Width: w})
		})
	default:
		v.post(session.KeyDown{Col: focus.Col, Row: focus.Row, Key: key})
	}
	return true
}

func (v *View) openPrompt(label string, submit func(string)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.prompt = &prompt{label: label, submit: submit}
	v.draw()
}

// editPrompt runs with mu held.
func (v *View) editPrompt(ev *tcell.EventKey) {
	p := v.prompt
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		v.prompt = nil
	case tcell.KeyEnter:
		v.prompt = nil
		// submit posts to the loop, whose observer takes mu.
		go p.submit(string(p.buf))
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if len(p.buf) > 0 {
			p.buf = p.buf[:len(p.buf)-1]
		}
	case tcell.KeyRune:
		p.buf = append(p.buf, ev.Rune())
	}
	v.draw()
}

func (v *View) post(m session.Msg) {
	v.mu.Lock()
	p := v.poster
	v.mu.Unlock()
	if p == nil || !p.Post(m) {
		v.log.Debug("input dropped", zap.String("msg", fmt.Sprintf("%T", m)))
	}
}

func parseSize(s string) (height, width int, err error) {
	if _, err := fmt.Sscanf(strings.ToLower(strings.TrimSpace(s)), "%dx%d", &height, &width); err != nil {
		return 0, 0, fmt.Errorf("size must look like 10x10: %w", err)
	}
	if err := config.ValidateSize(height, width); err != nil {
		return 0, 0, err
	}
	return height, width, nil
}

func cellOrigin(row, col int) (x, y int) {
	return col * cellPitchX, row * cellPitchY
}

// cellAt maps a screen position inside a cell block back to the cell.
func (v *View) cellAt(x, y int) (row, col int, ok bool) {
	if x < 0 || y < 0 || x%cellPitchX == cellPitchX-1 {
		return 0, 0, false
	}
	row, col = y/cellPitchY, x/cellPitchX
	if !v.snap.Package.Grid.InBounds(row, col) {
		return 0, 0, false
	}
	return row, col, true
}

func (v *View) valueStyle(row, col int) tcell.Style {
	if v.focus.Row == row && v.focus.Col == col {
		return styleFocus
	}
	return styleDefault
}

// draw runs with mu held.
func (v *View) draw() {
	s := v.screen
	s.Clear()

	g := v.snap.Package.Grid
	for r := range g {
		for c := range g[r] {
			v.drawCell(r, c, g[r][c])
		}
	}

	y := g.Height() * cellPitchY
	id := v.snap.Package.ID
	if id == "" {
		id = "unsaved"
	}
	drawText(s, 0, y, styleStatus, fmt.Sprintf("%s  owner:%s  %dx%d  typing:%s  at:%d,%d",
		id, v.snap.Package.Owner, v.snap.Height, v.snap.Width, v.snap.Direction, v.focus.Row, v.focus.Col))

	if v.status.Text != "" {
		st := styleDefault
		text := v.status.Text
		if v.status.Err != nil {
			st = styleError
			text += ": " + v.status.Err.Error()
		}
		drawText(s, 0, y+1, st, text)
	}

	if v.prompt != nil {
		drawText(s, 0, y+2, styleStatus, v.prompt.label+string(v.prompt.buf)+"_")
	} else {
		drawText(s, 0, y+2, styleHelp, "tab direction  ^S save  ^O load  ^R list  ^N size  esc quit")
	}

	x := g.Width()*cellPitchX + 2
	if len(v.snap.Saved) > 0 {
		drawText(s, x, 0, styleStatus, "saved grids")
	}
	for i, sum := range v.snap.Saved {
		if i == savedListN {
			break
		}
		drawText(s, x, i+1, styleDefault, fmt.Sprintf("%s %dx%d", sum.ID, sum.Rows, sum.Cols))
	}

	s.Show()
}

func (v *View) drawCell(row, col int, cell grid.Cell) {
	x, y := cellOrigin(row, col)
	s := v.screen
	if !cell.Edges.Top {
		s.SetContent(x+1, y, '─', nil, styleEdge)
	}
	if !cell.Edges.Left {
		s.SetContent(x, y+1, '│', nil, styleEdge)
	}
	if !cell.Edges.Right {
		s.SetContent(x+2, y+1, '│', nil, styleEdge)
	}
	if !cell.Edges.Bottom {
		s.SetContent(x+1, y+2, '─', nil, styleEdge)
	}

	val := ' '
	if r := []rune(cell.Value); len(r) > 0 {
		val = r[0]
	}
	s.SetContent(x+1, y+1, val, nil, v.valueStyle(row, col))
}

func drawText(s tcell.Screen, x, y int, st tcell.Style, text string) {
	for _, r := range text {
		s.SetContent(x, y, r, nil, st)
		x++
	}
}
