package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/gridsync/internal/engine"
	"github.com/DoyleJ11/gridsync/internal/grid"
	"github.com/DoyleJ11/gridsync/internal/session"
	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakePoster struct {
	mu   sync.Mutex
	msgs []session.Msg
}

func (p *fakePoster) Post(m session.Msg) bool {
	p.mu.Lock()
	p.msgs = append(p.msgs, m)
	p.mu.Unlock()
	return true
}

func (p *fakePoster) all() []session.Msg {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]session.Msg(nil), p.msgs...)
}

func newSimScreen(t *testing.T) tcell.SimulationScreen {
	t.Helper()
	s := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, s.Init())
	s.SetSize(80, 40)
	t.Cleanup(s.Fini)
	return s
}

func runeAt(s tcell.SimulationScreen, x, y int) rune {
	cells, w, _ := s.GetContents()
	c := cells[y*w+x]
	if len(c.Runes) == 0 {
		return ' '
	}
	return c.Runes[0]
}

func textAt(s tcell.SimulationScreen, x, y, n int) string {
	out := make([]rune, n)
	for i := range out {
		out[i] = runeAt(s, x+i, y)
	}
	return string(out)
}

// startView runs the view against a fake poster until the test ends.
func startView(t *testing.T, snap session.View) (tcell.SimulationScreen, *View, *fakePoster) {
	t.Helper()
	s := newSimScreen(t)
	v := New(s, zaptest.NewLogger(t))
	p := &fakePoster{}
	v.Attach(p)
	v.Render(snap, session.Status{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- v.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s, v, p
}

func snapshot(h, w int) session.View {
	return session.View{
		Package: grid.Package{Owner: "ann", Grid: grid.New(h, w)},
		Height:  h,
		Width:   w,
	}
}

func TestTranslateKey(t *testing.T) {
	tests := []struct {
		name    string
		ev      *tcell.EventKey
		wantAct action
		wantKey engine.Key
		wantOK  bool
	}{
		{"letter", tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone), actNone, engine.Key{Name: "q"}, true},
		{"digit passes through", tcell.NewEventKey(tcell.KeyRune, '7', tcell.ModNone), actNone, engine.Key{Name: "7"}, true},
		{"arrow", tcell.NewEventKey(tcell.KeyLeft, 0, tcell.ModNone), actNone, engine.Key{Name: engine.KeyArrowLeft}, true},
		{"backspace", tcell.NewEventKey(tcell.KeyBackspace2, 0, tcell.ModNone), actNone, engine.Key{Name: engine.KeyBackspace}, true},
		{"ctrl backspace", tcell.NewEventKey(tcell.KeyBackspace2, 0, tcell.ModCtrl), actNone, engine.Key{Name: engine.KeyBackspace, Ctrl: true}, true},
		{"ctrl-h", tcell.NewEventKey(tcell.KeyBackspace, 0, tcell.ModNone), actNone, engine.Key{Name: engine.KeyBackspace, Ctrl: true}, true},
		{"tab cycles", tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModNone), actCycle, engine.Key{}, true},
		{"ctrl-s saves", tcell.NewEventKey(tcell.KeyCtrlS, 0, tcell.ModCtrl), actSave, engine.Key{}, true},
		{"escape quits", tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone), actQuit, engine.Key{}, true},
		{"function key ignored", tcell.NewEventKey(tcell.KeyF5, 0, tcell.ModNone), actNone, engine.Key{}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			act, key, ok := translateKey(tc.ev)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.wantAct, act)
			assert.Equal(t, tc.wantKey, key)
		})
	}
}

func TestRenderDrawsCellsAndStatus(t *testing.T) {
	s := newSimScreen(t)
	v := New(s, zaptest.NewLogger(t))

	snap := snapshot(2, 3)
	snap.Package.Grid[0][1].Value = "K"
	snap.Package.Grid[0][1].Edges = grid.AllOpen()
	snap.Cursor = engine.Cursor{Row: 1, Col: 2}
	v.Render(snap, session.Status{Text: "save failed", Err: errors.New("boom")})

	// (0,0) is closed on every side.
	x, y := cellOrigin(0, 0)
	assert.Equal(t, '─', runeAt(s, x+1, y))
	assert.Equal(t, '│', runeAt(s, x, y+1))
	assert.Equal(t, '│', runeAt(s, x+2, y+1))
	assert.Equal(t, '─', runeAt(s, x+1, y+2))

	// (0,1) is open on every side and holds K.
	x, y = cellOrigin(0, 1)
	assert.Equal(t, 'K', runeAt(s, x+1, y+1))
	assert.Equal(t, ' ', runeAt(s, x, y+1))
	assert.Equal(t, ' ', runeAt(s, x+1, y))

	assert.Equal(t, "unsaved", textAt(s, 0, 2*cellPitchY, 7))
	assert.Equal(t, "save failed: boom", textAt(s, 0, 2*cellPitchY+1, 17))

	// The focused cell is drawn reversed.
	cells, w, _ := s.GetContents()
	fx, fy := cellOrigin(1, 2)
	_, _, attrs := cells[(fy+1)*w+fx+1].Style.Decompose()
	assert.NotZero(t, attrs&tcell.AttrReverse)
}

func TestRenderListsSavedGrids(t *testing.T) {
	s := newSimScreen(t)
	v := New(s, zaptest.NewLogger(t))

	snap := snapshot(1, 1)
	snap.Saved = []grid.Summary{{ID: "g1", Rows: 4, Cols: 5}}
	v.Render(snap, session.Status{})

	x := cellPitchX + 2
	assert.Equal(t, "saved grids", textAt(s, x, 0, 11))
	assert.Equal(t, "g1 4x5", textAt(s, x, 1, 6))
}

func TestFocusAndClearControl(t *testing.T) {
	s := newSimScreen(t)
	v := New(s, zaptest.NewLogger(t))
	snap := snapshot(2, 2)
	snap.Package.Grid[1][1].Value = "Q"
	v.Render(snap, session.Status{})

	v.Focus(5, 5) // no such control
	assert.Equal(t, engine.Cursor{}, v.focus)

	v.Focus(1, 1)
	assert.Equal(t, engine.Cursor{Row: 1, Col: 1}, v.focus)

	x, y := cellOrigin(1, 1)
	require.Equal(t, 'Q', runeAt(s, x+1, y+1))
	v.ClearControl(1, 1)
	assert.Equal(t, ' ', runeAt(s, x+1, y+1))
}

func TestRunPostsInput(t *testing.T) {
	s, v, p := startView(t, snapshot(3, 3))
	v.Focus(1, 2)

	s.InjectKey(tcell.KeyRune, 'C', tcell.ModNone)
	s.InjectKey(tcell.KeyTab, 0, tcell.ModNone)
	s.InjectKey(tcell.KeyCtrlS, 0, tcell.ModCtrl)
	s.InjectKey(tcell.KeyCtrlR, 0, tcell.ModCtrl)
	s.InjectKey(tcell.KeyF5, 0, tcell.ModNone)

	require.Eventually(t, func() bool { return len(p.all()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []session.Msg{
		session.KeyDown{Col: 2, Row: 1, Key: engine.Key{Name: "C"}},
		session.CycleDirection{},
		session.Save{},
		session.RefreshSaved{},
	}, p.all())
}

func TestRunMouseClickMapsToCell(t *testing.T) {
	s, _, p := startView(t, snapshot(3, 3))

	x, y := cellOrigin(2, 1)
	s.InjectMouse(x+1, y+1, tcell.Button1, tcell.ModNone)
	s.InjectMouse(x+3, y+1, tcell.Button1, tcell.ModNone) // gap column
	s.InjectMouse(x+1, y+1, tcell.ButtonNone, tcell.ModNone)

	require.Eventually(t, func() bool { return len(p.all()) >= 1 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return len(p.all()) > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, session.Click{Col: 1, Row: 2}, p.all()[0])
}

func TestRunPrompts(t *testing.T) {
	s, _, p := startView(t, snapshot(3, 3))

	s.InjectKey(tcell.KeyCtrlO, 0, tcell.ModCtrl)
	for _, r := range "g-42" {
		s.InjectKey(tcell.KeyRune, r, tcell.ModNone)
	}
	s.InjectKey(tcell.KeyEnter, 0, tcell.ModNone)

	require.Eventually(t, func() bool { return len(p.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, session.Load{ID: "g-42"}, p.all()[0])

	s.InjectKey(tcell.KeyCtrlN, 0, tcell.ModCtrl)
	for _, r := range "4x55" {
		s.InjectKey(tcell.KeyRune, r, tcell.ModNone)
	}
	s.InjectKey(tcell.KeyBackspace2, 0, tcell.ModNone)
	s.InjectKey(tcell.KeyEnter, 0, tcell.ModNone)

	require.Eventually(t, func() bool { return len(p.all()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, session.Resize{Height: 4, Width: 5}, p.all()[1])

	// Escape leaves the prompt without posting, and typing there is not editing.
	s.InjectKey(tcell.KeyCtrlO, 0, tcell.ModCtrl)
	s.InjectKey(tcell.KeyRune, 'x', tcell.ModNone)
	s.InjectKey(tcell.KeyEscape, 0, tcell.ModNone)
	assert.Never(t, func() bool { return len(p.all()) > 2 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestRunQuitsOnEscape(t *testing.T) {
	s := newSimScreen(t)
	v := New(s, zaptest.NewLogger(t))
	v.Render(snapshot(1, 1), session.Status{})

	done := make(chan error, 1)
	go func() { done <- v.Run(context.Background()) }()
	s.InjectKey(tcell.KeyEscape, 0, tcell.ModNone)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return on escape")
	}
}

func TestParseSize(t *testing.T) {
	h, w, err := parseSize(" 12X7 ")
	require.NoError(t, err)
	assert.Equal(t, 12, h)
	assert.Equal(t, 7, w)

	for _, in := range []string{"", "ten", "0x5", "5x101"} {
		_, _, err := parseSize(in)
		assert.Error(t, err, in)
	}
}

// Keys typed into the terminal flow through a real session loop and back
// onto the screen.
func TestViewWithSessionLoop(t *testing.T) {
	s := newSimScreen(t)
	log := zaptest.NewLogger(t)
	v := New(s, log)

	ctrl := session.NewController(session.Options{Owner: "ann", Height: 2, Width: 3, View: v, Logger: log})
	ctx, cancel := context.WithCancel(context.Background())
	loop := session.NewLoop(ctx, ctrl, session.LoopOptions{Observer: v.Render, Logger: log})
	v.Attach(loop)

	done := make(chan error, 1)
	go func() { done <- v.Run(ctx) }()
	defer func() {
		cancel()
		<-done
		<-loop.Done()
	}()

	state := func() session.View {
		reply := make(chan session.View, 1)
		if !loop.Post(session.GetState{Reply: reply}) {
			return session.View{}
		}
		return <-reply
	}

	// A keystroke still pending when the next one arrives is cancelled, so
	// each one settles before the next is typed.
	s.InjectKey(tcell.KeyRune, 'H', tcell.ModNone)
	require.Eventually(t, func() bool { return state().Package.Grid[0][0].Value == "H" }, time.Second, 10*time.Millisecond)
	s.InjectKey(tcell.KeyRight, 0, tcell.ModNone)
	require.Eventually(t, func() bool { return state().Cursor == engine.Cursor{Row: 0, Col: 1} }, time.Second, 10*time.Millisecond)
	s.InjectKey(tcell.KeyRune, 'i', tcell.ModNone)
	require.Eventually(t, func() bool { return state().Package.Grid[0][1].Value == "i" }, time.Second, 10*time.Millisecond)

	x0, y0 := cellOrigin(0, 0)
	x1, y1 := cellOrigin(0, 1)
	assert.Equal(t, 'H', runeAt(s, x0+1, y0+1))
	assert.Equal(t, 'i', runeAt(s, x1+1, y1+1))
}
