package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/DoyleJ11/gridsync/internal/engine"
	"github.com/DoyleJ11/gridsync/internal/grid"
	"github.com/DoyleJ11/gridsync/internal/store"
	"github.com/DoyleJ11/gridsync/pkg/types"
	"go.uber.org/zap"
)

var ErrNoStore = errors.New("no grid store configured")

type Msg interface{ isSessionMsg() }

// KeyDown is a keystroke on the control at (Col, Row).
type KeyDown struct {
	Col int
	Row int
	Key engine.Key
}

func (KeyDown) isSessionMsg() {}

type Click struct {
	Col int
	Row int
}

func (Click) isSessionMsg() {}

type CycleDirection struct{}

func (CycleDirection) isSessionMsg() {}

type Resize struct {
	Height int
	Width  int
}

func (Resize) isSessionMsg() {}

// Remote carries an inbound sync message.
type Remote struct {
	Msg types.Message
}

func (Remote) isSessionMsg() {}

type Load struct {
	ID    string
	Reply chan error // optional
}

func (Load) isSessionMsg() {}

type SaveResult struct {
	Package grid.Package
	Err     error
}

type Save struct {
	Reply chan SaveResult // optional
}

func (Save) isSessionMsg() {}

type RefreshSaved struct{}

func (RefreshSaved) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

// Completions posted back by store goroutines.
type loaded struct {
	id    string
	pkg   grid.Package
	err   error
	reply chan error
}

func (loaded) isSessionMsg() {}

type saved struct {
	pkg   grid.Package
	list  []grid.Summary
	err   error
	reply chan SaveResult
}

func (saved) isSessionMsg() {}

type listed struct {
	list []grid.Summary
	err  error
}

func (listed) isSessionMsg() {}

// Status describes the outcome of the last store operation for the view.
type Status struct {
	Text string
	Err  error
}

// Loop is the editor's event loop. One goroutine owns the Controller; every
// input reaches it through the inbox.
//
// A keystroke is held as the controller's pending action. Messages already
// queued are handled before it fires, a newer KeyDown cancels it, and any
// other message lets it fire first. With nothing queued it fires at once.
type Loop struct {
	inbox    chan Msg
	ctrl     *Controller
	store    store.Store
	observer func(View, Status)
	status   Status
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

type LoopOptions struct {
	Store    store.Store
	// Observer runs on the loop goroutine after every change.
	Observer func(View, Status)
	Logger   *zap.Logger
}

func NewLoop(parent context.Context, ctrl *Controller, opts LoopOptions) *Loop {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	l := &Loop{
		inbox:    make(chan Msg, 64),
		ctrl:     ctrl,
		store:    opts.Store,
		observer: opts.Observer,
		log:      opts.Logger.Named("loop"),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go l.loop()
	return l
}

func (l *Loop) Inbox() chan<- Msg { return l.inbox }

func (l *Loop) Done() <-chan struct{} { return l.done }

// Post delivers m unless the loop has stopped.
func (l *Loop) Post(m Msg) bool {
	if l.ctx.Err() != nil {
		return false
	}
	select {
	case l.inbox <- m:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// Deliver is the sync handler: inbound messages join the inbox in arrival order.
func (l *Loop) Deliver(msg types.Message) {
	l.Post(Remote{Msg: msg})
}

func (l *Loop) loop() {
	defer close(l.done)
	l.notify()

	for {
		if l.ctrl.HasPending() {
			select {
			case <-l.ctx.Done():
				return
			case m := <-l.inbox:
				if !l.handle(m) {
					return
				}
			default:
				l.ctrl.RunPending()
				l.notify()
			}
			continue
		}

		select {
		case <-l.ctx.Done():
			return
		case m := <-l.inbox:
			if !l.handle(m) {
				return
			}
		}
	}
}

func (l *Loop) handle(m Msg) bool {
	if key, ok := m.(KeyDown); ok {
		l.ctrl.KeyDown(key.Col, key.Row, key.Key)
		return true
	}

	if l.ctrl.RunPending() > 0 {
		l.notify()
	}

	switch msg := m.(type) {
	case Click:
		l.ctrl.Click(msg.Col, msg.Row)

	case CycleDirection:
		l.ctrl.CycleTypingDirection()

	case Resize:
		l.ctrl.SetSize(msg.Height, msg.Width)

	case Remote:
		if !l.ctrl.HandleMessage(msg.Msg) {
			return true
		}

	case Load:
		l.startLoad(msg)
		l.status = Status{Text: "loading " + msg.ID}

	case loaded:
		err := msg.err
		if err == nil {
			err = l.ctrl.ApplyLoaded(msg.pkg)
		}
		if err != nil {
			l.log.Warn("load failed", zap.String("grid_id", msg.id), zap.Error(err))
			l.status = Status{Text: "load failed", Err: err}
		} else {
			l.status = Status{Text: "loaded " + msg.id}
		}
		if msg.reply != nil {
			msg.reply <- err
		}

	case Save:
		l.startSave(msg)
		l.status = Status{Text: "saving"}

	case saved:
		if msg.err != nil {
			l.log.Warn("save failed", zap.Error(msg.err))
			l.status = Status{Text: "save failed", Err: msg.err}
		} else {
			l.ctrl.ApplySaved(msg.pkg)
			if msg.list != nil {
				l.ctrl.SetSavedGrids(msg.list)
			}
			l.status = Status{Text: "saved " + msg.pkg.ID}
		}
		if msg.reply != nil {
			msg.reply <- SaveResult{Package: msg.pkg, Err: msg.err}
		}

	case RefreshSaved:
		l.startList()

	case listed:
		if msg.err != nil {
			l.log.Warn("listing saved grids failed", zap.Error(msg.err))
			l.status = Status{Text: "list failed", Err: msg.err}
		} else {
			l.ctrl.SetSavedGrids(msg.list)
		}

	case GetState:
		msg.Reply <- l.ctrl.Snapshot()
		return true

	case Shutdown:
		l.cancel()
		return false
	}

	l.notify()
	return true
}

// Store calls run off the loop; their results come back as messages.
func (l *Loop) startLoad(msg Load) {
	if l.store == nil {
		go l.Post(loaded{id: msg.ID, err: ErrNoStore, reply: msg.Reply})
		return
	}
	go func() {
		p, err := l.store.Get(l.ctx, msg.ID)
		if err != nil {
			err = fmt.Errorf("load grid %s: %w", msg.ID, err)
		}
		l.Post(loaded{id: msg.ID, pkg: p, err: err, reply: msg.Reply})
	}()
}

func (l *Loop) startSave(msg Save) {
	req := l.ctrl.SaveRequest()
	if l.store == nil {
		go l.Post(saved{err: ErrNoStore, reply: msg.Reply})
		return
	}
	go func() {
		p, err := l.store.Save(l.ctx, req)
		if err != nil {
			l.Post(saved{err: fmt.Errorf("save grid: %w", err), reply: msg.Reply})
			return
		}
		list, listErr := l.store.List(l.ctx, "")
		if listErr != nil {
			l.log.Warn("refreshing saved grids failed", zap.Error(listErr))
			list = nil
		}
		l.Post(saved{pkg: p, list: list, reply: msg.Reply})
	}()
}

func (l *Loop) startList() {
	if l.store == nil {
		return
	}
	go func() {
		list, err := l.store.List(l.ctx, "")
		l.Post(listed{list: list, err: err})
	}()
}

func (l *Loop) notify() {
	if l.observer != nil {
		l.observer(l.ctrl.Snapshot(), l.status)
	}
}
