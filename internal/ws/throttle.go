package ws

import (
	"sync"
	"time"

	"github.com/DoyleJ11/gridsync/internal/hub"
	"golang.org/x/time/rate"
)

// throttle rate-limits one connection's updates without losing the newest
// grid. Updates carry the whole grid, so while the limiter is out of tokens
// a later update replaces the held one and only the latest is forwarded
// once the next token is due.
type throttle struct {
	lim     *rate.Limiter
	publish func(hub.Publish)

	mu      sync.Mutex
	held    *hub.Publish
	timer   *time.Timer
	stopped bool
}

func newThrottle(perSecond float64, burst int, publish func(hub.Publish)) *throttle {
	return &throttle{lim: newLimiter(perSecond, burst), publish: publish}
}

// offer forwards p now when a token is free, otherwise holds it for the next
// token. It reports whether p went out immediately.
func (t *throttle) offer(p hub.Publish) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	if t.held == nil && t.timer == nil && t.lim.Allow() {
		t.publish(p)
		return true
	}
	t.held = &p
	if t.timer == nil {
		t.timer = time.AfterFunc(t.lim.Reserve().Delay(), t.flush)
	}
	return false
}

func (t *throttle) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timer = nil
	if t.stopped || t.held == nil {
		return
	}
	t.publish(*t.held)
	t.held = nil
}

// stop drops any held update. Offers after stop are ignored.
func (t *throttle) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.held = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
