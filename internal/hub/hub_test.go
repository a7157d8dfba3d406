package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func recvFrame(t *testing.T, ch <-chan []byte, within time.Duration) []byte {
	t.Helper()
	select {
	case f, ok := <-ch:
		if !ok {
			t.Fatalf("outbox closed unexpectedly")
		}
		return f
	case <-time.After(within):
		t.Fatalf("timed out waiting for frame")
		return nil
	}
}

func recvNoFrame(t *testing.T, ch <-chan []byte, within time.Duration) {
	t.Helper()
	select {
	case f, ok := <-ch:
		if !ok {
			return
		}
		t.Fatalf("expected no frame within %v, got %s", within, f)
	case <-time.After(within):
	}
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(ctx, zaptest.NewLogger(t))
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	return h
}

func TestHub_PublishSkipsSender(t *testing.T) {
	h := newTestHub(t)

	a := make(chan []byte, 2)
	b := make(chan []byte, 2)
	c := make(chan []byte, 2)
	h.Inbox() <- Join{ClientID: "a", Outbox: a}
	h.Inbox() <- Join{ClientID: "b", Outbox: b}
	h.Inbox() <- Join{ClientID: "c", Outbox: c}

	h.Inbox() <- Publish{From: "a", GridID: "g1", Frame: []byte("frame-1")}

	if got := string(recvFrame(t, b, 100*time.Millisecond)); got != "frame-1" {
		t.Fatalf("b got %q", got)
	}
	if got := string(recvFrame(t, c, 100*time.Millisecond)); got != "frame-1" {
		t.Fatalf("c got %q", got)
	}
	recvNoFrame(t, a, 50*time.Millisecond)

	if s := h.Stats(); s.Clients != 3 || s.Published != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestHub_PreservesOrder(t *testing.T) {
	h := newTestHub(t)
	out := make(chan []byte, 8)
	h.Inbox() <- Join{ClientID: "r", Outbox: out}

	for _, f := range []string{"1", "2", "3"} {
		h.Inbox() <- Publish{From: "w", Frame: []byte(f)}
	}
	for _, want := range []string{"1", "2", "3"} {
		if got := string(recvFrame(t, out, 100*time.Millisecond)); got != want {
			t.Fatalf("got %q want %q", got, want)
		}
	}
}

func TestHub_DropSlowClient(t *testing.T) {
	h := newTestHub(t)

	slow := make(chan []byte, 1)
	h.Inbox() <- Join{ClientID: "slow", Outbox: slow}
	h.Inbox() <- Publish{From: "x", Frame: []byte("one")}
	h.Inbox() <- Publish{From: "x", Frame: []byte("two")}

	s := h.Stats()
	if s.Clients != 0 || s.Dropped != 1 {
		t.Fatalf("expected slow client to be dropped; stats=%+v", s)
	}

	<-slow // the buffered frame
	if _, ok := <-slow; ok {
		t.Fatalf("expected dropped client's outbox to be closed")
	}
}

func TestHub_LeaveClosesOutbox(t *testing.T) {
	h := newTestHub(t)
	out := make(chan []byte, 1)
	h.Inbox() <- Join{ClientID: "a", Outbox: out}
	h.Inbox() <- Leave{ClientID: "a"}
	h.Inbox() <- Leave{ClientID: "a"} // second leave is harmless

	select {
	case _, ok := <-out:
		if ok {
			t.Fatalf("unexpected frame")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("outbox not closed on leave")
	}
}

func TestHub_ShutdownClosesEveryone(t *testing.T) {
	h := NewHub(context.Background(), zaptest.NewLogger(t))
	outs := []chan []byte{make(chan []byte, 1), make(chan []byte, 1)}
	h.Inbox() <- Join{ClientID: "a", Outbox: outs[0]}
	h.Inbox() <- Join{ClientID: "b", Outbox: outs[1]}
	h.Inbox() <- ShutdownHub{}

	<-h.Done()
	for _, ch := range outs {
		if _, ok := <-ch; ok {
			t.Fatalf("outbox left open after shutdown")
		}
	}
	if h.Send(Publish{}) {
		t.Fatalf("Send succeeded on a stopped hub")
	}
	if s := h.Stats(); s != (Stats{}) {
		t.Fatalf("stats from stopped hub: %+v", s)
	}
}

func TestHub_Concurrent(t *testing.T) {
	h := newTestHub(t)
	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%26)) + string(rune('0'+i/26))
			out := make(chan []byte, 64)
			h.Send(Join{ClientID: id, Outbox: out})
			h.Send(Publish{From: id, Frame: []byte("msg")})
			h.Send(Leave{ClientID: id})
		}(i)
	}
	wg.Wait()

	if s := h.Stats(); s.Clients != 0 || s.Published != 50 {
		t.Fatalf("unexpected stats after concurrent test: %+v", s)
	}
}
