package gridsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/gridsync/internal/grid"
	"github.com/DoyleJ11/gridsync/pkg/types"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// echoServer writes every frame it receives back to the sender. The frames in
// first are written once, ahead of the first echo, so a test can subscribe
// before anything arrives.
func echoServer(t *testing.T, first ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		for {
			typ, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			for _, f := range first {
				if err := conn.Write(r.Context(), websocket.MessageText, []byte(f)); err != nil {
					return
				}
			}
			first = nil
			if err := conn.Write(r.Context(), typ, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func recvMessage(t *testing.T, ch <-chan types.Message, within time.Duration) types.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(within):
		t.Fatalf("timed out waiting for message")
		return types.Message{}
	}
}

func dial(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := Dial(ctx, wsURL(srv), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_SendAndSubscribeInOrder(t *testing.T) {
	c := dial(t, echoServer(t))

	got := make(chan types.Message, 8)
	c.Subscribe(func(m types.Message) { got <- m })

	for _, v := range []string{"A", "B", "C"} {
		g := grid.New(1, 1)
		g[0][0].Value = v
		c.Send(types.NewGridUpdate("g1", "ann", g))
	}

	for _, want := range []string{"A", "B", "C"} {
		m := recvMessage(t, got, time.Second)
		assert.Equal(t, types.TypeGridUpdate, m.Type)
		assert.Equal(t, "g1", m.ID)
		assert.Equal(t, want, m.Grid[0][0].Value)
	}
}

func TestClient_EveryHandlerSeesEveryMessage(t *testing.T) {
	c := dial(t, echoServer(t))

	a := make(chan types.Message, 1)
	b := make(chan types.Message, 1)
	c.Subscribe(func(m types.Message) { a <- m })
	c.Subscribe(func(m types.Message) { b <- m })

	c.Send(types.NewGridUpdate("g2", "bo", grid.New(2, 2)))

	assert.Equal(t, "g2", recvMessage(t, a, time.Second).ID)
	assert.Equal(t, "g2", recvMessage(t, b, time.Second).ID)
}

func TestClient_SkipsMalformedFrames(t *testing.T) {
	c := dial(t, echoServer(t, `{"type":`, `{"type":"GRID_UPDATE","id":"ok","grid":[[]]}`))

	got := make(chan types.Message, 2)
	c.Subscribe(func(m types.Message) { got <- m })
	c.Send(types.NewGridUpdate("trigger", "ann", grid.New(1, 1)))

	assert.Equal(t, "ok", recvMessage(t, got, time.Second).ID)
	assert.Equal(t, "trigger", recvMessage(t, got, time.Second).ID)
}

func TestClient_SendAfterCloseDoesNotPanic(t *testing.T) {
	c := dial(t, echoServer(t))
	require.NoError(t, c.Close())

	c.Send(types.NewGridUpdate("g1", "ann", grid.New(1, 1)))
	assert.NoError(t, c.Err())
	assert.NoError(t, c.Close())

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
}

func TestClient_ServerGoneStopsChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conn.Close(websocket.StatusGoingAway, "shutting down")
	}))
	t.Cleanup(srv.Close)

	c := dial(t, srv)
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("channel did not stop after the relay went away")
	}
	assert.ErrorIs(t, c.Err(), ErrClosed)

	// Editing continues; sends are dropped quietly.
	c.Send(types.NewGridUpdate("g1", "ann", grid.New(1, 1)))
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := Dial(ctx, "ws://127.0.0.1:1/ws", zaptest.NewLogger(t))
	assert.Error(t, err)
}
