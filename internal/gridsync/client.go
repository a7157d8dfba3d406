// Package gridsync is the editor's side of the relay channel: one WebSocket
// per process, best-effort sends, and in-order delivery of inbound frames to
// subscribed handlers. There is no reconnect; once the channel fails, editing
// carries on locally.
package gridsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DoyleJ11/gridsync/pkg/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

const (
	outboxSize   = 32
	writeTimeout = 3 * time.Second
	readLimit    = 1 << 20
)

var ErrClosed = errors.New("sync channel closed")

type Handler func(types.Message)

type Client struct {
	conn *websocket.Conn
	log  *zap.Logger
	out  chan types.Message

	mu       sync.RWMutex
	handlers []Handler
	err      error

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closing atomic.Bool
}

// Dial opens the channel eagerly. The returned client owns the connection.
func Dial(ctx context.Context, url string, log *zap.Logger) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewClient(conn, log), nil
}

func NewClient(conn *websocket.Conn, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	conn.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:   conn,
		log:    log.Named("sync"),
		out:    make(chan types.Message, outboxSize),
		ctx:    ctx,
		cancel: cancel,
	}

	c.wg.Add(2)
	go c.writeLoop()
	go c.readLoop()
	return c
}

// Subscribe registers h for every inbound message, in arrival order, for the
// lifetime of the channel. Handlers run on the reader goroutine.
func (c *Client) Subscribe(h Handler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, h)
	c.mu.Unlock()
}

// Send queues msg for transmission. It never blocks and never fails from the
// caller's point of view; problems are logged.
func (c *Client) Send(msg types.Message) {
	select {
	case <-c.ctx.Done():
		c.log.Warn("dropping outbound message", zap.String("grid_id", msg.ID), zap.Error(c.closedErr()))
		return
	default:
	}

	select {
	case c.out <- msg:
	default:
		c.log.Warn("outbox full, dropping message", zap.String("grid_id", msg.ID))
	}
}

// Done is closed when the channel stops, by Close or by a connection error.
func (c *Client) Done() <-chan struct{} { return c.ctx.Done() }

// Err is the error that stopped the channel, nil while it is open or after a clean Close.
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

func (c *Client) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}
	failed := c.Err() != nil
	err := c.conn.Close(websocket.StatusNormalClosure, "bye")
	c.cancel()
	c.wg.Wait()
	if failed {
		// The connection was already gone; there is nothing left to report.
		return nil
	}
	return err
}

func (c *Client) closedErr() error {
	if err := c.Err(); err != nil {
		return err
	}
	return ErrClosed
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	c.cancel()
}

func (c *Client) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.out:
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := wsjson.Write(ctx, c.conn, msg)
			cancel()
			if err != nil {
				c.log.Warn("send failed", zap.String("grid_id", msg.ID), zap.Error(err))
			}
		}
	}
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			switch {
			case c.closing.Load() || c.ctx.Err() != nil:
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
				websocket.CloseStatus(err) == websocket.StatusGoingAway:
				c.log.Info("relay closed the channel")
				c.fail(ErrClosed)
			default:
				c.log.Error("sync channel failed", zap.Error(err))
				c.fail(err)
			}
			return
		}

		msg, err := types.Decode(data)
		if err != nil {
			c.log.Debug("ignoring malformed frame", zap.Error(err))
			continue
		}

		c.mu.RLock()
		handlers := c.handlers
		c.mu.RUnlock()
		for _, h := range handlers {
			h(msg)
		}
	}
}
