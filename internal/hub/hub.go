package hub

import (
	"context"

	"go.uber.org/zap"
)

type HubMsg interface{ isHubMsg() }

// Join registers a connection. The hub closes Outbox when the client leaves,
// is dropped for being slow, or the hub shuts down.
type Join struct {
	ClientID string
	Outbox   chan []byte
}

type Leave struct {
	ClientID string
}

// Publish fans Frame out to every client except From.
type Publish struct {
	From   string
	GridID string
	Frame  []byte
}

type GetStats struct {
	Reply chan Stats
}

type ShutdownHub struct{}

func (Join) isHubMsg()        {}
func (Leave) isHubMsg()       {}
func (Publish) isHubMsg()     {}
func (GetStats) isHubMsg()    {}
func (ShutdownHub) isHubMsg() {}

type Stats struct {
	Clients   int
	Published int
	Dropped   int
}

type Hub struct {
	inbox   chan HubMsg
	clients map[string]chan []byte
	stats   Stats
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		clients: make(map[string]chan []byte),
		log:     log.Named("hub"),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.done }

// Send posts m unless the hub has stopped.
func (h *Hub) Send(m HubMsg) bool {
	if h.ctx.Err() != nil {
		return false
	}
	select {
	case h.inbox <- m:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Stats asks the loop for its counters. Zero Stats once the hub has stopped.
func (h *Hub) Stats() Stats {
	reply := make(chan Stats, 1)
	if !h.Send(GetStats{Reply: reply}) {
		return Stats{}
	}
	select {
	case s := <-reply:
		return s
	case <-h.done:
		return Stats{}
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Join:
				h.clients[msg.ClientID] = msg.Outbox
				h.log.Debug("client joined", zap.String("client_id", msg.ClientID), zap.Int("clients", len(h.clients)))

			case Leave:
				if ch, ok := h.clients[msg.ClientID]; ok {
					close(ch)
					delete(h.clients, msg.ClientID)
					h.log.Debug("client left", zap.String("client_id", msg.ClientID), zap.Int("clients", len(h.clients)))
				}

			case Publish:
				h.stats.Published++
				h.broadcast(msg)

			case GetStats:
				s := h.stats
				s.Clients = len(h.clients)
				msg.Reply <- s

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for id, ch := range h.clients {
		close(ch) // Tell the writer no more frames are coming
		delete(h.clients, id)
	}
	h.cancel()
}

func (h *Hub) broadcast(msg Publish) {
	for id, ch := range h.clients {
		if id == msg.From {
			continue
		}
		select {
		case ch <- msg.Frame:
			//ok
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(h.clients, id)
			h.stats.Dropped++
			h.log.Warn("dropping slow client", zap.String("client_id", id), zap.String("grid_id", msg.GridID))
		}
	}
}
