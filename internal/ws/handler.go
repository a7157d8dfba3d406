package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/DoyleJ11/gridsync/internal/hub"
	"github.com/DoyleJ11/gridsync/pkg/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Options struct {
	// OriginPatterns loosens the same-origin check. Leave empty outside dev.
	OriginPatterns  []string
	MaxMessageBytes int64
	RatePerSecond   float64
	Burst           int
	Logger          *zap.Logger
}

const (
	defaultMaxMessageBytes = 1 << 20
	outboxSize             = 16
	writeTimeout           = 3 * time.Second
)

// Handler upgrades to a WebSocket and relays GRID_UPDATE frames between
// every connected editor. The hub never echoes a frame to its sender.
func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaultMaxMessageBytes
	}
	log := opts.Logger.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(opts.MaxMessageBytes)

		clientID := uuid.NewString()
		clog := log.With(zap.String("client_id", clientID))

		out := make(chan []byte, outboxSize)
		if !h.Send(hub.Join{ClientID: clientID, Outbox: out}) {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
		defer h.Send(hub.Leave{ClientID: clientID})

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for frame := range out {
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				err := conn.Write(ctx, websocket.MessageText, frame)
				cancel()
				if err != nil {
					clog.Debug("write failed", zap.Error(err))
					return
				}
			}
			// Outbox closed by the hub: dropped as slow, or shutting down.
			conn.Close(websocket.StatusGoingAway, "relay closed")
		}()

		th := newThrottle(opts.RatePerSecond, opts.Burst, func(p hub.Publish) { h.Send(p) })
		defer th.stop()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				// Clean close/going-away is normal. Anything else, including a
				// frame over the read limit, has already closed the socket.
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if !errors.Is(err, context.Canceled) {
						clog.Info("read ended", zap.Error(err))
					}
				}
				return
			}

			msg, err := types.Decode(data)
			if err != nil {
				replyError(r.Context(), conn, "bad json")
				continue
			}
			if msg.Type != types.TypeGridUpdate {
				replyError(r.Context(), conn, "unknown type")
				continue
			}
			if err := msg.Grid.Validate(); err != nil {
				replyError(r.Context(), conn, "invalid grid: "+err.Error())
				continue
			}

			// Forward the frame as received; the relay never rewrites content.
			if !th.offer(hub.Publish{From: clientID, GridID: msg.ID, Frame: data}) {
				clog.Debug("update held by rate limit", zap.String("grid_id", msg.ID))
			}
		}
	}
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func replyError(ctx context.Context, conn *websocket.Conn, reason string) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = wsjson.Write(ctx, conn, types.NewError(reason))
}
