package httpapi

import (
	"net/http"
	"time"

	"github.com/DoyleJ11/gridsync/internal/hub"
	"github.com/DoyleJ11/gridsync/internal/store"
	"github.com/DoyleJ11/gridsync/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Deps struct {
	Hub    *hub.Hub
	Store  store.Store
	WS     ws.Options
	Logger *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	log := d.Logger.Named("http")
	if d.WS.Logger == nil {
		d.WS.Logger = d.Logger
	}
	maxBytes := d.WS.MaxMessageBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	gh := &gridHandlers{store: d.Store, log: log, maxBytes: maxBytes}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, accessLog(log))

	r.Route("/api/grids", func(r chi.Router) {
		r.Post("/", gh.SaveGrid)
		r.Get("/", gh.ListGrids)
		r.Get("/{id}", gh.GetGrid)
	})
	r.Get("/healthz", Healthz(d.Hub))
	r.Get("/ws", ws.Handler(d.Hub, d.WS))
	return r
}

func accessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
