package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Keksclan/goRawrGate/audit"
	"github.com/Keksclan/goRawrGate/middleware"
)

const (
	streamBuffer     = 64
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 54 * time.Second
)

// MountAdmin registers the administrative introspection routes on mux,
// each wrapped in admin:
//
//	GET    /admin/cache/stats
//	DELETE /admin/cache
//	GET    /admin/security/logs?limit=N
//	GET    /admin/security/stats
//	GET    /admin/security/stream   (websocket)
//	GET    /admin/metrics           (when env.Metrics is set)
func MountAdmin(mux *http.ServeMux, env *Env, admin middleware.Middleware) {
	mux.Handle("GET /admin/cache/stats", guard(env.cacheStats, admin))
	mux.Handle("DELETE /admin/cache", guard(env.clearCache, admin))
	mux.Handle("GET /admin/security/logs", guard(env.securityLogs, admin))
	mux.Handle("GET /admin/security/stats", guard(env.securityStats, admin))
	mux.Handle("GET /admin/security/stream", guard(env.securityStream, admin))
	if env.Metrics != nil {
		mux.Handle("GET /admin/metrics", admin(env.Metrics))
	}
}

func (e *Env) cacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, e.Cache.Stats())
}

func (e *Env) clearCache(w http.ResponseWriter, r *http.Request) {
	n := e.Cache.Len()
	e.Cache.Clear()
	e.logger().InfoContext(r.Context(), "cache cleared", "entries", n)
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (e *Env) securityLogs(w http.ResponseWriter, r *http.Request) {
	limit := audit.DefaultRecentLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			middleware.WriteError(w, http.StatusBadRequest, CodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, e.Events.Recent(limit))
}

func (e *Env) securityStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, e.Events.Stats())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// securityStream pushes every new security event to the client as a JSON
// text message until either side closes.
func (e *Env) securityStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger().WarnContext(r.Context(), "websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	events, cancel := e.Events.Subscribe(streamBuffer)
	defer cancel()

	// The read loop only serves control frames and notices the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
