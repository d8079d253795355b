// Package webhook exposes the control-plane HTTP server that the browser
// observer calls into: meeting start/end/heartbeat plus a status surface
// (JSON snapshot and a websocket push stream for UIs).
package webhook

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ajur/huddlelight/internal/diaglog"
	"github.com/ajur/huddlelight/internal/reconciler"
)

// Server is the webhook listener. It is created fresh on every bridge
// Offline→Online transition and torn down on Offline.
type Server struct {
	addr     string
	rec      *reconciler.Reconciler
	diag     *diaglog.Logger
	listener net.Listener
	httpSrv  *http.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	started bool
}

// New builds a server bound to addr (host:port; port 0 picks a free one).
func New(addr string, rec *reconciler.Reconciler, diag *diaglog.Logger) *Server {
	s := &Server{
		addr: addr,
		rec:  rec,
		diag: diag,
		upgrader: websocket.Upgrader{
			// The control plane is loopback-only and CORS-open by design.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/meeting-start", s.cors(s.handleEvent("start", rec.OnStart)))
	mux.HandleFunc("/meeting-end", s.cors(s.handleEvent("end", rec.OnEnd)))
	mux.HandleFunc("/meeting-heartbeat", s.cors(s.handleEvent("heartbeat", rec.OnHeartbeat)))
	mux.HandleFunc("/status", s.cors(s.handleStatus))
	mux.HandleFunc("/status/ws", s.handleStatusWS)

	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins listening and serving in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.started = true

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("webhook server stopped: %v", err)
		}
	}()

	log.Printf("webhook listener started on %s", listener.Addr())
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the listener down, closing any open websocket streams.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		_ = s.httpSrv.Close()
	}
	log.Println("webhook listener stopped")
}

// cors wraps a handler with the permissive CORS policy the browser observer
// requires, and short-circuits preflight requests.
func (s *Server) cors(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h(w, r)
	}
}

// handleEvent maps one webhook path onto a reconciler operation. Only POST
// is accepted; the body is ignored.
func (s *Server) handleEvent(name string, fn func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.diag.Log(diaglog.LogEntry{
			Component: diaglog.ComponentWebhook,
			Event:     "webhook_" + name,
			Payload:   map[string]interface{}{"remote": r.RemoteAddr},
		})
		fn()
		w.WriteHeader(http.StatusOK)
	}
}

// handleStatus serves the current reconciler snapshot as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.rec.Snapshot()); err != nil {
		log.Printf("status encode failed: %v", err)
	}
}

// handleStatusWS upgrades to a websocket and pushes a snapshot on every
// meeting transition, starting with the current state.
func (s *Server) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("status websocket upgrade failed: %v", err)
		return
	}

	snapshots, cancel := s.rec.Subscribe()
	defer cancel()
	defer conn.Close()

	// Drain client frames so pings are answered and closure is noticed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(s.rec.Snapshot()); err != nil {
		return
	}

	for {
		select {
		case snap := <-snapshots:
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
