// Package status serves the session state over HTTP and a websocket feed.
package status

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"edgelink/internal/edge"
	"edgelink/internal/logging"
	"edgelink/internal/protocol"
	"edgelink/internal/session"
)

// Controller is the part of the orchestrator the status server drives.
type Controller interface {
	Status() session.Status
	SetTargetEdge(e edge.Edge)
	Quit()
}

// Server exposes /api/status, /health and /ws. It implements
// session.Notifier so state changes are pushed to websocket clients.
type Server struct {
	ctrl  Controller
	token string
	hub   *hub
	log   logrus.FieldLogger

	mu   sync.Mutex
	http *http.Server
	ln   net.Listener
}

// NewServer creates a new status Server. A non-empty token is required as
// a bearer token on every request except /health.
func NewServer(ctrl Controller, token string) *Server {
	s := &Server{
		ctrl:  ctrl,
		token: token,
		log:   logging.MustGetLogger("status"),
	}
	s.hub = newHub(s)
	go s.hub.run()
	return s
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.hub.handleWebSocket)
	return s.authMiddleware(s.recoverMiddleware(mux))
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "status server failed to listen on %s", addr)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.http, s.ln = srv, ln
	s.mu.Unlock()

	s.log.Infof("Status server listening on %s", ln.Addr())
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("Status server stopped")
		}
	}()
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops the HTTP server and disconnects websocket clients.
func (s *Server) Close() error {
	s.hub.close()
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// SessionModeChanged implements session.Notifier.
func (s *Server) SessionModeChanged(m session.Mode) {
	s.hub.publish(modeMessage(m, s.ctrl.Status().TargetEdge))
}

// PeerConnected implements session.Notifier.
func (s *Server) PeerConnected() {
	s.hub.publish(peerMessage(true))
}

// PeerDisconnected implements session.Notifier.
func (s *Server) PeerDisconnected() {
	s.hub.publish(peerMessage(false))
}

func modeMessage(m session.Mode, target edge.Edge) protocol.Message {
	return protocol.Message{
		Type:    protocol.TypeMode,
		Payload: protocol.ModePayload{Mode: m.String(), TargetEdge: target.String()},
	}
}

func peerMessage(connected bool) protocol.Message {
	return protocol.Message{Type: protocol.TypePeer, Payload: protocol.PeerPayload{Connected: connected}}
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Errorf("Recovered from panic: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks the bearer token if one is configured
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debugf("%s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)

		if r.URL.Path == "/health" || s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.ctrl.Status()); err != nil {
		s.log.WithError(err).Debug("Failed to write status")
	}
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
