// Package gateway exposes the driver over WebSocket: dialog events are
// broadcast to every connected client, and clients submit user sayings and
// question answers as JSON requests.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dominds/minddrive/internal/bus"
	"github.com/dominds/minddrive/internal/config"
	"github.com/dominds/minddrive/internal/dialog"
	"github.com/dominds/minddrive/internal/driver"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// Request is one client request frame.
type Request struct {
	Op string `json:"op"` // "say" | "answer" | "stop"

	Agent    string `json:"agent,omitempty"`
	Content  string `json:"content,omitempty"`
	Grammar  string `json:"grammar,omitempty"`
	Language string `json:"language,omitempty"`

	DialogKey  string `json:"dialog_key,omitempty"`
	QuestionID string `json:"question_id,omitempty"`
	Reason     string `json:"reason,omitempty"` // stop: "user" | "emergency"
}

// Server is the WebSocket event gateway.
type Server struct {
	cfg *config.Config
	rt  *driver.Runtime
	pub bus.Publisher

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]chan bus.Event

	httpServer *http.Server
}

// NewServer creates a gateway bound to the runtime and event bus.
func NewServer(cfg *config.Config, rt *driver.Runtime, pub bus.Publisher) *Server {
	s := &Server{
		cfg:     cfg,
		rt:      rt,
		pub:     pub,
		clients: make(map[string]chan bus.Event),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	return s
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealthz)

	s.pub.Subscribe("gateway", s.fanOut)
	defer s.pub.Unsubscribe("gateway")

	s.httpServer = &http.Server{Addr: s.cfg.GatewayAddr(), Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()
	slog.Info("gateway listening", "addr", s.cfg.GatewayAddr())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// fanOut forwards one bus event to every connected client. Slow clients
// drop events rather than block the driver.
func (s *Server) fanOut(evt bus.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, ch := range s.clients {
		select {
		case ch <- evt:
		default:
			slog.Warn("gateway client lagging, event dropped", "client", id, "event", evt.Name)
		}
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	id := uuid.NewString()
	ch := make(chan bus.Event, sendBufferSize)

	s.mu.Lock()
	s.clients[id] = ch
	s.mu.Unlock()
	slog.Info("gateway client connected", "client", id, "remote", r.RemoteAddr)

	done := make(chan struct{})
	go s.writeLoop(conn, ch, done)
	s.readLoop(conn)

	close(done)
	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
	_ = conn.Close()
	slog.Info("gateway client disconnected", "client", id)
}

func (s *Server) writeLoop(conn *websocket.Conn, ch chan bus.Event, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case evt := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}
}

func (s *Server) readLoop(conn *websocket.Conn) {
	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		s.dispatch(conn, req)
	}
}

func (s *Server) dispatch(conn *websocket.Conn, req Request) {
	fail := func(detail string) {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(map[string]string{"error": detail})
	}
	switch req.Op {
	case "say":
		if req.Agent == "" || req.Content == "" {
			fail("say requires agent and content")
			return
		}
		go func() {
			if err := s.rt.SubmitUserSaying(context.Background(), req.Agent, req.Content, req.Grammar, req.Language); err != nil {
				slog.Warn("user saying drive failed", "agent", req.Agent, "error", err)
			}
		}()
	case "answer":
		id, ok := dialog.ParseKey(req.DialogKey)
		if !ok {
			fail("answer requires a root/self dialog_key")
			return
		}
		go func() {
			if err := s.rt.AnswerQuestion(context.Background(), id, req.QuestionID, req.Content, req.Language); err != nil {
				slog.Warn("answer drive failed", "dialog", id.Key(), "error", err)
			}
		}()
	case "stop":
		id, ok := dialog.ParseKey(req.DialogKey)
		if !ok {
			fail("stop requires a root/self dialog_key")
			return
		}
		reason := dialog.StopUser
		if req.Reason == "emergency" {
			reason = dialog.StopEmergency
		}
		s.rt.Stop(id, reason, "stop requested via gateway")
	default:
		fail("unknown op " + req.Op)
	}
}
