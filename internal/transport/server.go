package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"uisync/internal/broadcast"
	"uisync/internal/configuration"
	"uisync/internal/metrics"
	"uisync/internal/protocol"
)

const livenessBody = "<p>UI Sync is online</p>"

// Handler receives connection lifecycle callbacks and decoded frames.
// Calls for one connection are made sequentially from its read loop.
//
// HandleConnect must send the connection one direct message. Broadcasts reach a
// connection only after that greeting, so it is always the first frame delivered.
type Handler interface {
	HandleConnect(connID string)
	HandleFrame(connID string, frame protocol.Frame)
	HandleDisconnect(connID string)
}

type Server struct {
	cfg        *configuration.TransportConfigurationProperties
	hub        *Hub
	handler    Handler
	httpServer *http.Server
	listener   net.Listener
	conns      sync.WaitGroup
}

func NewServer(cfg *configuration.TransportConfigurationProperties, hub *Hub, handler Handler) *Server {
	s := &Server{
		cfg:     cfg,
		hub:     hub,
		handler: handler,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveLiveness)
	mux.Handle(cfg.Path, websocket.Server{
		Handshake: s.checkOrigin,
		Handler:   s.serveConn,
	})

	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the HTTP routes, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = lis

	slog.Info("transport listening", "addr", lis.Addr().String(), "path", s.cfg.Path)
	go func() {
		if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("transport server error", "error", err)
		}
	}()
	return nil
}

func (s *Server) Addr() string {
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

// Stop closes every websocket, waits for their disconnect handling and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.CloseAll()

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("transport stop timed out waiting for connections", "open", s.hub.Len())
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown transport: %w", err)
	}
	slog.Info("transport stopped")
	return nil
}

func (s *Server) serveLiveness(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.setCORSHeaders(w, r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, livenessBody)
}

func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AllowsAnyOrigin() {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		return
	}
	if origin := r.Header.Get("Origin"); s.originAllowed(origin) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
}

// checkOrigin runs during the websocket handshake. Requests without an Origin
// header come from non-browser clients and are accepted.
func (s *Server) checkOrigin(config *websocket.Config, r *http.Request) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	config.Origin = u
	if s.cfg.AllowsAnyOrigin() || s.originAllowed(origin) {
		return nil
	}
	slog.Warn("rejected websocket origin", "origin", origin, "remote", r.RemoteAddr)
	return fmt.Errorf("origin %q not allowed", origin)
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) serveConn(ws *websocket.Conn) {
	s.conns.Add(1)
	defer s.conns.Done()

	ws.MaxPayloadBytes = s.cfg.MaxFrameBytes

	p := newPeer(uuid.NewString(), ws, s.cfg.SendQueueSize, s.cfg.WriteTimeoutDuration())
	s.hub.register(p)
	go p.writeLoop()

	slog.Debug("connection opened", "conn", p.id, "remote", ws.Request().RemoteAddr)
	s.handler.HandleConnect(p.id)

	reason := s.readLoop(p)

	s.handler.HandleDisconnect(p.id)
	s.hub.unregister(p.id)
	<-p.done
	p.close(reason)

	reason = p.reason(reason)
	metrics.ConnectionsClosedTotal.WithLabelValues(reason).Inc()
	slog.Debug("connection closed", "conn", p.id, "reason", reason)
}

func (s *Server) readLoop(p *peer) string {
	for {
		var raw []byte
		err := websocket.Message.Receive(p.ws, &raw)
		if err != nil {
			if errors.Is(err, websocket.ErrFrameTooLarge) {
				metrics.FramesTotal.WithLabelValues("rejected").Inc()
				s.replyError(p.id, "", protocol.CodeFrameTooLarge,
					fmt.Sprintf("frame exceeds %d bytes", s.cfg.MaxFrameBytes))
				continue
			}
			if errors.Is(err, io.EOF) {
				return "client_closed"
			}
			slog.Debug("websocket read failed", "conn", p.id, "error", err)
			return "read_error"
		}
		metrics.FramesTotal.WithLabelValues("in").Inc()

		var frame protocol.Frame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
			s.replyError(p.id, "", protocol.CodeMalformedPayload, "frame must be a JSON object with an event name")
			continue
		}
		s.handler.HandleFrame(p.id, frame)
	}
}

func (s *Server) replyError(connID, event, code, message string) {
	s.hub.Send(connID, broadcast.Event{
		Name: protocol.EventError,
		Data: protocol.Error{Event: event, Code: code, Message: message},
	})
}
