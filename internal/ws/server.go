package ws

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// HandlerFunc processes a client message. Messages from one connection are
// dispatched one at a time in arrival order, so handlers must not block;
// slow work belongs on the owner's own goroutine.
type HandlerFunc func(c *Conn, msg *ClientMessage)

// AuthFunc resolves the profile of an upgrade request. An error rejects the
// upgrade with 401.
type AuthFunc func(r *http.Request) (profile string, err error)

// Server manages WebSocket connections and message dispatch.
type Server struct {
	mu    sync.RWMutex
	conns map[*Conn]struct{}

	handlers     map[string]HandlerFunc
	auth         AuthFunc
	disconnectFn func(c *Conn) // called when a connection is removed
}

func NewServer() *Server {
	return &Server{
		conns:    make(map[*Conn]struct{}),
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers a handler for a named event.
func (s *Server) Handle(event string, fn HandlerFunc) {
	s.handlers[event] = fn
}

// Authenticate installs the upgrade authenticator.
func (s *Server) Authenticate(fn AuthFunc) {
	s.auth = fn
}

// ServeHTTP upgrades the HTTP request to a WebSocket connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var profile string
	if s.auth != nil {
		p, err := s.auth(r)
		if err != nil {
			slog.Debug("ws auth", "remote", r.RemoteAddr, "err", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		profile = p
	}

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Error("ws accept", "err", err)
		return
	}

	c := newConn(ws, s, profile)
	s.add(c)

	slog.Debug("ws connected", "conn", c.id, "profile", profile, "remote", r.RemoteAddr)

	if h, ok := s.handlers["__connect"]; ok {
		h(c, nil)
	}

	// Block on the read pump; this goroutine is owned by net/http
	c.readPump(r.Context())
}

// BroadcastBytes sends pre-marshaled JSON bytes to all connections.
func (s *Server) BroadcastBytes(data []byte) {
	s.mu.RLock()
	targets := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		targets = append(targets, c)
	}
	s.mu.RUnlock()

	for _, c := range targets {
		c.writeRaw(data)
	}
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// HasConns reports whether any client is connected.
func (s *Server) HasConns() bool {
	return s.ConnectionCount() > 0
}

// CloseAll closes every connection. Used on shutdown.
func (s *Server) CloseAll() {
	s.mu.RLock()
	all := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		all = append(all, c)
	}
	s.mu.RUnlock()

	for _, c := range all {
		c.Close()
	}
}

func (s *Server) add(c *Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) remove(c *Conn) {
	s.mu.Lock()
	_, ok := s.conns[c]
	delete(s.conns, c)
	s.mu.Unlock()
	if !ok {
		return
	}

	if s.disconnectFn != nil {
		s.disconnectFn(c)
	}

	slog.Debug("ws disconnected", "conn", c.id, "remaining", s.ConnectionCount())
}

// OnDisconnect registers a callback that fires when a connection is removed.
func (s *Server) OnDisconnect(fn func(c *Conn)) {
	s.disconnectFn = fn
}

// Dispatch looks up and invokes the handler for the given message event.
func (s *Server) Dispatch(c *Conn, msg *ClientMessage) {
	h, ok := s.handlers[msg.Event]
	if !ok {
		slog.Warn("ws unknown event", "event", msg.Event)
		if msg.ID != nil {
			SendAck(c, *msg.ID, ErrorResponse{OK: false, Msg: "unknown event: " + msg.Event})
		}
		return
	}
	h(c, msg)
}

// HandleConnect registers a handler that fires when a new WebSocket connection
// is established (before the read pump starts).
func (s *Server) HandleConnect(fn func(c *Conn)) {
	s.handlers["__connect"] = func(c *Conn, _ *ClientMessage) {
		fn(c)
	}
}
