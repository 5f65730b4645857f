// Package bidittest provides an in-process WebDriver BiDi remote end for tests.
package bidittest

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// DefaultContextID is the browsing context the default getTree handler reports.
const DefaultContextID = "ctx-1"

// Command is a command received over the WebSocket.
type Command struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Error is a protocol error reply.
type Error struct {
	Code    string
	Message string
}

// Handler answers one command. A non-nil *Error is sent as an error reply.
type Handler func(cmd Command) (any, *Error)

// Server is a fake remote end: HTTP session bootstrap plus a BiDi WebSocket.
type Server struct {
	*httptest.Server

	upgrader websocket.Upgrader

	mu               sync.Mutex
	sessionID        string
	sessions         int
	capabilities     map[string]any
	handlers         map[string]Handler
	commands         []Command
	deleted          bool
	deleteFailure    *httpFailure
	createFailure    *httpFailure
	omitWebSocketURL bool
	hold             chan struct{}
	held             int
	conn             *websocket.Conn
	writeMu          sync.Mutex
}

type httpFailure struct {
	status  int
	code    string
	message string
}

// NewServer starts a fake remote end with default handlers for getTree, navigate and
// traverseHistory.
func NewServer() *Server {
	s := &Server{
		sessionID: "session-1",
		handlers:  make(map[string]Handler),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.Handle("browsingContext.getTree", func(Command) (any, *Error) {
		return map[string]any{
			"contexts": []map[string]any{{
				"context":  DefaultContextID,
				"url":      "about:blank",
				"children": []any{},
			}},
		}, nil
	})
	s.Handle("browsingContext.navigate", func(cmd Command) (any, *Error) {
		var params struct {
			URL string `json:"url"`
		}
		_ = json.Unmarshal(cmd.Params, &params)
		return map[string]any{"navigation": fmt.Sprintf("nav-%d", cmd.ID), "url": params.URL}, nil
	})
	s.Handle("browsingContext.traverseHistory", func(Command) (any, *Error) {
		return map[string]any{}, nil
	})

	router := chi.NewRouter()
	router.Post("/session", s.handleNewSession)
	router.Route("/session/{sessionID}", func(r chi.Router) {
		r.Delete("/", s.handleDeleteSession)
		r.Get("/bidi", s.handleWebSocket)
	})
	s.Server = httptest.NewServer(router)
	return s
}

// Host returns the server host.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Listener.Addr().String())
	return host
}

// Port returns the server port.
func (s *Server) Port() uint16 {
	_, port, _ := net.SplitHostPort(s.Listener.Addr().String())
	n, _ := strconv.ParseUint(port, 10, 16)
	return uint16(n)
}

// Handle replaces the handler for method.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// FailNewSession makes POST /session answer with a WebDriver error.
func (s *Server) FailNewSession(status int, code, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createFailure = &httpFailure{status: status, code: code, message: message}
}

// FailDelete makes DELETE /session/{id} answer with a WebDriver error.
func (s *Server) FailDelete(status int, code, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteFailure = &httpFailure{status: status, code: code, message: message}
}

// OmitWebSocketURL makes the new session response leave out the webSocketUrl capability.
func (s *Server) OmitWebSocketURL() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitWebSocketURL = true
}

// HoldNewSession makes POST /session wait until the returned release func is called.
func (s *Server) HoldNewSession() (release func()) {
	hold := make(chan struct{})
	s.mu.Lock()
	s.hold = hold
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.hold == hold {
				s.hold = nil
			}
			s.mu.Unlock()
			close(hold)
		})
	}
}

// HeldNewSessions reports how many POST /session requests are waiting on HoldNewSession.
func (s *Server) HeldNewSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held
}

// Commands returns the commands received so far.
func (s *Server) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Command, len(s.commands))
	copy(out, s.commands)
	return out
}

// CommandsFor returns the received commands with the given method.
func (s *Server) CommandsFor(method string) []Command {
	var out []Command
	for _, cmd := range s.Commands() {
		if cmd.Method == method {
			out = append(out, cmd)
		}
	}
	return out
}

// RequestedCapabilities returns the capabilities body of the last POST /session.
func (s *Server) RequestedCapabilities() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capabilities
}

// SessionsCreated reports how many POST /session requests succeeded.
func (s *Server) SessionsCreated() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

// Deleted reports whether the session was deleted.
func (s *Server) Deleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted
}

// SendEvent pushes an event message to the connected client.
func (s *Server) SendEvent(method string, params any) error {
	return s.write(map[string]any{"type": "event", "method": method, "params": params})
}

// SendRaw pushes an arbitrary message to the connected client.
func (s *Server) SendRaw(msg any) error {
	return s.write(msg)
}

// DropConnection closes the WebSocket without a close frame.
func (s *Server) DropConnection() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.UnderlyingConn().Close()
	}
}

func (s *Server) write(msg any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no client connected")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Capabilities map[string]any `json:"capabilities"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFailure(w, &httpFailure{status: http.StatusBadRequest, code: "invalid argument", message: err.Error()})
		return
	}

	s.mu.Lock()
	hold := s.hold
	if hold != nil {
		s.held++
	}
	s.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
		}
		s.mu.Lock()
		s.held--
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.capabilities = body.Capabilities
	failure := s.createFailure
	omit := s.omitWebSocketURL
	sessionID := s.sessionID
	if failure == nil {
		s.sessions++
	}
	s.mu.Unlock()

	if failure != nil {
		writeFailure(w, failure)
		return
	}

	caps := map[string]any{
		"browserName":    "fakebrowser",
		"browserVersion": "1.0",
	}
	if !omit {
		caps["webSocketUrl"] = "ws" + strings.TrimPrefix(s.URL, "http") + "/session/" + sessionID + "/bidi"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"value": map[string]any{
			"sessionId":    sessionID,
			"capabilities": caps,
		},
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	failure := s.deleteFailure
	known := chi.URLParam(r, "sessionID") == s.sessionID
	if failure == nil && known {
		s.deleted = true
	}
	s.mu.Unlock()

	switch {
	case failure != nil:
		writeFailure(w, failure)
	case !known:
		writeFailure(w, &httpFailure{status: http.StatusNotFound, code: "invalid session id", message: "unknown session"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"value": nil})
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.mu.Lock()
		s.commands = append(s.commands, cmd)
		handler := s.handlers[cmd.Method]
		s.mu.Unlock()

		go s.reply(conn, cmd, handler)
	}
}

func (s *Server) reply(conn *websocket.Conn, cmd Command, handler Handler) {
	var msg map[string]any
	if handler == nil {
		msg = errorMessage(cmd.ID, &Error{Code: "unknown command", Message: cmd.Method})
	} else if result, protoErr := handler(cmd); protoErr != nil {
		msg = errorMessage(cmd.ID, protoErr)
	} else {
		msg = map[string]any{"type": "success", "id": cmd.ID, "result": result}
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.WriteJSON(msg)
}

func errorMessage(id uint64, e *Error) map[string]any {
	return map[string]any{
		"type":       "error",
		"id":         id,
		"error":      e.Code,
		"message":    e.Message,
		"stacktrace": "",
	}
}

func writeFailure(w http.ResponseWriter, f *httpFailure) {
	writeJSON(w, f.status, map[string]any{
		"value": map[string]any{
			"error":      f.code,
			"message":    f.message,
			"stacktrace": "",
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
