package bidi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/odvcencio/bidibot/pkg/observability"
)

const (
	closeWait = 2 * time.Second
	// maxResponseBytes bounds WebDriver HTTP response bodies.
	maxResponseBytes = 1 << 20
)

// Session is a WebDriver BiDi client over a single WebSocket connection.
// One read loop dispatches responses to waiting commands by id; writes are serialized.
type Session struct {
	cfg     Config
	caps    Capabilities
	baseURL string
	logger  *observability.Logger

	mu       sync.Mutex
	starting bool
	started  bool
	closed   bool
	info     *SessionInfo
	conn     *websocket.Conn
	done     chan struct{}
	readErr  error

	writeMu sync.Mutex
	nextID  atomic.Uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan *message
}

// NewSession builds an unstarted session for the WebDriver endpoint at host:port. No I/O happens
// until Start.
func NewSession(caps Capabilities, host string, port uint16, cfg Config) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		cfg:     cfg,
		caps:    caps,
		baseURL: "http://" + net.JoinHostPort(host, strconv.Itoa(int(port))),
		logger:  cfg.Logger.WithComponent("bidi"),
		pending: make(map[uint64]chan *message),
	}
}

// Info returns the started session's details, or nil before Start.
func (s *Session) Info() *SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Start creates the remote session over HTTP and upgrades to the BiDi WebSocket.
// Network I/O runs without holding the session lock, so Info and Close stay responsive.
// A Close issued while Start is in flight wins: the new remote session is torn down.
func (s *Session) Start(ctx context.Context) (*SessionInfo, error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return nil, ErrSessionClosed
	case s.started || s.starting:
		s.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	s.starting = true
	s.mu.Unlock()

	info, conn, err := s.connect(ctx)

	s.mu.Lock()
	s.starting = false
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		s.deleteSessionQuietly(info.SessionID)
		return nil, ErrSessionClosed
	}
	s.conn = conn
	s.info = info
	s.started = true
	s.done = make(chan struct{})
	s.logger = s.logger.WithSession(info.SessionID)
	go s.readLoop(conn, s.done)
	s.mu.Unlock()

	return info, nil
}

func (s *Session) connect(ctx context.Context) (*SessionInfo, *websocket.Conn, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	info, err := s.createSession(ctx)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Debug("remote session created",
		"bidi_session_id", info.SessionID,
		"websocket_url", info.WebSocketURL,
	)

	conn, resp, err := s.cfg.Dialer.DialContext(ctx, info.WebSocketURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		s.deleteSessionQuietly(info.SessionID)
		return nil, nil, fmt.Errorf("dial %s: %w", info.WebSocketURL, err)
	}
	return info, conn, nil
}

// Close deletes the remote session and closes the WebSocket. Closing an unstarted session only
// marks it closed.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.closed = true
	started := s.started
	info := s.info
	conn := s.conn
	done := s.done
	s.mu.Unlock()

	if !started {
		return nil
	}

	ctx, cancel := withTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	deleteErr := s.deleteSession(ctx, info.SessionID)

	s.writeMu.Lock()
	closeErr := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeWait),
	)
	s.writeMu.Unlock()
	_ = conn.Close()

	select {
	case <-done:
	case <-time.After(closeWait):
	}

	if closeErr != nil && !errors.Is(closeErr, websocket.ErrCloseSent) {
		// The remote end may already have dropped the socket after the DELETE.
		s.logger.Debug("websocket close frame not delivered", "error", closeErr.Error())
	}
	return deleteErr
}

// BrowsingContextGetTree lists browsing contexts.
func (s *Session) BrowsingContextGetTree(ctx context.Context, params GetTreeParameters) (*GetTreeResult, error) {
	var result GetTreeResult
	if err := s.call(ctx, MethodGetTree, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// BrowsingContextNavigate navigates a browsing context to a URL.
func (s *Session) BrowsingContextNavigate(ctx context.Context, params NavigateParameters) (*NavigateResult, error) {
	if params.Wait != nil && !params.Wait.Valid() {
		return nil, fmt.Errorf("%s: invalid readiness state %q", MethodNavigate, *params.Wait)
	}
	var result NavigateResult
	if err := s.call(ctx, MethodNavigate, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// BrowsingContextTraverseHistory moves a browsing context through its session history.
func (s *Session) BrowsingContextTraverseHistory(ctx context.Context, params TraverseHistoryParameters) (*TraverseHistoryResult, error) {
	var result TraverseHistoryResult
	if err := s.call(ctx, MethodTraverseHistory, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Session) ensureOpen() (*websocket.Conn, chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, ErrSessionClosed
	}
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.conn, s.done, nil
}

func (s *Session) call(ctx context.Context, method string, params any, result any) (err error) {
	conn, done, err := s.ensureOpen()
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx, s.cfg.CommandTimeout)
	defer cancel()

	id := s.nextID.Add(1)
	ctx, span := observability.StartSpan(ctx, method)
	span.SetAttributes(observability.AttrCommandID.Int64(int64(id)), observability.AttrMethod.String(method))
	start := time.Now()
	outcome := "success"
	defer func() {
		if err != nil {
			outcome = commandOutcome(err)
			if code := ErrorCode(err); code != "" {
				span.SetAttributes(observability.AttrErrorCode.String(code))
			}
		}
		elapsed := time.Since(start)
		observability.CommandsTotal.WithLabelValues(method, outcome).Inc()
		observability.CommandLatency.WithLabelValues(method).Observe(elapsed.Seconds())
		s.logger.WithContext(ctx).CommandCompleted(id, method, outcome, float64(elapsed.Microseconds())/1000)
		observability.EndSpan(span, err)
	}()

	data, err := json.Marshal(commandMessage{ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	reply := make(chan *message, 1)
	s.pendingMu.Lock()
	s.pending[id] = reply
	s.pendingMu.Unlock()
	defer s.forget(id)

	s.writeMu.Lock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	err = conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: send %s: %v", ErrConnectionLost, method, err)
	}
	s.logger.CommandSent(id, method, len(data))

	select {
	case msg := <-reply:
		return decodeReply(method, msg, result)
	case <-done:
		return s.connectionLost(method)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s: %v", ErrCommandTimeout, method, ctx.Err())
		}
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

func (s *Session) forget(id uint64) {
	s.pendingMu.Lock()
	delete(s.pending, id)
	s.pendingMu.Unlock()
}

func (s *Session) connectionLost(method string) error {
	s.mu.Lock()
	readErr := s.readErr
	s.mu.Unlock()
	if readErr != nil {
		return fmt.Errorf("%w: %s: %v", ErrConnectionLost, method, readErr)
	}
	return fmt.Errorf("%w: %s", ErrConnectionLost, method)
}

func (s *Session) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("read loop stopped", "error", err.Error())
			}
			return
		}
		s.dispatch(data)
	}
}

func (s *Session) dispatch(data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn("discarding malformed message", "error", err.Error(), "payload_size", len(data))
		return
	}

	if msg.Type == "event" {
		observability.EventsDropped.WithLabelValues(msg.Method).Inc()
		s.logger.EventReceived(msg.Method, len(data))
		return
	}

	if msg.ID == nil {
		s.logger.Warn("remote end reported an error without a command id",
			"error_code", msg.Error,
			"message", msg.Message,
		)
		return
	}

	s.pendingMu.Lock()
	reply, ok := s.pending[*msg.ID]
	delete(s.pending, *msg.ID)
	s.pendingMu.Unlock()
	if !ok {
		s.logger.Debug("discarding response for abandoned command", "command_id", *msg.ID)
		return
	}
	reply <- &msg
}

func decodeReply(method string, msg *message, result any) error {
	switch msg.Type {
	case "success":
		if result == nil || len(msg.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(msg.Result, result); err != nil {
			return fmt.Errorf("%w: decode %s result: %v", ErrInvalidResponse, method, err)
		}
		return nil
	case "error":
		code := msg.Error
		if code == "" {
			code = "unknown error"
		}
		return &ProtocolError{
			Code:       code,
			Message:    msg.Message,
			Stacktrace: msg.Stacktrace,
			Method:     method,
		}
	default:
		return fmt.Errorf("%w: %s: unexpected message type %q", ErrInvalidResponse, method, msg.Type)
	}
}

func commandOutcome(err error) string {
	switch {
	case IsTimeoutError(err):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

func (s *Session) createSession(ctx context.Context) (*SessionInfo, error) {
	body, err := json.Marshal(newSessionRequest{Capabilities: s.caps.withWebSocketURL()})
	if err != nil {
		return nil, fmt.Errorf("marshal capabilities: %w", err)
	}

	var payload newSessionResponse
	if err := s.doHTTP(ctx, http.MethodPost, "/session", body, &payload); err != nil {
		return nil, err
	}
	if payload.Value.SessionID == "" {
		return nil, fmt.Errorf("%w: new session response has no sessionId", ErrInvalidResponse)
	}

	wsURL, _ := payload.Value.Capabilities["webSocketUrl"].(string)
	if wsURL == "" {
		s.deleteSessionQuietly(payload.Value.SessionID)
		return nil, ErrMissingWebSocket
	}
	if _, err := url.Parse(wsURL); err != nil {
		s.deleteSessionQuietly(payload.Value.SessionID)
		return nil, fmt.Errorf("%w: webSocketUrl %q: %v", ErrInvalidResponse, wsURL, err)
	}

	return &SessionInfo{
		SessionID:    payload.Value.SessionID,
		WebSocketURL: wsURL,
		Capabilities: payload.Value.Capabilities,
	}, nil
}

func (s *Session) deleteSession(ctx context.Context, sessionID string) error {
	return s.doHTTP(ctx, http.MethodDelete, "/session/"+url.PathEscape(sessionID), nil, nil)
}

func (s *Session) deleteSessionQuietly(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), closeWait)
	defer cancel()
	if err := s.deleteSession(ctx, sessionID); err != nil {
		s.logger.Debug("cleanup of remote session failed", "bidi_session_id", sessionID, "error", err.Error())
	}
}

func (s *Session) doHTTP(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return fmt.Errorf("read %s %s response: %w", method, path, err)
	}
	if len(raw) > maxResponseBytes {
		return fmt.Errorf("%w: %s %s response exceeds %d bytes", ErrInvalidResponse, method, path, maxResponseBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode}
		var failure struct {
			Value struct {
				Error   string `json:"error"`
				Message string `json:"message"`
			} `json:"value"`
		}
		if json.Unmarshal(raw, &failure) == nil {
			httpErr.Code = failure.Value.Error
			httpErr.Message = failure.Value.Message
		}
		return httpErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", ErrInvalidResponse, method, path, err)
	}
	return nil
}

// withTimeout applies timeout to ctx unless the caller already set a deadline.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline || timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
