// Package bot drives a single WebDriver BiDi session: it opens the session, remembers the
// browsing context the browser starts with and runs navigation against it until closed.
package bot

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/odvcencio/bidibot/pkg/bidi"
	"github.com/odvcencio/bidibot/pkg/errors"
	"github.com/odvcencio/bidibot/pkg/nav"
	"github.com/odvcencio/bidibot/pkg/observability"
	"github.com/odvcencio/bidibot/pkg/telemetry"
)

const (
	msgStartFailed   = "Starting the WebDriver BiDi session failed"
	msgGetTreeFailed = "The browsingContext.getTree command failed"
	msgEmptyTree     = "The browsingContext.getTree command returned no browsing contexts"
	msgAlreadyOpen   = "The WebDriver BiDi session is already open"
	msgSessionClosed = "The WebDriver BiDi session is closed"
	msgCloseFailed   = "Closing the WebDriver BiDi session failed"
	msgAlreadyClosed = "The WebDriver BiDi session is already closed"
	msgNoBrowsingCtx = "No browsing context available"
)

type state int

const (
	stateConstructed state = iota
	// started: the protocol session exists but no browsing context has been found yet.
	stateStarted
	stateOpen
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateConstructed:
		return "constructed"
	case stateStarted:
		return "started"
	case stateOpen:
		return "open"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Bot owns one protocol client and the browsing context navigation runs in.
// Operations are serialized; a Bot is not reusable after Close.
type Bot struct {
	id     string
	client bidi.Client
	logger *observability.Logger
	hub    *telemetry.Hub

	mu              sync.Mutex
	state           state
	sessionID       string
	browsingContext string
	hasContext      bool
}

// New builds a Bot whose client will connect to the WebDriver endpoint at host:port with caps.
// Nothing is contacted until Open.
func New(caps bidi.Capabilities, host string, port uint16, opts ...Option) *Bot {
	o := buildOptions(opts)
	return newBot(bidi.NewSession(caps, host, port, o.clientConfig), o)
}

// NewWithClient builds a Bot around an existing client.
func NewWithClient(client bidi.Client, opts ...Option) *Bot {
	return newBot(client, buildOptions(opts))
}

func newBot(client bidi.Client, o options) *Bot {
	id := uuid.NewString()
	return &Bot{
		id:     id,
		client: client,
		logger: o.logger.WithComponent("bot").WithSession(id),
		hub:    o.hub,
	}
}

// ID identifies this Bot in logs, spans and telemetry.
func (b *Bot) ID() string {
	return b.id
}

// BrowsingContext returns the context id found by Open. ok is false until Open succeeds.
func (b *Bot) BrowsingContext() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.browsingContext, b.hasContext
}

// Open starts the protocol session and selects the first top-level browsing context.
// If an earlier Open started the session but failed to find a context, only discovery is retried.
func (b *Bot) Open(ctx context.Context) (err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, span := observability.StartSpan(ctx, "bot.Open")
	span.SetAttributes(observability.AttrBotID.String(b.id))
	defer func() { observability.EndSpan(span, err) }()
	logger := b.logger.WithContext(ctx)

	switch b.state {
	case stateOpen:
		return errors.New(errors.KindSessionCreation, msgAlreadyOpen)
	case stateClosed:
		return errors.New(errors.KindSessionCreation, msgSessionClosed)
	case stateConstructed:
		logger.Debug("starting WebDriver BiDi session")
		info, startErr := b.client.Start(ctx)
		if startErr != nil {
			wrapped := errors.Wrap(startErr, errors.KindSessionCreation, msgStartFailed).
				WithRetryable(bidi.IsConnectionError(startErr) || bidi.IsTimeoutError(startErr))
			return b.openFailed(logger, wrapped)
		}
		b.state = stateStarted
		if info != nil {
			b.sessionID = info.SessionID
		}
		logger.Debug("WebDriver BiDi session started", slog.String("bidi_session_id", b.sessionID))
	}
	if b.sessionID != "" {
		observability.SetAttributes(ctx, observability.AttrSessionID.String(b.sessionID))
	}

	logger.Debug("querying browsing context tree")
	tree, treeErr := b.client.BrowsingContextGetTree(ctx, bidi.GetTreeParameters{})
	if treeErr != nil {
		return b.openFailed(logger, errors.Wrap(treeErr, errors.KindSessionCreation, msgGetTreeFailed))
	}
	if tree == nil || len(tree.Contexts) == 0 {
		return b.openFailed(logger, errors.New(errors.KindSessionCreation, msgEmptyTree))
	}
	observability.AddEvent(ctx, "browsing context tree received", attribute.Int("contexts", len(tree.Contexts)))

	contextID := tree.Contexts[0].Context
	b.browsingContext = contextID
	b.hasContext = true
	b.state = stateOpen
	span.SetAttributes(observability.AttrBrowsingContext.String(contextID))

	logger.Debug("browsing context selected",
		slog.String("browsing_context", contextID),
		slog.Int("contexts", len(tree.Contexts)),
	)
	logger.SessionOpened(b.sessionID, contextID)
	observability.SessionsOpened.Inc()
	observability.ActiveSessions.Inc()
	b.publish(telemetry.EventSessionOpened, map[string]any{"browsingContext": contextID})
	return nil
}

func (b *Bot) openFailed(logger *observability.Logger, err *errors.Error) error {
	logger.Error("session open failed", slog.String("error", err.Error()), slog.String("state", b.state.String()))
	observability.SessionFailures.WithLabelValues("open").Inc()
	b.publish(telemetry.EventSessionOpenFailed, map[string]any{"error": err.Error()})
	return err
}

// Close ends the protocol session. The Bot is closed afterwards even if the client reported
// a failure; the browsing context id stays readable.
func (b *Bot) Close(ctx context.Context) (err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, span := observability.StartSpan(ctx, "bot.Close")
	span.SetAttributes(observability.AttrBotID.String(b.id))
	defer func() { observability.EndSpan(span, err) }()
	logger := b.logger.WithContext(ctx)

	if b.state == stateClosed {
		return errors.New(errors.KindSessionClosing, msgAlreadyClosed)
	}

	wasOpen := b.state == stateOpen
	logger.Debug("closing WebDriver BiDi session", slog.String("state", b.state.String()))
	closeErr := b.client.Close(ctx)
	b.state = stateClosed
	if wasOpen {
		observability.ActiveSessions.Dec()
	}

	if closeErr != nil {
		wrapped := errors.Wrap(closeErr, errors.KindSessionClosing, msgCloseFailed)
		logger.SessionClosed(wrapped)
		observability.SessionFailures.WithLabelValues("close").Inc()
		b.publish(telemetry.EventSessionCloseFailed, map[string]any{"error": wrapped.Error()})
		return wrapped
	}

	logger.SessionClosed(nil)
	b.publish(telemetry.EventSessionClosed, nil)
	return nil
}

// Goto navigates the browsing context to url and waits for the load to complete.
func (b *Bot) Goto(ctx context.Context, url string) error {
	return b.navigate(ctx, "goto", map[string]any{"url": url}, func(ctx context.Context, contextID string) error {
		return nav.Navigate(ctx, b.client, contextID, url)
	})
}

// Back goes one entry back in the browsing context's history.
func (b *Bot) Back(ctx context.Context) error {
	return b.navigate(ctx, "back", map[string]any{"delta": nav.BackDelta}, func(ctx context.Context, contextID string) error {
		return nav.Back(ctx, b.client, contextID)
	})
}

// Forward goes one entry forward in the browsing context's history.
func (b *Bot) Forward(ctx context.Context) error {
	return b.navigate(ctx, "forward", map[string]any{"delta": nav.ForwardDelta}, func(ctx context.Context, contextID string) error {
		return nav.Forward(ctx, b.client, contextID)
	})
}

// Refresh reloads the current document. Not implemented yet.
func (b *Bot) Refresh(ctx context.Context) error {
	return b.navigate(ctx, "refresh", nil, func(ctx context.Context, contextID string) error {
		return nav.Refresh(ctx, b.client, contextID)
	})
}

func (b *Bot) navigate(ctx context.Context, operation string, data map[string]any, run func(context.Context, string) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateClosed {
		return errors.New(errors.KindNavigation, msgSessionClosed)
	}
	if !b.hasContext {
		return errors.New(errors.KindNavigation, msgNoBrowsingCtx)
	}
	contextID := b.browsingContext

	ctx, span := observability.StartSpan(ctx, "bot."+operation)
	span.SetAttributes(observability.AttrBotID.String(b.id), observability.AttrBrowsingContext.String(contextID))
	logger := b.logger.WithContext(ctx).With(
		slog.String("operation", operation),
		slog.String("browsing_context", contextID),
	)

	logger.Debug("navigation started", slog.Any("params", data))
	err := run(ctx, contextID)
	observability.EndSpan(span, err)

	event := map[string]any{"operation": operation, "browsingContext": contextID}
	for k, v := range data {
		event[k] = v
	}
	if err != nil {
		logger.Warn("navigation failed", slog.String("error", err.Error()))
		event["error"] = err.Error()
		b.publish(telemetry.EventNavigationFailed, event)
		return err
	}
	logger.Debug("navigation completed")
	b.publish(telemetry.EventNavigationCompleted, event)
	return nil
}

func (b *Bot) publish(eventType telemetry.EventType, data map[string]any) {
	if b.hub == nil {
		return
	}
	b.hub.Publish(telemetry.Event{Type: eventType, SessionID: b.id, Data: data})
}
