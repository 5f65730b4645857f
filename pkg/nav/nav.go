// Package nav issues navigation commands against a single browsing context.
// It holds no state: callers pass the client and the context id on every call.
package nav

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/odvcencio/bidibot/pkg/bidi"
	"github.com/odvcencio/bidibot/pkg/errors"
	"github.com/odvcencio/bidibot/pkg/observability"
)

const (
	// BackDelta moves one entry back in session history.
	BackDelta int64 = -1
	// ForwardDelta moves one entry forward in session history.
	ForwardDelta int64 = 1
)

const traverseFailed = "Navigating the history failed"

// Client is the part of the protocol client navigation needs.
type Client interface {
	BrowsingContextNavigate(ctx context.Context, params bidi.NavigateParameters) (*bidi.NavigateResult, error)
	BrowsingContextTraverseHistory(ctx context.Context, params bidi.TraverseHistoryParameters) (*bidi.TraverseHistoryResult, error)
}

// Navigate loads url in the browsing context and waits until the document is complete.
func Navigate(ctx context.Context, client Client, contextID, url string) error {
	ctx, span := observability.StartSpan(ctx, "nav.Navigate")
	span.SetAttributes(observability.AttrBrowsingContext.String(contextID), observability.AttrURL.String(url))

	wait := bidi.ReadinessComplete
	_, err := client.BrowsingContextNavigate(ctx, bidi.NavigateParameters{
		Context: contextID,
		URL:     url,
		Wait:    &wait,
	})
	if err != nil {
		navErr := errors.Wrap(err, errors.KindNavigation, "")
		finish(span, "navigate", navErr)
		return navErr
	}
	finish(span, "navigate", nil)
	return nil
}

// TraverseHistory moves the browsing context delta entries through its session history.
func TraverseHistory(ctx context.Context, client Client, contextID string, delta int64) error {
	ctx, span := observability.StartSpan(ctx, "nav.TraverseHistory")
	span.SetAttributes(observability.AttrBrowsingContext.String(contextID), observability.AttrDelta.Int64(delta))

	_, err := client.BrowsingContextTraverseHistory(ctx, bidi.TraverseHistoryParameters{
		Context: contextID,
		Delta:   delta,
	})
	if err != nil {
		navErr := errors.Wrap(err, errors.KindNavigation, traverseFailed)
		finish(span, operationForDelta(delta), navErr)
		return navErr
	}
	finish(span, operationForDelta(delta), nil)
	return nil
}

// Back goes one step back in history.
func Back(ctx context.Context, client Client, contextID string) error {
	return TraverseHistory(ctx, client, contextID, BackDelta)
}

// Forward goes one step forward in history.
func Forward(ctx context.Context, client Client, contextID string) error {
	return TraverseHistory(ctx, client, contextID, ForwardDelta)
}

// Refresh reloads the current document. Not implemented yet: it always fails with a
// navigation error wrapping errors.ErrNotImplemented and sends nothing.
func Refresh(_ context.Context, _ Client, contextID string) error {
	err := errors.Wrap(errors.ErrNotImplemented, errors.KindNavigation, "Refreshing the browsing context failed").
		WithContext("context", contextID)
	observability.Navigations.WithLabelValues("refresh", observability.Result(err)).Inc()
	return err
}

func operationForDelta(delta int64) string {
	switch delta {
	case BackDelta:
		return "back"
	case ForwardDelta:
		return "forward"
	default:
		return "traverse"
	}
}

func finish(span trace.Span, operation string, err error) {
	observability.Navigations.WithLabelValues(operation, observability.Result(err)).Inc()
	observability.EndSpan(span, err)
}
