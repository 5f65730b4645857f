package bot

import (
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/odvcencio/bidibot/pkg/bidi"
	"github.com/odvcencio/bidibot/pkg/errors"
	"github.com/odvcencio/bidibot/pkg/observability"
	"github.com/odvcencio/bidibot/pkg/telemetry"
)

func treeOf(ids ...string) *bidi.GetTreeResult {
	result := &bidi.GetTreeResult{}
	for _, id := range ids {
		result.Contexts = append(result.Contexts, bidi.Info{Context: id, URL: "about:blank"})
	}
	return result
}

// openBot returns a Bot that has completed Open against ctx-1.
func openBot(t *testing.T, client *MockClient, opts ...Option) *Bot {
	t.Helper()
	client.EXPECT().Start(gomock.Any()).Return(&bidi.SessionInfo{SessionID: "session-1"}, nil)
	client.EXPECT().BrowsingContextGetTree(gomock.Any(), bidi.GetTreeParameters{}).Return(treeOf("ctx-1"), nil)

	b := NewWithClient(client, opts...)
	require.NoError(t, b.Open(context.Background()))
	return b
}

func TestNew_IsPure(t *testing.T) {
	b := New(bidi.Capabilities{}, "localhost", 4444)

	id, ok := b.BrowsingContext()
	assert.False(t, ok)
	assert.Empty(t, id)
	assert.NotEmpty(t, b.ID())
	assert.NotEqual(t, b.ID(), New(bidi.Capabilities{}, "localhost", 4444).ID())
}

func TestOpen_SelectsFirstContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)

	gomock.InOrder(
		client.EXPECT().Start(gomock.Any()).Return(&bidi.SessionInfo{SessionID: "session-1"}, nil),
		client.EXPECT().BrowsingContextGetTree(gomock.Any(), bidi.GetTreeParameters{}).Return(treeOf("ctx-1", "ctx-2"), nil),
	)

	b := NewWithClient(client)
	require.NoError(t, b.Open(context.Background()))

	id, ok := b.BrowsingContext()
	assert.True(t, ok)
	assert.Equal(t, "ctx-1", id)
}

func TestOpen_StartFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	client.EXPECT().Start(gomock.Any()).Return(nil, stderrors.New("connection refused"))

	b := NewWithClient(client)
	err := b.Open(context.Background())
	require.Error(t, err)

	assert.True(t, errors.Is(err, errors.KindSessionCreation))
	assert.Equal(t, "Session creation error: Starting the WebDriver BiDi session failed: connection refused", err.Error())
	assert.True(t, errors.IsRetryable(err))
	_, ok := b.BrowsingContext()
	assert.False(t, ok)
}

func TestOpen_GetTreeFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	client.EXPECT().Start(gomock.Any()).Return(&bidi.SessionInfo{SessionID: "session-1"}, nil)
	cause := &bidi.ProtocolError{Code: "unknown error", Message: "no window"}
	client.EXPECT().BrowsingContextGetTree(gomock.Any(), gomock.Any()).Return(nil, cause)

	b := NewWithClient(client)
	err := b.Open(context.Background())
	require.Error(t, err)

	assert.Equal(t, errors.KindSessionCreation, errors.KindOf(err))
	assert.Equal(t, "Session creation error: The browsingContext.getTree command failed: unknown error: no window", err.Error())

	var protoErr *bidi.ProtocolError
	assert.True(t, stderrors.As(err, &protoErr))
	assert.False(t, errors.IsRetryable(err))
	_, ok := b.BrowsingContext()
	assert.False(t, ok)
}

func TestOpen_EmptyTree(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	client.EXPECT().Start(gomock.Any()).Return(&bidi.SessionInfo{}, nil)
	client.EXPECT().BrowsingContextGetTree(gomock.Any(), gomock.Any()).Return(treeOf(), nil)

	b := NewWithClient(client)
	err := b.Open(context.Background())
	require.Error(t, err)

	assert.Equal(t, "Session creation error: The browsingContext.getTree command returned no browsing contexts", err.Error())
	_, ok := b.BrowsingContext()
	assert.False(t, ok)
}

func TestOpen_RetryAfterDiscoveryFailureSkipsStart(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)

	client.EXPECT().Start(gomock.Any()).Return(&bidi.SessionInfo{SessionID: "session-1"}, nil).Times(1)
	gomock.InOrder(
		client.EXPECT().BrowsingContextGetTree(gomock.Any(), gomock.Any()).Return(nil, stderrors.New("timeout")),
		client.EXPECT().BrowsingContextGetTree(gomock.Any(), gomock.Any()).Return(treeOf("ctx-7"), nil),
	)

	b := NewWithClient(client)
	require.Error(t, b.Open(context.Background()))
	require.NoError(t, b.Open(context.Background()))

	id, ok := b.BrowsingContext()
	assert.True(t, ok)
	assert.Equal(t, "ctx-7", id)
}

func TestOpen_WhenAlreadyOpen(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	b := openBot(t, client)

	err := b.Open(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Session creation error: The WebDriver BiDi session is already open", err.Error())
}

func TestOpen_AfterClose(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	b := openBot(t, client)
	client.EXPECT().Close(gomock.Any()).Return(nil)
	require.NoError(t, b.Close(context.Background()))

	err := b.Open(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Session creation error: The WebDriver BiDi session is closed", err.Error())
}

func TestGoto_WithoutContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)

	b := NewWithClient(client)
	err := b.Goto(context.Background(), "https://example.com")
	require.Error(t, err)

	assert.True(t, errors.Is(err, errors.KindNavigation))
	assert.Equal(t, "Navigation error: No browsing context available", err.Error())
}

func TestGoto_AfterFailedOpen(t *testing.T) {
	tests := []struct {
		name   string
		expect func(client *MockClient)
	}{
		{
			name: "start fails",
			expect: func(client *MockClient) {
				client.EXPECT().Start(gomock.Any()).Return(nil, stderrors.New("connection refused"))
			},
		},
		{
			name: "getTree fails",
			expect: func(client *MockClient) {
				client.EXPECT().Start(gomock.Any()).Return(&bidi.SessionInfo{SessionID: "session-1"}, nil)
				client.EXPECT().BrowsingContextGetTree(gomock.Any(), gomock.Any()).
					Return(nil, &bidi.ProtocolError{Code: "unknown error", Message: "no window"})
			},
		},
		{
			name: "empty tree",
			expect: func(client *MockClient) {
				client.EXPECT().Start(gomock.Any()).Return(&bidi.SessionInfo{SessionID: "session-1"}, nil)
				client.EXPECT().BrowsingContextGetTree(gomock.Any(), gomock.Any()).Return(treeOf(), nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Any navigate or traverseHistory call fails the strict controller.
			ctrl := gomock.NewController(t)
			client := NewMockClient(ctrl)
			tt.expect(client)

			b := NewWithClient(client)
			require.Error(t, b.Open(context.Background()))

			err := b.Goto(context.Background(), "https://example.com")
			require.Error(t, err)
			assert.Equal(t, errors.KindNavigation, errors.KindOf(err))
			assert.Equal(t, "Navigation error: No browsing context available", err.Error())

			err = b.Back(context.Background())
			require.Error(t, err)
			assert.Equal(t, "Navigation error: No browsing context available", err.Error())
		})
	}
}

func TestNavigationOperations_WithoutContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	b := NewWithClient(client)
	ctx := context.Background()

	for name, op := range map[string]func(context.Context) error{
		"back":    b.Back,
		"forward": b.Forward,
		"refresh": b.Refresh,
	} {
		err := op(ctx)
		require.Error(t, err, name)
		assert.Equal(t, "Navigation error: No browsing context available", err.Error(), name)
	}
}

func TestGoto_UsesStoredContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	b := openBot(t, client)

	var got bidi.NavigateParameters
	client.EXPECT().BrowsingContextNavigate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, params bidi.NavigateParameters) (*bidi.NavigateResult, error) {
			got = params
			return &bidi.NavigateResult{URL: params.URL}, nil
		}).Times(1)

	require.NoError(t, b.Goto(context.Background(), "https://example.com"))

	assert.Equal(t, "ctx-1", got.Context)
	assert.Equal(t, "https://example.com", got.URL)
	require.NotNil(t, got.Wait)
	assert.Equal(t, bidi.ReadinessComplete, *got.Wait)
}

func TestGoto_PropagatesNavigationError(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	b := openBot(t, client)

	client.EXPECT().BrowsingContextNavigate(gomock.Any(), gomock.Any()).
		Return(nil, &bidi.ProtocolError{Code: "unknown error", Message: "net::ERR_NAME_NOT_RESOLVED"})

	err := b.Goto(context.Background(), "https://nope.invalid")
	require.Error(t, err)
	assert.Equal(t, "Navigation error: unknown error: net::ERR_NAME_NOT_RESOLVED", err.Error())

	id, ok := b.BrowsingContext()
	assert.True(t, ok, "a failed navigation keeps the context")
	assert.Equal(t, "ctx-1", id)
}

func TestBackAndForward(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	b := openBot(t, client)

	gomock.InOrder(
		client.EXPECT().BrowsingContextTraverseHistory(gomock.Any(), bidi.TraverseHistoryParameters{Context: "ctx-1", Delta: -1}).
			Return(&bidi.TraverseHistoryResult{}, nil),
		client.EXPECT().BrowsingContextTraverseHistory(gomock.Any(), bidi.TraverseHistoryParameters{Context: "ctx-1", Delta: 1}).
			Return(&bidi.TraverseHistoryResult{}, nil),
	)

	require.NoError(t, b.Back(context.Background()))
	require.NoError(t, b.Forward(context.Background()))
}

func TestBack_Failure(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	b := openBot(t, client)

	client.EXPECT().BrowsingContextTraverseHistory(gomock.Any(), gomock.Any()).
		Return(nil, &bidi.ProtocolError{Code: "no such history entry", Message: "cannot go back"})

	err := b.Back(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Navigation error: Navigating the history failed: no such history entry: cannot go back", err.Error())
}

func TestRefresh_NotImplemented(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	b := openBot(t, client)

	err := b.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindNavigation))
	assert.ErrorIs(t, err, errors.ErrNotImplemented)
}

func TestClose_Failure(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	b := openBot(t, client)

	client.EXPECT().Close(gomock.Any()).Return(stderrors.New("connection reset"))

	err := b.Close(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindSessionClosing))
	assert.Equal(t, "Session closing error: Closing the WebDriver BiDi session failed: connection reset", err.Error())

	id, ok := b.BrowsingContext()
	assert.True(t, ok, "close does not clear the context")
	assert.Equal(t, "ctx-1", id)

	err = b.Goto(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.Equal(t, "Navigation error: The WebDriver BiDi session is closed", err.Error())
}

func TestClose_Twice(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	b := openBot(t, client)
	client.EXPECT().Close(gomock.Any()).Return(nil).Times(1)

	require.NoError(t, b.Close(context.Background()))

	err := b.Close(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Session closing error: The WebDriver BiDi session is already closed", err.Error())
}

func TestClose_BeforeOpen(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	client.EXPECT().Close(gomock.Any()).Return(nil)

	b := NewWithClient(client)
	require.NoError(t, b.Close(context.Background()))

	err := b.Goto(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.Equal(t, "Navigation error: The WebDriver BiDi session is closed", err.Error())
}

func TestClose_SerializedWithGoto(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	b := openBot(t, client)

	var (
		closed      atomic.Bool
		navigating  atomic.Int32
		overlapped  atomic.Bool
		navigations atomic.Int32
	)
	client.EXPECT().BrowsingContextNavigate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, params bidi.NavigateParameters) (*bidi.NavigateResult, error) {
			navigating.Add(1)
			defer navigating.Add(-1)
			if closed.Load() {
				overlapped.Store(true)
			}
			navigations.Add(1)
			time.Sleep(time.Millisecond)
			return &bidi.NavigateResult{URL: params.URL}, nil
		}).AnyTimes()
	client.EXPECT().Close(gomock.Any()).
		DoAndReturn(func(context.Context) error {
			if navigating.Load() != 0 {
				overlapped.Store(true)
			}
			closed.Store(true)
			time.Sleep(time.Millisecond)
			return nil
		}).Times(1)

	const gotos = 20
	errs := make([]error, gotos)
	var wg sync.WaitGroup
	for i := 0; i < gotos; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = b.Goto(context.Background(), "https://example.com")
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, b.Close(context.Background()))
	}()
	wg.Wait()

	assert.False(t, overlapped.Load(), "navigate and close must not interleave")
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, "Navigation error: The WebDriver BiDi session is closed", err.Error())
	}
	assert.Equal(t, int(navigations.Load()), succeeded)
}

func TestBot_PublishesLifecycleEvents(t *testing.T) {
	hub := telemetry.NewHub()
	defer hub.Close()
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	b := openBot(t, client, WithHub(hub))

	client.EXPECT().BrowsingContextNavigate(gomock.Any(), gomock.Any()).Return(&bidi.NavigateResult{}, nil)
	client.EXPECT().BrowsingContextNavigate(gomock.Any(), gomock.Any()).Return(nil, stderrors.New("boom"))
	client.EXPECT().Close(gomock.Any()).Return(nil)

	require.NoError(t, b.Goto(context.Background(), "https://a.example"))
	require.Error(t, b.Goto(context.Background(), "https://b.example"))
	require.NoError(t, b.Close(context.Background()))

	want := []telemetry.EventType{
		telemetry.EventSessionOpened,
		telemetry.EventNavigationCompleted,
		telemetry.EventNavigationFailed,
		telemetry.EventSessionClosed,
	}
	for i, eventType := range want {
		select {
		case ev := <-events:
			assert.Equal(t, eventType, ev.Type, "event %d", i)
			assert.Equal(t, b.ID(), ev.SessionID)
			if eventType == telemetry.EventNavigationFailed {
				assert.Equal(t, "https://b.example", ev.Data["url"])
				assert.Equal(t, "Navigation error: boom", ev.Data["error"])
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event %s", eventType)
		}
	}
}

func TestBot_LogsLifecycleSteps(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLoggerWithWriter(&buf, "test", "json", slog.LevelDebug)

	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	b := openBot(t, client, WithLogger(logger))
	client.EXPECT().Close(gomock.Any()).Return(nil)
	require.NoError(t, b.Close(context.Background()))

	out := buf.String()
	assert.Contains(t, out, `"msg":"starting WebDriver BiDi session"`)
	assert.Contains(t, out, `"msg":"browsing context selected"`)
	assert.Contains(t, out, `"browsing_context":"ctx-1"`)
	assert.Contains(t, out, `"msg":"session closed"`)
	assert.Contains(t, out, `"session_id":"`+b.ID()+`"`)
}
