package bidi

import "context"

//go:generate mockgen -package=bot -destination=../bot/mock_client_test.go github.com/odvcencio/bidibot/pkg/bidi Client

// Client is the subset of the WebDriver BiDi protocol the bot drives.
type Client interface {
	// Start creates the remote session and opens the BiDi connection.
	Start(ctx context.Context) (*SessionInfo, error)
	// Close ends the remote session and releases the connection.
	Close(ctx context.Context) error
	BrowsingContextGetTree(ctx context.Context, params GetTreeParameters) (*GetTreeResult, error)
	BrowsingContextNavigate(ctx context.Context, params NavigateParameters) (*NavigateResult, error)
	BrowsingContextTraverseHistory(ctx context.Context, params TraverseHistoryParameters) (*TraverseHistoryResult, error)
}

var _ Client = (*Session)(nil)
