package bidi

import "encoding/json"

// Command method names.
const (
	MethodGetTree         = "browsingContext.getTree"
	MethodNavigate        = "browsingContext.navigate"
	MethodTraverseHistory = "browsingContext.traverseHistory"
)

// ReadinessState controls when browsingContext.navigate returns.
type ReadinessState string

const (
	ReadinessNone        ReadinessState = "none"
	ReadinessInteractive ReadinessState = "interactive"
	ReadinessComplete    ReadinessState = "complete"
)

// Valid reports whether r is one of the protocol defined readiness states.
func (r ReadinessState) Valid() bool {
	switch r {
	case ReadinessNone, ReadinessInteractive, ReadinessComplete:
		return true
	}
	return false
}

// Capabilities is the session capability request sent when the session is created.
type Capabilities struct {
	AlwaysMatch *CapabilityRequest  `json:"alwaysMatch,omitempty"`
	FirstMatch  []CapabilityRequest `json:"firstMatch,omitempty"`
}

// CapabilityRequest is a single capability set. Extensions holds vendor keys such as
// "goog:chromeOptions" and is flattened into the same JSON object.
type CapabilityRequest struct {
	AcceptInsecureCerts     *bool
	BrowserName             string
	BrowserVersion          string
	PlatformName            string
	WebSocketURL            *bool
	UnhandledPromptBehavior string
	Extensions              map[string]any
}

// MarshalJSON flattens Extensions next to the standard keys.
func (c CapabilityRequest) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extensions)+6)
	for key, value := range c.Extensions {
		out[key] = value
	}
	if c.AcceptInsecureCerts != nil {
		out["acceptInsecureCerts"] = *c.AcceptInsecureCerts
	}
	if c.BrowserName != "" {
		out["browserName"] = c.BrowserName
	}
	if c.BrowserVersion != "" {
		out["browserVersion"] = c.BrowserVersion
	}
	if c.PlatformName != "" {
		out["platformName"] = c.PlatformName
	}
	if c.WebSocketURL != nil {
		out["webSocketUrl"] = *c.WebSocketURL
	}
	if c.UnhandledPromptBehavior != "" {
		out["unhandledPromptBehavior"] = c.UnhandledPromptBehavior
	}
	return json.Marshal(out)
}

// withWebSocketURL returns a copy of c whose alwaysMatch requests the BiDi upgrade.
func (c Capabilities) withWebSocketURL() Capabilities {
	enabled := true
	out := Capabilities{FirstMatch: c.FirstMatch}
	if c.AlwaysMatch != nil {
		always := *c.AlwaysMatch
		out.AlwaysMatch = &always
	} else {
		out.AlwaysMatch = &CapabilityRequest{}
	}
	out.AlwaysMatch.WebSocketURL = &enabled
	return out
}

// SessionInfo describes a started session.
type SessionInfo struct {
	SessionID    string
	WebSocketURL string
	Capabilities map[string]any
}

// GetTreeParameters filters browsingContext.getTree. The zero value requests every top-level context.
type GetTreeParameters struct {
	MaxDepth *uint64 `json:"maxDepth,omitempty"`
	Root     string  `json:"root,omitempty"`
}

// GetTreeResult is the browsingContext.getTree result.
type GetTreeResult struct {
	Contexts []Info `json:"contexts"`
}

// Info describes one browsing context.
type Info struct {
	Context        string  `json:"context"`
	URL            string  `json:"url"`
	Children       []Info  `json:"children"`
	Parent         *string `json:"parent,omitempty"`
	UserContext    string  `json:"userContext,omitempty"`
	OriginalOpener *string `json:"originalOpener,omitempty"`
	ClientWindow   string  `json:"clientWindow,omitempty"`
}

// NavigateParameters are the browsingContext.navigate parameters.
type NavigateParameters struct {
	Context string          `json:"context"`
	URL     string          `json:"url"`
	Wait    *ReadinessState `json:"wait,omitempty"`
}

// NavigateResult is the browsingContext.navigate result.
type NavigateResult struct {
	Navigation *string `json:"navigation"`
	URL        string  `json:"url"`
}

// TraverseHistoryParameters are the browsingContext.traverseHistory parameters.
type TraverseHistoryParameters struct {
	Context string `json:"context"`
	Delta   int64  `json:"delta"`
}

// TraverseHistoryResult is the (empty) browsingContext.traverseHistory result.
type TraverseHistoryResult struct{}

type commandMessage struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

// message is any frame received from the remote end.
type message struct {
	Type       string          `json:"type"`
	ID         *uint64         `json:"id,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Message    string          `json:"message,omitempty"`
	Stacktrace string          `json:"stacktrace,omitempty"`
	Method     string          `json:"method,omitempty"`
	Params     json.RawMessage `json:"params,omitempty"`
}

type newSessionRequest struct {
	Capabilities Capabilities `json:"capabilities"`
}

type newSessionResponse struct {
	Value struct {
		SessionID    string         `json:"sessionId"`
		Capabilities map[string]any `json:"capabilities"`
		Error        string         `json:"error"`
		Message      string         `json:"message"`
	} `json:"value"`
}
