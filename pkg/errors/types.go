package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Kind identifies the phase an error belongs to. The set is closed.
type Kind string

const (
	// Session lifecycle
	KindSessionCreation Kind = "SESSION_CREATION"
	KindSessionClosing  Kind = "SESSION_CLOSING"

	// Navigation
	KindNavigation Kind = "NAVIGATION"

	// Reserved for element interaction, scripts, cookies and screenshots
	KindAction     Kind = "ACTION"
	KindElement    Kind = "ELEMENT"
	KindCookie     Kind = "COOKIE"
	KindJavaScript Kind = "JAVASCRIPT"
	KindScreenshot Kind = "SCREENSHOT"

	// Catch-all
	KindUnknown Kind = "UNKNOWN"
)

var kindTitles = map[Kind]string{
	KindSessionCreation: "Session creation",
	KindSessionClosing:  "Session closing",
	KindNavigation:      "Navigation",
	KindAction:          "Action",
	KindElement:         "Element",
	KindCookie:          "Cookie",
	KindJavaScript:      "JavaScript",
	KindScreenshot:      "Screenshot",
	KindUnknown:         "Unknown",
}

// Title returns the human readable name used in error strings.
func (k Kind) Title() string {
	if title, ok := kindTitles[k]; ok {
		return title
	}
	return kindTitles[KindUnknown]
}

// ErrNotImplemented marks reserved operations that are part of the API but not yet built.
var ErrNotImplemented = stderrors.New("not implemented")

// Error is the structured error returned by every public bot and navigation operation.
// Message carries the phase description followed by the cause text; Underlying keeps the
// original cause for errors.Is/As.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
	Context    map[string]any
	Stack      []Frame
	Retryable  bool
}

// Frame represents a stack frame
type Frame struct {
	Function string
	File     string
	Line     int
}

// New creates a new structured error
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: make(map[string]any),
		Stack:   captureStack(2),
	}
}

// Wrap wraps err under kind. The resulting message is "<phase>: <err>", or just the
// cause text when phase is empty.
func Wrap(err error, kind Kind, phase string) *Error {
	if err == nil {
		return nil
	}

	message := err.Error()
	if phase != "" {
		message = phase + ": " + message
	}

	return &Error{
		Kind:       kind,
		Message:    message,
		Underlying: err,
		Context:    make(map[string]any),
		Stack:      captureStack(2),
	}
}

// WithContext adds context key-value pairs to the error
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRetryable marks the error as retryable
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	var sb strings.Builder

	sb.WriteString(e.Kind.Title())
	sb.WriteString(" error: ")
	sb.WriteString(e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s: %v", k, e.Context[k]))
		}
		sb.WriteString("}")
	}

	return sb.String()
}

// Unwrap returns the underlying error for errors.Is/As
func (e *Error) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether this error is retryable
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// StackTrace returns a formatted stack trace
func (e *Error) StackTrace() string {
	var sb strings.Builder

	sb.WriteString("Stack trace:\n")
	for i, frame := range e.Stack {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, frame.String()))
		sb.WriteString(fmt.Sprintf("     %s:%d\n", frame.File, frame.Line))
	}

	return sb.String()
}

// String formats a stack frame
func (f Frame) String() string {
	return f.Function
}

// captureStack captures the current call stack
func captureStack(skip int) []Frame {
	const maxDepth = 32
	var pcs [maxDepth]uintptr

	n := runtime.Callers(skip+1, pcs[:])
	frames := make([]Frame, 0, n)

	for i := 0; i < n; i++ {
		pc := pcs[i]
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		file, line := fn.FileLine(pc)

		frames = append(frames, Frame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}

// Is reports whether err (or anything it wraps) is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var botErr *Error
	if !stderrors.As(err, &botErr) {
		return false
	}
	return botErr.Kind == kind
}

// KindOf extracts the kind from an error. Foreign errors report KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var botErr *Error
	if !stderrors.As(err, &botErr) {
		return KindUnknown
	}

	return botErr.Kind
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var botErr *Error
	if !stderrors.As(err, &botErr) {
		return false
	}
	return botErr.Retryable
}
