// Package fault defines the canonical error type of the resilience layer and
// the normalizer that maps arbitrary errors onto it.
//
// Every error leaving a public entry point of faultline is a *Error. Its kind
// is fixed at construction and the value is never mutated afterwards:
// Context returns a copy and there are no setters.
package fault

import (
	"errors"
	"fmt"

	"github.com/vietddude/faultline/internal/core/domain"
)

// CodeCircuitOpen marks a call rejected by an open circuit breaker.
const CodeCircuitOpen = "circuit/open"

// Error is a normalized fault.
type Error struct {
	kind       domain.Kind
	devMessage string
	userMsg    string
	code       string
	status     int
	context    map[string]any
	cause      error
}

// Option configures an Error during New.
type Option func(*Error)

// WithUserMessage overrides the kind-derived user message. Empty values are ignored.
func WithUserMessage(msg string) Option {
	return func(e *Error) {
		if msg != "" {
			e.userMsg = msg
		}
	}
}

// WithCode sets the machine-readable code.
func WithCode(code string) Option { return func(e *Error) { e.code = code } }

// WithStatus sets the HTTP-like status.
func WithStatus(status int) Option { return func(e *Error) { e.status = status } }

// WithContext attaches structured context. The map is cloned; callers must
// redact secrets before attaching.
func WithContext(ctx map[string]any) Option {
	return func(e *Error) { e.context = mergeMaps(e.context, ctx) }
}

// WithCause records the original error for diagnostics.
func WithCause(cause error) Option { return func(e *Error) { e.cause = cause } }

// New creates a normalized fault of the given kind.
func New(kind domain.Kind, developerMessage string, opts ...Option) *Error {
	e := &Error{
		kind:       kind,
		devMessage: developerMessage,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.userMsg == "" {
		e.userMsg = UserMessageFor(kind)
	}
	if e.devMessage == "" {
		e.devMessage = e.userMsg
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.code != "" {
		return fmt.Sprintf("%s [%s]: %s", e.kind, e.code, e.devMessage)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.devMessage)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Kind() domain.Kind         { return e.kind }
func (e *Error) DeveloperMessage() string  { return e.devMessage }
func (e *Error) UserMessage() string       { return e.userMsg }
func (e *Error) Code() string              { return e.code }
func (e *Error) Status() int               { return e.status }
func (e *Error) Context() map[string]any   { return cloneMap(e.context) }
func (e *Error) Severity() domain.Severity { return domain.SeverityFor(e.kind) }

// Notification builds the UI payload for this fault. Developer message and
// cause are deliberately absent.
func (e *Error) Notification() domain.Notification {
	return domain.Notification{
		Kind:        e.kind,
		UserMessage: e.userMsg,
		Code:        e.code,
		Context:     e.Context(),
	}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) domain.Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind
	}
	return domain.KindUnknown
}

// IsKind reports whether err normalizes to a fault of kind k.
func IsKind(err error, k domain.Kind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.kind == k
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if mv, ok := v.(map[string]any); ok {
			out[k] = cloneMap(mv)
			continue
		}
		out[k] = v
	}
	return out
}

func mergeMaps(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	out := cloneMap(dst)
	if out == nil {
		out = make(map[string]any, len(src))
	}
	for k, v := range cloneMap(src) {
		out[k] = v
	}
	return out
}
