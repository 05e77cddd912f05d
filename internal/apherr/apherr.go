// Package apherr defines the error-kind taxonomy shared across apphost's
// components (spec §7). Grounded on the teacher's fmt.Errorf("...: %w", ...)
// wrapping idiom (internal/engine/store.go, install.go), made slightly more
// structured so callers can branch on Kind for FSM/validation failures.
package apherr

import "fmt"

// Kind is one of the error kinds enumerated in spec §7.
type Kind string

const (
	NotFound          Kind = "NotFound"
	InvalidInput      Kind = "InvalidInput"
	InvalidState      Kind = "InvalidState"
	InvalidTransition Kind = "InvalidTransition"
	UnsupportedFormat Kind = "UnsupportedFormat"
	ParseError        Kind = "ParseError"
	ProcessSpawn      Kind = "ProcessSpawnFailure"
	ProcessNonZero    Kind = "ProcessNonZero"
	EnvError          Kind = "EnvError"
	FsError           Kind = "FsError"
	NetworkError      Kind = "NetworkError"
	TunnelError       Kind = "TunnelError"
	StateStoreError   Kind = "StateStoreError"
	TimeoutError      Kind = "TimeoutError"
	UserInputMissing  Kind = "UserInputMissing"
	Unimplemented     Kind = "Unimplemented"
)

// Error wraps an underlying error with component-specific context: the
// operation that failed, a free-form detail (pid, path, command, app name,
// sql fragment — whichever is relevant), and the kind for callers that
// branch on it.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error, wrapping err (which may be nil for a bare
// validation failure expressed as a string in Detail).
func New(kind Kind, op, detail string, err error) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail, Err: err}
}

// Is allows errors.Is(err, apherr.NotFound)-style comparisons against Kind
// by also implementing a sentinel match on the Kind value itself.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel builds a bare *Error carrying only a Kind, suitable as an
// errors.Is target: apherr.New(...) matches apherr.Sentinel(apherr.NotFound).
func Sentinel(kind Kind) *Error { return &Error{Kind: kind} }
