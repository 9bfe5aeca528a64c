// Package failure defines the typed errors returned by backend supervision and
// image classification.
package failure

import (
	"errors"
	"fmt"
)

// Kind categorizes a failed invocation.
type Kind int

const (
	Unknown Kind = iota
	InputNotFound
	ScriptNotFound
	BackendNotFound
	LaunchFailed
	ScriptFailed
	ParseFailed
)

var kindNames = map[Kind]string{
	Unknown:         "Unknown",
	InputNotFound:   "InputNotFound",
	ScriptNotFound:  "ScriptNotFound",
	BackendNotFound: "BackendNotFound",
	LaunchFailed:    "LaunchFailed",
	ScriptFailed:    "ScriptFailed",
	ParseFailed:     "ParseFailed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText lets kinds appear by name in JSON and YAML output.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Error is a terminal invocation failure. It carries no retry state.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg == "" && e.Err == nil:
		return e.Kind.String()
	case e.Err == nil:
		return e.Msg
	case e.Msg == "":
		return e.Err.Error()
	default:
		return e.Msg + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a bare kind sentinel (see ErrInputNotFound etc.)
// of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Msg != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// Kind sentinels for use with errors.Is.
var (
	ErrInputNotFound   = &Error{Kind: InputNotFound}
	ErrScriptNotFound  = &Error{Kind: ScriptNotFound}
	ErrBackendNotFound = &Error{Kind: BackendNotFound}
	ErrLaunchFailed    = &Error{Kind: LaunchFailed}
	ErrScriptFailed    = &Error{Kind: ScriptFailed}
	ErrParseFailed     = &Error{Kind: ParseFailed}
)

// New builds an Error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error with a formatted message around a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}
