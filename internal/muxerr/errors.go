// Package muxerr defines the daemon's error taxonomy: a closed
// set of codes layered beneath JSON-RPC's standard error codes, each
// carrying a human-readable reason but never an internal stack trace.
package muxerr

import "fmt"

// Code identifies a taxonomy member independent of its message text.
type Code int

const (
	// Unknown is the zero value; never constructed intentionally.
	Unknown Code = iota
	SessionNotFound
	PaneNotFound
	LimitExceededSessions
	LimitExceededPanes
	PaneNotAlive
	SpawnFailed
	PtyIoError
	InvalidInput
	PersistenceError
	IncompatibleVersion
	ChannelClosed
	NotFound // generic not-found for metadata/templates/bookmarks
)

// jsonRPCCode is the daemon-defined positive code layered beneath -32603
// ("Internal error") for transport purposes. Every taxonomy member gets its
// own code (1001-1012) so clients can switch on it without parsing the
// message string.
var jsonRPCCode = map[Code]int{
	SessionNotFound:       1001,
	PaneNotFound:          1002,
	LimitExceededSessions: 1003,
	LimitExceededPanes:    1004,
	PaneNotAlive:          1005,
	SpawnFailed:           1006,
	PtyIoError:            1007,
	InvalidInput:          1008,
	PersistenceError:      1009,
	IncompatibleVersion:   1010,
	ChannelClosed:         1011,
	NotFound:              1012,
}

// Error is the concrete type every taxonomy member is constructed as.
type Error struct {
	Code   Code
	Reason string
	Field  string // set only for InvalidInput
	Dir    string // set only for PtyIoError: "read"|"write"|"resize"|"kill"
	Kind   string // set only for LimitExceeded*: "sessions"|"panes"
	err    error  // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.codeName(), e.Reason, e.Field)
	}
	if e.Dir != "" {
		return fmt.Sprintf("%s: %s (direction=%s)", e.codeName(), e.Reason, e.Dir)
	}
	return fmt.Sprintf("%s: %s", e.codeName(), e.Reason)
}

func (e *Error) Unwrap() error { return e.err }

// JSONRPCCode returns the daemon-defined positive code for transport.
func (e *Error) JSONRPCCode() int { return jsonRPCCode[e.Code] }

func (e *Error) codeName() string {
	switch e.Code {
	case SessionNotFound:
		return "SessionNotFound"
	case PaneNotFound:
		return "PaneNotFound"
	case LimitExceededSessions, LimitExceededPanes:
		return "LimitExceeded"
	case PaneNotAlive:
		return "PaneNotAlive"
	case SpawnFailed:
		return "SpawnFailed"
	case PtyIoError:
		return "PtyIoError"
	case InvalidInput:
		return "InvalidInput"
	case PersistenceError:
		return "PersistenceError"
	case IncompatibleVersion:
		return "IncompatibleVersion"
	case ChannelClosed:
		return "ChannelClosed"
	case NotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

func New(code Code, reason string) *Error { return &Error{Code: code, Reason: reason} }

func Wrap(code Code, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, err: err}
}

func NewSessionNotFound(id string) *Error {
	return &Error{Code: SessionNotFound, Reason: "session not found: " + id}
}

func NewPaneNotFound(id string) *Error {
	return &Error{Code: PaneNotFound, Reason: "pane not found: " + id}
}

func NewLimitExceeded(kind string) *Error {
	code := LimitExceededSessions
	if kind == "panes" {
		code = LimitExceededPanes
	}
	return &Error{Code: code, Kind: kind, Reason: "limit exceeded: " + kind}
}

func NewPaneNotAlive(id string) *Error {
	return &Error{Code: PaneNotAlive, Reason: "pane is not alive: " + id}
}

func NewSpawnFailed(reason string, err error) *Error {
	return &Error{Code: SpawnFailed, Reason: reason, err: err}
}

func NewPtyIoError(dir, reason string, err error) *Error {
	return &Error{Code: PtyIoError, Dir: dir, Reason: reason, err: err}
}

func NewInvalidInput(field, reason string) *Error {
	return &Error{Code: InvalidInput, Field: field, Reason: reason}
}

func NewPersistenceError(reason string, err error) *Error {
	return &Error{Code: PersistenceError, Reason: reason, err: err}
}

func NewIncompatibleVersion(reason string) *Error {
	return &Error{Code: IncompatibleVersion, Reason: reason}
}

func NewChannelClosed() *Error {
	return &Error{Code: ChannelClosed, Reason: "peer connection gone"}
}

func NewNotFound(kind, name string) *Error {
	return &Error{Code: NotFound, Reason: kind + " not found: " + name}
}

// As reports whether err is (or wraps) a *Error and returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e, true
	}
	return nil, false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
