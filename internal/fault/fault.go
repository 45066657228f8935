// Package fault classifies harvester failures so the poller can decide
// between retrying a cycle and terminating the process.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the failure class of an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindConnection
	KindQuery
	KindDeserialization
	KindIO
	KindArchive
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindConnection:
		return "connection"
	case KindQuery:
		return "query"
	case KindDeserialization:
		return "deserialization"
	case KindIO:
		return "io"
	case KindArchive:
		return "archive"
	default:
		return "unknown"
	}
}

// Error is a classified error. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap classifies err. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Transient reports whether a failed cycle is worth retrying.
func Transient(err error) bool {
	switch KindOf(err) {
	case KindConnection, KindQuery, KindArchive:
		return true
	}
	return false
}

// ExitCode maps err to a sysexits(3) style process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindConfig:
		return 78 // EX_CONFIG
	case KindConnection:
		return 69 // EX_UNAVAILABLE
	case KindQuery:
		return 75 // EX_TEMPFAIL
	case KindDeserialization:
		return 65 // EX_DATAERR
	case KindIO:
		return 74 // EX_IOERR
	case KindArchive:
		return 70 // EX_SOFTWARE
	}
	return 1
}
