// Package fault defines the error result returned by every command and the
// exit status each failure maps to.
package fault

import (
	"errors"
	"fmt"
	"io"
)

// Kind is the process exit status associated with a failure
type Kind int

const (
	FileNotFound Kind = 1
	Argument     Kind = 2
	Config       Kind = 3
	Mount        Kind = 4
	NonRoot      Kind = 5
	OutOfMemory  Kind = 6
	Parse        Kind = 7
	Unmount      Kind = 8
	SectorSize   Kind = 9
	Unknown      Kind = 10
)

var kindNames = map[Kind]string{
	FileNotFound: "file not found",
	Argument:     "argument error",
	Config:       "config error",
	Mount:        "mount error",
	NonRoot:      "not root",
	OutOfMemory:  "out of memory",
	Parse:        "parse error",
	Unmount:      "unmount error",
	SectorSize:   "sector size error",
	Unknown:      "unknown error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ExitCode returns the process exit status for the kind
func (k Kind) ExitCode() int {
	return int(k)
}

// Error carries a failure together with its exit status
type Error struct {
	Kind Kind
	Err  error
}

// New creates an error of the given kind with a formatted message
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind to an existing error
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the outermost fault in the chain, Unknown if
// the chain carries none.
func KindOf(err error) Kind {
	var f *Error
	if errors.As(err, &f) {
		return f.Kind
	}
	return Unknown
}

// Reporter is implemented by errors that render a multi-line report of
// their own instead of a single message line.
type Reporter interface {
	Report(w io.Writer, colored bool)
}
