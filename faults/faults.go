// Package faults defines the error taxonomy shared by the tape, the segment
// table, the execution core and the timeline manager.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies an error. A Kind is itself an error so callers can test
// with errors.Is(err, faults.Bounds).
type Kind int

const (
	Decode Kind = iota + 1
	Bounds
	Name
	MergeConflict
)

var kindNames = map[Kind]string{
	Decode:        "decode error",
	Bounds:        "bounds error",
	Name:          "name error",
	MergeConflict: "merge conflict",
}

func (k Kind) Error() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("fault kind %d", int(k))
}

// Fatal reports whether an error of this kind halts the timeline it occurred on.
func (k Kind) Fatal() bool {
	return k != MergeConflict
}

var (
	ErrUnknownOpcode     = errors.New("unknown opcode")
	ErrTruncated         = errors.New("truncated instruction")
	ErrOutOfBounds       = errors.New("out of bounds")
	ErrStackOverflow     = errors.New("stack overflow")
	ErrStackUnderflow    = errors.New("stack underflow")
	ErrDuplicateName     = errors.New("duplicate name")
	ErrUnknownRegister   = errors.New("unknown register")
	ErrUnknownSegment    = errors.New("unknown segment")
	ErrUnknownMark       = errors.New("unknown mark")
	ErrUnknownCheckpoint = errors.New("unknown checkpoint")
	ErrUnknownTimeline   = errors.New("unknown timeline")
	ErrUnresolvedLabel   = errors.New("unresolved label")
)

// Error is a classified error. It matches both its Kind and its wrapped
// sentinel under errors.Is.
type Error struct {
	Kind   Kind
	Err    error
	Detail string
}

var _ error = new(Error)

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Is(target error) bool {
	kind, ok := target.(Kind)
	return ok && kind == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, err error, format string, args ...any) *Error {
	return &Error{
		Kind:   kind,
		Err:    err,
		Detail: fmt.Sprintf(format, args...),
	}
}

func Decodef(err error, format string, args ...any) *Error {
	return New(Decode, err, format, args...)
}

func Boundsf(err error, format string, args ...any) *Error {
	return New(Bounds, err, format, args...)
}

func Namef(err error, format string, args ...any) *Error {
	return New(Name, err, format, args...)
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
