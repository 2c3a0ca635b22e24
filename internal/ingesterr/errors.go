// Package ingesterr classifies failures raised while ingesting a capture.
//
// Every error that crosses the session boundary carries one of five kinds.
// Validation and protocol errors are produced by the session layer and never
// reach the pipeline; not_found, upstream and persistence errors come from
// pipeline stages and are emitted as terminal status events before being
// returned to the caller.
package ingesterr

import (
	"errors"
	"fmt"
)

// Kind names a failure class.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindUpstream    Kind = "upstream"
	KindPersistence Kind = "persistence"
	KindProtocol    Kind = "protocol"
)

// Sentinels for errors.Is checks against a kind.
var (
	ErrValidation  = &Error{Kind: KindValidation}
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrUpstream    = &Error{Kind: KindUpstream}
	ErrPersistence = &Error{Kind: KindPersistence}
	ErrProtocol    = &Error{Kind: KindProtocol}
)

// Error is a classified failure. Op names the operation that failed
// (for example "blob.fetch" or "store.put").
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Classifier is implemented by errors that know their own kind. *Error is
// one; collaborators may return their own types.
type Classifier interface {
	ErrorKind() string
}

// ErrorKind reports the classification string.
func (e *Error) ErrorKind() string { return string(e.Kind) }

// Is matches a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Validation reports a malformed or incomplete request.
func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Protocol reports a malformed session message.
func Protocol(op string, err error, format string, args ...any) error {
	return &Error{Kind: KindProtocol, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// NotFound reports a missing blob.
func NotFound(op, key string) error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf("object %q not found", key)}
}

// Upstream wraps a blob transport or inference failure.
func Upstream(op string, err error) error {
	return &Error{Kind: KindUpstream, Op: op, Err: err}
}

// Persistence wraps a record store failure.
func Persistence(op string, err error) error {
	return &Error{Kind: KindPersistence, Op: op, Err: err}
}

// KindOf returns the kind carried by err. Unclassified errors are treated as
// upstream failures since they originate outside the core.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var c Classifier
	if errors.As(err, &c) {
		if k := Kind(c.ErrorKind()); k != "" {
			return k
		}
	}
	return KindUpstream
}

// As classifies err as kind unless it already carries a classification.
func As(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var c Classifier
	if errors.As(err, &c) && c.ErrorKind() != "" {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
