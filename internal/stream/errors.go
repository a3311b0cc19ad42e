package stream

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a streaming failure for translation at the HTTP boundary.
type Kind int

const (
	// KindValidation marks bad input: a non-positive id, a malformed
	// segment name, a path escaping the video root.
	KindValidation Kind = iota
	// KindNotFound marks a missing asset, cache entry, or segment file.
	KindNotFound
	// KindUnavailable marks an asset the catalogue knows about but whose
	// source file is currently gone. Translated to 404 like KindNotFound.
	KindUnavailable
	// KindTranscode marks a transcoding subprocess that exited with an error.
	KindTranscode
	// KindTimeout marks a segment generation that exceeded its ceiling.
	KindTimeout
	// KindInternal marks unexpected I/O failures.
	KindInternal
)

// Error carries a failure kind across the stream package so handlers can pick
// a status code without inspecting collaborator internals.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Errf constructs an Error with a formatted message.
func Errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapErr constructs an Error wrapping an underlying cause.
func WrapErr(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// HTTPStatus maps an error to the status code the gateway responds with.
// Unknown errors are treated as internal.
func HTTPStatus(err error) int {
	var se *Error
	if !errors.As(err, &se) {
		return http.StatusInternalServerError
	}
	switch se.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound, KindUnavailable:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// IsKind reports whether err is a stream Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}
