package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures the HTTP surface knows how to answer.
type ErrorKind string

const (
	KindAuth       ErrorKind = "auth"
	KindConversion ErrorKind = "conversion"
	KindNotFound   ErrorKind = "not_found"
	KindMethod     ErrorKind = "method"
	KindBadRequest ErrorKind = "bad_request"
)

// Error carries a kind plus the pipeline stage that failed. Stage and the
// wrapped error are for logs only.
type Error struct {
	Kind  ErrorKind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Stage != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Stage, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Stage != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Stage)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ConversionError wraps a failure in one pipeline stage.
func ConversionError(stage string, err error) *Error {
	return &Error{Kind: KindConversion, Stage: stage, Err: err}
}

// NotFoundError marks an unknown or expired artifact.
func NotFoundError(err error) *Error {
	return &Error{Kind: KindNotFound, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or the empty
// kind when there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StageOf returns the failing stage recorded in err, if any.
func StageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// AuthError rejects a missing or wrong bearer token.
func AuthError() *Error {
	return &Error{Kind: KindAuth}
}

// BadRequestError marks a malformed request. Its message is safe to show to
// the client.
func BadRequestError(err error) *Error {
	return &Error{Kind: KindBadRequest, Err: err}
}
