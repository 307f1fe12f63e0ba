package handler

import (
	"errors"
	"fmt"
)

var (
	// ErrMultipleDefaults is returned when a source declares more than one
	// fallback handler.
	ErrMultipleDefaults = errors.New("handler: more than one default handler")
	// ErrNilHandler is returned for a method built with a nil function.
	ErrNilHandler = errors.New("handler: nil handler function")
)

// DecodeError reports a payload that could not be turned into the handler
// argument. The handler was not called.
type DecodeError struct {
	Method string
	Kind   Kind
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("handler %s: decode %s payload: %v", e.Method, e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// InvocationError reports a handler that returned an error or panicked.
type InvocationError struct {
	Method string
	// Panic holds the recovered value when the handler panicked.
	Panic any
	Err   error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("handler %s: %v", e.Method, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }
