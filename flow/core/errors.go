package core

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol marks a violation of the request protocol: a value sent
	// without outstanding demand, a non-positive request, or a signal after
	// a terminal one. It is always fatal to the operator that detects it.
	ErrProtocol = errors.New("reactive protocol violation")

	// ErrOverflow marks a backpressure violation: more undelivered output
	// than the configured capacity and no overflow strategy attached.
	ErrOverflow = errors.New("backpressure overflow")

	// ErrEmpty is returned by sinks that need at least one value.
	ErrEmpty = errors.New("stream is empty")

	// ErrCancelled is surfaced by blocking sinks whose subscription was
	// cancelled before a terminal signal arrived.
	ErrCancelled = errors.New("subscription cancelled")

	// ErrLaneClosed is returned by a Lane that no longer accepts work.
	ErrLaneClosed = errors.New("lane closed")
)

// ProtocolError describes a protocol violation. It matches ErrProtocol
// with errors.Is.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%v: %s", ErrProtocol, e.Reason)
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

func protocolErr(format string, args ...any) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// OverflowError reports the capacity that was exceeded. It matches
// ErrOverflow with errors.Is.
type OverflowError struct {
	Capacity int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("%v: capacity %d exceeded", ErrOverflow, e.Capacity)
}

func (e *OverflowError) Unwrap() error { return ErrOverflow }

// Protect calls fn and converts a panic into an ErrPanic.
func Protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewPanicError(r)
		}
	}()
	return fn()
}

// Protect1 calls fn and converts a panic into an ErrPanic.
func Protect1[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewPanicError(r)
		}
	}()
	return fn()
}

// CastError reports a failed type conversion in Cast.
type CastError struct {
	Value  any
	Target any
}

func (e *CastError) Error() string {
	return fmt.Sprintf("cannot cast %T to %T", e.Value, e.Target)
}
