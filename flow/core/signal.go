package core

import (
	"fmt"
	"runtime"
	"strings"
)

// ErrPanic wraps a recovered panic value as an error.
// This is used when a user-provided function panics during stream processing.
// It includes a cleaned-up stack trace that excludes internal min-rx frames.
type ErrPanic struct {
	Value any
	Stack string // Cleaned stack trace
}

func (e ErrPanic) Error() string {
	if e.Stack != "" {
		return fmt.Sprintf("panic: %v\n%s", e.Value, e.Stack)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// NewPanicError creates an ErrPanic from a recovered value with a cleaned stack trace.
func NewPanicError(recovered any) ErrPanic {
	return ErrPanic{
		Value: recovered,
		Stack: cleanStack(captureStack(4)), // skip: runtime.Callers, captureStack, NewPanicError, defer func
	}
}

// captureStack returns the current stack trace as a string.
func captureStack(skip int) string {
	const maxFrames = 32
	var pcs [maxFrames]uintptr
	n := runtime.Callers(skip, pcs[:])
	if n == 0 {
		return ""
	}

	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder

	for {
		frame, more := frames.Next()
		fmt.Fprintf(&sb, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}

	return sb.String()
}

// cleanStack removes internal min-rx frames so that only user code and
// standard library frames remain.
func cleanStack(stack string) string {
	lines := strings.Split(stack, "\n")
	var result []string
	var skipNext bool

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		if !strings.HasPrefix(line, "\t") {
			if strings.Contains(line, "github.com/lguimbarda/min-rx/flow/") {
				skipNext = true
				continue
			}
			skipNext = false
		} else if skipNext {
			continue
		}

		result = append(result, line)
	}

	return strings.Join(result, "\n")
}

// SignalKind tags a Signal.
type SignalKind uint8

const (
	KindNext SignalKind = iota
	KindError
	KindComplete
)

func (k SignalKind) String() string {
	switch k {
	case KindNext:
		return "next"
	case KindError:
		return "error"
	case KindComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Signal is one unit of communication between a producer and a consumer:
// Next(value), Error(cause) or Complete. Error and Complete are terminal.
type Signal[T any] struct {
	kind  SignalKind
	value T
	err   error
}

// Next creates a value signal.
func Next[T any](value T) Signal[T] {
	return Signal[T]{kind: KindNext, value: value}
}

// Error creates a terminal error signal.
func Error[T any](err error) Signal[T] {
	return Signal[T]{kind: KindError, err: err}
}

// Complete creates a terminal completion signal.
func Complete[T any]() Signal[T] {
	return Signal[T]{kind: KindComplete}
}

func (s Signal[T]) Kind() SignalKind { return s.kind }

func (s Signal[T]) IsNext() bool { return s.kind == KindNext }

func (s Signal[T]) IsError() bool { return s.kind == KindError }

func (s Signal[T]) IsComplete() bool { return s.kind == KindComplete }

// IsTerminal reports whether no further signal may follow this one.
func (s Signal[T]) IsTerminal() bool { return s.kind != KindNext }

// Value returns the carried value. Only meaningful when IsNext is true.
func (s Signal[T]) Value() T { return s.value }

// Err returns the cause of an error signal and nil otherwise.
func (s Signal[T]) Err() error { return s.err }

// Unwrap returns the value and error together.
func (s Signal[T]) Unwrap() (T, error) { return s.value, s.err }

func (s Signal[T]) String() string {
	switch s.kind {
	case KindNext:
		return fmt.Sprintf("next(%v)", s.value)
	case KindError:
		return fmt.Sprintf("error(%v)", s.err)
	default:
		return s.kind.String()
	}
}

// Deliver sends the signal to a subscriber.
func (s Signal[T]) Deliver(sub Subscriber[T]) {
	switch s.kind {
	case KindNext:
		sub.OnNext(s.value)
	case KindError:
		sub.OnError(s.err)
	case KindComplete:
		sub.OnComplete()
	}
}
