// Package io provides publishers that read files and readers, and operators
// that write the values passing through them. Reads happen on the
// requesting goroutine, one line or chunk per unit of demand.
package io

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/lguimbarda/min-rx/flow/core"
)

// ReadLines emits the lines of the file at path without their line endings.
// The file is opened on subscribe and closed when the stream ends; an open
// failure is delivered on the first request.
func ReadLines(path string) core.Publisher[string] {
	return core.Pull(func(context.Context) (core.PullFunc[string], func()) {
		f, err := os.Open(path)
		if err != nil {
			return failed[string](err), nil
		}
		return scanLines(f), func() { f.Close() }
	})
}

// ReadLinesFrom emits the lines of r. The reader is consumed, so only the
// first subscription sees its content.
func ReadLinesFrom(r io.Reader) core.Publisher[string] {
	return core.Pull(func(context.Context) (core.PullFunc[string], func()) {
		return scanLines(r), nil
	})
}

// ReadBytes emits the file at path in chunks of at most chunkSize bytes.
func ReadBytes(path string, chunkSize int) core.Publisher[[]byte] {
	return core.Pull(func(context.Context) (core.PullFunc[[]byte], func()) {
		if chunkSize <= 0 {
			return failed[[]byte](ErrChunkSize), nil
		}
		f, err := os.Open(path)
		if err != nil {
			return failed[[]byte](err), nil
		}
		buf := make([]byte, chunkSize)
		return func() ([]byte, bool, error) {
			n, err := f.Read(buf)
			if n > 0 {
				return append([]byte(nil), buf[:n]...), true, nil
			}
			if err == io.EOF {
				return nil, false, nil
			}
			return nil, false, err
		}, func() { f.Close() }
	})
}

func scanLines(r io.Reader) core.PullFunc[string] {
	scanner := bufio.NewScanner(r)
	return func() (string, bool, error) {
		if scanner.Scan() {
			return scanner.Text(), true, nil
		}
		return "", false, scanner.Err()
	}
}

func failed[T any](err error) core.PullFunc[T] {
	return func() (T, bool, error) {
		var zero T
		return zero, false, err
	}
}

// WriteLines writes every value to the file at path, one per line, and
// passes it on. The file is created or truncated on subscribe.
func WriteLines(path string) core.Transformer[string, string] {
	return WriteLinesWithOptions(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}

// AppendLines is WriteLines appending to an existing file.
func AppendLines(path string) core.Transformer[string, string] {
	return WriteLinesWithOptions(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// WriteLinesWithOptions is WriteLines with custom open flags and mode.
func WriteLinesWithOptions(path string, flag int, perm os.FileMode) core.Transformer[string, string] {
	return core.Lift[string, string](func(ctx context.Context, down core.Subscriber[string]) core.Subscriber[string] {
		f, err := os.OpenFile(path, flag, perm)
		if err != nil {
			return core.Refuse[string](ctx, down, err)
		}
		return newLineWriter(ctx, down, f, f)
	})
}

// WriteTo writes every value to w, one per line, and passes it on. Output
// is buffered and flushed when the stream ends.
func WriteTo(w io.Writer) core.Transformer[string, string] {
	return core.Lift[string, string](func(ctx context.Context, down core.Subscriber[string]) core.Subscriber[string] {
		return newLineWriter(ctx, down, w, nil)
	})
}

// newLineWriter writes a line before passing each value on. Buffered output
// is flushed before a terminal signal is forwarded, so a consumer that saw
// completion can read what was written.
func newLineWriter(ctx context.Context, down core.Subscriber[string], w io.Writer, c io.Closer) *core.Operator[string, string] {
	o := core.NewOperator[string, string](ctx, down)
	bw := bufio.NewWriter(w)
	o.Next = func(line string) {
		if _, err := bw.WriteString(line); err != nil {
			o.Fail(err)
			return
		}
		if err := bw.WriteByte('\n'); err != nil {
			o.Fail(err)
			return
		}
		o.Emit(line)
	}
	o.Completed = func() {
		if err := bw.Flush(); err != nil {
			o.Fail(err)
			return
		}
		o.Complete()
	}
	o.Failed = func(err error) {
		if ferr := bw.Flush(); ferr != nil {
			o.Logger().Warn().Err(ferr).Msg("flushing after upstream error")
		}
		o.Error(err)
	}
	o.Release = func() {
		bw.Flush()
		if c != nil {
			if err := c.Close(); err != nil {
				o.Logger().Warn().Err(err).Msg("closing output")
			}
		}
	}
	return o
}
