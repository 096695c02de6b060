// Package sql adapts database/sql to flow pipelines: queries become
// demand-driven publishers that read one row per requested value, and
// statements become transformers executed per value or per batch.
//
// Database calls run on the goroutine that requests or delivers the values;
// put a core.DispatchOn stage in front to move them onto a lane.
package sql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lguimbarda/min-rx/flow/aggregate"
	"github.com/lguimbarda/min-rx/flow/core"
)

// Scanner converts the current row into a value.
type Scanner[T any] func(*sql.Rows) (T, error)

// Query runs query on the first request and emits one value per row. Rows
// are read only as far as the downstream requested; cancelling closes them.
// A scanner error fails the stream.
func Query[T any](db *sql.DB, query string, scanner Scanner[T], args ...any) core.Publisher[T] {
	return core.Pull(func(ctx context.Context) (core.PullFunc[T], func()) {
		var rows *sql.Rows
		next := func() (T, bool, error) {
			var zero T
			if rows == nil {
				r, err := db.QueryContext(ctx, query, args...)
				if err != nil {
					return zero, false, err
				}
				rows = r
			}
			if !rows.Next() {
				return zero, false, rows.Err()
			}
			v, err := scanner(rows)
			if err != nil {
				return zero, false, err
			}
			return v, true, nil
		}
		closeRows := func() {
			if rows != nil {
				_ = rows.Close()
			}
		}
		return next, closeRows
	})
}

// QueryRow emits the single value scanned from the first row of query. A
// query without rows fails with sql.ErrNoRows.
func QueryRow[T any](db *sql.DB, query string, scanner func(*sql.Row) (T, error), args ...any) core.Publisher[T] {
	return core.Pull(func(ctx context.Context) (core.PullFunc[T], func()) {
		done := false
		return func() (T, bool, error) {
			var zero T
			if done {
				return zero, false, nil
			}
			done = true
			v, err := scanner(db.QueryRowContext(ctx, query, args...))
			if err != nil {
				return zero, false, err
			}
			return v, true, nil
		}, nil
	})
}

// ExecResult is the outcome of one statement or batch.
type ExecResult struct {
	LastInsertId int64
	RowsAffected int64
}

func resultOf(r sql.Result) ExecResult {
	lastID, _ := r.LastInsertId()
	affected, _ := r.RowsAffected()
	return ExecResult{LastInsertId: lastID, RowsAffected: affected}
}

// Exec runs a statement on the first request and emits its result.
func Exec(db *sql.DB, query string, args ...any) core.Publisher[ExecResult] {
	return core.Pull(func(ctx context.Context) (core.PullFunc[ExecResult], func()) {
		done := false
		return func() (ExecResult, bool, error) {
			if done {
				return ExecResult{}, false, nil
			}
			done = true
			r, err := db.ExecContext(ctx, query, args...)
			if err != nil {
				return ExecResult{}, false, err
			}
			return resultOf(r), true, nil
		}, nil
	})
}

// ExecMany executes query once per value, with the arguments binder returns
// for it, and emits each result. A failed statement fails the stream.
func ExecMany[T any](db *sql.DB, query string, binder func(T) []any) core.Transformer[T, ExecResult] {
	return core.Lift[T, ExecResult](func(ctx context.Context, down core.Subscriber[ExecResult]) core.Subscriber[T] {
		o := core.NewOperator[T, ExecResult](ctx, down)
		o.Next = func(v T) {
			r, err := core.Protect1(func() (sql.Result, error) {
				return db.ExecContext(ctx, query, binder(v)...)
			})
			if err != nil {
				o.Fail(err)
				return
			}
			o.Emit(resultOf(r))
		}
		return o
	})
}

// ExecBatch groups values into batches of size and executes query for every
// value of a batch inside one transaction. It emits one result per batch,
// with RowsAffected summed over the batch and the LastInsertId of its last
// statement. A failed statement rolls the batch back and fails the stream.
func ExecBatch[T any](db *sql.DB, query string, size int, binder func(T) []any) core.Transformer[T, ExecResult] {
	commit := core.Lift[[]T, ExecResult](func(ctx context.Context, down core.Subscriber[ExecResult]) core.Subscriber[[]T] {
		o := core.NewOperator[[]T, ExecResult](ctx, down)
		o.Next = func(batch []T) {
			res, err := core.Protect1(func() (ExecResult, error) {
				return inTx(ctx, db, func(tx *sql.Tx) (ExecResult, error) {
					return execAll(ctx, tx, query, batch, binder)
				})
			})
			if err != nil {
				o.Fail(err)
				return
			}
			o.Emit(res)
		}
		return o
	})
	return core.Through[T, []T, ExecResult](aggregate.Buffer[T](size), commit)
}

func execAll[T any](ctx context.Context, tx *sql.Tx, query string, batch []T, binder func(T) []any) (ExecResult, error) {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return ExecResult{}, fmt.Errorf("sql: prepare: %w", err)
	}
	defer stmt.Close()
	var total ExecResult
	for _, v := range batch {
		r, err := stmt.ExecContext(ctx, binder(v)...)
		if err != nil {
			return ExecResult{}, err
		}
		res := resultOf(r)
		total.RowsAffected += res.RowsAffected
		total.LastInsertId = res.LastInsertId
	}
	return total, nil
}

// inTx runs fn in a transaction, committing when it succeeds and rolling
// back otherwise.
func inTx[T any](ctx context.Context, db *sql.DB, fn func(*sql.Tx) (T, error)) (T, error) {
	var zero T
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return zero, err
	}
	v, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return zero, err
	}
	if err := tx.Commit(); err != nil {
		return zero, err
	}
	return v, nil
}

// Transaction runs fn in a transaction on the first request and emits its
// value once the transaction committed. An error from fn rolls back and
// fails the stream.
func Transaction[T any](db *sql.DB, fn func(tx *sql.Tx) (T, error)) core.Publisher[T] {
	return core.Pull(func(ctx context.Context) (core.PullFunc[T], func()) {
		done := false
		return func() (T, bool, error) {
			var zero T
			if done {
				return zero, false, nil
			}
			done = true
			v, err := inTx(ctx, db, fn)
			if err != nil {
				return zero, false, err
			}
			return v, true, nil
		}, nil
	})
}

// QueryStrings queries rows as string slices, one string per column.
func QueryStrings(db *sql.DB, query string, args ...any) core.Publisher[[]string] {
	return Query(db, query, func(rows *sql.Rows) ([]string, error) {
		values, _, err := scanAny(rows)
		if err != nil {
			return nil, err
		}
		out := make([]string, len(values))
		for i, v := range values {
			switch val := v.(type) {
			case nil:
			case []byte:
				out[i] = string(val)
			default:
				out[i] = fmt.Sprint(val)
			}
		}
		return out, nil
	}, args...)
}

// QueryMaps queries rows as maps from column name to value.
func QueryMaps(db *sql.DB, query string, args ...any) core.Publisher[map[string]any] {
	return Query(db, query, func(rows *sql.Rows) (map[string]any, error) {
		values, cols, err := scanAny(rows)
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(cols))
		for i, col := range cols {
			out[col] = values[i]
		}
		return out, nil
	}, args...)
}

func scanAny(rows *sql.Rows) ([]any, []string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, nil, err
	}
	return values, cols, nil
}
