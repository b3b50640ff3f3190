package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
)

var (
	ErrNotFound            = errors.New("row not found")
	ErrUniqueViolation     = errors.New("unique constraint violated")
	ErrForeignKeyViolation = errors.New("foreign key constraint violated")
	ErrNoSequenceValue     = errors.New("sequence has no current value in this session")
)

// Row is a single result row, one value per selected column
type Row []interface{}

// Querier is the set of primitives every repository operation is built from.
// It is implemented on top of both a connection pool and a transaction.
type Querier interface {
	// Execute runs a statement that produces no rows
	Execute(ctx context.Context, sql string, args ...interface{}) error
	// QueryCount runs a query and returns the number of rows it produced
	QueryCount(ctx context.Context, sql string, args ...interface{}) (int, error)
	// QueryRows runs a query and returns all of its rows in order
	QueryRows(ctx context.Context, sql string, args ...interface{}) ([]Row, error)
	// CurrentSequenceValue returns the value most recently obtained from the sequence in the current session
	CurrentSequenceValue(ctx context.Context, name string) (int64, error)
}

// conn is satisfied by *pgxpool.Pool and pgx.Tx
type conn interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type pgQuerier struct {
	c conn
}

func (p pgQuerier) Execute(ctx context.Context, sql string, args ...interface{}) error {
	_, err := p.c.Exec(ctx, sql, args...)
	return mapPgError(err)
}

func (p pgQuerier) QueryCount(ctx context.Context, sql string, args ...interface{}) (int, error) {
	rows, err := p.c.Query(ctx, sql, args...)
	if err != nil {
		return 0, mapPgError(err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}

	if rows.Err() != nil {
		return 0, mapPgError(rows.Err())
	}

	return n, nil
}

func (p pgQuerier) QueryRows(ctx context.Context, sql string, args ...interface{}) ([]Row, error) {
	rows, err := p.c.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, mapPgError(err)
		}
		out = append(out, values)
	}

	if rows.Err() != nil {
		return nil, mapPgError(rows.Err())
	}

	return out, nil
}

func (p pgQuerier) CurrentSequenceValue(ctx context.Context, name string) (int64, error) {
	// text is implicitly coerced to regclass by currval
	var v pgtype.Int8
	err := p.c.QueryRow(ctx, "select currval($1::text)", name).Scan(&v)
	if err != nil {
		return 0, mapPgError(err)
	}

	if v.Status != pgtype.Present {
		return 0, ErrNoSequenceValue
	}

	return v.Int, nil
}

// mapPgError translates constraint and sequence failures into package sentinels,
// keeping the constraint name for callers that need it
func mapPgError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.ConstraintName)
	case pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("%w: %s", ErrForeignKeyViolation, pgErr.ConstraintName)
	case pgerrcode.ObjectNotInPrerequisiteState:
		return ErrNoSequenceValue
	default:
		return err
	}
}

func int64Value(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected integer column type %T", v)
	}
}

func stringValue(v interface{}) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("unexpected text column type %T", v)
	}
}

func timeValue(v interface{}) (time.Time, error) {
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("unexpected timestamp column type %T", v)
	}
	return t.UTC(), nil
}
