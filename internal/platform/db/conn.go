package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ErrUnsupportedURL is returned by Open when the connection string names a
// backend this build does not know how to reach.
var ErrUnsupportedURL = errors.New("unsupported database url")

// Dialect identifies the SQL flavour behind a Store.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Row is the subset of pgx.Row and *sql.Row the repositories use.
type Row interface {
	Scan(dest ...any) error
}

// Rows is the subset of pgx.Rows and *sql.Rows the repositories use.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Conn runs statements. Queries use '?' placeholders regardless of dialect;
// the postgres adapter rewrites them to $n before sending.
type Conn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
}

// Tx is a Conn bound to a single transaction.
type Tx interface {
	Conn
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is an open handle on the backing database.
type Store interface {
	Conn
	Dialect() Dialect
	Begin(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Options tune the connection pool. SQLite ignores them and always runs on
// a single connection.
type Options struct {
	MaxConns int32
	MinConns int32
}

// Open connects to the database named by url. postgres:// and postgresql://
// go to pgx; sqlite://path, file:path and bare *.db paths go to SQLite.
func Open(ctx context.Context, url string, opts Options) (Store, error) {
	d, target, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	if d == Postgres {
		s, err := NewPool(ctx, target, opts.MaxConns, opts.MinConns)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := OpenSQLite(ctx, target)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ParseURL splits a connection string into its dialect and the driver
// specific target (a pgx connection string or a SQLite file path).
func ParseURL(url string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return Postgres, url, nil
	case strings.HasPrefix(url, "sqlite://"):
		// sqlite:///data/forms.db is relative, sqlite:////var/forms.db absolute.
		path := strings.TrimPrefix(strings.TrimPrefix(url, "sqlite://"), "/")
		if path == "" {
			return "", "", fmt.Errorf("%w: %q has no path", ErrUnsupportedURL, url)
		}
		return SQLite, path, nil
	case strings.HasPrefix(url, "file:"):
		return SQLite, strings.TrimPrefix(url, "file:"), nil
	case url == MemoryPath, strings.HasSuffix(url, ".db"):
		return SQLite, url, nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnsupportedURL, url)
}

// IsNoRows reports whether err is the "no rows" error of either driver.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

type txKey struct{}

// WithTx runs fn inside a transaction. The transaction travels in the context
// passed to fn; repositories pick it up through ConnFor.
func WithTx(ctx context.Context, s Store, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := s.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// TxFromContext returns the transaction stored by WithTx, or nil.
func TxFromContext(ctx context.Context) Tx {
	tx, _ := ctx.Value(txKey{}).(Tx)
	return tx
}

// ConnFor returns the transaction in ctx if there is one, otherwise s.
func ConnFor(ctx context.Context, s Store) Conn {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return s
}

// rebind rewrites '?' placeholders to $1..$n, leaving quoted literals alone.
func rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			b.WriteByte(ch)
		case ch == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
