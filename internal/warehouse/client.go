// Package warehouse defines the client contract every pipeline component
// uses to talk to the analytical store: execute a statement, execute a query
// to a tabular result, and write tabular data to a permanent or temporary
// table. Temporary tables are session-scoped, so work that stages data must
// run on a Session pinned to one connection.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
)

// WriteMode selects what happens when the destination table already exists.
type WriteMode string

const (
	ModeOverwrite WriteMode = "overwrite"
	ModeAppend    WriteMode = "append"
)

// TableKind selects the lifetime of the destination table.
type TableKind string

const (
	KindPermanent TableKind = "permanent"
	KindTemporary TableKind = "temporary"
)

// Client is the warehouse-side contract.
type Client interface {
	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, stmt string, args ...any) error
	// Query runs a query and returns its tabular result.
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	// QueryRow runs a query expected to return at most one row.
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row
	// WriteRows writes tabular data to a table, creating it when needed.
	WriteRows(ctx context.Context, table string, columns []string, rows [][]any, mode WriteMode, kind TableKind) error
	// Session pins a single connection, required for temporary tables.
	Session(ctx context.Context) (Session, error)
}

// Session is a Client scoped to one warehouse connection. Close releases the
// connection; any temporary tables created on it go with it.
type Session interface {
	Exec(ctx context.Context, stmt string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row
	WriteRows(ctx context.Context, table string, columns []string, rows [][]any, mode WriteMode, kind TableKind) error
	Close() error
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier guards table and column names that end up interpolated
// into DDL (placeholders cannot carry identifiers).
func ValidIdentifier(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}
