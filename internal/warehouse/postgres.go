package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresClient implements Client on database/sql with the lib/pq driver.
type PostgresClient struct {
	db *sql.DB
}

// NewPostgresClient wraps an open connection pool.
func NewPostgresClient(db *sql.DB) *PostgresClient {
	return &PostgresClient{db: db}
}

var _ Client = (*PostgresClient)(nil)

func (c *PostgresClient) Exec(ctx context.Context, stmt string, args ...any) error {
	if _, err := c.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to execute statement: %w", err)
	}
	return nil
}

func (c *PostgresClient) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return rows, nil
}

func (c *PostgresClient) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

func (c *PostgresClient) WriteRows(ctx context.Context, table string, columns []string, rows [][]any, mode WriteMode, kind TableKind) error {
	return writeRows(ctx, c.db, table, columns, rows, mode, kind)
}

// Session pins one pooled connection so temporary tables survive across
// statements within a single load.
func (c *PostgresClient) Session(ctx context.Context) (Session, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire warehouse session: %w", err)
	}
	return &postgresSession{conn: conn}, nil
}

type postgresSession struct {
	conn *sql.Conn
}

var _ Session = (*postgresSession)(nil)

func (s *postgresSession) Exec(ctx context.Context, stmt string, args ...any) error {
	if _, err := s.conn.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to execute statement: %w", err)
	}
	return nil
}

func (s *postgresSession) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return rows, nil
}

func (s *postgresSession) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.conn.QueryRowContext(ctx, query, args...)
}

func (s *postgresSession) WriteRows(ctx context.Context, table string, columns []string, rows [][]any, mode WriteMode, kind TableKind) error {
	return writeRows(ctx, s.conn, table, columns, rows, mode, kind)
}

func (s *postgresSession) Close() error {
	return s.conn.Close()
}

// execer covers *sql.DB and *sql.Conn for the shared write path.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

func writeRows(ctx context.Context, db execer, table string, columns []string, rows [][]any, mode WriteMode, kind TableKind) error {
	if err := ValidIdentifier(table); err != nil {
		return err
	}
	for _, col := range columns {
		if err := ValidIdentifier(col); err != nil {
			return err
		}
	}
	if len(rows) > 0 && len(rows[0]) != len(columns) {
		return fmt.Errorf("row width %d does not match %d columns", len(rows[0]), len(columns))
	}

	if mode == ModeOverwrite {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return fmt.Errorf("failed to drop %s before overwrite: %w", table, err)
		}
	}
	ddl := createTableDDL(table, columns, rows, kind)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create %s: %w", table, err)
	}

	if len(rows) == 0 {
		return nil
	}

	// COPY is the fastest bulk path lib/pq offers and keeps the write to a
	// single transaction.
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin write transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, columns...))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare bulk copy into %s: %w", table, err)
	}
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("failed to copy row into %s: %w", table, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		tx.Rollback()
		return fmt.Errorf("failed to flush bulk copy into %s: %w", table, err)
	}
	if err := stmt.Close(); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to close bulk copy into %s: %w", table, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit write into %s: %w", table, err)
	}
	return nil
}

// createTableDDL infers column types from the first row's Go values, the
// same way the original pipeline inferred them from dataframes.
func createTableDDL(table string, columns []string, rows [][]any, kind TableKind) string {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = col + " " + columnType(rows, i)
	}
	temp := ""
	if kind == KindTemporary {
		temp = "TEMPORARY "
	}
	return fmt.Sprintf("CREATE %sTABLE IF NOT EXISTS %s (%s)", temp, table, strings.Join(defs, ", "))
}

func columnType(rows [][]any, i int) string {
	for _, row := range rows {
		switch row[i].(type) {
		case nil:
			continue
		case time.Time:
			return "timestamptz"
		case int, int32, int64:
			return "bigint"
		case float32, float64:
			return "double precision"
		case bool:
			return "boolean"
		default:
			return "text"
		}
	}
	return "text"
}
