// Package store is the columnar metadata layer: one SQLite table per index,
// built from the parquet files that accompany the full-text index, and
// queried one document at a time during enrichment.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/mosaic/internal/module"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// ErrClosed is returned by operations on a closed DB.
var ErrClosed = errors.New("store is closed")

// DB is the metadata database. It is safe for concurrent use; every
// operation checks out its own connection and returns it when done.
type DB struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger used for store events.
func WithLogger(l *slog.Logger) Option {
	return func(d *DB) {
		if l != nil {
			d.logger = l
		}
	}
}

// Open opens (creating if needed) the database file at path.
func Open(path string, opts ...Option) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	// modernc.org/sqlite applies _pragma DSN entries to every new
	// connection, which plain PRAGMA statements would not.
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetConnMaxLifetime(0)
	// Connections are opened per operation and closed when it returns.
	db.SetMaxIdleConns(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	d := &DB{db: db, path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Close closes the database.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

// conn checks out a dedicated connection for one operation.
func (d *DB) conn(ctx context.Context) (*sql.Conn, error) {
	if d.db == nil {
		return nil, ErrClosed
	}
	c, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return c, nil
}

// TableName is the table holding the metadata of index.
func TableName(index string) string {
	return strings.ReplaceAll(index, "-", "_")
}

// QuoteIdent quotes an SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// TableExists reports whether table has been created.
func (d *DB) TableExists(ctx context.Context, table string) (bool, error) {
	c, err := d.conn(ctx)
	if err != nil {
		return false, err
	}
	defer c.Close()

	var n int
	err = c.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return n > 0, nil
}

// Columns returns the column names of table. A missing table has none.
func (d *DB) Columns(ctx context.Context, table string) (module.ColumnSet, error) {
	c, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	rows, err := c.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := module.ColumnSet{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		cols[name] = struct{}{}
	}
	return cols, rows.Err()
}

// Lookup returns the rows of table whose idColumn equals id and that satisfy
// filter, projecting cols. The id is bound before the filter values.
func (d *DB) Lookup(ctx context.Context, table, idColumn, id string, cols []string, filter module.Filter) ([]module.Row, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("no columns to select from %s", table)
	}

	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = QuoteIdent(col)
	}
	stmt := "SELECT " + strings.Join(quoted, ", ") +
		" FROM " + QuoteIdent(table) +
		" WHERE " + QuoteIdent(idColumn) + " = ?" + filter.Clause

	args := make([]any, 0, 1+len(filter.Args))
	args = append(args, id)
	args = append(args, filter.Args...)

	c, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	rows, err := c.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("metadata lookup in %s failed: %w", table, err)
	}
	defer rows.Close()

	var out []module.Row
	values := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan metadata row: %w", err)
		}
		row := make(module.Row, len(cols))
		for i, col := range cols {
			if values[i].Valid {
				row[col] = values[i].String
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Languages lists the distinct non-null languages of table in ascending
// order. A table without a language column has none.
func (d *DB) Languages(ctx context.Context, table string) ([]string, error) {
	cols, err := d.Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	if !cols.Has("language") {
		return []string{}, nil
	}

	c, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	rows, err := c.QueryContext(ctx,
		`SELECT DISTINCT language FROM `+QuoteIdent(table)+` WHERE language IS NOT NULL ORDER BY language ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list languages of %s: %w", table, err)
	}
	defer rows.Close()

	langs := []string{}
	for rows.Next() {
		var lang string
		if err := rows.Scan(&lang); err != nil {
			return nil, fmt.Errorf("failed to scan language: %w", err)
		}
		langs = append(langs, lang)
	}
	return langs, rows.Err()
}
