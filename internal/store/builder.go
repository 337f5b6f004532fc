package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/mosaic/internal/module"
)

// TableSpec describes how metadata tables are built from parquet files.
type TableSpec struct {
	// IDColumn is the column shared with the full-text index.
	IDColumn string
	// Columns are the metadata columns the active modules read.
	Columns module.ColumnSet
	// NumCharacters truncates plain_text when greater than one.
	NumCharacters int
}

// tableColumns picks the columns a table keeps: the module columns present
// in the parquet schema, plus the id columns.
func tableColumns(schema map[string]bool, spec TableSpec) ([]string, error) {
	if !schema[spec.IDColumn] {
		return nil, fmt.Errorf("id column %s not found in parquet schema", spec.IDColumn)
	}
	keep := module.ColumnSet{}
	for name := range spec.Columns {
		if schema[name] {
			keep[name] = struct{}{}
		}
	}
	keep[spec.IDColumn] = struct{}{}
	if schema["id"] {
		keep["id"] = struct{}{}
	}
	return keep.Sorted(), nil
}

// truncateRunes cuts s to at most n characters.
func truncateRunes(s string, n int) string {
	if n <= 1 || len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// BuildTable creates the table of index from the parquet files in
// <parquetDir>/<index>. An existing table is kept as is; created reports
// whether a new one was written.
func (d *DB) BuildTable(ctx context.Context, index, parquetDir string, spec TableSpec) (created bool, err error) {
	table := TableName(index)
	exists, err := d.TableExists(ctx, table)
	if err != nil {
		return false, err
	}
	if exists {
		d.logger.Debug("table_exists", slog.String("index", index), slog.String("table", table))
		return false, nil
	}

	files, err := ParquetFiles(filepath.Join(parquetDir, index))
	if err != nil {
		return false, err
	}
	schema, err := SchemaColumns(files)
	if err != nil {
		return false, err
	}
	cols, err := tableColumns(schema, spec)
	if err != nil {
		return false, fmt.Errorf("index %s: %w", index, err)
	}

	start := time.Now()
	d.logger.Info("table_build_started",
		slog.String("index", index),
		slog.String("table", table),
		slog.Int("files", len(files)),
		slog.String("columns", strings.Join(cols, ",")))

	c, err := d.conn(ctx)
	if err != nil {
		return false, err
	}
	defer c.Close()

	tx, err := c.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := fillTable(ctx, tx, table, files, cols, spec)
	if err != nil {
		return false, fmt.Errorf("failed to build table %s: %w", table, err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit table %s: %w", table, err)
	}

	d.logger.Info("table_created",
		slog.String("index", index),
		slog.String("table", table),
		slog.Int("rows", rows),
		slog.Duration("duration", time.Since(start)))
	return true, nil
}

// fillTable loads files into a staging table, then copies it ordered by the
// id column into table and indexes the id column.
func fillTable(ctx context.Context, tx *sql.Tx, table string, files, cols []string, spec TableSpec) (int, error) {
	staging := table + "__staging"
	defs := make([]string, len(cols))
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = QuoteIdent(col)
		defs[i] = quoted[i] + " TEXT"
		marks[i] = "?"
	}

	stmts := []string{
		"DROP TABLE IF EXISTS " + QuoteIdent(staging),
		"CREATE TABLE " + QuoteIdent(staging) + " (" + strings.Join(defs, ", ") + ")",
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return 0, err
		}
	}

	insert, err := tx.PrepareContext(ctx,
		"INSERT INTO "+QuoteIdent(staging)+" ("+strings.Join(quoted, ", ")+") VALUES ("+strings.Join(marks, ", ")+")")
	if err != nil {
		return 0, err
	}
	defer insert.Close()

	n := 0
	args := make([]any, len(cols))
	err = Scan(ctx, files, cols, func(rec Record) (bool, error) {
		for i, col := range cols {
			v, ok := rec[col]
			if !ok {
				args[i] = nil
				continue
			}
			if col == "plain_text" {
				v = truncateRunes(v, spec.NumCharacters)
			}
			args[i] = v
		}
		if _, err := insert.ExecContext(ctx, args...); err != nil {
			return false, err
		}
		n++
		return true, nil
	})
	if err != nil {
		return 0, err
	}

	id := QuoteIdent(spec.IDColumn)
	stmts = []string{
		"CREATE TABLE " + QuoteIdent(table) + " AS SELECT * FROM " + QuoteIdent(staging) + " ORDER BY " + id,
		"CREATE INDEX " + QuoteIdent(table+"_"+spec.IDColumn+"_idx") + " ON " + QuoteIdent(table) + " (" + id + ")",
		"DROP TABLE " + QuoteIdent(staging),
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// BuildTables creates every missing table of indexes, one at a time, under
// the cross-process build lock. It returns the names of indexes whose table
// was created.
func (d *DB) BuildTables(ctx context.Context, indexes []string, parquetDir string, spec TableSpec) ([]string, error) {
	lock := NewBuildLock(d.path)
	if err := lock.Lock(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			d.logger.Warn("build_lock_release_failed", slog.String("error", err.Error()))
		}
	}()

	sorted := append([]string(nil), indexes...)
	sort.Strings(sorted)

	var created []string
	for _, index := range sorted {
		ok, err := d.BuildTable(ctx, index, parquetDir, spec)
		if err != nil {
			return created, err
		}
		if ok {
			created = append(created, index)
		}
	}
	return created, nil
}
