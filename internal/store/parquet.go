package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/parquet-go/parquet-go"
)

// rowBatch is the number of rows read from a row group at a time.
const rowBatch = 1000

// Record is one parquet row reduced to strings. Repeated columns are encoded
// as JSON arrays; NULL scalars are absent.
type Record map[string]string

// ParquetFiles returns the parquet files of dir (matching *.parquet*) in
// lexical order.
func ParquetFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.parquet*"))
	if err != nil {
		return nil, fmt.Errorf("glob parquet files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no parquet files found in %s", dir)
	}
	sort.Strings(files)
	return files, nil
}

// parquetHandle ties a parquet.File to the os.File backing it.
type parquetHandle struct {
	pf   *parquet.File
	file *os.File
}

func (h *parquetHandle) Close() {
	_ = h.file.Close()
}

func openParquet(path string) (*parquetHandle, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	return &parquetHandle{pf: pf, file: f}, nil
}

// leafColumn maps a leaf column index to the top-level column it belongs to.
type leafColumn struct {
	name     string
	repeated bool
}

// resolveColumns finds the leaves of the wanted top-level columns. A nil
// wanted set selects every column.
func resolveColumns(pf *parquet.File, wanted map[string]bool) map[int]leafColumn {
	schema := pf.Schema()
	leaves := make(map[int]leafColumn)
	for i, path := range schema.Columns() {
		if len(path) == 0 {
			continue
		}
		if wanted != nil && !wanted[path[0]] {
			continue
		}
		lc := leafColumn{name: path[0]}
		if leaf, ok := schema.Lookup(path...); ok {
			lc.repeated = leaf.MaxRepetitionLevel > 0
		}
		leaves[i] = lc
	}
	return leaves
}

// SchemaColumns returns the union of the top-level column names of files.
func SchemaColumns(files []string) (map[string]bool, error) {
	cols := make(map[string]bool)
	for _, path := range files {
		h, err := openParquet(path)
		if err != nil {
			return nil, fmt.Errorf("read schema of %s: %w", filepath.Base(path), err)
		}
		for _, lc := range resolveColumns(h.pf, nil) {
			cols[lc.name] = true
		}
		h.Close()
	}
	return cols, nil
}

// ScanFunc receives each record. Returning false stops the scan.
type ScanFunc func(rec Record) (bool, error)

// Scan reads the named columns of every row of files in order.
func Scan(ctx context.Context, files []string, columns []string, fn ScanFunc) error {
	wanted := make(map[string]bool, len(columns))
	for _, c := range columns {
		wanted[c] = true
	}

	for _, path := range files {
		more, err := scanFile(ctx, path, wanted, fn)
		if err != nil {
			return fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		if !more {
			return nil
		}
	}
	return nil
}

func scanFile(ctx context.Context, path string, wanted map[string]bool, fn ScanFunc) (bool, error) {
	h, err := openParquet(path)
	if err != nil {
		return false, err
	}
	defer h.Close()

	leaves := resolveColumns(h.pf, wanted)
	buf := make([]parquet.Row, rowBatch)

	for _, rg := range h.pf.RowGroups() {
		more, err := scanRowGroup(ctx, parquet.NewRowGroupReader(rg), buf, leaves, fn)
		if err != nil || !more {
			return false, err
		}
	}
	return true, nil
}

// scanRowGroup feeds every row of rows to fn and closes rows.
func scanRowGroup(ctx context.Context, rows *parquet.Reader, buf []parquet.Row, leaves map[int]leafColumn, fn ScanFunc) (more bool, err error) {
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			more, err = false, fmt.Errorf("close rows: %w", cerr)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		n, readErr := rows.ReadRows(buf)
		for i := 0; i < n; i++ {
			rec, err := toRecord(buf[i], leaves)
			if err != nil {
				return false, err
			}
			more, err := fn(rec)
			if err != nil {
				return false, err
			}
			if !more {
				return false, nil
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return true, nil
			}
			return false, fmt.Errorf("read rows: %w", readErr)
		}
	}
}

// toRecord flattens a generic parquet row using the resolved leaves.
func toRecord(row parquet.Row, leaves map[int]leafColumn) (Record, error) {
	rec := make(Record, len(leaves))
	lists := make(map[string][]string)

	for _, v := range row {
		lc, ok := leaves[v.Column()]
		if !ok {
			continue
		}
		if lc.repeated {
			if _, seen := lists[lc.name]; !seen {
				lists[lc.name] = []string{}
			}
			if !v.IsNull() {
				lists[lc.name] = append(lists[lc.name], v.String())
			}
			continue
		}
		if !v.IsNull() {
			rec[lc.name] = v.String()
		}
	}

	for name, values := range lists {
		data, err := json.Marshal(values)
		if err != nil {
			return nil, fmt.Errorf("encode list column %s: %w", name, err)
		}
		rec[name] = string(data)
	}
	return rec, nil
}
