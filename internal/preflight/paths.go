package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/mosaic/internal/store"
)

// CheckParquetDir checks that paths.parquet_dir holds at least one metadata
// directory with parquet files.
func (c *Checker) CheckParquetDir() CheckResult {
	result := CheckResult{Name: "parquet_dir", Required: true}

	dir := c.cfg.Paths.ParquetDir
	if dir == "" {
		result.Status = StatusFail
		result.Message = "not configured"
		result.Details = "Set paths.parquet_dir or pass --parquet-dir"
		return result
	}
	names, err := subdirectories(dir)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot read %s: %v", dir, err)
		return result
	}

	var usable, empty []string
	for _, name := range names {
		if _, err := store.ParquetFiles(filepath.Join(dir, name)); err != nil {
			empty = append(empty, name)
			continue
		}
		usable = append(usable, name)
	}

	if len(empty) > 0 {
		result.Details = "Without parquet files: " + strings.Join(empty, ", ")
	}
	if len(usable) == 0 {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("no metadata directories with parquet files in %s", dir)
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d metadata directories (%s)", len(usable), strings.Join(usable, ", "))
	return result
}

// CheckIndexDir checks paths.index_dir and warns about metadata directories
// that have no full-text index yet.
func (c *Checker) CheckIndexDir() CheckResult {
	result := CheckResult{Name: "index_dir", Required: true}

	dir := c.cfg.Paths.IndexDir
	if dir == "" {
		result.Status = StatusFail
		result.Message = "not configured"
		result.Details = "Set paths.index_dir or pass --index-dir"
		return result
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s does not exist", dir)
		result.Details = "Run 'mosaic build' to create the indexes"
		return result
	}
	indexes, err := subdirectories(dir)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot read %s: %v", dir, err)
		return result
	}

	var missing []string
	if c.cfg.Paths.ParquetDir != "" {
		have := make(map[string]bool, len(indexes))
		for _, name := range indexes {
			have[name] = true
		}
		names, _ := subdirectories(c.cfg.Paths.ParquetDir)
		for _, name := range names {
			if !have[name] {
				missing = append(missing, name)
			}
		}
	}

	if len(missing) > 0 {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%d indexes, %d not built", len(indexes), len(missing))
		result.Details = "Run 'mosaic build' for: " + strings.Join(missing, ", ")
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d indexes", len(indexes))
	return result
}

// CheckDatabase checks that the directory of paths.db_file is writable.
func (c *Checker) CheckDatabase() CheckResult {
	result := CheckResult{Name: "database", Required: true}

	path := c.cfg.Paths.DBFile
	if path == "" {
		result.Status = StatusFail
		result.Message = "not configured"
		return result
	}

	f, err := os.CreateTemp(filepath.Dir(path), ".mosaic-preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not writable: %v", filepath.Dir(path), err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	if _, err := os.Stat(path); err == nil {
		result.Message = fmt.Sprintf("%s exists", path)
	} else {
		result.Message = fmt.Sprintf("%s will be created", path)
	}
	return result
}

// dataDir is where the service writes: the database directory, or the index
// directory when no database is configured.
func (c *Checker) dataDir() string {
	switch {
	case c.cfg.Paths.DBFile != "":
		return filepath.Dir(c.cfg.Paths.DBFile)
	case c.cfg.Paths.IndexDir != "":
		return c.cfg.Paths.IndexDir
	default:
		return "."
	}
}

func subdirectories(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
