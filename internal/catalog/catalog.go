// Package catalog enumerates the full-text indexes the service searches.
//
// Every sub-directory of the index directory is one bleve index, opened
// read-only at startup. The index name doubles as the name of its metadata
// directory under the parquet directory and, with dashes replaced, as the
// name of its metadata table. The catalog never changes after Discover.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/blevesearch/bleve/v2"

	mosaicerrors "github.com/Aman-CERP/mosaic/internal/errors"
	"github.com/Aman-CERP/mosaic/internal/module"
	"github.com/Aman-CERP/mosaic/internal/store"
)

// ContentsField is the document field holding the indexed text.
const ContentsField = "contents"

// Index describes one searchable index.
type Index struct {
	// Name is the directory name of the index.
	Name string
	// Table is the metadata table paired with the index.
	Table string
	// Full is the opened full-text index.
	Full bleve.Index
}

// Catalog is the set of indexes known at startup.
type Catalog struct {
	indexes  map[string]*Index
	names    []string
	metadata map[string]bool
}

var _ module.Catalog = (*Catalog)(nil)

// New builds a catalog over already-opened indexes. metadataDirs names the
// indexes that have a metadata directory.
func New(indexes map[string]bleve.Index, metadataDirs []string) *Catalog {
	c := &Catalog{
		indexes:  make(map[string]*Index, len(indexes)),
		metadata: make(map[string]bool, len(metadataDirs)),
	}
	for name, idx := range indexes {
		c.indexes[name] = &Index{Name: name, Table: store.TableName(name), Full: idx}
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
	for _, name := range metadataDirs {
		c.metadata[name] = true
	}
	return c
}

// Discover opens every index under indexDir read-only and records which of
// them have a metadata directory under parquetDir.
func Discover(ctx context.Context, indexDir, parquetDir string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dirs, err := subdirectories(indexDir)
	if err != nil {
		return nil, mosaicerrors.EngineError(mosaicerrors.ErrCodeIndexOpen,
			fmt.Sprintf("No indexes found in %s", indexDir), err)
	}

	opened := make(map[string]bleve.Index, len(dirs))
	closeAll := func() {
		for _, idx := range opened {
			_ = idx.Close()
		}
	}

	for _, name := range dirs {
		if err := ctx.Err(); err != nil {
			closeAll()
			return nil, err
		}

		path := filepath.Join(indexDir, name)
		if err := validateIndexIntegrity(path); err != nil {
			closeAll()
			return nil, mosaicerrors.EngineError(mosaicerrors.ErrCodeCorruptIndex,
				fmt.Sprintf("The index %s is corrupted", name), err).WithDetail("path", path)
		}

		idx, err := bleve.OpenUsing(path, map[string]interface{}{"read_only": true})
		if err != nil {
			closeAll()
			return nil, mosaicerrors.EngineError(mosaicerrors.ErrCodeIndexOpen,
				fmt.Sprintf("The index %s could not be opened", name), err).WithDetail("path", path)
		}
		opened[name] = idx
		logger.Info("index_opened", slog.String("index", name), slog.String("path", path))
	}

	var metadata []string
	if parquetDir != "" {
		metadata, err = subdirectories(parquetDir)
		if err != nil {
			logger.Warn("metadata_dir_unreadable",
				slog.String("path", parquetDir),
				slog.String("error", err.Error()))
		}
	}

	c := New(opened, metadata)
	logger.Info("catalog_ready",
		slog.Int("indexes", len(c.names)),
		slog.Int("metadata_dirs", len(metadata)))
	return c, nil
}

// subdirectories lists the directory names directly under dir, sorted.
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
	sort.Strings(names)
	return names, nil
}

// validateIndexIntegrity checks that path looks like a complete bleve index
// before it is opened.
func validateIndexIntegrity(path string) error {
	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// Names returns the index names in enumeration (lexical) order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Get returns the named index.
func (c *Catalog) Get(name string) (*Index, bool) {
	idx, ok := c.indexes[name]
	return idx, ok
}

// Has reports whether name is a known index.
func (c *Catalog) Has(name string) bool {
	_, ok := c.indexes[name]
	return ok
}

// HasMetadata reports whether the metadata directory of name exists.
func (c *Catalog) HasMetadata(name string) bool {
	return c.metadata[name]
}

// Targets returns the indexes a request searches: the selected one, or all
// of them in enumeration order.
func (c *Catalog) Targets(selected string) []*Index {
	if selected != "" {
		if idx, ok := c.indexes[selected]; ok {
			return []*Index{idx}
		}
		return nil
	}
	out := make([]*Index, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.indexes[name])
	}
	return out
}

// DocumentCount returns the number of documents in the named index.
func (c *Catalog) DocumentCount(name string) (uint64, error) {
	idx, ok := c.indexes[name]
	if !ok {
		return 0, mosaicerrors.UnknownIndexError(name)
	}
	n, err := idx.Full.DocCount()
	if err != nil {
		return 0, mosaicerrors.EngineError(mosaicerrors.ErrCodeSearchFailed,
			fmt.Sprintf("The document count of index %s could not be read", name), err)
	}
	return n, nil
}

// Close closes every index. It returns the first error encountered.
func (c *Catalog) Close() error {
	var first error
	for _, name := range c.names {
		if err := c.indexes[name].Full.Close(); err != nil && first == nil {
			first = fmt.Errorf("close index %s: %w", name, err)
		}
	}
	return first
}
