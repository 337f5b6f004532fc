package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/mosaic/internal/store"
)

// batchSize is the number of documents written per bleve batch.
const batchSize = 1000

// indexedDoc is the document shape stored in a full-text index.
type indexedDoc struct {
	Contents string `json:"contents"`
}

// NewIndexMapping returns the mapping used for built indexes: one analyzed
// contents field, also searchable through the default field.
func NewIndexMapping() *mapping.IndexMappingImpl {
	contents := bleve.NewTextFieldMapping()
	contents.Analyzer = standard.Name
	contents.Store = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(ContentsField, contents)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = standard.Name
	return m
}

// IndexDocuments writes the plain_text of every row of files into idx,
// keyed by idColumn.
func IndexDocuments(ctx context.Context, idx bleve.Index, files []string, idColumn string) (int, error) {
	batch := idx.NewBatch()
	n := 0

	flush := func() error {
		if batch.Size() == 0 {
			return nil
		}
		if err := idx.Batch(batch); err != nil {
			return fmt.Errorf("failed to execute batch: %w", err)
		}
		batch.Reset()
		return nil
	}

	err := store.Scan(ctx, files, []string{idColumn, "plain_text"}, func(rec store.Record) (bool, error) {
		id := rec[idColumn]
		if id == "" {
			return true, nil
		}
		if err := batch.Index(id, indexedDoc{Contents: rec["plain_text"]}); err != nil {
			return false, fmt.Errorf("failed to index document %s: %w", id, err)
		}
		n++
		if batch.Size() >= batchSize {
			if err := flush(); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		return n, err
	}
	return n, flush()
}

// BuildIndex creates the bleve index at path from the parquet files in
// parquetDir. It fails when path already exists.
func BuildIndex(ctx context.Context, path, parquetDir, idColumn string) (int, error) {
	files, err := store.ParquetFiles(parquetDir)
	if err != nil {
		return 0, err
	}

	idx, err := bleve.New(path, NewIndexMapping())
	if err != nil {
		return 0, fmt.Errorf("failed to create index %s: %w", path, err)
	}

	n, err := IndexDocuments(ctx, idx, files, idColumn)
	if closeErr := idx.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close index %s: %w", path, closeErr)
	}
	if err != nil {
		_ = os.RemoveAll(path)
		return 0, err
	}
	return n, nil
}

// BuildMissingIndexes creates an index under indexDir for every metadata
// directory of parquetDir that has none, at most workers at a time. It
// returns the names of the indexes it created.
func BuildMissingIndexes(ctx context.Context, indexDir, parquetDir, idColumn string, workers int, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}

	names, err := subdirectories(parquetDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", parquetDir, err)
	}
	if err := os.MkdirAll(indexDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", indexDir, err)
	}

	var missing []string
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(indexDir, name)); os.IsNotExist(err) {
			missing = append(missing, name)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, name := range missing {
		g.Go(func() error {
			start := time.Now()
			n, err := BuildIndex(gctx, filepath.Join(indexDir, name), filepath.Join(parquetDir, name), idColumn)
			if err != nil {
				return fmt.Errorf("index %s: %w", name, err)
			}
			logger.Info("index_created",
				slog.String("index", name),
				slog.Int("documents", n),
				slog.Duration("duration", time.Since(start)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return missing, nil
}
