package store

import (
	"context"
	"path/filepath"
)

// FullText returns the untruncated plain_text of the document whose
// idColumn equals id, read straight from the parquet files of index. It
// returns "" when no such document exists.
func FullText(ctx context.Context, parquetDir, index, idColumn, id string) (string, error) {
	files, err := ParquetFiles(filepath.Join(parquetDir, index))
	if err != nil {
		return "", err
	}

	var text string
	err = Scan(ctx, files, []string{idColumn, "plain_text"}, func(rec Record) (bool, error) {
		if rec[idColumn] != id {
			return true, nil
		}
		text = rec["plain_text"]
		return false, nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}
