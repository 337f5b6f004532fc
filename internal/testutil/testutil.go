// Package testutil writes the on-disk fixtures shared by package tests:
// parquet metadata directories laid out the way the service reads them.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/require"
)

// Doc is one metadata row of a parquet fixture.
type Doc struct {
	RecordID  string   `parquet:"record_id"`
	URL       string   `parquet:"url"`
	Title     string   `parquet:"title"`
	PlainText string   `parquet:"plain_text"`
	Language  string   `parquet:"language"`
	WarcDate  string   `parquet:"warc_date"`
	Locations string   `parquet:"locations"`
	Keywords  []string `parquet:"keywords,list"`
}

// CoreDoc is the metadata row without the optional module columns.
type CoreDoc struct {
	RecordID  string `parquet:"record_id"`
	URL       string `parquet:"url"`
	Title     string `parquet:"title"`
	PlainText string `parquet:"plain_text"`
	Language  string `parquet:"language"`
	WarcDate  string `parquet:"warc_date"`
}

// WriteParquet writes docs as <parquetDir>/<index>/part-0.parquet.
func WriteParquet[T any](t testing.TB, parquetDir, index string, docs []T) string {
	t.Helper()

	dir := filepath.Join(parquetDir, index)
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, "part-0.parquet")
	require.NoError(t, parquet.WriteFile(path, docs))
	return path
}

// Docs builds n documents with ids doc-000.. and predictable text. Every
// document mentions "common"; even-numbered ones also mention "zebra".
func Docs(n int) []Doc {
	docs := make([]Doc, n)
	for i := range docs {
		text := fmt.Sprintf("Document %d is about common things.", i)
		if i%2 == 0 {
			text += " A zebra lives here."
		}
		lang := "en"
		if i%3 == 0 {
			lang = "de"
		}
		docs[i] = Doc{
			RecordID:  fmt.Sprintf("doc-%03d", i),
			URL:       fmt.Sprintf("https://example.org/%d", i),
			Title:     fmt.Sprintf("Title %d", i),
			PlainText: text,
			Language:  lang,
			WarcDate:  "2024-01-02T03:04:05Z",
			Locations: "[]",
			Keywords:  []string{"all", fmt.Sprintf("k%d", i%2)},
		}
	}
	return docs
}
