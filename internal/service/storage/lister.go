// Package storage lists and describes data files held in cloud object stores
// and package directories.
package storage

import (
	"context"
	"path"
	"strings"
)

// ObjectLister enumerates buckets and objects of one object store.
type ObjectLister interface {
	ListBuckets(ctx context.Context) ([]string, error)
	// ListObjects returns every object key under prefix, following pagination
	// to exhaustion.
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
}

var dataFileExtensions = map[string]bool{
	".csv":     true,
	".parquet": true,
	".json":    true,
	".jsonl":   true,
	".ndjson":  true,
}

// IsDataFile reports whether key has a data file extension DuckDB can describe.
func IsDataFile(key string) bool {
	return dataFileExtensions[strings.ToLower(path.Ext(key))]
}

// FilterDataFiles keeps the keys that name data files, preserving order.
func FilterDataFiles(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if IsDataFile(k) {
			out = append(out, k)
		}
	}
	return out
}
