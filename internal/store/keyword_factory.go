package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// KeywordBackend represents the keyword index backend type.
type KeywordBackend string

const (
	// KeywordBackendBleve uses Bleve v2 (default). BoltDB locking makes
	// it single-process.
	KeywordBackendBleve KeywordBackend = "bleve"

	// KeywordBackendFTS5 uses SQLite FTS5. WAL mode allows concurrent
	// multi-process access.
	KeywordBackendFTS5 KeywordBackend = "fts5"
)

// NewKeywordIndexWithBackend creates a KeywordIndex using the specified
// backend. basePath is the path without extension; the extension is
// added per backend (.bleve directory, .db file). An empty basePath
// creates an in-memory index for testing.
func NewKeywordIndexWithBackend(basePath string, config KeywordConfig, backend string) (KeywordIndex, error) {
	switch backend {
	case string(KeywordBackendBleve), "":
		var path string
		if basePath != "" {
			path = basePath + ".bleve"
		}
		return NewBleveKeywordIndex(path, config)

	case string(KeywordBackendFTS5):
		var path string
		if basePath != "" {
			path = basePath + ".db"
		}
		return NewFTS5KeywordIndex(path, config)

	default:
		return nil, fmt.Errorf("unknown keyword backend: %s (valid options: bleve, fts5)", backend)
	}
}

// DetectKeywordBackend detects which backend an existing index uses.
// Returns an empty string if no index exists.
func DetectKeywordBackend(basePath string) KeywordBackend {
	if dirExists(basePath + ".bleve") {
		return KeywordBackendBleve
	}
	if fileExists(basePath + ".db") {
		return KeywordBackendFTS5
	}
	return ""
}

// KeywordIndexPath returns the full on-disk path for the given backend.
func KeywordIndexPath(dataDir string, backend string) string {
	basePath := filepath.Join(dataDir, "keyword")
	switch backend {
	case string(KeywordBackendFTS5):
		return basePath + ".db"
	default:
		return basePath + ".bleve"
	}
}

// fileExists checks if a file exists at the given path.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// dirExists checks if a directory exists at the given path.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
