package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/rankfuse/rankfuse/internal/sparse"
)

// schemaVersion is the current document store schema version.
const schemaVersion = 1

// SQLiteDocumentStore implements DocumentStore on SQLite with WAL mode.
type SQLiteDocumentStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Verify interface implementation at compile time
var _ DocumentStore = (*SQLiteDocumentStore)(nil)

// NewSQLiteDocumentStore opens or creates the document store at path.
// An empty path creates an in-memory store for testing.
func NewSQLiteDocumentStore(path string) (*SQLiteDocumentStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteDocumentStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates tables if they do not exist.
func (s *SQLiteDocumentStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS documents (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL DEFAULT '',
		body       TEXT NOT NULL DEFAULT '',
		metadata   TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sparse_vectors (
		doc_id     TEXT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
		model      TEXT NOT NULL,
		vector     BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sparse_jobs (
		id         TEXT PRIMARY KEY,
		status     TEXT NOT NULL,
		model      TEXT NOT NULL,
		total      INTEGER NOT NULL DEFAULT 0,
		processed  INTEGER NOT NULL DEFAULT 0,
		failed     INTEGER NOT NULL DEFAULT 0,
		error      TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	_, err := s.db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, schemaVersion)
	return err
}

// SaveDocuments upserts documents in a single transaction.
func (s *SQLiteDocumentStore) SaveDocuments(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (id, title, body, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, doc := range docs {
		metadata, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", doc.ID, err)
		}

		createdAt := doc.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		updatedAt := doc.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}

		if _, err := stmt.ExecContext(ctx,
			doc.ID, doc.Title, doc.Body, string(metadata),
			createdAt.Unix(), updatedAt.Unix()); err != nil {
			return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
		}
	}

	return tx.Commit()
}

// GetDocument returns a single document by ID.
func (s *SQLiteDocumentStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, body, metadata, created_at, updated_at
		FROM documents WHERE id = ?`, id)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound{Kind: "document", ID: id}
	}
	return doc, err
}

// GetDocuments returns documents for the given IDs. Missing IDs are
// skipped; result order matches the input order.
func (s *SQLiteDocumentStore) GetDocuments(ctx context.Context, ids []string) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(ids) == 0 {
		return []*Document{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT id, title, body, metadata, created_at, updated_at
		FROM documents WHERE id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Document, len(ids))
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		byID[doc.ID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	docs := make([]*Document, 0, len(byID))
	for _, id := range ids {
		if doc, ok := byID[id]; ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// ListDocuments pages through documents ordered by ID. cursor is the
// last ID of the previous page; an empty cursor starts from the
// beginning. Returns the page and the next cursor, or "" when done.
func (s *SQLiteDocumentStore) ListDocuments(ctx context.Context, cursor string, limit int) ([]*Document, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, "", fmt.Errorf("store is closed")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, body, metadata, created_at, updated_at
		FROM documents WHERE id > ? ORDER BY id LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, "", err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(docs) == limit {
		nextCursor = docs[len(docs)-1].ID
	}
	return docs, nextCursor, nil
}

// DeleteDocuments removes documents by ID. Sparse vectors cascade.
func (s *SQLiteDocumentStore) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf("DELETE FROM documents WHERE id IN (%s)", strings.Join(placeholders, ","))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// CountDocuments returns the number of stored documents.
func (s *SQLiteDocumentStore) CountDocuments(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// SaveSparseVectors upserts sparse vectors for the given document IDs.
// Vectors are gob-encoded; one row per document.
func (s *SQLiteDocumentStore) SaveSparseVectors(ctx context.Context, ids []string, vectors []sparse.Vector, model string) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sparse_vectors (doc_id, model, vector, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			model = excluded.model,
			vector = excluded.vector,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for i, id := range ids {
		blob, err := encodeSparseVector(vectors[i])
		if err != nil {
			return fmt.Errorf("failed to encode vector for %s: %w", id, err)
		}
		if _, err := stmt.ExecContext(ctx, id, model, blob, now); err != nil {
			return fmt.Errorf("failed to save vector for %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// LoadSparseVectors returns all stored sparse vectors keyed by document
// ID. Used to rebuild the in-memory sparse index at startup.
func (s *SQLiteDocumentStore) LoadSparseVectors(ctx context.Context) (map[string]sparse.Vector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT doc_id, vector FROM sparse_vectors`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	vectors := make(map[string]sparse.Vector)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan vector: %w", err)
		}
		vec, err := decodeSparseVector(blob)
		if err != nil {
			return nil, fmt.Errorf("failed to decode vector for %s: %w", id, err)
		}
		vectors[id] = vec
	}

	return vectors, rows.Err()
}

// DocumentsWithoutSparse returns documents with no sparse vector for the
// given model, ordered by ID. Drives batch generation jobs.
func (s *SQLiteDocumentStore) DocumentsWithoutSparse(ctx context.Context, model string, limit int) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.title, d.body, d.metadata, d.created_at, d.updated_at
		FROM documents d
		LEFT JOIN sparse_vectors v ON v.doc_id = d.id AND v.model = ?
		WHERE v.doc_id IS NULL
		ORDER BY d.id LIMIT ?`, model, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// SparseVectorStats returns counts of documents with and without a
// sparse vector for the given model.
func (s *SQLiteDocumentStore) SparseVectorStats(ctx context.Context, model string) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, 0, fmt.Errorf("store is closed")
	}

	var with, total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sparse_vectors WHERE model = ?`, model).Scan(&with); err != nil {
		return 0, 0, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents`).Scan(&total); err != nil {
		return 0, 0, err
	}

	return with, total - with, nil
}

// SaveSparseJob upserts a job record.
func (s *SQLiteDocumentStore) SaveSparseJob(ctx context.Context, job *SparseJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	now := time.Now()
	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	job.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sparse_jobs (id, status, model, total, processed, failed, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			total = excluded.total,
			processed = excluded.processed,
			failed = excluded.failed,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		job.ID, string(job.Status), job.Model, job.Total, job.Processed, job.Failed,
		job.Error, createdAt.Unix(), job.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// GetSparseJob returns a job by ID.
func (s *SQLiteDocumentStore) GetSparseJob(ctx context.Context, id string) (*SparseJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, model, total, processed, failed, error, created_at, updated_at
		FROM sparse_jobs WHERE id = ?`, id)

	job, err := scanSparseJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound{Kind: "sparse job", ID: id}
	}
	return job, err
}

// ListSparseJobs returns the most recent jobs, newest first.
func (s *SQLiteDocumentStore) ListSparseJobs(ctx context.Context, limit int) ([]*SparseJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, model, total, processed, failed, error, created_at, updated_at
		FROM sparse_jobs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*SparseJob
	for rows.Next() {
		job, err := scanSparseJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// GetState returns a state value, or "" if the key is unset.
func (s *SQLiteDocumentStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", fmt.Errorf("store is closed")
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetState upserts a state value.
func (s *SQLiteDocumentStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *SQLiteDocumentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDocument reads one document row.
func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var metadata string
	var createdAt, updatedAt int64

	if err := row.Scan(&doc.ID, &doc.Title, &doc.Body, &metadata, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", doc.ID, err)
		}
	}
	doc.CreatedAt = time.Unix(createdAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)

	return &doc, nil
}

// scanSparseJob reads one job row.
func scanSparseJob(row rowScanner) (*SparseJob, error) {
	var job SparseJob
	var status string
	var createdAt, updatedAt int64

	if err := row.Scan(&job.ID, &status, &job.Model, &job.Total, &job.Processed,
		&job.Failed, &job.Error, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	job.Status = SparseJobStatus(status)
	job.CreatedAt = time.Unix(createdAt, 0)
	job.UpdatedAt = time.Unix(updatedAt, 0)

	return &job, nil
}

// encodeSparseVector gob-encodes a sparse vector for storage.
func encodeSparseVector(vec sparse.Vector) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(vec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeSparseVector decodes a stored sparse vector.
func decodeSparseVector(blob []byte) (sparse.Vector, error) {
	var vec sparse.Vector
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&vec); err != nil {
		return nil, err
	}
	return vec, nil
}
