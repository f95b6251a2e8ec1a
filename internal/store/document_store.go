package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Aman-CERP/knowbase/internal/chunk"
	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
)

// DocumentStatus is the processing state of a document.
type DocumentStatus string

const (
	StatusPending   DocumentStatus = "pending"
	StatusProcessed DocumentStatus = "processed"
	StatusFailed    DocumentStatus = "failed"
)

// Effectiveness bounds for document feedback.
const (
	MinEffectiveness = 0.0
	MaxEffectiveness = 10.0
)

// DocumentDBName is the document database file inside the data directory.
const DocumentDBName = "knowbase.db"

// Document is a stored source document.
type Document struct {
	ID            string
	Title         string
	Source        string
	Content       string
	ContentHash   string
	Category      string
	Status        DocumentStatus
	Enabled       bool
	ChunkCount    int
	Error         string
	Effectiveness float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DisplayName is the title, falling back to the ID.
func (d *Document) DisplayName() string {
	if d.Title != "" {
		return d.Title
	}
	return d.ID
}

// UsageCounter counts how often a document was surfaced in assembled context.
type UsageCounter struct {
	DocumentID       string
	ReferenceCount   int
	LastReferencedAt time.Time // zero if never referenced
}

// QueryRecord is one entry of the query log.
type QueryRecord struct {
	Query       string
	Status      string
	ResultCount int
	CreatedAt   time.Time
}

// DocumentFilter narrows ListDocuments. Zero values match everything.
type DocumentFilter struct {
	Category    string
	Status      DocumentStatus
	EnabledOnly bool
}

// DocumentStore is the SQLite-backed authoritative store for documents,
// chunks, usage counters and the query log.
type DocumentStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenDocumentStore opens (or creates) the database at path.
// Use ":memory:" for a throwaway store.
func OpenDocumentStore(path string) (*DocumentStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, kberrors.IOError("failed to open document store", err).WithDetail("path", path)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	if path != ":memory:" {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
		)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, kberrors.IOError("failed to set pragma", err).WithDetail("pragma", p)
		}
	}

	s := &DocumentStore{db: db, path: path, now: time.Now}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, kberrors.IOError("failed to initialize document store schema", err)
	}
	return s, nil
}

// OpenDocumentStoreInDir opens the store file inside dataDir.
func OpenDocumentStoreInDir(dataDir string) (*DocumentStore, error) {
	return OpenDocumentStore(filepath.Join(dataDir, DocumentDBName))
}

func (s *DocumentStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id            TEXT PRIMARY KEY,
		title         TEXT NOT NULL DEFAULT '',
		source        TEXT NOT NULL DEFAULT '',
		content       TEXT NOT NULL,
		content_hash  TEXT NOT NULL UNIQUE,
		category      TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL DEFAULT 'pending',
		enabled       INTEGER NOT NULL DEFAULT 1,
		chunk_count   INTEGER NOT NULL DEFAULT 0,
		error         TEXT NOT NULL DEFAULT '',
		effectiveness REAL NOT NULL DEFAULT 0,
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_category ON documents(category);

	CREATE TABLE IF NOT EXISTS chunks (
		id          TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		ordinal     INTEGER NOT NULL,
		kind        TEXT NOT NULL,
		text        TEXT NOT NULL,
		start_pos   INTEGER NOT NULL,
		end_pos     INTEGER NOT NULL,
		question    TEXT NOT NULL DEFAULT '',
		answer      TEXT NOT NULL DEFAULT '',
		context     TEXT NOT NULL DEFAULT '',
		embedding   BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, ordinal);

	CREATE TABLE IF NOT EXISTS usage (
		document_id        TEXT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
		reference_count    INTEGER NOT NULL DEFAULT 0,
		last_referenced_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS query_log (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		query        TEXT NOT NULL,
		status       TEXT NOT NULL,
		result_count INTEGER NOT NULL,
		created_at   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_log_status ON query_log(status, created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.migrate()
}

// migrate adds columns introduced after a database was created.
func (s *DocumentStore) migrate() error {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('chunks') WHERE name = 'context'`).Scan(&n)
	if err != nil {
		return err
	}
	if n == 0 {
		_, err = s.db.Exec(`ALTER TABLE chunks ADD COLUMN context TEXT NOT NULL DEFAULT ''`)
	}
	return err
}

const documentColumns = `id, title, source, content, content_hash, category, status,
	enabled, chunk_count, error, effectiveness, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		d         Document
		status    string
		enabled   int
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&d.ID, &d.Title, &d.Source, &d.Content, &d.ContentHash, &d.Category,
		&status, &enabled, &d.ChunkCount, &d.Error, &d.Effectiveness, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.Status = DocumentStatus(status)
	d.Enabled = enabled != 0
	d.CreatedAt = time.Unix(0, createdAt)
	d.UpdatedAt = time.Unix(0, updatedAt)
	return &d, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CreateDocument inserts a pending document. A document with the same
// content hash is rejected with a duplicate-content error naming the
// existing document.
func (s *DocumentStore) CreateDocument(ctx context.Context, d *Document) error {
	if d.ID == "" || d.ContentHash == "" {
		return kberrors.ValidationError("document requires id and content hash", nil)
	}
	if existing, err := s.FindByHash(ctx, d.ContentHash); err == nil {
		return kberrors.DuplicateContentError(d.ContentHash, existing.ID)
	} else if !kberrors.IsNotFound(err) {
		return err
	}

	now := s.now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = StatusPending
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, d.Source, d.Content, d.ContentHash, d.Category, string(d.Status),
		boolInt(d.Enabled), d.ChunkCount, d.Error, d.Effectiveness,
		d.CreatedAt.UnixNano(), d.UpdatedAt.UnixNano())
	if err != nil {
		// Lost a race with a concurrent insert of the same content.
		if strings.Contains(err.Error(), "UNIQUE constraint failed: documents.content_hash") {
			existing, ferr := s.FindByHash(ctx, d.ContentHash)
			if ferr == nil {
				return kberrors.DuplicateContentError(d.ContentHash, existing.ID)
			}
		}
		return kberrors.IOError("failed to insert document", err).WithDetail("id", d.ID)
	}
	return nil
}

// GetDocument returns a document by ID.
func (s *DocumentStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kberrors.DocumentNotFoundError(id)
	}
	if err != nil {
		return nil, kberrors.IOError("failed to read document", err).WithDetail("id", id)
	}
	return d, nil
}

// FindByHash returns the document with the given content hash.
func (s *DocumentStore) FindByHash(ctx context.Context, hash string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE content_hash = ?`, hash)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kberrors.DocumentNotFoundError(hash)
	}
	if err != nil {
		return nil, kberrors.IOError("failed to read document", err).WithDetail("content_hash", hash)
	}
	return d, nil
}

// FindBySource returns the most recently created document ingested from source.
func (s *DocumentStore) FindBySource(ctx context.Context, source string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE source = ? ORDER BY created_at DESC LIMIT 1`, source)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kberrors.DocumentNotFoundError(source)
	}
	if err != nil {
		return nil, kberrors.IOError("failed to read document", err).WithDetail("source", source)
	}
	return d, nil
}

// ListDocuments returns documents matching filter, oldest first.
func (s *DocumentStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]*Document, error) {
	var (
		where []string
		args  []any
	)
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.EnabledOnly {
		where = append(where, "enabled = 1")
	}
	q := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, kberrors.IOError("failed to list documents", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, kberrors.IOError("failed to scan document", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *DocumentStore) updateDocument(ctx context.Context, id, set string, args ...any) error {
	args = append(args, s.now().UnixNano(), id)
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET `+set+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return kberrors.IOError("failed to update document", err).WithDetail("id", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return kberrors.DocumentNotFoundError(id)
	}
	return nil
}

// SetStatus records the processing outcome of a document.
func (s *DocumentStore) SetStatus(ctx context.Context, id string, status DocumentStatus, chunkCount int, errMsg string) error {
	return s.updateDocument(ctx, id, "status = ?, chunk_count = ?, error = ?", string(status), chunkCount, errMsg)
}

// UpdateContent replaces a document's content and marks it pending. New
// content identical to another document's is rejected as a duplicate.
func (s *DocumentStore) UpdateContent(ctx context.Context, id, title, content, hash, category string) error {
	if existing, err := s.FindByHash(ctx, hash); err == nil && existing.ID != id {
		return kberrors.DuplicateContentError(hash, existing.ID)
	} else if err != nil && !kberrors.IsNotFound(err) {
		return err
	}
	return s.updateDocument(ctx, id, "title = ?, content = ?, content_hash = ?, category = ?, status = ?, error = ''",
		title, content, hash, category, string(StatusPending))
}

// SetEnabled toggles whether a document may be used for answering.
func (s *DocumentStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return s.updateDocument(ctx, id, "enabled = ?", boolInt(enabled))
}

// AdjustEffectiveness adds delta to the document's effectiveness score,
// clamped to [MinEffectiveness, MaxEffectiveness], and returns the new score.
func (s *DocumentStore) AdjustEffectiveness(ctx context.Context, id string, delta float64) (float64, error) {
	err := s.updateDocument(ctx, id, "effectiveness = MAX(?, MIN(?, effectiveness + ?))",
		MinEffectiveness, MaxEffectiveness, delta)
	if err != nil {
		return 0, err
	}
	var score float64
	if err := s.db.QueryRowContext(ctx, `SELECT effectiveness FROM documents WHERE id = ?`, id).Scan(&score); err != nil {
		return 0, kberrors.IOError("failed to read effectiveness", err).WithDetail("id", id)
	}
	return score, nil
}

// DeleteDocument removes a document with its chunks and usage counter.
func (s *DocumentStore) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return kberrors.IOError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM chunks WHERE document_id = ?`,
		`DELETE FROM usage WHERE document_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return kberrors.IOError("failed to delete document data", err).WithDetail("id", id)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return kberrors.IOError("failed to delete document", err).WithDetail("id", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return kberrors.DocumentNotFoundError(id)
	}
	if err := tx.Commit(); err != nil {
		return kberrors.IOError("failed to commit delete", err)
	}
	return nil
}

// SaveChunks replaces the chunks of a document.
func (s *DocumentStore) SaveChunks(ctx context.Context, documentID string, chunks []*chunk.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return kberrors.IOError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return kberrors.IOError("failed to clear chunks", err).WithDetail("document_id", documentID)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks
		(id, document_id, ordinal, kind, text, start_pos, end_pos, question, answer, context, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return kberrors.IOError("failed to prepare chunk insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range chunks {
		if c.DocumentID != documentID {
			return kberrors.ValidationError(
				fmt.Sprintf("chunk %s belongs to %s, not %s", c.ID, c.DocumentID, documentID), nil)
		}
		var blob []byte
		if len(c.Embedding) > 0 {
			blob = encodeVector(c.Embedding)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.Ordinal, string(c.Kind), c.Text,
			c.Start, c.End, c.Question, c.Answer, c.Context, blob); err != nil {
			return kberrors.IOError("failed to insert chunk", err).WithDetail("chunk_id", c.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return kberrors.IOError("failed to commit chunks", err)
	}
	return nil
}

// ChunksForDocument returns a document's chunks in ordinal order.
func (s *DocumentStore) ChunksForDocument(ctx context.Context, documentID string) ([]*chunk.Chunk, error) {
	return s.queryChunks(ctx, `WHERE document_id = ? ORDER BY ordinal`, documentID)
}

// AllChunks returns every stored chunk ordered by document and ordinal.
func (s *DocumentStore) AllChunks(ctx context.Context) ([]*chunk.Chunk, error) {
	return s.queryChunks(ctx, `ORDER BY document_id, ordinal`)
}

func (s *DocumentStore) queryChunks(ctx context.Context, tail string, args ...any) ([]*chunk.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, document_id, ordinal, kind, text,
		start_pos, end_pos, question, answer, context, embedding FROM chunks `+tail, args...)
	if err != nil {
		return nil, kberrors.IOError("failed to query chunks", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*chunk.Chunk
	for rows.Next() {
		var (
			c    chunk.Chunk
			kind string
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &kind, &c.Text,
			&c.Start, &c.End, &c.Question, &c.Answer, &c.Context, &blob); err != nil {
			return nil, kberrors.IOError("failed to scan chunk", err)
		}
		c.Kind = chunk.Kind(kind)
		if len(blob) > 0 {
			c.Embedding = decodeVector(blob)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// IncrementUsage adds one reference to each listed document.
// Callers pass each document once per assembly.
func (s *DocumentStore) IncrementUsage(ctx context.Context, documentIDs []string, at time.Time) error {
	if len(documentIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return kberrors.IOError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range documentIDs {
		_, err := tx.ExecContext(ctx, `INSERT INTO usage (document_id, reference_count, last_referenced_at)
			VALUES (?, 1, ?)
			ON CONFLICT(document_id) DO UPDATE SET
				reference_count = reference_count + 1,
				last_referenced_at = excluded.last_referenced_at`, id, at.UnixNano())
		if err != nil {
			return kberrors.IOError("failed to increment usage", err).WithDetail("document_id", id)
		}
	}
	if err := tx.Commit(); err != nil {
		return kberrors.IOError("failed to commit usage", err)
	}
	return nil
}

// GetUsage returns the usage counter for a document. A document that was
// never referenced has a zero counter.
func (s *DocumentStore) GetUsage(ctx context.Context, documentID string) (UsageCounter, error) {
	u := UsageCounter{DocumentID: documentID}
	var last int64
	err := s.db.QueryRowContext(ctx, `SELECT reference_count, last_referenced_at FROM usage WHERE document_id = ?`,
		documentID).Scan(&u.ReferenceCount, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return u, nil
	}
	if err != nil {
		return u, kberrors.IOError("failed to read usage", err).WithDetail("document_id", documentID)
	}
	if last > 0 {
		u.LastReferencedAt = time.Unix(0, last)
	}
	return u, nil
}

// ListUsage returns all usage counters keyed by document ID.
func (s *DocumentStore) ListUsage(ctx context.Context) (map[string]UsageCounter, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document_id, reference_count, last_referenced_at FROM usage`)
	if err != nil {
		return nil, kberrors.IOError("failed to list usage", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]UsageCounter)
	for rows.Next() {
		var (
			u    UsageCounter
			last int64
		)
		if err := rows.Scan(&u.DocumentID, &u.ReferenceCount, &last); err != nil {
			return nil, kberrors.IOError("failed to scan usage", err)
		}
		if last > 0 {
			u.LastReferencedAt = time.Unix(0, last)
		}
		out[u.DocumentID] = u
	}
	return out, rows.Err()
}

// RecordQuery appends to the query log.
func (s *DocumentStore) RecordQuery(ctx context.Context, r QueryRecord) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO query_log (query, status, result_count, created_at)
		VALUES (?, ?, ?, ?)`, r.Query, r.Status, r.ResultCount, r.CreatedAt.UnixNano())
	if err != nil {
		return kberrors.IOError("failed to record query", err)
	}
	return nil
}

// RecentQueries returns logged queries with the given status (all statuses
// when empty), newest first.
func (s *DocumentStore) RecentQueries(ctx context.Context, status string, limit int) ([]QueryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT query, status, result_count, created_at FROM query_log`
	var args []any
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, kberrors.IOError("failed to read query log", err)
	}
	defer func() { _ = rows.Close() }()

	var out []QueryRecord
	for rows.Next() {
		var (
			r  QueryRecord
			at int64
		)
		if err := rows.Scan(&r.Query, &r.Status, &r.ResultCount, &at); err != nil {
			return nil, kberrors.IOError("failed to scan query log", err)
		}
		r.CreatedAt = time.Unix(0, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Path returns the database path.
func (s *DocumentStore) Path() string { return s.path }

// Close closes the database.
func (s *DocumentStore) Close() error {
	return s.db.Close()
}

// encodeVector stores float32s little-endian.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
