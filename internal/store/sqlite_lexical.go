package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go driver
)

// SQLiteLexicalIndex is a lexical backend on an in-memory SQLite FTS5 table.
// Text is stored pre-tokenized so FTS5 sees the same terms as the other
// backends; scoring is FTS5's bm25() with its default k1=1.2, b=0.75.
type SQLiteLexicalIndex struct {
	mu      sync.RWMutex
	db      *sql.DB
	recency map[string]int64
	count   int
	closed  bool
}

// NewSQLiteLexicalIndex opens a private in-memory database.
func NewSQLiteLexicalIndex() (*SQLiteLexicalIndex, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	schema := `CREATE VIRTUAL TABLE IF NOT EXISTS fts_chunks USING fts5(
		chunk_id UNINDEXED,
		content,
		tokenize='unicode61'
	);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteLexicalIndex{db: db, recency: map[string]int64{}}, nil
}

func (s *SQLiteLexicalIndex) Index(ctx context.Context, docs []*LexicalDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errIndexClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fts_chunks`); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO fts_chunks (chunk_id, content) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	recency := make(map[string]int64, len(docs))
	for _, d := range docs {
		recency[d.ID] = d.Recency
		if _, err := stmt.ExecContext(ctx, d.ID, strings.Join(Tokenize(d.Text), " ")); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	s.recency, s.count = recency, len(docs)
	return nil
}

// matchExpr builds an FTS5 OR query of quoted terms.
func matchExpr(terms []string) (string, []string) {
	seen := map[string]bool{}
	var quoted, uniq []string
	for _, raw := range terms {
		for _, t := range Tokenize(raw) {
			if seen[t] {
				continue
			}
			seen[t] = true
			uniq = append(uniq, t)
			quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
		}
	}
	return strings.Join(quoted, " OR "), uniq
}

func (s *SQLiteLexicalIndex) Search(ctx context.Context, terms []string, topK int) ([]*LexicalHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errIndexClosed
	}

	expr, uniq := matchExpr(terms)
	if expr == "" || s.count == 0 {
		return []*LexicalHit{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, bm25(fts_chunks), content FROM fts_chunks WHERE fts_chunks MATCH ?`, expr)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []*LexicalHit
	for rows.Next() {
		var id, content string
		var score float64
		if err := rows.Scan(&id, &score, &content); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		hits = append(hits, &LexicalHit{
			ChunkID:      id,
			Score:        -score, // bm25() is lower-is-better
			MatchedTerms: presentTerms(content, uniq),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []*LexicalHit{}
	}
	sortLexicalHits(hits, s.recency)
	return truncateHits(hits, topK), nil
}

func presentTerms(content string, terms []string) []string {
	have := make(map[string]bool)
	for _, t := range strings.Fields(content) {
		have[t] = true
	}
	var out []string
	for _, t := range terms {
		if have[t] {
			out = append(out, t)
		}
	}
	return out
}

func (s *SQLiteLexicalIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *SQLiteLexicalIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ LexicalIndex = (*SQLiteLexicalIndex)(nil)
