// Package store implements the DocumentStore described in spec.md §4.3: a
// process-wide, goroutine-safe cache of previously crawled documents keyed
// by URL, backed by Postgres via pgx. Grounded on the pgxpool setup pattern
// in anatolykoptev-go_job's internal/engine/jobs/resumedb.go (pool config,
// embedded schema migration, AfterConnect search_path pinning) adapted from
// a résumé-graph store to a flat crawled_data table.
package store

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvid-labs/websearchd/internal/model"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// admissionKeywords gates writes per spec.md §4.3: a URL must lowercase
// contain at least one of these substrings, or the write is silently
// dropped.
var admissionKeywords = []string{"news", "article", "youtube", "pdf", "arxiv"}

// IsAdmissible reports whether url passes the DocumentStore write filter.
func IsAdmissible(url string) bool {
	lower := strings.ToLower(url)
	for _, kw := range admissionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DocumentStore is the spec.md §4.3 contract: get/put/put_bulk over
// CrawledDocs keyed by URL.
type DocumentStore interface {
	Get(ctx context.Context, url string) (model.CrawledDoc, bool, error)
	Put(ctx context.Context, doc model.CrawledDoc) error
	PutBulk(ctx context.Context, docs []model.CrawledDoc) error
}

// Postgres is the DocumentStore backed by a single crawled_data table.
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect opens a pgx pool against dsn and runs embedded schema migrations.
func Connect(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: DSN is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET search_path TO public")
		return err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	s := &Postgres{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Postgres) Close() {
	s.pool.Close()
}

func (s *Postgres) migrate(ctx context.Context) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("store: read schema dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("store: acquire migration conn: %w", err)
	}
	defer conn.Release()

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		data, err := schemaFS.ReadFile("schema/" + e.Name())
		if err != nil {
			return fmt.Errorf("store: read %s: %w", e.Name(), err)
		}
		if _, err := conn.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("store: apply %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, url string) (model.CrawledDoc, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT title, url, snippet, image_url, date, content
		FROM crawled_data WHERE url = $1`, url)
	var doc model.CrawledDoc
	if err := row.Scan(&doc.Title, &doc.URL, &doc.Snippet, &doc.ImageURL, &doc.Date, &doc.Content); err != nil {
		if err == pgx.ErrNoRows {
			return model.CrawledDoc{}, false, nil
		}
		return model.CrawledDoc{}, false, fmt.Errorf("store: get %s: %w", url, err)
	}
	return doc, true, nil
}

// Put upserts a single document, subject to the admission filter.
func (s *Postgres) Put(ctx context.Context, doc model.CrawledDoc) error {
	if !IsAdmissible(doc.URL) {
		return nil
	}
	_, err := s.pool.Exec(ctx, upsertSQL, doc.Title, doc.URL, doc.Snippet, doc.ImageURL, doc.Date, doc.Content, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: put %s: %w", doc.URL, err)
	}
	return nil
}

// PutBulk upserts all admissible docs in a single transaction, per
// spec.md §4.3 ("Bulk writes occur in a single transaction").
func (s *Postgres) PutBulk(ctx context.Context, docs []model.CrawledDoc) error {
	admissible := make([]model.CrawledDoc, 0, len(docs))
	for _, d := range docs {
		if IsAdmissible(d.URL) {
			admissible = append(admissible, d)
		}
	}
	if len(admissible) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin bulk tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for _, d := range admissible {
		if _, err := tx.Exec(ctx, upsertSQL, d.Title, d.URL, d.Snippet, d.ImageURL, d.Date, d.Content, now); err != nil {
			return fmt.Errorf("store: bulk upsert %s: %w", d.URL, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit bulk tx: %w", err)
	}
	return nil
}

const upsertSQL = `
INSERT INTO crawled_data (title, url, snippet, image_url, date, content, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT (url) DO UPDATE SET
	title = EXCLUDED.title,
	snippet = EXCLUDED.snippet,
	image_url = EXCLUDED.image_url,
	date = EXCLUDED.date,
	content = EXCLUDED.content,
	updated_at = EXCLUDED.updated_at
`
