// Package store persists the document corpus in Postgres with pgvector
// columns and serves the nearest-neighbor and substring lookups the
// retrieval core needs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/sopdeskhq/sopdesk/internal/kb"
)

type Store struct {
	DB *sql.DB
}

// New constructs the Store from DATABASE_URL or the POSTGRES_* environment
// variables.
func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// ReplaceCorpus clears the corpus and loads the given documents inside a
// single transaction, so a mid-run failure rolls back to the previous
// corpus intact.
func (s *Store) ReplaceCorpus(ctx context.Context, docs []kb.Document) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM kb_chunks`); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM kb_docs`); err != nil {
		return fmt.Errorf("clear docs: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO kb_chunks (id, doc_id, chunk_index, chunk_text, section_ref, embedding, created_at)
VALUES ($1,$2,$3,$4,$5,$6::vector,NOW())
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, doc := range docs {
		docID := doc.ID
		if docID == "" {
			docID = uuid.NewString()
		}
		if _, err = tx.ExecContext(ctx, `
INSERT INTO kb_docs (id, title, source_path, content_text, created_at)
VALUES ($1,$2,$3,$4,NOW())
`, docID, doc.Title, doc.SourcePath, doc.FullText); err != nil {
			return fmt.Errorf("insert doc %s: %w", doc.Title, err)
		}
		for _, chunk := range doc.Chunks {
			if chunk.ChunkText == "" {
				err = fmt.Errorf("doc %s chunk %d: chunk text required", doc.Title, chunk.ChunkIndex)
				return err
			}
			var vectorLiteral string
			vectorLiteral, err = encodeVectorLiteral(chunk.Embedding)
			if err != nil {
				return fmt.Errorf("doc %s chunk %d: %w", doc.Title, chunk.ChunkIndex, err)
			}
			chunkID := chunk.ID
			if chunkID == "" {
				chunkID = uuid.NewString()
			}
			if _, err = stmt.ExecContext(ctx, chunkID, docID, chunk.ChunkIndex, chunk.ChunkText, chunk.SectionRef, vectorLiteral); err != nil {
				return fmt.Errorf("insert chunk %d of %s: %w", chunk.ChunkIndex, doc.Title, err)
			}
		}
	}
	return nil
}

// VectorSearch returns the k chunks closest to the query embedding, each
// joined with its document title. Similarity is 1 minus the cosine
// distance, clamped into [0,1].
func (s *Store) VectorSearch(ctx context.Context, embedding []float32, k int) ([]kb.Evidence, error) {
	if k <= 0 {
		k = kb.DefaultTopK
	}
	vectorLiteral, err := encodeVectorLiteral(embedding)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT kc.chunk_text, kc.section_ref, kd.title, 1 - (kc.embedding <=> $1::vector) AS similarity
FROM kb_chunks kc
JOIN kb_docs kd ON kd.id = kc.doc_id
ORDER BY kc.embedding <=> $1::vector
LIMIT $2
`, vectorLiteral, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []kb.Evidence
	for rows.Next() {
		var (
			ev         kb.Evidence
			sectionRef sql.NullString
		)
		if err := rows.Scan(&ev.ChunkText, &sectionRef, &ev.DocTitle, &ev.Similarity); err != nil {
			return nil, err
		}
		if sectionRef.Valid {
			ev.SectionRef = &sectionRef.String
		}
		ev.Similarity = clampSimilarity(ev.Similarity)
		results = append(results, ev)
	}
	return results, rows.Err()
}

// SubstringSearch returns up to k chunks whose text contains any term as
// a case-insensitive substring. Hits carry similarity zero.
func (s *Store) SubstringSearch(ctx context.Context, terms []string, k int) ([]kb.Evidence, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = kb.DefaultTopK
	}
	patterns := make([]string, len(terms))
	for i, term := range terms {
		patterns[i] = "%" + escapeLike(term) + "%"
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT kc.chunk_text, kc.section_ref, kd.title
FROM kb_chunks kc
JOIN kb_docs kd ON kd.id = kc.doc_id
WHERE kc.chunk_text ILIKE ANY($1)
LIMIT $2
`, pq.Array(patterns), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []kb.Evidence
	for rows.Next() {
		var (
			ev         kb.Evidence
			sectionRef sql.NullString
		)
		if err := rows.Scan(&ev.ChunkText, &sectionRef, &ev.DocTitle); err != nil {
			return nil, err
		}
		if sectionRef.Valid {
			ev.SectionRef = &sectionRef.String
		}
		results = append(results, ev)
	}
	return results, rows.Err()
}

// CorpusCounts reports the number of documents and chunks currently
// ingested.
func (s *Store) CorpusCounts(ctx context.Context) (docs, chunks int, err error) {
	if err = s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM kb_docs`).Scan(&docs); err != nil {
		return 0, 0, err
	}
	if err = s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM kb_chunks`).Scan(&chunks); err != nil {
		return 0, 0, err
	}
	return docs, chunks, nil
}

func clampSimilarity(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// escapeLike neutralizes LIKE metacharacters in a search term so it
// matches literally.
func escapeLike(term string) string {
	term = strings.ReplaceAll(term, `\`, `\\`)
	term = strings.ReplaceAll(term, `%`, `\%`)
	term = strings.ReplaceAll(term, `_`, `\_`)
	return term
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
