package store

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/sopdeskhq/sopdesk/internal/kb"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db}, mock
}

func TestReplaceCorpus(t *testing.T) {
	st, mock := newMockStore(t)

	ref := "§1.2 Wire transfers"
	docs := []kb.Document{
		{
			Title:      "payments.md",
			SourcePath: "data/sops/payments.md",
			FullText:   "full text",
			Chunks: []kb.Chunk{
				{ChunkIndex: 0, ChunkText: "wire transfers need two approvals", SectionRef: &ref, Embedding: []float32{0.1, 0.2}},
				{ChunkIndex: 1, ChunkText: "petty cash is capped", Embedding: []float32{0.3, 0.4}},
			},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM kb_chunks`)).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM kb_docs`)).WillReturnResult(sqlmock.NewResult(0, 1))

	prep := mock.ExpectPrepare(regexp.QuoteMeta(`
INSERT INTO kb_chunks (id, doc_id, chunk_index, chunk_text, section_ref, embedding, created_at)
VALUES ($1,$2,$3,$4,$5,$6::vector,NOW())
`))

	mock.ExpectExec(regexp.QuoteMeta(`
INSERT INTO kb_docs (id, title, source_path, content_text, created_at)
VALUES ($1,$2,$3,$4,NOW())
`)).
		WithArgs(sqlmock.AnyArg(), "payments.md", "data/sops/payments.md", "full text").
		WillReturnResult(sqlmock.NewResult(0, 1))

	prep.ExpectExec().
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 0, "wire transfers need two approvals", ref, "[0.1,0.2]").
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 1, "petty cash is capped", nil, "[0.3,0.4]").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectCommit()

	if err := st.ReplaceCorpus(context.Background(), docs); err != nil {
		t.Fatalf("ReplaceCorpus: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReplaceCorpusRejectsEmptyChunkText(t *testing.T) {
	st, mock := newMockStore(t)

	docs := []kb.Document{
		{Title: "bad.md", Chunks: []kb.Chunk{{ChunkIndex: 0, ChunkText: "", Embedding: []float32{0.1}}}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM kb_chunks`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM kb_docs`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare(regexp.QuoteMeta(`
INSERT INTO kb_chunks (id, doc_id, chunk_index, chunk_text, section_ref, embedding, created_at)
VALUES ($1,$2,$3,$4,$5,$6::vector,NOW())
`))
	mock.ExpectExec(regexp.QuoteMeta(`
INSERT INTO kb_docs (id, title, source_path, content_text, created_at)
VALUES ($1,$2,$3,$4,NOW())
`)).
		WithArgs(sqlmock.AnyArg(), "bad.md", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	if err := st.ReplaceCorpus(context.Background(), docs); err == nil {
		t.Fatal("expected error for empty chunk text")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestVectorSearch(t *testing.T) {
	st, mock := newMockStore(t)

	query := regexp.QuoteMeta(`
SELECT kc.chunk_text, kc.section_ref, kd.title, 1 - (kc.embedding <=> $1::vector) AS similarity
FROM kb_chunks kc
JOIN kb_docs kd ON kd.id = kc.doc_id
ORDER BY kc.embedding <=> $1::vector
LIMIT $2
`)
	rows := sqlmock.NewRows([]string{"chunk_text", "section_ref", "title", "similarity"}).
		AddRow("wire transfers need two approvals", "§1.2 Wire transfers", "payments.md", 0.91).
		AddRow("petty cash is capped", nil, "payments.md", 1.0000002).
		AddRow("unrelated text", nil, "misc.md", -0.02)
	mock.ExpectQuery(query).WithArgs("[0.1,0.2]", 6).WillReturnRows(rows)

	results, err := st.VectorSearch(context.Background(), []float32{0.1, 0.2}, 6)
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].SectionRef == nil || *results[0].SectionRef != "§1.2 Wire transfers" {
		t.Fatalf("unexpected section ref: %v", results[0].SectionRef)
	}
	if results[0].DocTitle != "payments.md" || results[0].Similarity != 0.91 {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
	if results[1].SectionRef != nil {
		t.Fatalf("expected nil section ref, got %v", *results[1].SectionRef)
	}
	if results[1].Similarity != 1 {
		t.Fatalf("similarity above 1 not clamped: %v", results[1].Similarity)
	}
	if results[2].Similarity != 0 {
		t.Fatalf("negative similarity not clamped: %v", results[2].Similarity)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestVectorSearchDefaultsK(t *testing.T) {
	st, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"chunk_text", "section_ref", "title", "similarity"})
	mock.ExpectQuery(regexp.QuoteMeta(`LIMIT $2`)).
		WithArgs("[0.5]", kb.DefaultTopK).
		WillReturnRows(rows)

	if _, err := st.VectorSearch(context.Background(), []float32{0.5}, 0); err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestVectorSearchRejectsEmptyEmbedding(t *testing.T) {
	st, _ := newMockStore(t)
	if _, err := st.VectorSearch(context.Background(), nil, 6); err == nil {
		t.Fatal("expected error for empty embedding")
	}
}

func TestSubstringSearch(t *testing.T) {
	st, mock := newMockStore(t)

	query := regexp.QuoteMeta(`
SELECT kc.chunk_text, kc.section_ref, kd.title
FROM kb_chunks kc
JOIN kb_docs kd ON kd.id = kc.doc_id
WHERE kc.chunk_text ILIKE ANY($1)
LIMIT $2
`)
	rows := sqlmock.NewRows([]string{"chunk_text", "section_ref", "title"}).
		AddRow("wire transfers need two approvals", "§1.2 Wire transfers", "payments.md")
	mock.ExpectQuery(query).WithArgs(sqlmock.AnyArg(), 6).WillReturnRows(rows)

	results, err := st.SubstringSearch(context.Background(), []string{"wire", "transfers"}, 6)
	if err != nil {
		t.Fatalf("SubstringSearch: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Similarity != 0 {
		t.Fatalf("substring hits must carry zero similarity, got %v", results[0].Similarity)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSubstringSearchNoTerms(t *testing.T) {
	st, mock := newMockStore(t)

	results, err := st.SubstringSearch(context.Background(), nil, 6)
	if err != nil {
		t.Fatalf("SubstringSearch: %v", err)
	}
	if results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLogAction(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`
INSERT INTO audit_log (id, actor, action, details, created_at)
VALUES ($1,$2,$3,$4,NOW())
`)).
		WithArgs(sqlmock.AnyArg(), "user:alice", "rag_answered", []byte(`{"tier":"auto_send"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := st.LogAction(context.Background(), "user:alice", "rag_answered", map[string]interface{}{"tier": "auto_send"})
	if err != nil {
		t.Fatalf("LogAction: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLogActionRequiresActorAndAction(t *testing.T) {
	st, _ := newMockStore(t)
	if err := st.LogAction(context.Background(), "", "rag_answered", nil); err == nil {
		t.Fatal("expected error for empty actor")
	}
	if err := st.LogAction(context.Background(), "user:alice", "", nil); err == nil {
		t.Fatal("expected error for empty action")
	}
}

func TestEscapeLike(t *testing.T) {
	cases := []struct{ in, want string }{
		{"wire", "wire"},
		{"100%", `100\%`},
		{"under_score", `under\_score`},
		{`back\slash`, `back\\slash`},
	}
	for _, tc := range cases {
		if got := escapeLike(tc.in); got != tc.want {
			t.Errorf("escapeLike(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEncodeVectorLiteral(t *testing.T) {
	got, err := encodeVectorLiteral([]float32{0.1, 0.25, 1})
	if err != nil {
		t.Fatalf("encodeVectorLiteral: %v", err)
	}
	if got != "[0.1,0.25,1]" {
		t.Fatalf("unexpected literal %q", got)
	}
	if _, err := encodeVectorLiteral(nil); err == nil {
		t.Fatal("expected error for empty vector")
	}
}
