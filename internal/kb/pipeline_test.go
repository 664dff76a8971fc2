package kb

import (
	"context"
	"math"
	"sort"
	"testing"
)

// memoryStore is an in-memory CorpusStore with cosine-ranked KNN, used to
// exercise the full retrieval pipeline without Postgres.
type memoryStore struct {
	docs []Document
}

func (s *memoryStore) ReplaceCorpus(ctx context.Context, docs []Document) error {
	s.docs = docs
	return nil
}

func (s *memoryStore) VectorSearch(ctx context.Context, embedding []float32, k int) ([]Evidence, error) {
	var hits []Evidence
	for _, doc := range s.docs {
		for _, chunk := range doc.Chunks {
			hits = append(hits, Evidence{
				ChunkText:  chunk.ChunkText,
				SectionRef: chunk.SectionRef,
				DocTitle:   doc.Title,
				Similarity: cosine(embedding, chunk.Embedding),
			})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *memoryStore) SubstringSearch(ctx context.Context, terms []string, k int) ([]Evidence, error) {
	var hits []Evidence
	for _, doc := range s.docs {
		for _, chunk := range doc.Chunks {
			if containsAnyTerm(chunk.ChunkText, terms) {
				hits = append(hits, Evidence{ChunkText: chunk.ChunkText, SectionRef: chunk.SectionRef, DocTitle: doc.Title})
			}
			if len(hits) >= k {
				return hits, nil
			}
		}
	}
	return hits, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func seedCorpus(t *testing.T, store *memoryStore, embedder *OfflineEmbedder) {
	t.Helper()
	texts := []string{
		"wire transfers over 10k require two partner approvals",
		"petty cash purchases are capped at 200",
		"book flights at least two weeks in advance",
	}
	vecs, err := embedder.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("embed corpus: %v", err)
	}
	doc := Document{Title: "policies.md"}
	for i, text := range texts {
		doc.Chunks = append(doc.Chunks, Chunk{ChunkIndex: i, ChunkText: text, Embedding: vecs[i]})
	}
	if err := store.ReplaceCorpus(context.Background(), []Document{doc}); err != nil {
		t.Fatalf("replace corpus: %v", err)
	}
}

func TestPipelineDeterministicConfidence(t *testing.T) {
	embedder := NewOfflineEmbedder(64)
	store := &memoryStore{}
	seedCorpus(t, store, embedder)

	query := "How are wire transfers approved?"

	run := func() ([]Evidence, float64) {
		retriever := NewRetriever(store, embedder, nil)
		evidence := retriever.Retrieve(context.Background(), query, DefaultTopK, DefaultMinSimilarity)
		return evidence, Confidence(query, evidence)
	}

	evidence, confidence := run()
	if len(evidence) == 0 {
		t.Fatal("expected evidence")
	}

	// The chunk matched by both legs keeps its vector similarity.
	var wireSim float64
	found := false
	for _, ev := range evidence {
		if ev.ChunkText == "wire transfers over 10k require two partner approvals" {
			wireSim = ev.Similarity
			found = true
		}
	}
	if !found {
		t.Fatal("wire-transfer chunk not retrieved")
	}
	if wireSim == 0 {
		t.Fatal("keyword-matched chunk lost its vector similarity")
	}

	// Confidence is the max similarity plus the exact literal-hit boost,
	// capped at 1.
	maxSim := 0.0
	for _, ev := range evidence {
		if ev.Similarity > maxSim {
			maxSim = ev.Similarity
		}
	}
	want := maxSim + 0.10
	if want > 1.0 {
		want = 1.0
	}
	if confidence != want {
		t.Fatalf("confidence = %v, want %v", confidence, want)
	}

	// The whole pipeline is deterministic: a fresh retriever over the same
	// corpus reproduces identical similarities and confidence.
	evidence2, confidence2 := run()
	if confidence2 != confidence {
		t.Fatalf("confidence not deterministic: %v vs %v", confidence, confidence2)
	}
	if len(evidence2) != len(evidence) {
		t.Fatalf("evidence count not deterministic: %d vs %d", len(evidence), len(evidence2))
	}
	for i := range evidence {
		if evidence[i].ChunkText != evidence2[i].ChunkText || evidence[i].Similarity != evidence2[i].Similarity {
			t.Fatalf("evidence %d differs between runs: %+v vs %+v", i, evidence[i], evidence2[i])
		}
	}
}

func TestPipelineCitationsNeverEmptyWithEvidence(t *testing.T) {
	embedder := NewOfflineEmbedder(64)
	store := &memoryStore{}
	seedCorpus(t, store, embedder)

	retriever := NewRetriever(store, embedder, nil)
	query := "What is the petty cash limit?"

	evidence := retriever.Retrieve(context.Background(), query, DefaultTopK, DefaultMinSimilarity)
	if len(evidence) == 0 {
		t.Fatal("expected evidence")
	}
	citations := SelectCitations(query, evidence)
	if len(citations) == 0 || len(citations) > maxCitations {
		t.Fatalf("citation count = %d", len(citations))
	}
	for _, c := range citations {
		if c.Chunk == "" || c.Source == "" {
			t.Fatalf("incomplete citation: %+v", c)
		}
	}
}
