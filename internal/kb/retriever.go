package kb

import (
	"context"
	"log"
	"strings"
	"sync"
	"unicode/utf8"
)

// DefaultTopK is the default number of evidence rows returned per query.
const DefaultTopK = 6

// DefaultMinSimilarity is the default floor applied to vector hits after
// the top-k cut.
const DefaultMinSimilarity = 0.05

// Keywords tokenizes a query into keyword terms: "?" characters are
// dropped, the remainder is split on whitespace, lowercased, and only
// tokens longer than three runes are kept.
func Keywords(query string) []string {
	var terms []string
	for _, tok := range strings.Fields(strings.ReplaceAll(query, "?", " ")) {
		tok = strings.ToLower(tok)
		if utf8.RuneCountInString(tok) > 3 {
			terms = append(terms, tok)
		}
	}
	return terms
}

// Retriever runs the two complementary retrieval strategies against the
// corpus and merges their results deterministically. Vector search is
// authoritative; keyword search only adds unseen candidates as a recall
// backstop and never overrides a semantic score.
type Retriever struct {
	store    CorpusStore
	embedder EmbeddingService
	logger   *log.Logger
}

// NewRetriever creates a Retriever over the given store and embedder.
func NewRetriever(store CorpusStore, embedder EmbeddingService, logger *log.Logger) *Retriever {
	if logger == nil {
		logger = log.New(log.Writer(), "[KB] ", log.LstdFlags)
	}
	return &Retriever{store: store, embedder: embedder, logger: logger}
}

// Retrieve returns up to k evidence rows for the query: vector hits in
// similarity-descending order followed by keyword-only hits, deduplicated
// by exact chunk text with first occurrence winning. Retrieval failures
// degrade locally (vector errors fall back to keyword-only evidence) and
// are never surfaced to the caller.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, minSimilarity float64) []Evidence {
	if k <= 0 {
		k = DefaultTopK
	}

	// The two lookups touch no shared mutable state and run concurrently.
	var (
		wg          sync.WaitGroup
		vectorHits  []Evidence
		keywordHits []Evidence
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		vectorHits = r.vectorSearch(ctx, query, k, minSimilarity)
	}()
	go func() {
		defer wg.Done()
		keywordHits = r.keywordSearch(ctx, query, k)
	}()
	wg.Wait()

	seen := make(map[string]struct{}, k)
	merged := make([]Evidence, 0, k)
	for _, ev := range append(vectorHits, keywordHits...) {
		if _, ok := seen[ev.ChunkText]; ok {
			continue
		}
		seen[ev.ChunkText] = struct{}{}
		merged = append(merged, ev)
		if len(merged) >= k {
			break
		}
	}
	return merged
}

// vectorSearch embeds the query and ranks corpus chunks by ascending
// vector distance. The top k are taken first, then anything below the
// similarity floor is dropped; thresholding never backfills from beyond
// the top-k window.
func (r *Retriever) vectorSearch(ctx context.Context, query string, k int, minSimilarity float64) []Evidence {
	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		r.logger.Printf("vector search degraded: embed query: %v", err)
		return nil
	}
	rows, err := r.store.VectorSearch(ctx, vecs[0], k)
	if err != nil {
		r.logger.Printf("vector search degraded: %v", err)
		return nil
	}
	seen := make(map[string]struct{}, len(rows))
	hits := make([]Evidence, 0, len(rows))
	for _, row := range rows {
		if row.Similarity < minSimilarity {
			continue
		}
		if _, ok := seen[row.ChunkText]; ok {
			continue
		}
		seen[row.ChunkText] = struct{}{}
		hits = append(hits, row)
	}
	return hits
}

// keywordSearch returns chunks containing any keyword term as a
// case-insensitive substring, with similarity fixed at zero.
func (r *Retriever) keywordSearch(ctx context.Context, query string, k int) []Evidence {
	terms := Keywords(query)
	if len(terms) == 0 {
		return nil
	}
	rows, err := r.store.SubstringSearch(ctx, terms, k)
	if err != nil {
		r.logger.Printf("keyword search degraded: %v", err)
		return nil
	}
	seen := make(map[string]struct{}, len(rows))
	hits := make([]Evidence, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.ChunkText]; ok {
			continue
		}
		seen[row.ChunkText] = struct{}{}
		row.Similarity = 0.0
		hits = append(hits, row)
	}
	return hits
}
