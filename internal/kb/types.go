// Package kb implements the knowledge-base core: chunking, embeddings,
// hybrid retrieval, confidence scoring, citation selection and
// context-bounded answer generation over a corpus of procedure documents.
package kb

import "context"

// DefaultEmbeddingDimensions is the expected length of semantic vectors
// stored in pgvector columns. It must be identical at ingestion time and
// query time.
const DefaultEmbeddingDimensions = 1536

// Document is a source procedure document. Documents are immutable once
// ingested and replaced wholesale on re-ingestion.
type Document struct {
	ID         string
	Title      string
	SourcePath string
	FullText   string
	Chunks     []Chunk
}

// Chunk is a bounded, section-tagged slice of a document's text, the unit
// of embedding and retrieval. Chunks are created only by ingestion and
// never mutated.
type Chunk struct {
	ID         string
	DocID      string
	ChunkIndex int
	ChunkText  string
	SectionRef *string
	Embedding  []float32
}

// Evidence is a retrieved chunk plus its computed relevance, scoped to a
// single query. Similarity is always in [0,1].
type Evidence struct {
	ChunkText  string  `json:"chunk_text"`
	SectionRef *string `json:"section_ref"`
	DocTitle   string  `json:"doc_title"`
	Similarity float64 `json:"similarity"`
}

// Citation is a user-facing attribution derived from evidence.
type Citation struct {
	Source  string  `json:"source"`
	Section *string `json:"section"`
	Chunk   string  `json:"chunk"`
}

// AnswerResult bundles the generated answer with its citations and the
// calibrated confidence callers use to pick a disposition tier.
type AnswerResult struct {
	Answer     string     `json:"answer"`
	Citations  []Citation `json:"citations"`
	Confidence float64    `json:"confidence"`
}

// CorpusStore persists documents, chunks and embeddings and serves the two
// lookups retrieval needs. Any engine offering nearest-neighbor and
// substring queries satisfies the contract.
type CorpusStore interface {
	// ReplaceCorpus clears the entire corpus and loads the given documents
	// as one logical transaction. A failure must not leave a mixed
	// old/new corpus.
	ReplaceCorpus(ctx context.Context, docs []Document) error
	// VectorSearch returns up to k chunks ranked by ascending vector
	// distance to the query embedding, each joined with its document
	// title and carrying similarity normalized into [0,1].
	VectorSearch(ctx context.Context, embedding []float32, k int) ([]Evidence, error)
	// SubstringSearch returns up to k chunks whose text contains any of
	// the terms as a case-insensitive substring. Hits carry no calibrated
	// similarity.
	SubstringSearch(ctx context.Context, terms []string, k int) ([]Evidence, error)
}

// EmbeddingService turns texts into fixed-dimension vectors. The call is
// order-preserving and batch atomic: all inputs succeed or the whole call
// fails.
type EmbeddingService interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerationService produces a completion for a system/user prompt pair.
// Implementations carry a bounded timeout; callers degrade to fallback
// text on any error.
type GenerationService interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
