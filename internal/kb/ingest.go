package kb

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
)

// Ingestor populates the corpus from a directory of procedure documents.
// Ingestion is an offline, single-writer batch operation with destructive
// reset-then-repopulate semantics; callers must not run two ingestions
// concurrently.
type Ingestor struct {
	chunker  *Chunker
	embedder EmbeddingService
	store    CorpusStore
	logger   *log.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(chunker *Chunker, embedder EmbeddingService, store CorpusStore, logger *log.Logger) *Ingestor {
	if chunker == nil {
		chunker = NewChunker()
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[INGEST] ", log.LstdFlags)
	}
	return &Ingestor{chunker: chunker, embedder: embedder, store: store, logger: logger}
}

// IngestDir reads every *.md file under dir (sorted by name), chunks and
// embeds them, and replaces the entire corpus in one logical transaction.
// Any read or embedding failure aborts the run before the existing corpus
// is touched, so a partial failure never leaves a mixed old/new corpus.
func (ing *Ingestor) IngestDir(ctx context.Context, dir string) (docCount, chunkCount int, err error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return 0, 0, fmt.Errorf("list source documents: %w", err)
	}
	sort.Strings(paths)

	docs := make([]Document, 0, len(paths))
	for _, path := range paths {
		doc, err := ing.prepare(ctx, path)
		if err != nil {
			return 0, 0, err
		}
		docs = append(docs, doc)
		chunkCount += len(doc.Chunks)
	}

	if err := ing.store.ReplaceCorpus(ctx, docs); err != nil {
		return 0, 0, fmt.Errorf("replace corpus: %w", err)
	}
	ing.logger.Printf("ingested %d docs, %d chunks", len(docs), chunkCount)
	return len(docs), chunkCount, nil
}

// prepare chunks and embeds a single document. Chunk indexes are
// contiguous from zero in document order and every chunk's embedding is
// attached before anything is persisted.
func (ing *Ingestor) prepare(ctx context.Context, path string) (Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	doc := Document{
		Title:      filepath.Base(path),
		SourcePath: path,
		FullText:   string(content),
		Chunks:     ing.chunker.Split(string(content)),
	}
	if len(doc.Chunks) == 0 {
		return doc, nil
	}

	texts := make([]string, len(doc.Chunks))
	for i, chunk := range doc.Chunks {
		texts[i] = chunk.ChunkText
	}
	vecs, err := ing.embedder.Embed(ctx, texts)
	if err != nil {
		return Document{}, fmt.Errorf("embed %s: %w", doc.Title, err)
	}
	if len(vecs) != len(texts) {
		return Document{}, fmt.Errorf("embed %s: got %d vectors for %d chunks", doc.Title, len(vecs), len(texts))
	}
	for i := range doc.Chunks {
		doc.Chunks[i].Embedding = vecs[i]
	}
	return doc, nil
}
