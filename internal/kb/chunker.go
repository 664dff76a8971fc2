package kb

import "strings"

// DefaultChunkSize is the default window size in words.
const DefaultChunkSize = 400

// DefaultChunkOverlap is the default number of words shared between
// adjacent windows.
const DefaultChunkOverlap = 50

// Chunker splits raw document text into section-tagged, overlapping word
// windows. A line whose trimmed form starts with "§" or "##" begins a new
// section; the section reference line is prefixed to every chunk cut from
// that section so it participates in the semantic signal.
type Chunker struct {
	size    int
	overlap int
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithChunkSize sets the window size in words.
func WithChunkSize(size int) ChunkerOption {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithChunkOverlap sets the overlap between adjacent windows in words.
func WithChunkOverlap(overlap int) ChunkerOption {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// NewChunker creates a Chunker with the given options.
func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

// section is a contiguous region of a document under one marker.
type section struct {
	ref  *string
	text string
}

// Split chunks a document's text. Chunk order follows document order and
// indexes are contiguous from zero. Whitespace-only sections produce no
// chunks.
func (c *Chunker) Split(text string) []Chunk {
	var chunks []Chunk
	for _, sec := range extractSections(text) {
		words := strings.Fields(sec.text)
		if len(words) == 0 {
			continue
		}
		for _, window := range c.windows(words) {
			chunkText := strings.Join(window, " ")
			if sec.ref != nil {
				chunkText = *sec.ref + "\n" + chunkText
			}
			chunks = append(chunks, Chunk{
				ChunkIndex: len(chunks),
				ChunkText:  chunkText,
				SectionRef: sec.ref,
			})
		}
	}
	return chunks
}

// windows slides a window of size words over the input, advancing by
// size-overlap each step. The final window may be shorter and chunking
// stops once a window reaches the end of the input.
func (c *Chunker) windows(words []string) [][]string {
	step := c.size - c.overlap
	var out [][]string
	for start := 0; start < len(words); start += step {
		end := start + c.size
		if end > len(words) {
			end = len(words)
		}
		out = append(out, words[start:end])
		if end == len(words) {
			break
		}
	}
	return out
}

// extractSections splits text on section-marker lines. Text before any
// marker belongs to a section with a nil reference; a document without
// markers is a single such section.
func extractSections(text string) []section {
	var (
		sections   []section
		currentRef *string
		buffer     []string
	)
	flush := func() {
		if len(buffer) > 0 {
			sections = append(sections, section{ref: currentRef, text: strings.TrimSpace(strings.Join(buffer, "\n"))})
		}
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "§") || strings.HasPrefix(trimmed, "##") {
			flush()
			ref := trimmed
			currentRef = &ref
			buffer = nil
			continue
		}
		buffer = append(buffer, line)
	}
	flush()
	return sections
}
