package kb

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// RefusalText is returned when the corpus holds nothing to ground an
// answer on, and is also the exact sentence the generation backend is
// instructed to reply with when the supplied context does not answer the
// question.
const RefusalText = "I couldn't find a policy covering this."

// GenerationFallbackText is returned when the generation backend fails or
// times out. Confidence and citations from retrieval are still reported.
const GenerationFallbackText = "Answer generation is unavailable right now. Please try again later."

const answerSystemPrompt = "You are a strict policy assistant for a Family Office. " +
	"Use ONLY the provided context. Never guess or invent policies. " +
	"Answer concisely and in a structured way (short title + bullet points if helpful). " +
	"Always include a short 'Source:' line at the end with document name and section."

// AnswerGenerator builds context-bounded completion requests and degrades
// to fixed text when evidence or generation is unavailable.
type AnswerGenerator struct {
	generator GenerationService
	logger    *log.Logger
}

// NewAnswerGenerator creates an AnswerGenerator. generator may be nil, in
// which case every non-empty-evidence query yields the fallback text.
func NewAnswerGenerator(generator GenerationService, logger *log.Logger) *AnswerGenerator {
	if logger == nil {
		logger = log.New(log.Writer(), "[KB] ", log.LstdFlags)
	}
	return &AnswerGenerator{generator: generator, logger: logger}
}

// Answer produces the final result for a query from the retrieved
// evidence. With empty evidence it short-circuits to the fixed refusal
// without touching the generation backend. Generation failures are
// recovered locally: retrieval work is never discarded because of a
// downstream failure.
func (g *AnswerGenerator) Answer(ctx context.Context, query string, evidence []Evidence) AnswerResult {
	confidence := Confidence(query, evidence)
	citations := SelectCitations(query, evidence)

	if len(evidence) == 0 {
		return AnswerResult{Answer: RefusalText, Citations: []Citation{}, Confidence: 0.0}
	}

	answer := GenerationFallbackText
	if g.generator != nil {
		text, err := g.generator.Complete(ctx, answerSystemPrompt, userPrompt(query, evidence))
		if err != nil {
			g.logger.Printf("generation degraded: %v", err)
		} else if text = strings.TrimSpace(text); text != "" {
			answer = text
		}
	}
	return AnswerResult{Answer: answer, Citations: citations, Confidence: confidence}
}

// userPrompt assembles the context block from evidence in retrieval
// order, one "[doc_title section_ref] chunk_text" segment per chunk,
// separated by blank lines.
func userPrompt(query string, evidence []Evidence) string {
	segments := make([]string, 0, len(evidence))
	for _, ev := range evidence {
		if ev.SectionRef != nil {
			segments = append(segments, fmt.Sprintf("[%s %s] %s", ev.DocTitle, *ev.SectionRef, ev.ChunkText))
		} else {
			segments = append(segments, fmt.Sprintf("[%s] %s", ev.DocTitle, ev.ChunkText))
		}
	}
	return fmt.Sprintf(
		"Question: %s\n\nContext:\n%s\n\nIf the context does not answer the question, reply exactly: %q",
		query, strings.Join(segments, "\n\n"), RefusalText,
	)
}
