package kb

import (
	"sort"
	"strings"
)

// maxCitations caps the number of citations returned per query.
const maxCitations = 2

// SelectCitations picks up to two faithful, deduplicated citations from
// the evidence set, highest similarity first. Heading-only chunks without
// a section reference are skipped, and when the query carries keyword
// terms a citation must literally contain at least one of them. If the
// strict rules yield nothing but evidence exists, the top chunks by
// similarity are taken unconditionally, so confidence > 0 never coexists
// with an empty citation list.
func SelectCitations(query string, evidence []Evidence) []Citation {
	sorted := make([]Evidence, len(evidence))
	copy(sorted, evidence)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Similarity > sorted[j].Similarity
	})

	terms := Keywords(query)
	seen := make(map[citationKey]struct{})
	var citations []Citation
	for _, ev := range sorted {
		if strings.HasPrefix(strings.TrimSpace(ev.ChunkText), "#") && ev.SectionRef == nil {
			continue
		}
		if len(terms) > 0 && !containsAnyTerm(ev.ChunkText, terms) {
			continue
		}
		key := keyFor(ev)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		citations = append(citations, Citation{Source: ev.DocTitle, Section: ev.SectionRef, Chunk: ev.ChunkText})
		if len(citations) >= maxCitations {
			break
		}
	}
	if len(citations) > 0 {
		return citations
	}
	for _, ev := range sorted {
		citations = append(citations, Citation{Source: ev.DocTitle, Section: ev.SectionRef, Chunk: ev.ChunkText})
		if len(citations) >= maxCitations {
			break
		}
	}
	return citations
}

type citationKey struct {
	docTitle   string
	sectionRef string
	hasSection bool
	chunkText  string
}

func keyFor(ev Evidence) citationKey {
	key := citationKey{docTitle: ev.DocTitle, chunkText: ev.ChunkText}
	if ev.SectionRef != nil {
		key.sectionRef = *ev.SectionRef
		key.hasSection = true
	}
	return key
}

func containsAnyTerm(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
