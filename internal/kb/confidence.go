package kb

import "strings"

// keywordBoost is added to the confidence when a query term literally
// appears in any evidence chunk, nudging borderline semantic matches
// upward without letting keyword-only noise dominate.
const keywordBoost = 0.10

// Confidence derives a [0,1] score from the evidence set: the maximum
// similarity, plus keywordBoost when any keyword term of the query
// case-insensitive-substring-matches any evidence chunk, capped at 1.0.
// Empty evidence scores 0.0.
func Confidence(query string, evidence []Evidence) float64 {
	if len(evidence) == 0 {
		return 0.0
	}
	maxSimilarity := 0.0
	for _, ev := range evidence {
		if ev.Similarity > maxSimilarity {
			maxSimilarity = ev.Similarity
		}
	}
	if terms := Keywords(query); len(terms) > 0 && anyTermHit(terms, evidence) {
		maxSimilarity += keywordBoost
		if maxSimilarity > 1.0 {
			maxSimilarity = 1.0
		}
	}
	return maxSimilarity
}

func anyTermHit(terms []string, evidence []Evidence) bool {
	for _, ev := range evidence {
		lower := strings.ToLower(ev.ChunkText)
		for _, term := range terms {
			if strings.Contains(lower, term) {
				return true
			}
		}
	}
	return false
}
