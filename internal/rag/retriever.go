package rag

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// termVector maps lower-cased terms to their frequency.
type termVector map[string]float64

func vectorize(words []string) termVector {
	vec := make(termVector)
	for _, w := range words {
		term := normalizeTerm(w)
		if len([]rune(term)) < 3 {
			continue
		}
		vec[term]++
	}
	return vec
}

func normalizeTerm(word string) string {
	return strings.ToLower(strings.TrimFunc(word, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}))
}

// scoreChunks ranks chunks by cosine similarity to the query. Ties keep
// document order so the result is deterministic.
func scoreChunks(chunks []chunk, query string) []RetrievedChunk {
	queryVec := vectorize(strings.Fields(query))
	queryNorm := vectorNorm(queryVec)

	scored := make([]RetrievedChunk, 0, len(chunks))
	for _, c := range chunks {
		scored = append(scored, RetrievedChunk{
			chunk: c,
			Score: cosineSimilarity(queryVec, vectorize(c.Words), queryNorm),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

func cosineSimilarity(a, b termVector, normA float64) float64 {
	if normA == 0 {
		return 0
	}
	normB := vectorNorm(b)
	if normB == 0 {
		return 0
	}
	dot := 0.0
	for term, weight := range a {
		dot += weight * b[term]
	}
	return dot / (normA * normB)
}

func vectorNorm(v termVector) float64 {
	sum := 0.0
	for _, val := range v {
		sum += val * val
	}
	return math.Sqrt(sum)
}
