package rag

import (
	"sort"
	"strings"
)

// selectSpans takes ranked chunks until maxTokens words are covered and
// returns the merged word ranges in document order. Overlapping windows are
// only counted once.
func selectSpans(ranked []RetrievedChunk, maxTokens int) []span {
	if len(ranked) == 0 || maxTokens <= 0 {
		return nil
	}

	covered := make(map[int]map[int]struct{})
	remaining := maxTokens
	for _, rc := range ranked {
		if remaining <= 0 {
			break
		}
		seen := covered[rc.Doc]
		if seen == nil {
			seen = make(map[int]struct{})
			covered[rc.Doc] = seen
		}
		for i := range rc.Words {
			if remaining <= 0 {
				break
			}
			pos := rc.Offset + i
			if _, ok := seen[pos]; ok {
				continue
			}
			seen[pos] = struct{}{}
			remaining--
		}
	}

	var spans []span
	for doc, positions := range covered {
		sorted := make([]int, 0, len(positions))
		for pos := range positions {
			sorted = append(sorted, pos)
		}
		sort.Ints(sorted)
		for _, pos := range sorted {
			if n := len(spans); n > 0 && spans[n-1].Doc == doc && spans[n-1].End == pos {
				spans[n-1].End++
				continue
			}
			spans = append(spans, span{Doc: doc, Start: pos, End: pos + 1})
		}
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Doc != spans[j].Doc {
			return spans[i].Doc < spans[j].Doc
		}
		return spans[i].Start < spans[j].Start
	})
	return spans
}

// formatSpans renders each span as a paragraph. Gaps inside a document are
// marked with an ellipsis.
func formatSpans(docWords [][]string, spans []span) string {
	parts := make([]string, 0, len(spans))
	for i, s := range spans {
		text := strings.Join(docWords[s.Doc][s.Start:s.End], " ")
		if s.Start > 0 {
			text = "[…] " + text
		}
		if (i == len(spans)-1 || spans[i+1].Doc != s.Doc) && s.End < len(docWords[s.Doc]) {
			text += " […]"
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n")
}

func estimateTokens(text string) int {
	return len(strings.Fields(text))
}
