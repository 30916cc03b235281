// internal/retrieval/keyword.go
package retrieval

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// DefaultTopK matches the retrieval fan-in the answer prompt was tuned for.
const DefaultTopK = 4

// KeywordIndex is an in-memory chunk index scored by keyword overlap.
// It stands in for a vector index behind the same search call shape.
type KeywordIndex struct {
	mu     sync.RWMutex
	chunks []chunk
	topK   int
}

type chunk struct {
	text  string
	terms map[string]struct{}
}

// NewKeywordIndex creates an empty index returning up to topK chunks
// per search. topK <= 0 uses DefaultTopK.
func NewKeywordIndex(topK int) *KeywordIndex {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &KeywordIndex{topK: topK}
}

// AddChunks indexes document chunks. Blank chunks are skipped.
func (idx *KeywordIndex) AddChunks(chunks []string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, text := range chunks {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		idx.chunks = append(idx.chunks, chunk{
			text:  text,
			terms: tokenize(text),
		})
	}
}

// Len returns the number of indexed chunks.
func (idx *KeywordIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.chunks)
}

// SimilaritySearch returns the top chunks sharing the most terms with the
// query, insertion order breaking ties. Zero-overlap chunks are dropped.
func (idx *KeywordIndex) SimilaritySearch(ctx context.Context, query string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type scored struct {
		pos   int
		score int
	}

	matches := make([]scored, 0, len(idx.chunks))
	for i, c := range idx.chunks {
		score := 0
		for term := range queryTerms {
			if _, ok := c.terms[term]; ok {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{pos: i, score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	limit := min(idx.topK, len(matches))
	results := make([]string, 0, limit)
	for _, m := range matches[:limit] {
		results = append(results, idx.chunks[m.pos].text)
	}
	return results, nil
}

func tokenize(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len(word) < 2 {
			continue
		}
		terms[word] = struct{}{}
	}
	return terms
}
