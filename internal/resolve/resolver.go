// Package resolve corrects entity mentions in free-text queries against a
// reference vocabulary. Resolution applies three strategies in strict
// priority order: exact case-insensitive match, strict fuzzy match for
// typos, then semantic embedding match for synonyms. Words that match no
// strategy pass through unchanged.
package resolve

import (
	"context"
	"strings"

	"github.com/agnivade/levenshtein"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/salescope/salescope/internal/embedding"
	"github.com/salescope/salescope/internal/observability"
	"github.com/salescope/salescope/internal/vocab"
)

const (
	fuzzyThreshold      = 0.85
	semanticThreshold   = 0.75
	minCorrectableLen   = 4
	wordVectorCacheSize = 512
)

// stopWords are never candidates for correction: question words, metric
// names, connectives, and pluralized dimension names that would otherwise
// fuzzy-match real entities.
var stopWords = map[string]struct{}{
	"what": {}, "where": {}, "how": {}, "who": {}, "when": {}, "which": {},
	"show": {}, "list": {}, "give": {}, "tell": {}, "me": {}, "find": {},
	"top": {}, "best": {}, "worst": {}, "bottom": {}, "most": {}, "least": {},
	"sales": {}, "profit": {}, "quantity": {}, "revenue": {}, "count": {},
	"average": {}, "sum": {}, "total": {}, "metrics": {}, "performance": {},
	"analyze": {}, "analysis": {}, "report": {}, "trend": {}, "growth": {},
	"and": {}, "or": {}, "with": {}, "without": {}, "for": {}, "in": {},
	"by": {}, "of": {}, "at": {}, "to": {},
	"state": {}, "states": {}, "city": {}, "cities": {}, "region": {},
	"regions": {}, "category": {}, "categories": {}, "product": {},
	"products": {}, "year": {}, "month": {}, "date": {},
}

type Resolver struct {
	vocab    *vocab.Service
	embedder embedding.Embedder

	// Per-word embedding cache; avoids re-embedding the same token across
	// queries. Keys are lower-cased words.
	wordVectors *lru.Cache[string, []float32]
}

func New(vocabService *vocab.Service, embedder embedding.Embedder) *Resolver {
	cache, _ := lru.New[string, []float32](wordVectorCacheSize)
	return &Resolver{
		vocab:       vocabService,
		embedder:    embedder,
		wordVectors: cache,
	}
}

// SanitizeQuery resolves every whitespace-separated word of the query
// against the current vocabulary and returns the corrected query text.
// Resolution is per-word; phrases are never matched as a single unit.
func (r *Resolver) SanitizeQuery(ctx context.Context, query string) string {
	snapshot := r.vocab.Current()
	if len(snapshot.Entities) == 0 {
		return query
	}
	words := strings.Fields(query)
	resolved := make([]string, 0, len(words))
	for _, word := range words {
		resolved = append(resolved, r.resolveAgainstSnapshot(ctx, word, snapshot))
	}
	return strings.Join(resolved, " ")
}

// Resolve corrects a single word against an ad-hoc reference set. Reference
// embeddings are computed on the fly, so prefer SanitizeQuery for the global
// vocabulary where vectors are precomputed.
func (r *Resolver) Resolve(ctx context.Context, word string, reference []string) string {
	if skipCorrection(word) || len(reference) == 0 {
		return word
	}
	if match, ok := exactMatch(word, reference); ok {
		observability.IncrementResolverCorrection("exact")
		return match
	}
	if match, ok := fuzzyMatch(word, reference); ok {
		observability.IncrementResolverCorrection("fuzzy")
		return match
	}
	if r.embedder == nil {
		return word
	}
	wordVector, err := r.wordVector(ctx, word)
	if err != nil {
		return word
	}
	referenceVectors, err := r.embedder.EmbedBatch(ctx, reference)
	if err != nil {
		return word
	}
	if idx, score := embedding.BestMatch(wordVector, referenceVectors); idx >= 0 && score > semanticThreshold {
		observability.IncrementResolverCorrection("semantic")
		return reference[idx]
	}
	return word
}

func (r *Resolver) resolveAgainstSnapshot(ctx context.Context, word string, snapshot *vocab.Snapshot) string {
	if skipCorrection(word) {
		return word
	}
	if match, ok := snapshot.LookupExact(word); ok {
		observability.IncrementResolverCorrection("exact")
		return match
	}
	if match, ok := fuzzyMatch(word, snapshot.Entities); ok {
		observability.IncrementResolverCorrection("fuzzy")
		return match
	}
	if r.embedder == nil || len(snapshot.Vectors) != len(snapshot.Entities) || len(snapshot.Vectors) == 0 {
		return word
	}
	wordVector, err := r.wordVector(ctx, word)
	if err != nil {
		return word
	}
	if idx, score := embedding.BestMatch(wordVector, snapshot.Vectors); idx >= 0 && score > semanticThreshold {
		observability.IncrementResolverCorrection("semantic")
		return snapshot.Entities[idx]
	}
	return word
}

func (r *Resolver) wordVector(ctx context.Context, word string) ([]float32, error) {
	key := strings.ToLower(word)
	if vector, ok := r.wordVectors.Get(key); ok {
		return vector, nil
	}
	vector, err := r.embedder.Embed(ctx, word)
	if err != nil {
		return nil, err
	}
	r.wordVectors.Add(key, vector)
	return vector, nil
}

func skipCorrection(word string) bool {
	if len(word) < minCorrectableLen {
		return true
	}
	_, stop := stopWords[strings.ToLower(word)]
	return stop
}

func exactMatch(word string, reference []string) (string, bool) {
	lower := strings.ToLower(word)
	for _, entry := range reference {
		if strings.ToLower(entry) == lower {
			return entry, true
		}
	}
	return "", false
}

// fuzzyMatch accepts the single highest-scoring candidate whose edit
// similarity ratio is at least fuzzyThreshold.
func fuzzyMatch(word string, reference []string) (string, bool) {
	best := ""
	bestScore := 0.0
	for _, entry := range reference {
		score := similarityRatio(word, entry)
		if score > bestScore {
			bestScore = score
			best = entry
		}
	}
	if bestScore >= fuzzyThreshold {
		return best, true
	}
	return "", false
}

func similarityRatio(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(longest)
}
