// Package similarity scores description overlap with a TF-IDF vector space.
//
// The vocabulary is rebuilt on every call from the query and its candidates,
// so there is no index to keep in sync with the catalog.
package similarity

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// tokenPattern matches runs of two or more word characters
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Engine computes description similarity scores
type Engine struct {
	stopWords map[string]struct{}
}

// NewEngine creates an engine with the English stop-word list
func NewEngine() *Engine {
	return NewEngineWithStopWords(englishStopWords)
}

// NewEngineWithStopWords creates an engine that drops the given words
func NewEngineWithStopWords(words []string) *Engine {
	stop := make(map[string]struct{}, len(words))
	for _, w := range words {
		stop[strings.ToLower(w)] = struct{}{}
	}
	return &Engine{stopWords: stop}
}

// Tokenize lower-cases text and returns its non-stop-word unigrams in order
func (e *Engine) Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := raw[:0]
	for _, t := range raw {
		if _, stop := e.stopWords[t]; stop {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}

// Scores returns the cosine similarity between query and each candidate,
// in candidate order. Every score is within [0, 1].
func (e *Engine) Scores(query string, candidates []string) []float64 {
	if len(candidates) == 0 {
		return []float64{}
	}

	docs := make([][]string, 0, len(candidates)+1)
	docs = append(docs, e.Tokenize(query))
	for _, c := range candidates {
		docs = append(docs, e.Tokenize(c))
	}

	vectors := vectorize(docs)
	scores := make([]float64, len(candidates))
	for i := range candidates {
		scores[i] = Cosine(vectors[0], vectors[i+1])
	}
	return scores
}

// Similarity is Scores for a single pair
func (e *Engine) Similarity(a, b string) float64 {
	return e.Scores(a, []string{b})[0]
}

// vectorize builds L2-normalised TF-IDF vectors over a sorted vocabulary
func vectorize(docs [][]string) [][]float64 {
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{}, len(doc))
		for _, t := range doc {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			df[t]++
		}
	}

	vocab := make([]string, 0, len(df))
	for t := range df {
		vocab = append(vocab, t)
	}
	sort.Strings(vocab)
	index := make(map[string]int, len(vocab))
	for i, t := range vocab {
		index[t] = i
	}

	// smoothed idf: ln((1+n)/(1+df)) + 1
	n := float64(len(docs))
	idf := make([]float64, len(vocab))
	for i, t := range vocab {
		idf[i] = math.Log((1+n)/(1+float64(df[t]))) + 1
	}

	vectors := make([][]float64, len(docs))
	for d, doc := range docs {
		v := make([]float64, len(vocab))
		for _, t := range doc {
			v[index[t]]++
		}
		for i := range v {
			v[i] *= idf[i]
		}
		normalize(v)
		vectors[d] = v
	}
	return vectors
}

func normalize(v []float64) {
	norm := magnitude(v)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] /= norm
	}
}

func magnitude(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of two equal-length vectors clamped
// to [0, 1]. A zero-magnitude vector is orthogonal to everything.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	na, nb := magnitude(a), magnitude(b)
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	s := dot / (na * nb)
	switch {
	case math.IsNaN(s), s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}
