// Package hashing provides an offline embedder that projects word counts
// into a fixed number of buckets. It needs no corpus preparation, so the same
// text always maps to the same vector across runs.
package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/flarexio/docrag/embedding"
)

const DefaultDimension = 256

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

type Embedder struct {
	dimension int
	stopwords map[string]struct{}
}

var _ embedding.Embedder = (*Embedder)(nil)

func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}

	return &Embedder{
		dimension: dimension,
		stopwords: defaultStopwords(),
	}
}

func (e *Embedder) Name() string   { return "hashing" }
func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.vector(text)
	}

	return vectors, nil
}

func (e *Embedder) vector(text string) []float32 {
	vec := make([]float64, e.dimension)

	total := 0
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if _, ok := e.stopwords[tok]; ok {
			continue
		}

		vec[e.bucket(tok)]++
		total++
	}

	// texts without any token still get a unit vector
	if total == 0 {
		vec[e.bucket("")] = 1
	}

	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, e.dimension)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}

	return out
}

func (e *Embedder) bucket(token string) int {
	h := fnv.New64a()
	h.Write([]byte(token))
	return int(h.Sum64() % uint64(e.dimension))
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}

	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}

	return m
}
