package embedding

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrService covers transport, auth and server failures of the remote
	// embedding service. The current ingestion run is aborted.
	ErrService = errors.New("embedding service error")

	// ErrContract is returned when a reply breaks the embedder contract:
	// wrong number of vectors or a vector of the wrong length.
	ErrContract = errors.New("embedding contract violated")
)

// Embedder maps a batch of texts to vectors of a fixed length. The i-th
// vector always belongs to the i-th text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the length of every vector the embedder produces.
	Dimension() int

	Name() string
}

// EmbedBatched embeds texts in calls of at most batchSize texts and checks
// every vector against the embedder's dimension.
func EmbedBatched(ctx context.Context, e Embedder, texts []string, batchSize int, onBatch ...func(done, total int)) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = len(texts)
	}

	dim := e.Dimension()
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))

		batch, err := e.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}

		if len(batch) != end-start {
			return nil, fmt.Errorf("%w: requested %d vectors, got %d", ErrContract, end-start, len(batch))
		}

		for i, v := range batch {
			if len(v) != dim {
				return nil, fmt.Errorf("%w: vector %d has length %d, want %d", ErrContract, start+i, len(v), dim)
			}
		}

		vectors = append(vectors, batch...)

		for _, fn := range onBatch {
			fn(end, len(texts))
		}
	}

	return vectors, nil
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := EmbedBatched(ctx, e, []string{text}, 1)
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}
