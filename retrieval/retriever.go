package retrieval

import (
	"context"

	"go.uber.org/zap"

	"github.com/flarexio/docrag/embedding"
	"github.com/flarexio/docrag/vector"
)

const (
	DefaultLimit          = 3
	DefaultScoreThreshold = 0.2
)

// Retriever finds the stored chunks closest to a query. It only reads the
// collection and may run concurrently with other readers.
type Retriever struct {
	embedder   embedding.Embedder
	store      vector.Store
	collection string
	hnswEf     int
	log        *zap.Logger
}

func NewRetriever(embedder embedding.Embedder, store vector.Store, collection string, hnswEf int) *Retriever {
	return &Retriever{
		embedder:   embedder,
		store:      store,
		collection: collection,
		hnswEf:     hnswEf,
		log: zap.L().With(
			zap.String("component", "retriever"),
			zap.String("collection", collection),
		),
	}
}

// Search embeds the query and returns the hits scoring at least threshold,
// best first. No hit is not an error.
func (r *Retriever) Search(ctx context.Context, query string, limit int, threshold float32) ([]vector.SearchHit, error) {
	log := r.log.With(
		zap.String("action", "search"),
		zap.Int("limit", limit),
		zap.Float32("threshold", threshold),
	)

	qv, err := embedding.EmbedOne(ctx, r.embedder, query)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	hits, err := r.store.Search(ctx, r.collection, qv, vector.SearchOptions{
		Limit:          limit,
		ScoreThreshold: threshold,
		Exact:          true,
		HNSWEf:         r.hnswEf,
	})
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Debug("search done", zap.Int("hits", len(hits)))
	return hits, nil
}

// Retrieve is Search reduced to the chunk texts.
func (r *Retriever) Retrieve(ctx context.Context, query string, limit int, threshold float32) ([]string, error) {
	hits, err := r.Search(ctx, query, limit, threshold)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(hits))
	for i, hit := range hits {
		texts[i] = hit.Text
	}

	return texts, nil
}
