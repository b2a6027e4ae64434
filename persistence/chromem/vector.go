package chromem

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/flarexio/docrag/vector"
)

const (
	metaDimension = "dimension"
	metaDistance  = "distance"
)

// noEmbedding keeps chromem from calling out to a hosted model. Every point
// arrives with its vector already computed.
func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("chromem: documents must carry their embedding")
}

func NewChromemStore(cfg vector.Config) (vector.Store, error) {
	var db *chromem.DB
	if !cfg.Persistent {
		db = chromem.NewDB()
	} else {
		d, err := chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", vector.ErrStoreRead, err)
		}

		db = d
	}

	return &chromemStore{
		db:      db,
		schemas: make(map[string]schema),
	}, nil
}

type schema struct {
	dim      int
	distance vector.Distance
}

// chromemStore keeps the schema of each collection on its own because
// chromem does not expose collection metadata once created.
type chromemStore struct {
	db      *chromem.DB
	schemas map[string]schema
	sync.RWMutex
}

func (s *chromemStore) EnsureCollection(ctx context.Context, name string, dim int, distance vector.Distance) error {
	if distance != vector.DistanceCosine {
		return fmt.Errorf("%w: %s", vector.ErrUnknownDistance, distance)
	}

	if dim <= 0 {
		return fmt.Errorf("%w: dimension %d", vector.ErrInvalidVector, dim)
	}

	s.Lock()
	defer s.Unlock()

	if existing, ok := s.schemas[name]; ok {
		if existing.dim != dim || existing.distance != distance {
			return fmt.Errorf("%w: %s has dimension %d, requested %d",
				vector.ErrSchemaMismatch, name, existing.dim, dim)
		}

		return nil
	}

	c := s.db.GetCollection(name, noEmbedding)
	if c == nil {
		meta := map[string]string{
			metaDimension: strconv.Itoa(dim),
			metaDistance:  string(distance),
		}

		if _, err := s.db.CreateCollection(name, meta, noEmbedding); err != nil {
			return fmt.Errorf("%w: %w", vector.ErrStoreWrite, err)
		}
	} else if err := storedDimension(ctx, c, name, dim); err != nil {
		return err
	}

	s.schemas[name] = schema{dim, distance}
	return nil
}

// storedDimension checks a collection restored from disk against dim. An
// empty collection adopts the requested schema.
func storedDimension(ctx context.Context, c *chromem.Collection, name string, dim int) error {
	if c.Count() == 0 {
		return nil
	}

	query := make([]float32, dim)
	query[0] = 1

	res, err := c.QueryEmbedding(ctx, query, 1, nil, nil)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", vector.ErrStoreRead, ctx.Err())
		}

		// chromem rejects a query whose length differs from the stored vectors
		return fmt.Errorf("%w: %s does not have dimension %d: %w",
			vector.ErrSchemaMismatch, name, dim, err)
	}

	if len(res) > 0 && len(res[0].Embedding) != dim {
		return fmt.Errorf("%w: %s has dimension %d, requested %d",
			vector.ErrSchemaMismatch, name, len(res[0].Embedding), dim)
	}

	return nil
}

func (s *chromemStore) Upsert(ctx context.Context, name string, points []vector.Point) error {
	if len(points) == 0 {
		return nil
	}

	s.RLock()
	sc, ok := s.schemas[name]
	s.RUnlock()

	if !ok {
		return fmt.Errorf("%w: collection %s not found", vector.ErrStoreWrite, name)
	}

	if err := vector.ValidatePoints(points, sc.dim); err != nil {
		return fmt.Errorf("%w: %w", vector.ErrStoreWrite, err)
	}

	c := s.db.GetCollection(name, noEmbedding)
	if c == nil {
		return fmt.Errorf("%w: collection %s not found", vector.ErrStoreWrite, name)
	}

	docs := make([]chromem.Document, len(points))
	for i, p := range points {
		docs[i] = chromem.Document{
			ID:        strconv.FormatUint(p.ID, 10),
			Metadata:  p.Payload.Metadata,
			Embedding: p.Vector,
			Content:   p.Payload.Text,
		}
	}

	if err := c.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("%w: %w", vector.ErrStoreWrite, err)
	}

	return nil
}

func (s *chromemStore) Search(ctx context.Context, name string, query []float32, opts vector.SearchOptions) ([]vector.SearchHit, error) {
	if opts.Limit <= 0 {
		return []vector.SearchHit{}, nil
	}

	c := s.db.GetCollection(name, noEmbedding)
	if c == nil || c.Count() == 0 {
		return []vector.SearchHit{}, nil
	}

	s.RLock()
	sc, ok := s.schemas[name]
	s.RUnlock()

	if ok && len(query) != sc.dim {
		return nil, fmt.Errorf("%w: query has length %d, want %d",
			vector.ErrStoreRead, len(query), sc.dim)
	}

	n := min(opts.Limit, c.Count())

	// chromem always scans the whole collection, so every search is exact.
	results, err := c.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrStoreRead, err)
	}

	hits := make([]vector.SearchHit, 0, len(results))
	for _, result := range results {
		if result.Similarity < opts.ScoreThreshold {
			continue
		}

		id, err := strconv.ParseUint(result.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid point id %q", vector.ErrStoreRead, result.ID)
		}

		hits = append(hits, vector.SearchHit{
			ID:       id,
			Text:     result.Content,
			Metadata: result.Metadata,
			Score:    result.Similarity,
		})
	}

	slices.SortStableFunc(hits, func(a, b vector.SearchHit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	return hits, nil
}

func (s *chromemStore) Scroll(ctx context.Context, name string, limit int) ([]vector.Point, error) {
	c := s.db.GetCollection(name, noEmbedding)
	if c == nil || c.Count() == 0 || limit <= 0 {
		return []vector.Point{}, nil
	}

	s.RLock()
	sc, ok := s.schemas[name]
	s.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: unknown schema for %s", vector.ErrStoreRead, name)
	}

	// chromem has no listing API; a full-size query over any unit vector
	// returns every document.
	query := make([]float32, sc.dim)
	query[0] = 1

	results, err := c.QueryEmbedding(ctx, query, c.Count(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrStoreRead, err)
	}

	points := make([]vector.Point, 0, len(results))
	for _, result := range results {
		id, err := strconv.ParseUint(result.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid point id %q", vector.ErrStoreRead, result.ID)
		}

		points = append(points, vector.Point{
			ID:     id,
			Vector: result.Embedding,
			Payload: vector.Payload{
				Text:     result.Content,
				Metadata: result.Metadata,
			},
		})
	}

	slices.SortFunc(points, func(a, b vector.Point) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	if len(points) > limit {
		points = points[:limit]
	}

	return points, nil
}

func (s *chromemStore) Count(ctx context.Context, name string) (int, error) {
	c := s.db.GetCollection(name, noEmbedding)
	if c == nil {
		return 0, nil
	}

	return c.Count(), nil
}

func (s *chromemStore) DeleteCollection(ctx context.Context, name string) error {
	s.Lock()
	defer s.Unlock()

	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("%w: %w", vector.ErrStoreWrite, err)
	}

	delete(s.schemas, name)
	return nil
}

func (s *chromemStore) ResetCollection(ctx context.Context, name string, dim int, distance vector.Distance) error {
	if err := s.DeleteCollection(ctx, name); err != nil {
		return err
	}

	return s.EnsureCollection(ctx, name, dim, distance)
}
