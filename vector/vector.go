package vector

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrStoreWrite      = errors.New("vector store write failed")
	ErrStoreRead       = errors.New("vector store read failed")
	ErrSchemaMismatch  = errors.New("collection schema mismatch")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrInvalidVector   = errors.New("invalid vector")
	ErrUnknownBackend  = errors.New("unknown vector backend")
	ErrUnknownDistance = errors.New("unknown distance")
)

type Backend string

const (
	BackendChromem Backend = "chromem"
	BackendQdrant  Backend = "qdrant"
)

type Distance string

const (
	DistanceCosine Distance = "cosine"
)

type Config struct {
	Backend    Backend
	Persistent bool
	Path       string
	URL        string
	APIKey     string
	Timeout    time.Duration
	HNSWEf     int
}

// Store owns the collections and every point inside them. Writers must be
// serialized by the caller; concurrent readers are fine.
type Store interface {

	// EnsureCollection creates the collection when missing. An existing
	// collection with another dimension or distance yields ErrSchemaMismatch.
	EnsureCollection(ctx context.Context, name string, dim int, distance Distance) error

	// Upsert writes the batch. A point whose id already exists is replaced.
	Upsert(ctx context.Context, name string, points []Point) error

	// Search returns at most opts.Limit hits scoring at least
	// opts.ScoreThreshold, best first.
	Search(ctx context.Context, name string, query []float32, opts SearchOptions) ([]SearchHit, error)

	// Scroll lists up to limit points ordered by id.
	Scroll(ctx context.Context, name string, limit int) ([]Point, error)

	Count(ctx context.Context, name string) (int, error)

	DeleteCollection(ctx context.Context, name string) error

	// ResetCollection drops the collection if present and creates it empty.
	ResetCollection(ctx context.Context, name string, dim int, distance Distance) error
}

type Point struct {
	ID      uint64    `json:"id"`
	Vector  []float32 `json:"vector,omitempty"`
	Payload Payload   `json:"payload"`
}

type Payload struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func NewPayload(text string, metadata map[string]string) (Payload, error) {
	p := Payload{
		Text:     text,
		Metadata: metadata,
	}

	if err := p.Validate(); err != nil {
		return Payload{}, err
	}

	return p, nil
}

func (p Payload) Validate() error {
	if p.Text == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidPayload)
	}

	return nil
}

type SearchOptions struct {
	Limit          int
	ScoreThreshold float32

	// Exact asks the backend for a brute force scan instead of an
	// approximate index lookup.
	Exact  bool
	HNSWEf int
}

type SearchHit struct {
	ID       uint64            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float32           `json:"score"`
}

// ValidatePoints checks the whole batch before anything is written.
func ValidatePoints(points []Point, dim int) error {
	seen := make(map[uint64]struct{}, len(points))
	for i, p := range points {
		if err := p.Payload.Validate(); err != nil {
			return fmt.Errorf("point %d: %w", p.ID, err)
		}

		if len(p.Vector) != dim {
			return fmt.Errorf("%w: point %d has length %d, want %d", ErrInvalidVector, p.ID, len(p.Vector), dim)
		}

		if _, ok := seen[p.ID]; ok {
			return fmt.Errorf("%w: duplicate id %d at position %d", ErrInvalidVector, p.ID, i)
		}

		seen[p.ID] = struct{}{}
	}

	return nil
}

func ParseDistance(s string) (Distance, error) {
	switch Distance(s) {
	case DistanceCosine, "":
		return DistanceCosine, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownDistance, s)
	}
}
