// Package ingest turns a directory of documents into a populated vector
// collection.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flarexio/docrag/chunker"
	"github.com/flarexio/docrag/embedding"
	"github.com/flarexio/docrag/loader"
	"github.com/flarexio/docrag/vector"
)

const DefaultBatchSize = 64

var (
	ErrNoFilesFound      = errors.New("no files found")
	ErrUnknownIDStrategy = errors.New("unknown id strategy")
)

type State string

const (
	StateNotStarted State = "not_started"
	StateScanning   State = "scanning"
	StateLoading    State = "loading"
	StateChunking   State = "chunking"
	StateEmbedding  State = "embedding"
	StateUpserting  State = "upserting"
	StateVerifying  State = "verifying"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

type Kind string

const (
	KindLoad              Kind = "load"
	KindChunking          Kind = "chunking"
	KindEmbeddingService  Kind = "embedding_service"
	KindDimensionMismatch Kind = "dimension_mismatch"
	KindStoreWrite        Kind = "store_write"
	KindStoreRead         Kind = "store_read"
	KindNoFilesFound      Kind = "no_files_found"
)

// Error reports the stage a run failed in. Stages already completed are not
// rolled back.
type Error struct {
	Stage State
	Kind  Kind
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ingest failed at %s (%s): %s", e.Stage, e.Kind, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

type IDStrategy string

const (
	// IDSequential numbers chunks 0..N-1 in run order. Re-running over the
	// same files replaces the same points only while chunk order is stable.
	IDSequential IDStrategy = "sequential"

	// IDStable derives the id from the chunk's source and index.
	IDStable IDStrategy = "stable"
)

func ParseIDStrategy(s string) (IDStrategy, error) {
	switch IDStrategy(s) {
	case IDSequential, "":
		return IDSequential, nil
	case IDStable:
		return IDStable, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownIDStrategy, s)
	}
}

// StableID hashes source and chunk index with FNV-1a.
func StableID(source string, index int) uint64 {
	h := fnv.New64a()
	h.Write([]byte(source + "#" + strconv.Itoa(index)))
	return h.Sum64()
}

type Config struct {
	Collection   string
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	IDStrategy   IDStrategy
}

type Report struct {
	RunID    uuid.UUID `json:"run_id"`
	State    State     `json:"state"`
	Files    []string  `json:"files"`
	Skipped  []string  `json:"skipped,omitempty"`
	Chunks   int       `json:"chunks"`
	Count    int       `json:"count"`
	Verified bool      `json:"verified"`
}

// Pipeline is not safe for concurrent runs against the same collection.
// Callers serialize runs with any other writer of the collection.
type Pipeline struct {
	loader   loader.Loader
	embedder embedding.Embedder
	store    vector.Store
	cfg      Config
	log      *zap.Logger
}

func NewPipeline(l loader.Loader, e embedding.Embedder, store vector.Store, cfg Config) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	if cfg.IDStrategy == "" {
		cfg.IDStrategy = IDSequential
	}

	return &Pipeline{
		loader:   l,
		embedder: e,
		store:    store,
		cfg:      cfg,
		log: zap.L().With(
			zap.String("component", "ingest"),
			zap.String("collection", cfg.Collection),
		),
	}
}

func (p *Pipeline) Run(ctx context.Context, dir string) (Report, error) {
	report := Report{
		RunID: uuid.New(),
		State: StateNotStarted,
	}

	log := p.log.With(
		zap.String("action", "run"),
		zap.String("run_id", report.RunID.String()),
		zap.String("dir", dir),
	)

	fail := func(kind Kind, err error) (Report, error) {
		e := &Error{Stage: report.State, Kind: kind, Err: err}
		report.State = StateFailed

		log.Error(e.Error())
		return report, e
	}

	c, err := chunker.New(p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if err != nil {
		return fail(KindChunking, err)
	}

	// Scanning
	report.State = StateScanning

	files, err := p.loader.Scan(dir)
	if err != nil {
		return fail(KindLoad, err)
	}

	if len(files) == 0 {
		return fail(KindNoFilesFound, fmt.Errorf("%w in %s", ErrNoFilesFound, dir))
	}

	log.Info("files found", zap.Int("count", len(files)))

	// Loading
	report.State = StateLoading

	docs := make([]loader.Document, 0, len(files))
	for _, path := range files {
		doc, err := p.loader.Load(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return fail(KindLoad, ctx.Err())
			}

			log.Warn("skipping file", zap.String("file", path), zap.Error(err))
			report.Skipped = append(report.Skipped, path)
			continue
		}

		report.Files = append(report.Files, path)
		docs = append(docs, doc)
	}

	if len(docs) == 0 {
		return fail(KindNoFilesFound, fmt.Errorf("%w: every file in %s failed to load", ErrNoFilesFound, dir))
	}

	// Chunking
	report.State = StateChunking

	chunks := c.Split(docs)
	if len(chunks) == 0 {
		return fail(KindNoFilesFound, fmt.Errorf("%w: documents in %s produced no chunks", ErrNoFilesFound, dir))
	}

	report.Chunks = len(chunks)
	log.Info("documents chunked",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
	)

	// Embedding
	report.State = StateEmbedding

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := embedding.EmbedBatched(ctx, p.embedder, texts, p.cfg.BatchSize,
		func(done, total int) {
			log.Debug("batch embedded", zap.Int("done", done), zap.Int("total", total))
		},
	)
	if err != nil {
		if errors.Is(err, embedding.ErrContract) {
			return fail(KindDimensionMismatch, err)
		}

		return fail(KindEmbeddingService, err)
	}

	// Upserting
	report.State = StateUpserting

	dim := p.embedder.Dimension()
	if err := p.store.EnsureCollection(ctx, p.cfg.Collection, dim, vector.DistanceCosine); err != nil {
		if errors.Is(err, vector.ErrSchemaMismatch) {
			return fail(KindDimensionMismatch, err)
		}

		return fail(KindStoreWrite, err)
	}

	points := make([]vector.Point, len(chunks))
	for i, chunk := range chunks {
		payload, err := vector.NewPayload(chunk.Text, chunk.Metadata)
		if err != nil {
			return fail(KindStoreWrite, err)
		}

		points[i] = vector.Point{
			ID:      p.pointID(i, chunk),
			Vector:  vectors[i],
			Payload: payload,
		}
	}

	if err := p.store.Upsert(ctx, p.cfg.Collection, points); err != nil {
		return fail(KindStoreWrite, err)
	}

	report.Count = len(points)

	// the collection may still hold points of earlier runs
	if total, err := p.store.Count(ctx, p.cfg.Collection); err != nil {
		log.Warn("count failed", zap.Int("points", len(points)), zap.Error(err))
	} else {
		log.Info("points stored", zap.Int("points", len(points)), zap.Int("collection", total))
	}

	// Verifying
	report.State = StateVerifying

	hits, err := p.store.Search(ctx, p.cfg.Collection, points[0].Vector, vector.SearchOptions{
		Limit: 1,
		Exact: true,
	})
	switch {
	case err != nil:
		log.Warn("verification failed", zap.Error(err))
	case len(hits) == 0:
		log.Warn("verification returned no hits")
	default:
		report.Verified = true
		log.Info("verification ok",
			zap.Uint64("id", hits[0].ID),
			zap.Float32("score", hits[0].Score),
		)
	}

	report.State = StateDone
	log.Info("done")

	return report, nil
}

func (p *Pipeline) pointID(i int, chunk chunker.Chunk) uint64 {
	if p.cfg.IDStrategy == IDStable {
		return StableID(chunk.Metadata[loader.MetaSource], chunk.Index())
	}

	return uint64(i)
}
