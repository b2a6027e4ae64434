package docrag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/flarexio/docrag/answer"
	"github.com/flarexio/docrag/completion"
	"github.com/flarexio/docrag/embedding"
	"github.com/flarexio/docrag/ingest"
	"github.com/flarexio/docrag/loader"
	"github.com/flarexio/docrag/retrieval"
	"github.com/flarexio/docrag/vector"
)

// Service defines the core logic of docrag.
type Service interface {

	// Close releases the service. Calls after Close are undefined.
	Close() error

	// Ingest loads every supported file of the source directory into the
	// collection.
	Ingest(ctx context.Context) (ingest.Report, error)

	// Search returns the chunks closest to the query, best first.
	Search(ctx context.Context, query string, limit int, threshold ...float32) ([]vector.SearchHit, error)

	// Answer answers the query from the given passages, or from retrieved
	// ones when contexts is nil.
	Answer(ctx context.Context, query string, contexts []string) (string, error)

	// Reset empties the collection.
	Reset(ctx context.Context) error

	// ListFiles lists the supported files in the source directory.
	ListFiles(ctx context.Context) ([]FileInfo, error)

	// SaveFile writes an uploaded document into the source directory.
	SaveFile(ctx context.Context, name string, content []byte) (FileInfo, error)

	// CollectionInfo reports the collection size and a few stored points.
	CollectionInfo(ctx context.Context, sample int) (CollectionInfo, error)
}

type ServiceMiddleware func(Service) Service

func NewService(cfg Config, embedder embedding.Embedder, completer completion.Completer, store vector.Store) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("service", "docrag"),
	)

	pipeline := ingest.NewPipeline(loader.NewFileLoader(), embedder, store, ingest.Config{
		Collection:   cfg.CollectionName,
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		BatchSize:    cfg.Embedder.BatchSize,
		IDStrategy:   cfg.IDStrategy,
	})

	retriever := retrieval.NewRetriever(embedder, store, cfg.CollectionName, cfg.Vector.HNSWEf)

	engine := answer.NewEngine(retriever, completer, answer.Options{
		Limit:                      cfg.SearchLimit,
		ScoreThreshold:             cfg.ScoreThreshold,
		Temperature:                cfg.Completion.Temperature,
		ShortCircuitOnEmptyContext: cfg.Answer.ShortCircuitOnEmptyContext,
	})

	return &service{
		cfg:       cfg,
		embedder:  embedder,
		store:     store,
		loader:    loader.NewFileLoader(),
		pipeline:  pipeline,
		retriever: retriever,
		engine:    engine,
		log:       log,
	}, nil
}

type service struct {
	cfg       Config
	embedder  embedding.Embedder
	store     vector.Store
	loader    loader.Loader
	pipeline  *ingest.Pipeline
	retriever *retrieval.Retriever
	engine    *answer.Engine
	log       *zap.Logger

	// Ingest and Reset write the collection; searches only read it.
	sync.RWMutex
}

func (svc *service) Close() error {
	svc.Lock()
	defer svc.Unlock()

	svc.log.Info("closed", zap.String("action", "close"))
	return nil
}

func (svc *service) Ingest(ctx context.Context) (ingest.Report, error) {
	svc.Lock()
	defer svc.Unlock()

	return svc.pipeline.Run(ctx, svc.cfg.SourceDirectory)
}

func (svc *service) Search(ctx context.Context, query string, limit int, threshold ...float32) ([]vector.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	if limit <= 0 {
		limit = svc.cfg.SearchLimit
	}

	t := svc.cfg.ScoreThreshold
	if len(threshold) > 0 {
		t = threshold[0]
	}

	svc.RLock()
	defer svc.RUnlock()

	return svc.retriever.Search(ctx, query, limit, t)
}

func (svc *service) Answer(ctx context.Context, query string, contexts []string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", ErrEmptyQuery
	}

	svc.RLock()
	defer svc.RUnlock()

	return svc.engine.Answer(ctx, query, contexts)
}

func (svc *service) Reset(ctx context.Context) error {
	svc.Lock()
	defer svc.Unlock()

	return svc.store.ResetCollection(ctx, svc.cfg.CollectionName, svc.embedder.Dimension(), vector.DistanceCosine)
}

func (svc *service) ListFiles(ctx context.Context) ([]FileInfo, error) {
	paths, err := svc.loader.Scan(svc.cfg.SourceDirectory)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []FileInfo{}, nil
		}

		return nil, err
	}

	files := make([]FileInfo, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		files = append(files, newFileInfo(info))
	}

	return files, nil
}

func (svc *service) SaveFile(ctx context.Context, name string, content []byte) (FileInfo, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return FileInfo{}, fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}

	ext := strings.ToLower(filepath.Ext(name))
	if !slices.Contains(loader.SupportedExtensions(), ext) {
		return FileInfo{}, fmt.Errorf("%w: %s", loader.ErrUnsupportedFileType, ext)
	}

	if err := os.MkdirAll(svc.cfg.SourceDirectory, 0o755); err != nil {
		return FileInfo{}, err
	}

	path := filepath.Join(svc.cfg.SourceDirectory, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return FileInfo{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}

	return newFileInfo(info), nil
}

func (svc *service) CollectionInfo(ctx context.Context, sample int) (CollectionInfo, error) {
	if sample <= 0 {
		sample = DefaultSampleSize
	}

	svc.RLock()
	defer svc.RUnlock()

	count, err := svc.store.Count(ctx, svc.cfg.CollectionName)
	if err != nil {
		return CollectionInfo{}, err
	}

	points, err := svc.store.Scroll(ctx, svc.cfg.CollectionName, sample)
	if err != nil {
		return CollectionInfo{}, err
	}

	for i := range points {
		points[i].Vector = nil
	}

	return CollectionInfo{
		Name:      svc.cfg.CollectionName,
		Count:     count,
		Dimension: svc.embedder.Dimension(),
		Embedder:  svc.embedder.Name(),
		Sample:    points,
	}, nil
}

func newFileInfo(info os.FileInfo) FileInfo {
	return FileInfo{
		Name:       info.Name(),
		Type:       strings.TrimPrefix(strings.ToLower(filepath.Ext(info.Name())), "."),
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
	}
}
