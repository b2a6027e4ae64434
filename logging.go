package docrag

import (
	"context"

	"go.uber.org/zap"

	"github.com/flarexio/docrag/ingest"
	"github.com/flarexio/docrag/vector"
)

func LoggingMiddleware(log *zap.Logger) ServiceMiddleware {
	log = log.With(
		zap.String("service", "docrag"),
	)

	return func(next Service) Service {
		log.Info("service initialized")

		return &loggingMiddleware{
			log:  log,
			next: next,
		}
	}
}

type loggingMiddleware struct {
	log  *zap.Logger
	next Service
}

func (mw *loggingMiddleware) Close() error {
	log := mw.log.With(
		zap.String("action", "close"),
	)

	err := mw.next.Close()
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("service closed")
	return nil
}

func (mw *loggingMiddleware) Ingest(ctx context.Context) (ingest.Report, error) {
	log := mw.log.With(
		zap.String("action", "ingest"),
	)

	report, err := mw.next.Ingest(ctx)
	if err != nil {
		log.Error(err.Error(),
			zap.String("kind", string(KindOf(err))),
			zap.String("run_id", report.RunID.String()),
		)
		return report, err
	}

	log.Info("documents ingested",
		zap.String("run_id", report.RunID.String()),
		zap.Int("files", len(report.Files)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("chunks", report.Chunks),
		zap.Int("count", report.Count),
		zap.Bool("verified", report.Verified),
	)
	return report, nil
}

func (mw *loggingMiddleware) Search(ctx context.Context, query string, limit int, threshold ...float32) ([]vector.SearchHit, error) {
	log := mw.log.With(
		zap.String("action", "search"),
		zap.String("query", query),
	)

	if limit > 0 {
		log = log.With(
			zap.Int("limit", limit),
		)
	}

	if len(threshold) > 0 {
		log = log.With(
			zap.Float32("threshold", threshold[0]),
		)
	}

	hits, err := mw.next.Search(ctx, query, limit, threshold...)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("documents searched", zap.Int("count", len(hits)))
	return hits, nil
}

func (mw *loggingMiddleware) Answer(ctx context.Context, query string, contexts []string) (string, error) {
	log := mw.log.With(
		zap.String("action", "answer"),
		zap.String("query", query),
		zap.Bool("retrieve", contexts == nil),
	)

	answer, err := mw.next.Answer(ctx, query, contexts)
	if err != nil {
		log.Error(err.Error())
		return "", err
	}

	log.Info("question answered")
	return answer, nil
}

func (mw *loggingMiddleware) Reset(ctx context.Context) error {
	log := mw.log.With(
		zap.String("action", "reset"),
	)

	err := mw.next.Reset(ctx)
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("collection reset")
	return nil
}

func (mw *loggingMiddleware) ListFiles(ctx context.Context) ([]FileInfo, error) {
	log := mw.log.With(
		zap.String("action", "list_files"),
	)

	files, err := mw.next.ListFiles(ctx)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("files listed", zap.Int("count", len(files)))
	return files, nil
}

func (mw *loggingMiddleware) SaveFile(ctx context.Context, name string, content []byte) (FileInfo, error) {
	log := mw.log.With(
		zap.String("action", "save_file"),
		zap.String("name", name),
		zap.Int("size", len(content)),
	)

	info, err := mw.next.SaveFile(ctx, name, content)
	if err != nil {
		log.Error(err.Error())
		return FileInfo{}, err
	}

	log.Info("file saved")
	return info, nil
}

func (mw *loggingMiddleware) CollectionInfo(ctx context.Context, sample int) (CollectionInfo, error) {
	log := mw.log.With(
		zap.String("action", "collection_info"),
	)

	info, err := mw.next.CollectionInfo(ctx, sample)
	if err != nil {
		log.Error(err.Error())
		return CollectionInfo{}, err
	}

	log.Info("collection inspected", zap.Int("count", info.Count))
	return info, nil
}
