package docrag

import (
	"context"
	"time"

	"github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/flarexio/docrag/ingest"
	"github.com/flarexio/docrag/vector"
)

type Metrics struct {
	RequestCount   metrics.Counter
	RequestLatency metrics.Histogram
	ChunksStored   metrics.Counter
}

// NewPrometheusMetrics registers the service metrics with the default
// Prometheus registry.
func NewPrometheusMetrics(namespace string) Metrics {
	labels := []string{"method", "kind"}

	return Metrics{
		RequestCount: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "requests_total",
			Help:      "Number of requests received.",
		}, labels),
		RequestLatency: kitprometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "request_duration_seconds",
			Help:      "Request duration in seconds.",
			Buckets:   stdprometheus.ExponentialBuckets(0.005, 2, 14),
		}, labels),
		ChunksStored: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "chunks_stored",
			Help:      "Number of chunks written to the collection.",
		}, []string{}),
	}
}

func InstrumentingMiddleware(m Metrics) ServiceMiddleware {
	return func(next Service) Service {
		return &instrumentingMiddleware{
			metrics: m,
			next:    next,
		}
	}
}

type instrumentingMiddleware struct {
	metrics Metrics
	next    Service
}

func (mw *instrumentingMiddleware) observe(method string, begin time.Time, err error) {
	kind := "ok"
	if err != nil {
		kind = string(KindOf(err))
	}

	lvs := []string{"method", method, "kind", kind}
	mw.metrics.RequestCount.With(lvs...).Add(1)
	mw.metrics.RequestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
}

func (mw *instrumentingMiddleware) Close() error {
	return mw.next.Close()
}

func (mw *instrumentingMiddleware) Ingest(ctx context.Context) (report ingest.Report, err error) {
	defer func(begin time.Time) {
		mw.observe("ingest", begin, err)

		if err == nil {
			mw.metrics.ChunksStored.Add(float64(report.Chunks))
		}
	}(time.Now())

	return mw.next.Ingest(ctx)
}

func (mw *instrumentingMiddleware) Search(ctx context.Context, query string, limit int, threshold ...float32) (hits []vector.SearchHit, err error) {
	defer func(begin time.Time) {
		mw.observe("search", begin, err)
	}(time.Now())

	return mw.next.Search(ctx, query, limit, threshold...)
}

func (mw *instrumentingMiddleware) Answer(ctx context.Context, query string, contexts []string) (answer string, err error) {
	defer func(begin time.Time) {
		mw.observe("answer", begin, err)
	}(time.Now())

	return mw.next.Answer(ctx, query, contexts)
}

func (mw *instrumentingMiddleware) Reset(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		mw.observe("reset", begin, err)
	}(time.Now())

	return mw.next.Reset(ctx)
}

func (mw *instrumentingMiddleware) ListFiles(ctx context.Context) (files []FileInfo, err error) {
	defer func(begin time.Time) {
		mw.observe("list_files", begin, err)
	}(time.Now())

	return mw.next.ListFiles(ctx)
}

func (mw *instrumentingMiddleware) SaveFile(ctx context.Context, name string, content []byte) (info FileInfo, err error) {
	defer func(begin time.Time) {
		mw.observe("save_file", begin, err)
	}(time.Now())

	return mw.next.SaveFile(ctx, name, content)
}

func (mw *instrumentingMiddleware) CollectionInfo(ctx context.Context, sample int) (info CollectionInfo, err error) {
	defer func(begin time.Time) {
		mw.observe("collection_info", begin, err)
	}(time.Now())

	return mw.next.CollectionInfo(ctx, sample)
}
