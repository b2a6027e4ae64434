package docrag

import (
	"context"
	"sync"
	"testing"

	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/generic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flarexio/docrag/embedding/hashing"
	"github.com/flarexio/docrag/persistence/chromem"
	"github.com/flarexio/docrag/vector"
)

// labelCounter records the label values every increment was made with.
type labelCounter struct {
	mu     *sync.Mutex
	counts map[string]float64
	lvs    []string
}

func newLabelCounter() *labelCounter {
	return &labelCounter{
		mu:     &sync.Mutex{},
		counts: make(map[string]float64),
	}
}

func (c *labelCounter) With(labelValues ...string) metrics.Counter {
	return &labelCounter{
		mu:     c.mu,
		counts: c.counts,
		lvs:    append(append([]string{}, c.lvs...), labelValues...),
	}
}

func (c *labelCounter) Add(delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := ""
	for i := 1; i < len(c.lvs); i += 2 {
		key += c.lvs[i] + "/"
	}

	c.counts[key] += delta
}

func TestInstrumentingMiddleware(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig()
	cfg.SourceDirectory = t.TempDir()
	cfg.Embedder.Type = EmbedderTypeHashing

	store, err := chromem.NewChromemStore(vector.Config{})
	require.NoError(t, err)

	svc, err := NewService(cfg, hashing.NewEmbedder(64), &echoCompleter{}, store)
	require.NoError(t, err)

	requests := newLabelCounter()
	chunks := generic.NewCounter("chunks_stored")

	svc = InstrumentingMiddleware(Metrics{
		RequestCount:   requests,
		RequestLatency: generic.NewHistogram("latency", 10),
		ChunksStored:   chunks,
	})(svc)

	ctx := context.Background()

	_, err = svc.SaveFile(ctx, "a.txt", []byte("Cats are mammals."))
	require.NoError(t, err)

	_, err = svc.Ingest(ctx)
	require.NoError(t, err)

	_, err = svc.Search(ctx, "", 3)
	assert.Error(err)

	assert.Equal(1.0, requests.counts["save_file/ok/"])
	assert.Equal(1.0, requests.counts["ingest/ok/"])
	assert.Equal(1.0, requests.counts["search/invalid_request/"])
	assert.Equal(1.0, chunks.Value())
}
