package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/flarexio/docrag/chunker"
	"github.com/flarexio/docrag/embedding"
	"github.com/flarexio/docrag/embedding/hashing"
	"github.com/flarexio/docrag/loader"
	"github.com/flarexio/docrag/persistence/chromem"
	"github.com/flarexio/docrag/retrieval"
	"github.com/flarexio/docrag/vector"
)

type countingEmbedder struct {
	embedding.Embedder
	calls int
	err   error
}

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}

	return e.Embedder.Embed(ctx, texts)
}

type shortEmbedder struct {
	embedding.Embedder
}

func (e shortEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

type pipelineTestSuite struct {
	suite.Suite
	dir      string
	store    vector.Store
	embedder *countingEmbedder
	ctx      context.Context
}

func (suite *pipelineTestSuite) SetupTest() {
	suite.dir = suite.T().TempDir()
	suite.ctx = context.Background()
	suite.embedder = &countingEmbedder{Embedder: hashing.NewEmbedder(256)}

	store, err := chromem.NewChromemStore(vector.Config{})
	suite.Require().NoError(err)
	suite.store = store
}

func (suite *pipelineTestSuite) write(name, content string) string {
	path := filepath.Join(suite.dir, name)
	err := os.WriteFile(path, []byte(content), 0o644)
	suite.Require().NoError(err)
	return path
}

func (suite *pipelineTestSuite) pipeline(size, overlap int, strategy IDStrategy) *Pipeline {
	return NewPipeline(loader.NewFileLoader(), suite.embedder, suite.store, Config{
		Collection:   "documents",
		ChunkSize:    size,
		ChunkOverlap: overlap,
		BatchSize:    2,
		IDStrategy:   strategy,
	})
}

func (suite *pipelineTestSuite) TestCatsAndDogs() {
	suite.write("a.txt", "Cats are mammals. Dogs are mammals too.")

	report, err := suite.pipeline(20, 5, IDSequential).Run(suite.ctx, suite.dir)
	suite.Require().NoError(err)

	suite.Equal(StateDone, report.State)
	suite.Len(report.Files, 1)
	suite.Empty(report.Skipped)
	suite.Equal(3, report.Chunks)
	suite.Equal(3, report.Count)
	suite.True(report.Verified)
	suite.NotEqual("00000000-0000-0000-0000-000000000000", report.RunID.String())

	// three chunks in batches of two
	suite.Equal(2, suite.embedder.calls)

	r := retrieval.NewRetriever(suite.embedder, suite.store, "documents", 0)

	texts, err := r.Retrieve(suite.ctx, "What are cats?", 3, 0.2)
	suite.Require().NoError(err)
	suite.Require().NotEmpty(texts)
	suite.Equal("Cats are mammals. ", texts[0])

	points, err := suite.store.Scroll(suite.ctx, "documents", 10)
	suite.Require().NoError(err)
	suite.Require().Len(points, 3)
	suite.Equal("1", points[1].Payload.Metadata[chunker.MetaChunkIndex])
	suite.Equal("a.txt", points[1].Payload.Metadata[loader.MetaFileName])
}

func (suite *pipelineTestSuite) TestRerunIsIdempotent() {
	suite.write("a.txt", "Cats are mammals. Dogs are mammals too.")

	for range 2 {
		report, err := suite.pipeline(20, 5, IDStable).Run(suite.ctx, suite.dir)
		suite.Require().NoError(err)
		suite.Equal(3, report.Count)
	}

	points, err := suite.store.Scroll(suite.ctx, "documents", 10)
	suite.Require().NoError(err)

	source, err := filepath.Abs(filepath.Join(suite.dir, "a.txt"))
	suite.Require().NoError(err)

	ids := make(map[uint64]bool)
	for _, p := range points {
		ids[p.ID] = true
	}

	suite.True(ids[StableID(source, 0)])
	suite.True(ids[StableID(source, 2)])
}

func (suite *pipelineTestSuite) TestCountIsPerRun() {
	suite.write("a.txt", "Cats are mammals. Dogs are mammals too.")
	b := suite.write("b.txt", "Airplanes need fuel. Boats need wind.")

	first, err := suite.pipeline(20, 5, IDStable).Run(suite.ctx, suite.dir)
	suite.Require().NoError(err)
	suite.Equal(first.Chunks, first.Count)

	suite.Require().NoError(os.Remove(b))

	second, err := suite.pipeline(20, 5, IDStable).Run(suite.ctx, suite.dir)
	suite.Require().NoError(err)
	suite.Equal(second.Chunks, second.Count)
	suite.Less(second.Chunks, first.Chunks)

	total, err := suite.store.Count(suite.ctx, "documents")
	suite.Require().NoError(err)
	suite.Equal(first.Count, total)
}

func (suite *pipelineTestSuite) TestInvalidChunkConfigFailsBeforeEmbedding() {
	suite.write("a.txt", "Cats are mammals.")

	report, err := suite.pipeline(10, 10, IDSequential).Run(suite.ctx, suite.dir)

	var ingestErr *Error
	suite.Require().ErrorAs(err, &ingestErr)
	suite.Equal(KindChunking, ingestErr.Kind)
	suite.ErrorIs(err, chunker.ErrInvalidConfig)
	suite.Equal(StateFailed, report.State)
	suite.Zero(suite.embedder.calls)
}

func (suite *pipelineTestSuite) TestNoFiles() {
	suite.write("notes.md", "# not supported")

	report, err := suite.pipeline(100, 10, IDSequential).Run(suite.ctx, suite.dir)
	suite.ErrorIs(err, ErrNoFilesFound)
	suite.Equal(StateFailed, report.State)

	var ingestErr *Error
	suite.Require().ErrorAs(err, &ingestErr)
	suite.Equal(StateScanning, ingestErr.Stage)
	suite.Equal(KindNoFilesFound, ingestErr.Kind)
}

func (suite *pipelineTestSuite) TestMissingDirectory() {
	_, err := suite.pipeline(100, 10, IDSequential).Run(suite.ctx, filepath.Join(suite.dir, "missing"))

	var ingestErr *Error
	suite.Require().ErrorAs(err, &ingestErr)
	suite.Equal(KindLoad, ingestErr.Kind)
	suite.ErrorIs(err, loader.ErrLoad)
}

func (suite *pipelineTestSuite) TestSkipsUnreadableFiles() {
	suite.write("a.txt", "Cats are mammals.")
	broken := suite.write("b.pdf", "this is not a pdf")
	suite.write("c.txt", "   ")

	report, err := suite.pipeline(100, 10, IDSequential).Run(suite.ctx, suite.dir)
	suite.Require().NoError(err)

	suite.Len(report.Files, 1)
	suite.Contains(report.Skipped, broken)
	suite.Len(report.Skipped, 2)
	suite.Equal(1, report.Count)
}

func (suite *pipelineTestSuite) TestEveryFileFails() {
	suite.write("b.pdf", "this is not a pdf")

	_, err := suite.pipeline(100, 10, IDSequential).Run(suite.ctx, suite.dir)
	suite.ErrorIs(err, ErrNoFilesFound)

	var ingestErr *Error
	suite.Require().ErrorAs(err, &ingestErr)
	suite.Equal(StateLoading, ingestErr.Stage)
}

func (suite *pipelineTestSuite) TestEmbeddingServiceFailure() {
	suite.write("a.txt", "Cats are mammals.")
	suite.embedder.err = errors.Join(embedding.ErrService, errors.New("401 unauthorized"))

	report, err := suite.pipeline(100, 10, IDSequential).Run(suite.ctx, suite.dir)
	suite.ErrorIs(err, embedding.ErrService)
	suite.Equal(StateFailed, report.State)

	var ingestErr *Error
	suite.Require().ErrorAs(err, &ingestErr)
	suite.Equal(StateEmbedding, ingestErr.Stage)
	suite.Equal(KindEmbeddingService, ingestErr.Kind)

	count, err := suite.store.Count(suite.ctx, "documents")
	suite.Require().NoError(err)
	suite.Zero(count)
}

func (suite *pipelineTestSuite) TestDimensionMismatch() {
	suite.write("a.txt", "Cats are mammals.")

	p := NewPipeline(loader.NewFileLoader(), shortEmbedder{hashing.NewEmbedder(8)}, suite.store, Config{
		Collection:   "documents",
		ChunkSize:    100,
		ChunkOverlap: 10,
	})

	_, err := p.Run(suite.ctx, suite.dir)

	var ingestErr *Error
	suite.Require().ErrorAs(err, &ingestErr)
	suite.Equal(KindDimensionMismatch, ingestErr.Kind)
	suite.ErrorIs(err, embedding.ErrContract)
}

func (suite *pipelineTestSuite) TestExistingCollectionWithOtherDimension() {
	suite.write("a.txt", "Cats are mammals.")

	err := suite.store.EnsureCollection(suite.ctx, "documents", 8, vector.DistanceCosine)
	suite.Require().NoError(err)

	_, err = suite.pipeline(100, 10, IDSequential).Run(suite.ctx, suite.dir)

	var ingestErr *Error
	suite.Require().ErrorAs(err, &ingestErr)
	suite.Equal(StateUpserting, ingestErr.Stage)
	suite.Equal(KindDimensionMismatch, ingestErr.Kind)
	suite.ErrorIs(err, vector.ErrSchemaMismatch)
}

func TestPipelineTestSuite(t *testing.T) {
	suite.Run(t, new(pipelineTestSuite))
}

func TestParseIDStrategy(t *testing.T) {
	s, err := ParseIDStrategy("")
	assert.NoError(t, err)
	assert.Equal(t, IDSequential, s)

	_, err = ParseIDStrategy("random")
	assert.ErrorIs(t, err, ErrUnknownIDStrategy)
}
