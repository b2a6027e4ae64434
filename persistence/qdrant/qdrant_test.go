package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/flarexio/docrag/vector"
)

// fakeQdrant serves the subset of the Qdrant REST API the store uses.
type fakeQdrant struct {
	sync.Mutex
	collections map[string]*fakeCollection
	searches    []map[string]any
}

type fakeCollection struct {
	size   int
	points map[uint64]point
}

func (f *fakeQdrant) reply(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok"})
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.Lock()
	defer f.Unlock()

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/collections/"), "/")
	name := parts[0]
	c, exists := f.collections[name]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			if !exists {
				http.NotFound(w, r)
				return
			}

			info := map[string]any{
				"config": map[string]any{
					"params": map[string]any{
						"vectors": map[string]any{"size": c.size, "distance": "Cosine"},
					},
				},
				"points_count": len(c.points),
			}
			f.reply(w, info)

		case http.MethodPut:
			var body struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			}
			json.NewDecoder(r.Body).Decode(&body)

			f.collections[name] = &fakeCollection{size: body.Vectors.Size, points: make(map[uint64]point)}
			f.reply(w, true)

		case http.MethodDelete:
			delete(f.collections, name)
			f.reply(w, true)
		}
		return
	}

	if !exists {
		http.NotFound(w, r)
		return
	}

	switch parts[len(parts)-1] {
	case "points":
		var body struct {
			Points []point `json:"points"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		for _, p := range body.Points {
			c.points[p.ID] = p
		}
		f.reply(w, map[string]any{"status": "completed"})

	case "search":
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.searches = append(f.searches, body)

		raw := body["vector"].([]any)
		limit := int(body["limit"].(float64))
		threshold := float32(body["score_threshold"].(float64))

		var hits []scoredPoint
		for _, p := range c.points {
			var score float32
			for i, v := range raw {
				score += float32(v.(float64)) * p.Vector[i]
			}

			if score >= threshold {
				hits = append(hits, scoredPoint{ID: p.ID, Score: score, Payload: p.Payload})
			}
		}

		sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
		if len(hits) > limit {
			hits = hits[:limit]
		}
		f.reply(w, hits)

	case "scroll":
		ids := make([]uint64, 0, len(c.points))
		for id := range c.points {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		points := make([]point, len(ids))
		for i, id := range ids {
			points[i] = c.points[id]
		}
		f.reply(w, map[string]any{"points": points})

	case "count":
		f.reply(w, map[string]any{"count": len(c.points)})
	}
}

type qdrantStoreTestSuite struct {
	suite.Suite
	fake  *fakeQdrant
	srv   *httptest.Server
	store vector.Store
	ctx   context.Context
}

func (suite *qdrantStoreTestSuite) SetupTest() {
	suite.fake = &fakeQdrant{collections: make(map[string]*fakeCollection)}
	suite.srv = httptest.NewServer(suite.fake)

	store, err := NewQdrantStore(vector.Config{URL: suite.srv.URL + "/", HNSWEf: 128})
	suite.Require().NoError(err)

	suite.store = store
	suite.ctx = context.Background()
}

func (suite *qdrantStoreTestSuite) TearDownTest() {
	suite.srv.Close()
}

func (suite *qdrantStoreTestSuite) seed() {
	err := suite.store.EnsureCollection(suite.ctx, "documents", 2, vector.DistanceCosine)
	suite.Require().NoError(err)

	err = suite.store.Upsert(suite.ctx, "documents", []vector.Point{
		{ID: 0, Vector: []float32{1, 0}, Payload: vector.Payload{Text: "Cats are mammals.", Metadata: map[string]string{"chunk_index": "0"}}},
		{ID: 1, Vector: []float32{0, 1}, Payload: vector.Payload{Text: "Airplanes need fuel."}},
	})
	suite.Require().NoError(err)
}

func (suite *qdrantStoreTestSuite) TestEnsureCollection() {
	suite.seed()

	err := suite.store.EnsureCollection(suite.ctx, "documents", 2, vector.DistanceCosine)
	suite.NoError(err)

	err = suite.store.EnsureCollection(suite.ctx, "documents", 3, vector.DistanceCosine)
	suite.ErrorIs(err, vector.ErrSchemaMismatch)
}

func (suite *qdrantStoreTestSuite) TestSearch() {
	suite.seed()

	hits, err := suite.store.Search(suite.ctx, "documents", []float32{1, 0}, vector.SearchOptions{
		Limit:          3,
		ScoreThreshold: 0.2,
		Exact:          true,
	})
	suite.Require().NoError(err)
	suite.Require().Len(hits, 1)

	suite.Equal(uint64(0), hits[0].ID)
	suite.Equal("Cats are mammals.", hits[0].Text)
	suite.Equal("0", hits[0].Metadata["chunk_index"])

	suite.Require().Len(suite.fake.searches, 1)
	params := suite.fake.searches[0]["params"].(map[string]any)
	suite.Equal(true, params["exact"])
	suite.Equal(float64(128), params["hnsw_ef"])
	suite.Equal(true, suite.fake.searches[0]["with_payload"])
}

func (suite *qdrantStoreTestSuite) TestUpsertReplaces() {
	suite.seed()

	err := suite.store.Upsert(suite.ctx, "documents", []vector.Point{
		{ID: 1, Vector: []float32{0.6, 0.8}, Payload: vector.Payload{Text: "Dogs are mammals too."}},
	})
	suite.Require().NoError(err)

	count, err := suite.store.Count(suite.ctx, "documents")
	suite.Require().NoError(err)
	suite.Equal(2, count)

	points, err := suite.store.Scroll(suite.ctx, "documents", 10)
	suite.Require().NoError(err)
	suite.Require().Len(points, 2)
	suite.Equal("Dogs are mammals too.", points[1].Payload.Text)
}

func (suite *qdrantStoreTestSuite) TestUpsertValidatesBatch() {
	suite.seed()

	err := suite.store.Upsert(suite.ctx, "documents", []vector.Point{
		{ID: 5, Vector: []float32{1, 0}, Payload: vector.Payload{Text: "ok"}},
		{ID: 6, Vector: []float32{1, 0}},
	})
	suite.ErrorIs(err, vector.ErrStoreWrite)

	count, err := suite.store.Count(suite.ctx, "documents")
	suite.Require().NoError(err)
	suite.Equal(2, count)
}

func (suite *qdrantStoreTestSuite) TestResetThenSearchEmpty() {
	suite.seed()

	err := suite.store.ResetCollection(suite.ctx, "documents", 2, vector.DistanceCosine)
	suite.Require().NoError(err)

	hits, err := suite.store.Search(suite.ctx, "documents", []float32{1, 0}, vector.SearchOptions{Limit: 3})
	suite.Require().NoError(err)
	suite.Empty(hits)
}

func (suite *qdrantStoreTestSuite) TestMissingCollection() {
	hits, err := suite.store.Search(suite.ctx, "missing", []float32{1, 0}, vector.SearchOptions{Limit: 3})
	suite.Require().NoError(err)
	suite.Empty(hits)

	count, err := suite.store.Count(suite.ctx, "missing")
	suite.Require().NoError(err)
	suite.Zero(count)

	suite.NoError(suite.store.DeleteCollection(suite.ctx, "missing"))
}

func (suite *qdrantStoreTestSuite) TestServerError() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store, err := NewQdrantStore(vector.Config{URL: srv.URL})
	suite.Require().NoError(err)

	_, err = store.Search(suite.ctx, "documents", []float32{1, 0}, vector.SearchOptions{Limit: 1})
	suite.ErrorIs(err, vector.ErrStoreRead)

	err = store.Upsert(suite.ctx, "documents", []vector.Point{{ID: 1, Vector: []float32{1}, Payload: vector.Payload{Text: "x"}}})
	suite.ErrorIs(err, vector.ErrStoreWrite)
}

func TestQdrantStoreTestSuite(t *testing.T) {
	suite.Run(t, new(qdrantStoreTestSuite))
}
