// Package qdrant stores points in a Qdrant server through its REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flarexio/docrag/vector"
)

const DefaultTimeout = 15 * time.Second

var errNotFound = errors.New("not found")

var distanceNames = map[vector.Distance]string{
	vector.DistanceCosine: "Cosine",
}

func NewQdrantStore(cfg vector.Config) (vector.Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant: url is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &qdrantStore{
		endpoint: strings.TrimRight(cfg.URL, "/"),
		apiKey:   cfg.APIKey,
		hnswEf:   cfg.HNSWEf,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type qdrantStore struct {
	endpoint string
	apiKey   string
	hnswEf   int
	client   *http.Client
}

type collectionInfo struct {
	Config struct {
		Params struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
	PointsCount int `json:"points_count"`
}

type pointPayload struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type point struct {
	ID      uint64       `json:"id"`
	Vector  []float32    `json:"vector,omitempty"`
	Payload pointPayload `json:"payload"`
}

type scoredPoint struct {
	ID      uint64       `json:"id"`
	Score   float32      `json:"score"`
	Payload pointPayload `json:"payload"`
}

func (s *qdrantStore) collectionPath(name string, parts ...string) string {
	path := "/collections/" + url.PathEscape(name)
	for _, p := range parts {
		path += "/" + p
	}
	return path
}

func (s *qdrantStore) EnsureCollection(ctx context.Context, name string, dim int, distance vector.Distance) error {
	distanceName, ok := distanceNames[distance]
	if !ok {
		return fmt.Errorf("%w: %s", vector.ErrUnknownDistance, distance)
	}

	var info collectionInfo
	err := s.do(ctx, http.MethodGet, s.collectionPath(name), nil, &info)
	switch {
	case err == nil:
		params := info.Config.Params.Vectors
		if params.Size != dim || !strings.EqualFold(params.Distance, distanceName) {
			return fmt.Errorf("%w: %s has dimension %d (%s), requested %d (%s)",
				vector.ErrSchemaMismatch, name, params.Size, params.Distance, dim, distanceName)
		}

		return nil

	case errors.Is(err, errNotFound):
		// create below

	default:
		return fmt.Errorf("%w: %w", vector.ErrStoreRead, err)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": distanceName,
		},
	}

	if err := s.do(ctx, http.MethodPut, s.collectionPath(name), body, nil); err != nil {
		return fmt.Errorf("%w: %w", vector.ErrStoreWrite, err)
	}

	return nil
}

func (s *qdrantStore) Upsert(ctx context.Context, name string, points []vector.Point) error {
	if len(points) == 0 {
		return nil
	}

	dim := len(points[0].Vector)
	if err := vector.ValidatePoints(points, dim); err != nil {
		return fmt.Errorf("%w: %w", vector.ErrStoreWrite, err)
	}

	ps := make([]point, len(points))
	for i, p := range points {
		ps[i] = point{
			ID:     p.ID,
			Vector: p.Vector,
			Payload: pointPayload{
				Text:     p.Payload.Text,
				Metadata: p.Payload.Metadata,
			},
		}
	}

	body := map[string]any{"points": ps}
	if err := s.do(ctx, http.MethodPut, s.collectionPath(name, "points?wait=true"), body, nil); err != nil {
		return fmt.Errorf("%w: %w", vector.ErrStoreWrite, err)
	}

	return nil
}

func (s *qdrantStore) Search(ctx context.Context, name string, query []float32, opts vector.SearchOptions) ([]vector.SearchHit, error) {
	if opts.Limit <= 0 {
		return []vector.SearchHit{}, nil
	}

	params := map[string]any{
		"exact": opts.Exact,
	}

	hnswEf := opts.HNSWEf
	if hnswEf == 0 {
		hnswEf = s.hnswEf
	}

	if hnswEf > 0 {
		params["hnsw_ef"] = hnswEf
	}

	body := map[string]any{
		"vector":          query,
		"limit":           opts.Limit,
		"score_threshold": opts.ScoreThreshold,
		"with_payload":    true,
		"params":          params,
	}

	var result []scoredPoint
	err := s.do(ctx, http.MethodPost, s.collectionPath(name, "points", "search"), body, &result)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return []vector.SearchHit{}, nil
		}

		return nil, fmt.Errorf("%w: %w", vector.ErrStoreRead, err)
	}

	hits := make([]vector.SearchHit, 0, len(result))
	for _, r := range result {
		if r.Score < opts.ScoreThreshold {
			continue
		}

		hits = append(hits, vector.SearchHit{
			ID:       r.ID,
			Text:     r.Payload.Text,
			Metadata: r.Payload.Metadata,
			Score:    r.Score,
		})
	}

	return hits, nil
}

func (s *qdrantStore) Scroll(ctx context.Context, name string, limit int) ([]vector.Point, error) {
	if limit <= 0 {
		return []vector.Point{}, nil
	}

	body := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  true,
	}

	var result struct {
		Points []point `json:"points"`
	}

	err := s.do(ctx, http.MethodPost, s.collectionPath(name, "points", "scroll"), body, &result)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return []vector.Point{}, nil
		}

		return nil, fmt.Errorf("%w: %w", vector.ErrStoreRead, err)
	}

	points := make([]vector.Point, len(result.Points))
	for i, p := range result.Points {
		points[i] = vector.Point{
			ID:     p.ID,
			Vector: p.Vector,
			Payload: vector.Payload{
				Text:     p.Payload.Text,
				Metadata: p.Payload.Metadata,
			},
		}
	}

	return points, nil
}

func (s *qdrantStore) Count(ctx context.Context, name string) (int, error) {
	var result struct {
		Count int `json:"count"`
	}

	err := s.do(ctx, http.MethodPost, s.collectionPath(name, "points", "count"), map[string]any{"exact": true}, &result)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return 0, nil
		}

		return 0, fmt.Errorf("%w: %w", vector.ErrStoreRead, err)
	}

	return result.Count, nil
}

func (s *qdrantStore) DeleteCollection(ctx context.Context, name string) error {
	err := s.do(ctx, http.MethodDelete, s.collectionPath(name), nil, nil)
	if err != nil && !errors.Is(err, errNotFound) {
		return fmt.Errorf("%w: %w", vector.ErrStoreWrite, err)
	}

	return nil
}

func (s *qdrantStore) ResetCollection(ctx context.Context, name string, dim int, distance vector.Distance) error {
	if err := s.DeleteCollection(ctx, name); err != nil {
		return err
	}

	return s.EnsureCollection(ctx, name, dim, distance)
}

// do sends a JSON request and decodes the "result" field of the reply into out.
func (s *qdrantStore) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.endpoint+path, reader)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("qdrant %s %s: %w", method, path, errNotFound)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, path, resp.Status, strings.TrimSpace(string(payload)))
	}

	if out == nil {
		return nil
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
	}

	if err := json.Unmarshal(payload, &envelope); err != nil {
		return err
	}

	return json.Unmarshal(envelope.Result, out)
}
