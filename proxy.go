package docrag

import (
	"context"
	"errors"

	"github.com/flarexio/docrag/ingest"
	"github.com/flarexio/docrag/vector"
)

var ErrInvalidResponse = errors.New("invalid response type")

// ProxyMiddleware serves the Service from a remote endpoint set.
func ProxyMiddleware(endpoints *EndpointSet) ServiceMiddleware {
	return func(next Service) Service {
		return &proxyMiddleware{
			endpoints: endpoints,
		}
	}
}

type proxyMiddleware struct {
	endpoints *EndpointSet
}

func (mw *proxyMiddleware) Close() error {
	return errors.New("method not implemented")
}

func (mw *proxyMiddleware) Ingest(ctx context.Context) (ingest.Report, error) {
	resp, err := mw.endpoints.Ingest(ctx, nil)
	if err != nil {
		return ingest.Report{}, err
	}

	report, ok := resp.(ingest.Report)
	if !ok {
		return ingest.Report{}, ErrInvalidResponse
	}

	return report, nil
}

func (mw *proxyMiddleware) Search(ctx context.Context, query string, limit int, threshold ...float32) ([]vector.SearchHit, error) {
	req := SearchRequest{
		Query: query,
		Limit: limit,
	}

	if len(threshold) > 0 {
		t := threshold[0]
		req.Threshold = &t
	}

	resp, err := mw.endpoints.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	hits, ok := resp.([]vector.SearchHit)
	if !ok {
		return nil, ErrInvalidResponse
	}

	return hits, nil
}

func (mw *proxyMiddleware) Answer(ctx context.Context, query string, contexts []string) (string, error) {
	req := AnswerRequest{
		Query:   query,
		Context: contexts,
	}

	resp, err := mw.endpoints.Answer(ctx, req)
	if err != nil {
		return "", err
	}

	result, ok := resp.(AnswerResponse)
	if !ok {
		return "", ErrInvalidResponse
	}

	return result.Answer, nil
}

func (mw *proxyMiddleware) Reset(ctx context.Context) error {
	_, err := mw.endpoints.Reset(ctx, nil)
	return err
}

func (mw *proxyMiddleware) ListFiles(ctx context.Context) ([]FileInfo, error) {
	resp, err := mw.endpoints.ListFiles(ctx, nil)
	if err != nil {
		return nil, err
	}

	files, ok := resp.([]FileInfo)
	if !ok {
		return nil, ErrInvalidResponse
	}

	return files, nil
}

func (mw *proxyMiddleware) SaveFile(ctx context.Context, name string, content []byte) (FileInfo, error) {
	req := SaveFileRequest{
		Name:    name,
		Content: content,
	}

	resp, err := mw.endpoints.SaveFile(ctx, req)
	if err != nil {
		return FileInfo{}, err
	}

	info, ok := resp.(FileInfo)
	if !ok {
		return FileInfo{}, ErrInvalidResponse
	}

	return info, nil
}

func (mw *proxyMiddleware) CollectionInfo(ctx context.Context, sample int) (CollectionInfo, error) {
	resp, err := mw.endpoints.CollectionInfo(ctx, CollectionInfoRequest{Sample: sample})
	if err != nil {
		return CollectionInfo{}, err
	}

	info, ok := resp.(CollectionInfo)
	if !ok {
		return CollectionInfo{}, ErrInvalidResponse
	}

	return info, nil
}
