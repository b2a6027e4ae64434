package docrag

import (
	"context"
	"errors"

	"github.com/go-kit/kit/endpoint"
)

type EndpointSet struct {
	Ingest         endpoint.Endpoint
	Search         endpoint.Endpoint
	Answer         endpoint.Endpoint
	Reset          endpoint.Endpoint
	ListFiles      endpoint.Endpoint
	SaveFile       endpoint.Endpoint
	CollectionInfo endpoint.Endpoint
}

func MakeEndpoints(svc Service) EndpointSet {
	return EndpointSet{
		Ingest:         IngestEndpoint(svc),
		Search:         SearchEndpoint(svc),
		Answer:         AnswerEndpoint(svc),
		Reset:          ResetEndpoint(svc),
		ListFiles:      ListFilesEndpoint(svc),
		SaveFile:       SaveFileEndpoint(svc),
		CollectionInfo: CollectionInfoEndpoint(svc),
	}
}

func IngestEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		return svc.Ingest(ctx)
	}
}

type SearchRequest struct {
	Query     string   `json:"query" form:"query"`
	Limit     int      `json:"limit,omitempty" form:"limit"`
	Threshold *float32 `json:"threshold,omitempty" form:"threshold"`
}

func SearchEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(SearchRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		if req.Threshold != nil {
			return svc.Search(ctx, req.Query, req.Limit, *req.Threshold)
		}

		return svc.Search(ctx, req.Query, req.Limit)
	}
}

// AnswerRequest carries optional passages. A null context asks the
// service to retrieve them; an empty list is used as is.
type AnswerRequest struct {
	Query   string   `json:"query" form:"query"`
	Context []string `json:"context"`
}

type AnswerResponse struct {
	Query  string `json:"query"`
	Answer string `json:"answer"`
}

func AnswerEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(AnswerRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		answer, err := svc.Answer(ctx, req.Query, req.Context)
		if err != nil {
			return nil, err
		}

		return AnswerResponse{
			Query:  req.Query,
			Answer: answer,
		}, nil
	}
}

func ResetEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		return nil, svc.Reset(ctx)
	}
}

func ListFilesEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		return svc.ListFiles(ctx)
	}
}

type SaveFileRequest struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

func SaveFileEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(SaveFileRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.SaveFile(ctx, req.Name, req.Content)
	}
}

type CollectionInfoRequest struct {
	Sample int `json:"sample,omitempty" form:"sample"`
}

func CollectionInfoEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(CollectionInfoRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.CollectionInfo(ctx, req.Sample)
	}
}
