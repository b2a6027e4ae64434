package nats

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"

	"github.com/flarexio/docrag"
	"github.com/flarexio/docrag/ingest"
	"github.com/flarexio/docrag/vector"
)

var (
	// RequestTimeout bounds a request whose context carries no deadline.
	RequestTimeout = 2 * time.Minute

	// IngestTimeout is used instead for ingestion runs.
	IngestTimeout = 30 * time.Minute
)

func MakeEndpoints(nc *nats.Conn, prefix string) *docrag.EndpointSet {
	return &docrag.EndpointSet{
		Ingest:         IngestEndpoint(nc, prefix+".ingest"),
		Search:         SearchEndpoint(nc, prefix+".search"),
		Answer:         AnswerEndpoint(nc, prefix+".answer"),
		Reset:          ResetEndpoint(nc, prefix+".reset"),
		ListFiles:      ListFilesEndpoint(nc, prefix+".list_files"),
		SaveFile:       SaveFileEndpoint(nc, prefix+".save_file"),
		CollectionInfo: CollectionInfoEndpoint(nc, prefix+".collection_info"),
	}
}

func IngestEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		var report ingest.Report
		if err := call(ctx, nc, topic, nil, &report, IngestTimeout); err != nil {
			return nil, err
		}

		return report, nil
	}
}

func SearchEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(docrag.SearchRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		data, err := json.Marshal(&req)
		if err != nil {
			return nil, err
		}

		var hits []vector.SearchHit
		if err := call(ctx, nc, topic, data, &hits, RequestTimeout); err != nil {
			return nil, err
		}

		return hits, nil
	}
}

func AnswerEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(docrag.AnswerRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		data, err := json.Marshal(&req)
		if err != nil {
			return nil, err
		}

		var resp docrag.AnswerResponse
		if err := call(ctx, nc, topic, data, &resp, RequestTimeout); err != nil {
			return nil, err
		}

		return resp, nil
	}
}

func ResetEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		return nil, call(ctx, nc, topic, nil, nil, RequestTimeout)
	}
}

func ListFilesEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		var files []docrag.FileInfo
		if err := call(ctx, nc, topic, nil, &files, RequestTimeout); err != nil {
			return nil, err
		}

		return files, nil
	}
}

func SaveFileEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(docrag.SaveFileRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		data, err := json.Marshal(&req)
		if err != nil {
			return nil, err
		}

		var info docrag.FileInfo
		if err := call(ctx, nc, topic, data, &info, RequestTimeout); err != nil {
			return nil, err
		}

		return info, nil
	}
}

func CollectionInfoEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(docrag.CollectionInfoRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		data, err := json.Marshal(&req)
		if err != nil {
			return nil, err
		}

		var info docrag.CollectionInfo
		if err := call(ctx, nc, topic, data, &info, RequestTimeout); err != nil {
			return nil, err
		}

		return info, nil
	}
}

func call(ctx context.Context, nc *nats.Conn, topic string, data []byte, out any, timeout time.Duration) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := nc.RequestWithContext(ctx, topic, data)
	if err != nil {
		return err
	}

	if err := Error(resp); err != nil {
		return err
	}

	if out == nil {
		return nil
	}

	return json.Unmarshal(resp.Data, out)
}

// Error extracts the service error carried by a reply, if any.
func Error(msg *nats.Msg) error {
	if msg == nil {
		return errors.New("nil message")
	}

	code := msg.Header.Get(micro.ErrorCodeHeader)
	if code == "" {
		return nil
	}

	var failure docrag.Failure
	if err := json.Unmarshal(msg.Data, &failure); err == nil && failure.Kind != "" {
		return &failure
	}

	description := msg.Header.Get(micro.ErrorHeader)
	if description == "" {
		description = "unknown error"
	}

	return &docrag.Failure{
		Kind:    docrag.KindInternal,
		Message: code + ":" + description,
	}
}
