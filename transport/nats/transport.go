package nats

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/go-kit/kit/endpoint"
	"github.com/nats-io/nats.go/micro"

	"github.com/flarexio/docrag"
)

func fail(r micro.Request, err error) {
	failure := docrag.NewFailure(err)

	data, _ := json.Marshal(failure)

	description := failure.Message
	if description == "" {
		description = string(failure.Kind)
	}

	r.Error(strconv.Itoa(docrag.StatusCode(failure.Kind)), description, data)
}

func badRequest(r micro.Request, err error) {
	fail(r, &docrag.Failure{
		Kind:    docrag.KindInvalidRequest,
		Message: err.Error(),
	})
}

// decode accepts an empty payload as the zero request.
func decode(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, v)
}

func respond(endpoint endpoint.Endpoint, request any) micro.HandlerFunc {
	return func(r micro.Request) {
		ctx := context.Background()
		resp, err := endpoint(ctx, request)
		if err != nil {
			fail(r, err)
			return
		}

		r.RespondJSON(resp)
	}
}

func IngestHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return respond(endpoint, nil)
}

func SearchHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req docrag.SearchRequest
		if err := decode(r.Data(), &req); err != nil {
			badRequest(r, err)
			return
		}

		respond(endpoint, req)(r)
	}
}

func AnswerHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req docrag.AnswerRequest
		if err := decode(r.Data(), &req); err != nil {
			badRequest(r, err)
			return
		}

		respond(endpoint, req)(r)
	}
}

func ResetHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		ctx := context.Background()
		if _, err := endpoint(ctx, nil); err != nil {
			fail(r, err)
			return
		}

		r.Respond([]byte("OK"))
	}
}

func ListFilesHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return respond(endpoint, nil)
}

func SaveFileHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req docrag.SaveFileRequest
		if err := json.Unmarshal(r.Data(), &req); err != nil {
			badRequest(r, err)
			return
		}

		respond(endpoint, req)(r)
	}
}

func CollectionInfoHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req docrag.CollectionInfoRequest
		if err := decode(r.Data(), &req); err != nil {
			badRequest(r, err)
			return
		}

		respond(endpoint, req)(r)
	}
}
