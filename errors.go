package docrag

import (
	"errors"
	"net/http"

	"github.com/flarexio/docrag/chunker"
	"github.com/flarexio/docrag/completion"
	"github.com/flarexio/docrag/embedding"
	"github.com/flarexio/docrag/ingest"
	"github.com/flarexio/docrag/loader"
	"github.com/flarexio/docrag/vector"
)

type ErrorKind string

const (
	KindLoad              ErrorKind = "load"
	KindChunking          ErrorKind = "chunking"
	KindEmbeddingService  ErrorKind = "embedding_service"
	KindDimensionMismatch ErrorKind = "dimension_mismatch"
	KindStoreWrite        ErrorKind = "store_write"
	KindStoreRead         ErrorKind = "store_read"
	KindNoFilesFound      ErrorKind = "no_files_found"
	KindCompletionService ErrorKind = "completion_service"
	KindInvalidRequest    ErrorKind = "invalid_request"
	KindInternal          ErrorKind = "internal"
)

// KindOf classifies err for callers outside the process.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Kind
	}

	var ingestErr *ingest.Error
	if errors.As(err, &ingestErr) {
		return ErrorKind(ingestErr.Kind)
	}

	switch {
	case errors.Is(err, ErrEmptyQuery),
		errors.Is(err, ErrInvalidFileName),
		errors.Is(err, loader.ErrUnsupportedFileType):
		return KindInvalidRequest

	case errors.Is(err, chunker.ErrInvalidConfig):
		return KindChunking

	case errors.Is(err, ingest.ErrNoFilesFound):
		return KindNoFilesFound

	case errors.Is(err, embedding.ErrContract),
		errors.Is(err, vector.ErrSchemaMismatch):
		return KindDimensionMismatch

	case errors.Is(err, embedding.ErrService):
		return KindEmbeddingService

	case errors.Is(err, completion.ErrService):
		return KindCompletionService

	case errors.Is(err, vector.ErrStoreWrite):
		return KindStoreWrite

	case errors.Is(err, vector.ErrStoreRead):
		return KindStoreRead

	case errors.Is(err, loader.ErrLoad):
		return KindLoad
	}

	return KindInternal
}

// Failure is the wire form of an error.
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func NewFailure(err error) *Failure {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure
	}

	return &Failure{
		Kind:    KindOf(err),
		Message: err.Error(),
	}
}

func (f *Failure) Error() string {
	return string(f.Kind) + ": " + f.Message
}

// StatusCode maps an error kind to the HTTP status transports reply with.
func StatusCode(kind ErrorKind) int {
	switch kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindNoFilesFound:
		return http.StatusNotFound
	default:
		return http.StatusExpectationFailed
	}
}
