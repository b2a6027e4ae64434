package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/flarexio/docrag/completion"
	"github.com/flarexio/docrag/retrieval"
)

const (
	DefaultLimit          = retrieval.DefaultLimit
	DefaultScoreThreshold = retrieval.DefaultScoreThreshold
	DefaultTemperature    = 0.3

	// NoContextAnswer is returned without asking the model when
	// ShortCircuitOnEmptyContext is set and nothing was retrieved.
	NoContextAnswer = "I could not find any relevant information in the documents to answer this question."

	SystemPrompt = "You are a helpful assistant that answers questions based on the provided context. " +
		"If the context doesn't contain relevant information, say so."

	passageSeparator = "\n\n"
)

type Options struct {
	Limit                      int
	ScoreThreshold             float32
	Temperature                float64
	ShortCircuitOnEmptyContext bool
}

func DefaultOptions() Options {
	return Options{
		Limit:          DefaultLimit,
		ScoreThreshold: DefaultScoreThreshold,
		Temperature:    DefaultTemperature,
	}
}

// Retriever supplies context passages for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int, threshold float32) ([]string, error)
}

type Engine struct {
	retriever Retriever
	completer completion.Completer
	opts      Options
	log       *zap.Logger
}

func NewEngine(retriever Retriever, completer completion.Completer, opts Options) *Engine {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}

	return &Engine{
		retriever: retriever,
		completer: completer,
		opts:      opts,
		log: zap.L().With(
			zap.String("component", "answer"),
		),
	}
}

// Answer produces a grounded answer. A nil contexts retrieves passages for
// the query; a non-nil one, even empty, is used as given.
func (e *Engine) Answer(ctx context.Context, query string, contexts []string) (string, error) {
	log := e.log.With(
		zap.String("action", "answer"),
	)

	if contexts == nil {
		passages, err := e.retriever.Retrieve(ctx, query, e.opts.Limit, e.opts.ScoreThreshold)
		if err != nil {
			log.Error(err.Error())
			return "", err
		}

		contexts = passages
	}

	log = log.With(zap.Int("passages", len(contexts)))

	if len(contexts) == 0 && e.opts.ShortCircuitOnEmptyContext {
		log.Info("no context, skipping completion")
		return NoContextAnswer, nil
	}

	if e.completer == nil {
		err := errors.New("no completion model configured")
		log.Error(err.Error())
		return "", fmt.Errorf("%w: %w", completion.ErrService, err)
	}

	answer, err := e.completer.Complete(ctx, BuildPrompt(query, contexts), completion.Options{
		Temperature: e.opts.Temperature,
	})
	if err != nil {
		log.Error(err.Error())
		return "", fmt.Errorf("%w: %w", completion.ErrService, err)
	}

	log.Info("answered")
	return answer, nil
}

func BuildPrompt(query string, contexts []string) []completion.Message {
	user := "Context:\n" + strings.Join(contexts, passageSeparator) + "\n\nQuestion: " + query

	return []completion.Message{
		completion.SystemMessage(SystemPrompt),
		completion.UserMessage(user),
	}
}
