package answer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flarexio/docrag/completion"
)

type stubRetriever struct {
	passages []string
	err      error
	calls    int
}

func (r *stubRetriever) Retrieve(ctx context.Context, query string, limit int, threshold float32) ([]string, error) {
	r.calls++
	return r.passages, r.err
}

type stubCompleter struct {
	reply    string
	err      error
	calls    int
	messages []completion.Message
	opts     completion.Options
}

func (c *stubCompleter) Name() string { return "stub" }

func (c *stubCompleter) Complete(ctx context.Context, messages []completion.Message, opts completion.Options) (string, error) {
	c.calls++
	c.messages = messages
	c.opts = opts
	return c.reply, c.err
}

func TestAnswerRetrievesWhenContextNil(t *testing.T) {
	assert := assert.New(t)

	r := &stubRetriever{passages: []string{"Cats are mammals.", "Dogs are mammals too."}}
	c := &stubCompleter{reply: "Cats are mammals."}

	engine := NewEngine(r, c, DefaultOptions())

	answer, err := engine.Answer(context.Background(), "What are cats?", nil)
	require.NoError(t, err)

	assert.Equal("Cats are mammals.", answer)
	assert.Equal(1, r.calls)
	assert.Equal(1, c.calls)
	assert.InDelta(0.3, c.opts.Temperature, 1e-9)

	require.Len(t, c.messages, 2)
	assert.Equal(completion.RoleSystem, c.messages[0].Role)
	assert.Equal("Context:\nCats are mammals.\n\nDogs are mammals too.\n\nQuestion: What are cats?", c.messages[1].Content)
}

func TestAnswerUsesGivenContext(t *testing.T) {
	r := &stubRetriever{}
	c := &stubCompleter{reply: "ok"}

	engine := NewEngine(r, c, DefaultOptions())

	_, err := engine.Answer(context.Background(), "q", []string{"given"})
	require.NoError(t, err)

	assert.Equal(t, 0, r.calls)
	assert.Contains(t, c.messages[1].Content, "given")
}

func TestAnswerEmptyContextStillAsksModel(t *testing.T) {
	r := &stubRetriever{}
	c := &stubCompleter{reply: "The context does not say."}

	engine := NewEngine(r, c, DefaultOptions())

	answer, err := engine.Answer(context.Background(), "What are cats?", []string{})
	require.NoError(t, err)

	assert.Equal(t, "The context does not say.", answer)
	assert.Equal(t, 0, r.calls)
	assert.Equal(t, 1, c.calls)
}

func TestAnswerShortCircuit(t *testing.T) {
	opts := DefaultOptions()
	opts.ShortCircuitOnEmptyContext = true

	r := &stubRetriever{}
	c := &stubCompleter{reply: "unused"}

	engine := NewEngine(r, c, opts)

	answer, err := engine.Answer(context.Background(), "What are cats?", nil)
	require.NoError(t, err)

	assert.Equal(t, NoContextAnswer, answer)
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, 0, c.calls)
}

func TestAnswerCompletionFailure(t *testing.T) {
	c := &stubCompleter{err: errors.New("model overloaded")}

	engine := NewEngine(&stubRetriever{passages: []string{"x"}}, c, DefaultOptions())

	_, err := engine.Answer(context.Background(), "q", nil)
	assert.ErrorIs(t, err, completion.ErrService)
}

func TestAnswerRetrievalFailure(t *testing.T) {
	boom := errors.New("store unavailable")
	c := &stubCompleter{}

	engine := NewEngine(&stubRetriever{err: boom}, c, DefaultOptions())

	_, err := engine.Answer(context.Background(), "q", nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.calls)
}

func TestAnswerWithoutCompleter(t *testing.T) {
	engine := NewEngine(&stubRetriever{passages: []string{"Cats are mammals."}}, nil, DefaultOptions())

	_, err := engine.Answer(context.Background(), "What are cats?", nil)
	assert.ErrorIs(t, err, completion.ErrService)
}
