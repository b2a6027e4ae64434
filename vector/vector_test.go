package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPayload(t *testing.T) {
	_, err := NewPayload("", nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	p, err := NewPayload("Cats are mammals.", map[string]string{"chunk_index": "0"})
	require.NoError(t, err)
	assert.Equal(t, "0", p.Metadata["chunk_index"])
}

func TestValidatePoints(t *testing.T) {
	assert := assert.New(t)

	ok := []Point{
		{ID: 0, Vector: []float32{1, 0}, Payload: Payload{Text: "a"}},
		{ID: 1, Vector: []float32{0, 1}, Payload: Payload{Text: "b"}},
	}
	assert.NoError(ValidatePoints(ok, 2))

	assert.ErrorIs(ValidatePoints(ok, 3), ErrInvalidVector)

	dup := append(ok, Point{ID: 1, Vector: []float32{1, 1}, Payload: Payload{Text: "c"}})
	assert.ErrorIs(ValidatePoints(dup, 2), ErrInvalidVector)

	empty := []Point{{ID: 0, Vector: []float32{1, 0}}}
	assert.ErrorIs(ValidatePoints(empty, 2), ErrInvalidPayload)
}

func TestParseDistance(t *testing.T) {
	d, err := ParseDistance("")
	require.NoError(t, err)
	assert.Equal(t, DistanceCosine, d)

	_, err = ParseDistance("dot")
	assert.ErrorIs(t, err, ErrUnknownDistance)
}
