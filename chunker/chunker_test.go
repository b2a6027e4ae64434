package chunker

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flarexio/docrag/loader"
)

func sampleTexts() []string {
	words := []string{"cats", "dogs", "are", "mammals", "zebra", "über", "naïve", "日本語", "and", "too"}
	seps := []string{" ", " ", " ", ". ", "\n", "\n\n", "! ", "\t", ""}

	rng := rand.New(rand.NewSource(42))

	texts := []string{
		"",
		"short",
		"Cats are mammals. Dogs are mammals too.",
		strings.Repeat("x", 2500),
	}

	for i := 0; i < 20; i++ {
		var sb strings.Builder
		n := 50 + rng.Intn(400)
		for j := 0; j < n; j++ {
			sb.WriteString(words[rng.Intn(len(words))])
			sb.WriteString(seps[rng.Intn(len(seps))])
		}
		texts = append(texts, sb.String())
	}

	return texts
}

func TestValidate(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(Validate(1000, 200))
	assert.NoError(Validate(10, 0))
	assert.ErrorIs(Validate(0, 0), ErrInvalidConfig)
	assert.ErrorIs(Validate(10, -1), ErrInvalidConfig)
	assert.ErrorIs(Validate(20, 20), ErrInvalidConfig)
	assert.ErrorIs(Validate(20, 25), ErrInvalidConfig)

	_, err := New(5, 5)
	assert.ErrorIs(err, ErrInvalidConfig)
}

func TestShortDocumentIsOneChunk(t *testing.T) {
	c, err := New(100, 20)
	require.NoError(t, err)

	text := "  Cats are mammals.\n\n"
	assert.Equal(t, []string{text}, c.SplitText(text))
}

func TestEmptyDocumentHasNoChunks(t *testing.T) {
	c, err := New(100, 20)
	require.NoError(t, err)

	assert.Empty(t, c.SplitText(""))
}

func TestScenarioCatsAndDogs(t *testing.T) {
	assert := assert.New(t)

	c, err := New(20, 5)
	require.NoError(t, err)

	chunks := c.SplitText("Cats are mammals. Dogs are mammals too.")
	require.GreaterOrEqual(t, len(chunks), 2)

	assert.Equal("Cats are mammals. ", chunks[0])
	assert.True(strings.HasPrefix(chunks[1], "als. "))
	assert.Equal("als. Dogs are ", chunks[1])
	assert.Equal(" are mammals too.", chunks[2])
}

func TestParagraphBreakPreferred(t *testing.T) {
	c, err := New(40, 5)
	require.NoError(t, err)

	text := "First para. Still first.\n\nSecond paragraph goes on and on."
	chunks := c.SplitText(text)

	require.NotEmpty(t, chunks)
	assert.Equal(t, "First para. Still first.\n\n", chunks[0])
}

func TestHardCutWithoutSeparators(t *testing.T) {
	c, err := New(10, 3)
	require.NoError(t, err)

	chunks := c.SplitText(strings.Repeat("a", 25))
	assert.Equal(t, []string{
		strings.Repeat("a", 10),
		strings.Repeat("a", 10),
		strings.Repeat("a", 10),
		strings.Repeat("a", 4),
	}, chunks)
}

func TestChunkProperties(t *testing.T) {
	configs := [][2]int{{20, 5}, {50, 0}, {100, 30}, {1000, 200}, {7, 6}}

	for _, cfg := range configs {
		c, err := New(cfg[0], cfg[1])
		require.NoError(t, err)

		for _, text := range sampleTexts() {
			chunks := c.SplitText(text)

			// determinism
			assert.Equal(t, chunks, c.SplitText(text))

			if text == "" {
				assert.Empty(t, chunks)
				continue
			}

			var rebuilt strings.Builder
			for i, chunk := range chunks {
				runes := []rune(chunk)
				assert.LessOrEqual(t, len(runes), c.Size())

				if i == 0 {
					rebuilt.WriteString(chunk)
					continue
				}

				// overlap invariant
				prev := []rune(chunks[i-1])
				tail := string(prev[len(prev)-c.Overlap():])
				assert.True(t, strings.HasPrefix(chunk, tail),
					"size=%d overlap=%d chunk %d does not start with %q", c.Size(), c.Overlap(), i, tail)

				rebuilt.WriteString(string(runes[c.Overlap():]))
			}

			// coverage
			assert.Equal(t, text, rebuilt.String())
			assert.True(t, utf8.ValidString(rebuilt.String()))
		}
	}
}

func TestSplitKeepsMetadata(t *testing.T) {
	assert := assert.New(t)

	c, err := New(20, 5)
	require.NoError(t, err)

	docs := []loader.Document{
		{
			Text:     "Cats are mammals. Dogs are mammals too.",
			Metadata: map[string]string{loader.MetaSource: "/data/a.txt"},
		},
		{
			Text:     "Birds fly.",
			Metadata: map[string]string{loader.MetaSource: "/data/b.txt"},
		},
	}

	chunks := c.Split(docs)
	require.Len(t, chunks, 4)

	for i := 0; i < 3; i++ {
		assert.Equal("/data/a.txt", chunks[i].Metadata[loader.MetaSource])
		assert.Equal(i, chunks[i].Index())
	}

	assert.Equal("/data/b.txt", chunks[3].Metadata[loader.MetaSource])
	assert.Equal(0, chunks[3].Index())
	assert.Equal("Birds fly.", chunks[3].Text)

	// the document metadata must not be mutated
	assert.NotContains(docs[0].Metadata, MetaChunkIndex)
}
