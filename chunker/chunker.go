// Package chunker splits documents into overlapping, size-bounded chunks.
//
// A chunk never exceeds the configured size in characters. Its end is placed
// on the largest text unit that still fits: a paragraph break, then a
// sentence or line break, then a word break, and only as a last resort a hard
// cut. The next chunk starts exactly overlap characters before the previous
// end, so the tail of chunk i is always the head of chunk i+1.
package chunker

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/flarexio/docrag/loader"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200

	MetaChunkIndex = "chunk_index"
)

var ErrInvalidConfig = errors.New("invalid chunking config")

// separator levels, largest unit first
var levels = [][][]rune{
	{[]rune("\n\n")},
	{[]rune(". "), []rune("! "), []rune("? "), []rune("\n")},
	{[]rune(" "), []rune("\t")},
}

type Chunk struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// Index returns the position of the chunk within its document.
func (c Chunk) Index() int {
	i, err := strconv.Atoi(c.Metadata[MetaChunkIndex])
	if err != nil {
		return -1
	}

	return i
}

type Chunker struct {
	size    int
	overlap int
}

func New(size, overlap int) (*Chunker, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}

	return &Chunker{size, overlap}, nil
}

// Validate reports whether size and overlap describe a terminating split.
func Validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, size)
	}

	if overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, overlap)
	}

	if overlap >= size {
		return fmt.Errorf("%w: overlap (%d) must be less than chunk size (%d)", ErrInvalidConfig, overlap, size)
	}

	return nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks every document in order. Each chunk carries the metadata of
// its document plus its index within that document.
func (c *Chunker) Split(docs []loader.Document) []Chunk {
	var chunks []Chunk
	for _, doc := range docs {
		for i, text := range c.SplitText(doc.Text) {
			metadata := make(map[string]string, len(doc.Metadata)+1)
			for k, v := range doc.Metadata {
				metadata[k] = v
			}

			metadata[MetaChunkIndex] = strconv.Itoa(i)

			chunks = append(chunks, Chunk{
				Text:     text,
				Metadata: metadata,
			})
		}
	}

	return chunks
}

func (c *Chunker) SplitText(text string) []string {
	runes := []rune(text)
	n := len(runes)

	if n == 0 {
		return nil
	}

	if n <= c.size {
		return []string{text}
	}

	var out []string

	start := 0
	for {
		if n-start <= c.size {
			out = append(out, string(runes[start:]))
			break
		}

		end := c.boundary(runes, start)
		out = append(out, string(runes[start:end]))

		// end > start+overlap, so start strictly advances
		start = end - c.overlap
	}

	return out
}

// boundary picks the end of the chunk beginning at start. The result lies in
// (start+overlap, start+size].
func (c *Chunker) boundary(runes []rune, start int) int {
	limit := start + c.size
	floor := start + c.overlap

	for _, level := range levels {
		best := -1
		for _, sep := range level {
			if end := lastBoundary(runes, sep, start, floor, limit); end > best {
				best = end
			}
		}

		if best > 0 {
			return best
		}
	}

	return limit
}

// lastBoundary returns the largest end in (floor, limit] where sep finishes
// at end and begins at or after start, or -1.
func lastBoundary(runes, sep []rune, start, floor, limit int) int {
	for end := limit; end > floor; end-- {
		begin := end - len(sep)
		if begin < start {
			return -1
		}

		if slices.Equal(runes[begin:end], sep) {
			return end
		}
	}

	return -1
}
