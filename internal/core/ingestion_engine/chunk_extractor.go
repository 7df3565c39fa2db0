package ingestion_engine

import (
	"fmt"

	"github.com/markdave123-py/docvault/internal/core"
)

// Default chunker policy, in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunk splits text into fixed-width windows of size characters with stride
// size-overlap, starting at offset 0 and stopping once the start offset
// reaches len(text). The last window takes whatever remains and may be
// shorter than size. Windows are cut on rune boundaries, so a character is
// never split across chunks.
//
// Empty text yields no chunks.
func Chunk(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", core.ErrInvalidInput, size)
	}
	if overlap <= 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in (0, %d), got %d", core.ErrInvalidInput, size, overlap)
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	stride := size - overlap
	out := make([]string, 0, (len(runes)+stride-1)/stride)
	for start := 0; start < len(runes); start += stride {
		end := min(start+size, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out, nil
}

// Chunker carries a validated size/overlap policy.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker validates the policy once so Split cannot fail later.
func NewChunker(size, overlap int) (*Chunker, error) {
	if _, err := Chunk("", size, overlap); err != nil {
		return nil, err
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split applies the policy to text.
func (c *Chunker) Split(text string) []string {
	out, _ := Chunk(text, c.size, c.overlap)
	return out
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }
