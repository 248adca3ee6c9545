package services

import "errors"

// ErrInvalidChunking indicates a bad size/overlap configuration. This is a
// programmer error and fatal at startup.
var ErrInvalidChunking = errors.New("invalid chunking configuration: require size > overlap >= 0")

// Chunker splits extracted text into bounded overlapping segments for
// embedding. Each segment after the first begins with the last `overlap`
// characters of its predecessor, so dropping that prefix from every segment
// after the first reassembles the original text exactly.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 || overlap < 0 || size <= overlap {
		return nil, ErrInvalidChunking
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Chunk produces the ordered segment sequence. Empty input yields an empty
// sequence; the final segment may be shorter than the configured size.
// Size and overlap count code points, never bytes: a multi-byte character
// is never split across a boundary, so every chunk is valid UTF-8.
func (c *Chunker) Chunk(text string) []string {
	if text == "" {
		return []string{}
	}

	runes := []rune(text)
	step := c.size - c.overlap
	var chunks []string
	for start := 0; ; start += step {
		end := start + c.size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
