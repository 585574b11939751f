// Package chunker splits document text into fixed-size, overlapping chunks.
//
// Chunk boundaries and IDs are a pure function of (document ID, content,
// size, overlap): re-chunking unchanged content yields the same chunks, so
// a re-embedding job can overwrite them by position and resume after a
// partial failure.
package chunker

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/custodia-labs/paperdex/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// boundarySlack is how far back from a hard cut the chunker looks for whitespace.
const boundarySlack = 10

// chunkNamespace seeds the UUIDv5 chunk identifiers.
var chunkNamespace = uuid.MustParse("6f1c3a52-2d4b-4c55-9d7e-5b0f6a8e2c11")

// ChunkID returns the identifier of the chunk at position in a document.
func ChunkID(documentID int64, position int) string {
	name := strconv.FormatInt(documentID, 10) + ":" + strconv.Itoa(position)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

// Processor splits document content into fixed-size chunks.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Layout identifies the chunk boundaries this processor produces.
func (p *Processor) Layout() string {
	return strconv.Itoa(p.chunkSize) + "/" + strconv.Itoa(p.overlap)
}

// Split cuts content into chunks owned by documentID.
// Whitespace-only content produces no chunks.
func (p *Processor) Split(documentID int64, content string) []domain.Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	runes := []rune(content)
	n := len(runes)
	step := p.chunkSize - p.overlap

	chunks := make([]domain.Chunk, 0, n/step+1)
	position := 0
	start := 0

	for start < n {
		end := start + p.chunkSize
		if end >= n {
			end = n
		} else {
			end = snapToSpace(runes, start, end)
		}

		text := strings.TrimSpace(string(runes[start:end]))
		if text != "" {
			chunks = append(chunks, domain.Chunk{
				ID:         ChunkID(documentID, position),
				DocumentID: documentID,
				Position:   position,
				Content:    text,
			})
			position++
		}

		if end == n {
			break
		}
		next := end - p.overlap
		if next <= start {
			next = start + step
		}
		start = next
	}

	return chunks
}

// snapToSpace moves a cut back to the nearest whitespace so words are not split.
func snapToSpace(runes []rune, start, end int) int {
	for i := end; i > end-boundarySlack && i > start+1; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}
