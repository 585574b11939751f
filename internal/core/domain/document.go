package domain

import "time"

// Document represents one scientific paper.
// It is the unit returned to end users; chunks reference it, never the reverse.
type Document struct {
	// ID is the stable integer identifier of the paper.
	ID int64

	// Title is the human-readable title.
	Title string

	// Content is the full extracted text of the paper.
	Content string

	// LiteratureType tags the kind of literature (article, review, thesis, ...).
	LiteratureType string

	// SearchSpaceID is the owning collection.
	SearchSpaceID int64

	// CreatedAt is when the document was first ingested.
	CreatedAt time.Time

	// UpdatedAt is when the document content last changed.
	UpdatedAt time.Time
}

// DocumentMetadata is the subset of a document needed to index its chunks.
type DocumentMetadata struct {
	ID             int64
	Title          string
	LiteratureType string
	SearchSpaceID  int64
	UpdatedAt      time.Time
}

// Metadata returns the indexing metadata of the document.
func (d *Document) Metadata() DocumentMetadata {
	return DocumentMetadata{
		ID:             d.ID,
		Title:          d.Title,
		LiteratureType: d.LiteratureType,
		SearchSpaceID:  d.SearchSpaceID,
		UpdatedAt:      d.UpdatedAt,
	}
}

// Chunk is a contiguous slice of a document's text with its embedding.
// Chunks are immutable once written; re-embedding overwrites them by position.
type Chunk struct {
	// ID is derived from (DocumentID, Position) so overwrites hit the same row.
	ID string

	// DocumentID links to the parent Document.
	DocumentID int64

	// Position is the ordinal position within the document.
	Position int

	// Content is the text content of this chunk.
	Content string

	// Embedding is the vector representation for semantic search.
	Embedding []float32

	// CreatedAt is when the chunk was written.
	CreatedAt time.Time
}

// ChunkInput is a (text, vector) pair handed to a full chunk replacement.
type ChunkInput struct {
	Content   string
	Embedding []float32
}
