package services

import (
	"math"
	"sort"

	"github.com/custodia-labs/paperdex/internal/core/ports/driven"
)

// Blend weights for a chunk found by both retrieval modes.
const (
	VectorWeight  = 0.6
	LexicalWeight = 0.4
)

// Candidate sources.
const (
	sourceVector  = "vector"
	sourceLexical = "lexical"
)

// candidate is one chunk after normalisation and blending.
type candidate struct {
	chunkID    string
	documentID int64
	position   int
	content    string
	score      float64
	sources    []string
}

// rankedDocument is one document with its best-scoring chunk.
type rankedDocument struct {
	documentID int64
	best       candidate
}

// vectorSimilarity converts a cosine distance into a similarity in [0,1].
func vectorSimilarity(distance float64) float64 {
	return clamp01(1 - distance)
}

// normaliseLexical min-max normalises ranks across one result set.
// A set whose ranks are all equal maps every hit to 1.
func normaliseLexical(hits []driven.LexicalHit) map[string]float64 {
	scores := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return scores
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range hits {
		lo = math.Min(lo, hits[i].Rank)
		hi = math.Max(hi, hits[i].Rank)
	}

	span := hi - lo
	for i := range hits {
		s := 1.0
		if span > 0 {
			s = (hits[i].Rank - lo) / span
		}
		if prev, ok := scores[hits[i].ChunkID]; !ok || s > prev {
			scores[hits[i].ChunkID] = s
		}
	}
	return scores
}

// mergeCandidates blends vector and lexical hits per chunk. A chunk found by
// both modes scores VectorWeight*vector + LexicalWeight*lexical; a chunk found
// by one mode keeps that mode's normalised score. The result does not depend
// on which search finished first.
func mergeCandidates(vectorHits []driven.VectorHit, lexicalHits []driven.LexicalHit) []candidate {
	byChunk := make(map[string]*candidate, len(vectorHits)+len(lexicalHits))
	vectorScores := make(map[string]float64, len(vectorHits))

	for i := range vectorHits {
		h := vectorHits[i]
		s := vectorSimilarity(h.Distance)
		if prev, ok := vectorScores[h.ChunkID]; ok && prev >= s {
			continue
		}
		vectorScores[h.ChunkID] = s
		byChunk[h.ChunkID] = &candidate{
			chunkID:    h.ChunkID,
			documentID: h.DocumentID,
			position:   h.Position,
			content:    h.Content,
			score:      s,
			sources:    []string{sourceVector},
		}
	}

	lexicalScores := normaliseLexical(lexicalHits)
	for i := range lexicalHits {
		h := lexicalHits[i]
		ls := lexicalScores[h.ChunkID]
		c, ok := byChunk[h.ChunkID]
		if !ok {
			byChunk[h.ChunkID] = &candidate{
				chunkID:    h.ChunkID,
				documentID: h.DocumentID,
				position:   h.Position,
				content:    h.Content,
				score:      ls,
				sources:    []string{sourceLexical},
			}
			continue
		}
		if hasSource(c.sources, sourceLexical) {
			continue
		}
		c.score = VectorWeight*vectorScores[h.ChunkID] + LexicalWeight*ls
		c.sources = append(c.sources, sourceLexical)
	}

	out := make([]candidate, 0, len(byChunk))
	for _, c := range byChunk {
		out = append(out, *c)
	}
	return out
}

// rankDocuments groups candidates by document, keeps each document's best
// chunk, and orders documents by descending score with ascending document ID
// breaking ties.
func rankDocuments(cands []candidate, exclude *int64) []rankedDocument {
	best := make(map[int64]candidate, len(cands))
	for _, c := range cands {
		if exclude != nil && c.documentID == *exclude {
			continue
		}
		cur, ok := best[c.documentID]
		if !ok || betterChunk(c, cur) {
			best[c.documentID] = c
		}
	}

	ranked := make([]rankedDocument, 0, len(best))
	for id, c := range best {
		ranked = append(ranked, rankedDocument{documentID: id, best: c})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].best.score != ranked[j].best.score {
			return ranked[i].best.score > ranked[j].best.score
		}
		return ranked[i].documentID < ranked[j].documentID
	})

	return ranked
}

// betterChunk orders chunks of one document: higher score, then earlier position.
func betterChunk(a, b candidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.position != b.position {
		return a.position < b.position
	}
	return a.chunkID < b.chunkID
}

func hasSource(sources []string, source string) bool {
	for _, s := range sources {
		if s == source {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
