package memory

import (
	"math"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

// BM25 parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "was": true, "were": true, "with": true,
}

// analyze lowercases, splits on non-alphanumerics, drops stop words and
// stems what is left with the English snowball stemmer.
func analyze(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	terms := make([]string, 0, len(words))
	for _, w := range words {
		if stopWords[w] {
			continue
		}
		terms = append(terms, english.Stem(w, false))
	}
	return terms
}

// termCounts is the analyzed form of one chunk, computed when it is written.
type termCounts struct {
	freq   map[string]int
	length int
}

func countTerms(text string) termCounts {
	terms := analyze(text)
	freq := make(map[string]int, len(terms))
	for _, t := range terms {
		freq[t]++
	}
	return termCounts{freq: freq, length: len(terms)}
}

// bm25 scores every indexed chunk against the query terms. Document
// frequencies are taken over the given set, so filters narrow the corpus.
func bm25(corpus []termCounts, queryTerms []string) []float64 {
	scores := make([]float64, len(corpus))
	if len(corpus) == 0 {
		return scores
	}

	var totalLen int
	for i := range corpus {
		totalLen += corpus[i].length
	}

	n := float64(len(corpus))
	avgLen := float64(totalLen) / n
	if avgLen == 0 {
		return scores
	}

	seen := make(map[string]bool, len(queryTerms))
	for _, term := range queryTerms {
		if seen[term] {
			continue
		}
		seen[term] = true

		var df float64
		for i := range corpus {
			if corpus[i].freq[term] > 0 {
				df++
			}
		}
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))

		for i := range corpus {
			tf := float64(corpus[i].freq[term])
			if tf == 0 {
				continue
			}
			docLen := float64(corpus[i].length)
			scores[i] += idf * tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*docLen/avgLen))
		}
	}

	return scores
}
