package index

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidPercentile is returned when a selection percentile lies outside [0, 1]
var ErrInvalidPercentile = errors.New("percentile must be within [0, 1]")

// Postings maps a document ID to the number of times a term occurs in it.
// Counts are always >= 1.
type Postings map[string]int

// DocumentFrequency returns the number of distinct documents in the postings
func (p Postings) DocumentFrequency() int {
	return len(p)
}

// Index is an inverted term-document index. It is not safe for concurrent
// mutation; build one per goroutine and Merge the results.
type Index struct {
	postings  map[string]Postings
	documents map[string]struct{}
}

// New creates an empty index
func New() *Index {
	return &Index{
		postings:  make(map[string]Postings),
		documents: make(map[string]struct{}),
	}
}

// Add increments the occurrence count of term in doc
func (ix *Index) Add(term, doc string) {
	p, ok := ix.postings[term]
	if !ok {
		p = make(Postings)
		ix.postings[term] = p
	}
	p[doc]++
	ix.documents[doc] = struct{}{}
}

// RegisterDocument records doc as part of the corpus even if it contributes
// no terms, so empty documents still count toward DocumentCount.
func (ix *Index) RegisterDocument(doc string) {
	ix.documents[doc] = struct{}{}
}

// DocumentFrequency returns the number of documents containing term
func (ix *Index) DocumentFrequency(term string) int {
	return len(ix.postings[term])
}

// Count returns the occurrences of term in doc, or 0
func (ix *Index) Count(term, doc string) int {
	return ix.postings[term][doc]
}

// Contains reports whether term survives in the index
func (ix *Index) Contains(term string) bool {
	_, ok := ix.postings[term]
	return ok
}

// Prune removes every term whose document frequency falls outside the
// inclusive range [minDF, maxDF] and returns how many terms were removed.
// Documents are never removed.
func (ix *Index) Prune(minDF, maxDF int) int {
	removed := 0
	for term, p := range ix.postings {
		df := len(p)
		if df < minDF || df > maxDF {
			delete(ix.postings, term)
			removed++
		}
	}
	return removed
}

// MaxRawCount returns the largest single posting count in the index, or 0
// when the index holds no terms.
func (ix *Index) MaxRawCount() int {
	max := 0
	for _, p := range ix.postings {
		for _, c := range p {
			if c > max {
				max = c
			}
		}
	}
	return max
}

// DocumentCount returns the number of documents seen by the index
func (ix *Index) DocumentCount() int {
	return len(ix.documents)
}

// TermCount returns the number of distinct terms
func (ix *Index) TermCount() int {
	return len(ix.postings)
}

// Terms returns all terms in lexicographic order
func (ix *Index) Terms() []string {
	terms := make([]string, 0, len(ix.postings))
	for term := range ix.postings {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// Documents returns all document IDs in lexicographic order
func (ix *Index) Documents() []string {
	docs := make([]string, 0, len(ix.documents))
	for doc := range ix.documents {
		docs = append(docs, doc)
	}
	sort.Strings(docs)
	return docs
}

// DocumentsOf returns the documents containing term in lexicographic order
func (ix *Index) DocumentsOf(term string) []string {
	p := ix.postings[term]
	docs := make([]string, 0, len(p))
	for doc := range p {
		docs = append(docs, doc)
	}
	sort.Strings(docs)
	return docs
}

// PostingsOf returns a copy of the postings of term, or nil if absent
func (ix *Index) PostingsOf(term string) Postings {
	p, ok := ix.postings[term]
	if !ok {
		return nil
	}
	out := make(Postings, len(p))
	for doc, c := range p {
		out[doc] = c
	}
	return out
}

// Merge adds every posting and document of other into ix. Merging is
// commutative: the result does not depend on merge order.
func (ix *Index) Merge(other *Index) {
	for term, op := range other.postings {
		p, ok := ix.postings[term]
		if !ok {
			p = make(Postings, len(op))
			ix.postings[term] = p
		}
		for doc, c := range op {
			p[doc] += c
		}
	}
	for doc := range other.documents {
		ix.documents[doc] = struct{}{}
	}
}

// ValidatePercentile checks that p lies within [0, 1]
func ValidatePercentile(p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidPercentile, p)
	}
	return nil
}

// PruneBounds converts selection percentiles into absolute document
// frequency bounds floor(p * documentCount).
func PruneBounds(lower, upper float64, documentCount int) (int, int, error) {
	if err := ValidatePercentile(lower); err != nil {
		return 0, 0, fmt.Errorf("lower %w", err)
	}
	if err := ValidatePercentile(upper); err != nil {
		return 0, 0, fmt.Errorf("upper %w", err)
	}
	n := float64(documentCount)
	return int(math.Floor(lower * n)), int(math.Floor(upper * n)), nil
}
