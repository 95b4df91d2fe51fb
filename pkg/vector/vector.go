package vector

import (
	"fmt"
	"sort"

	"github.com/zpam/spamlearn/pkg/index"
	"github.com/zpam/spamlearn/pkg/weighting"
)

// Vocabulary is a frozen bijection between terms and feature columns.
// Columns follow lexicographic term order. Each term also keeps the document
// frequency it had in the training index. A Vocabulary is never mutated
// after construction and may be shared between goroutines.
type Vocabulary struct {
	terms   []string
	columns map[string]int
	df      []int
}

// NewVocabulary freezes the terms of a (possibly pruned) training index
func NewVocabulary(ix *index.Index) *Vocabulary {
	terms := ix.Terms()
	df := make([]int, len(terms))
	for i, term := range terms {
		df[i] = ix.DocumentFrequency(term)
	}
	return build(terms, df)
}

// RestoreVocabulary rebuilds a vocabulary from persisted columns
func RestoreVocabulary(terms []string, df []int) (*Vocabulary, error) {
	if len(terms) != len(df) {
		return nil, fmt.Errorf("vocabulary has %d terms but %d document frequencies", len(terms), len(df))
	}
	if !sort.StringsAreSorted(terms) {
		return nil, fmt.Errorf("vocabulary terms are not in lexicographic order")
	}
	for i := 1; i < len(terms); i++ {
		if terms[i] == terms[i-1] {
			return nil, fmt.Errorf("vocabulary term %q is duplicated", terms[i])
		}
	}
	return build(append([]string(nil), terms...), append([]int(nil), df...)), nil
}

func build(terms []string, df []int) *Vocabulary {
	columns := make(map[string]int, len(terms))
	for i, term := range terms {
		columns[term] = i
	}
	return &Vocabulary{terms: terms, columns: columns, df: df}
}

// Size is the feature-vector dimension
func (v *Vocabulary) Size() int {
	return len(v.terms)
}

// Index returns the column of term
func (v *Vocabulary) Index(term string) (int, bool) {
	i, ok := v.columns[term]
	return i, ok
}

func (v *Vocabulary) Contains(term string) bool {
	_, ok := v.columns[term]
	return ok
}

// Term returns the term at column i
func (v *Vocabulary) Term(i int) string {
	return v.terms[i]
}

// Terms returns a copy of the terms in column order
func (v *Vocabulary) Terms() []string {
	return append([]string(nil), v.terms...)
}

// DocumentFrequency returns the training document frequency of the term at column i
func (v *Vocabulary) DocumentFrequency(i int) int {
	return v.df[i]
}

// DocumentFrequencies returns a copy of the training document frequencies in column order
func (v *Vocabulary) DocumentFrequencies() []int {
	return append([]int(nil), v.df...)
}

// Stats are the corpus statistics captured from the training index before
// it is discarded.
type Stats struct {
	MaxRawCount   int
	DocumentCount int
}

// Builder turns the postings of one document into a dense feature vector.
// The same Builder serves training and inference vectors.
type Builder struct {
	Vocabulary *Vocabulary
	Weighting  weighting.Weighting
	Stats      Stats
	// DFSource chooses between training-time and index-local document frequency
	DFSource weighting.DFSource
}

// Build returns a vector of length Vocabulary.Size() for doc. Terms of ix
// that are not in the vocabulary are ignored.
func (b *Builder) Build(ix *index.Index, doc string) []float64 {
	vec := make([]float64, b.Vocabulary.Size())
	for _, term := range ix.Terms() {
		col, ok := b.Vocabulary.Index(term)
		if !ok {
			continue
		}
		count := ix.Count(term, doc)
		if count == 0 {
			continue
		}

		df := b.Vocabulary.DocumentFrequency(col)
		if b.DFSource == weighting.DFLocal {
			df = ix.DocumentFrequency(term)
		}

		vec[col] = b.Weighting.Weight(weighting.Posting{
			Count:             count,
			DocumentFrequency: df,
			MaxRawCount:       b.Stats.MaxRawCount,
			DocumentCount:     b.Stats.DocumentCount,
		})
	}
	return vec
}
