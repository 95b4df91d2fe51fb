package weighting

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnknownWeighting is returned for an unrecognised weighting or DF source name
var ErrUnknownWeighting = errors.New("unknown weighting")

// Posting carries the statistics needed to weight one (term, document) pair
type Posting struct {
	// Count is the raw occurrences of the term in the document
	Count int
	// DocumentFrequency is the number of corpus documents containing the term
	DocumentFrequency int
	// MaxRawCount is the largest posting count across the corpus
	MaxRawCount int
	// DocumentCount is the number of documents in the corpus
	DocumentCount int
}

// Kind tags a weighting strategy in configuration and persisted models
type Kind string

const (
	KindFrequency Kind = "frequency"
	KindTFIDF     Kind = "tfidf"
)

// Weighting maps a posting and corpus statistics to a feature value.
// Implementations are stateless.
type Weighting interface {
	Kind() Kind
	Weight(p Posting) float64
}

// Frequency weights a term by its raw count normalised against the largest
// count in the corpus.
type Frequency struct{}

func (Frequency) Kind() Kind { return KindFrequency }

func (Frequency) Weight(p Posting) float64 {
	return normalisedCount(p)
}

// TFIDF scales the normalised count by log(documentCount / documentFrequency).
// Terms present in every document weigh zero.
type TFIDF struct{}

func (TFIDF) Kind() Kind { return KindTFIDF }

func (TFIDF) Weight(p Posting) float64 {
	if p.DocumentFrequency <= 0 || p.DocumentCount <= 0 {
		return 0
	}
	idf := math.Log(float64(p.DocumentCount) / float64(p.DocumentFrequency))
	return normalisedCount(p) * idf
}

func normalisedCount(p Posting) float64 {
	if p.MaxRawCount <= 0 || p.Count <= 0 {
		return 0
	}
	return float64(p.Count) / float64(p.MaxRawCount)
}

// New returns the weighting strategy for kind
func New(kind Kind) (Weighting, error) {
	switch kind {
	case KindFrequency:
		return Frequency{}, nil
	case KindTFIDF:
		return TFIDF{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownWeighting, kind)
	}
}

// ParseKind validates a weighting name from configuration
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindFrequency, KindTFIDF:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownWeighting, s)
	}
}

// DFSource selects where document frequency comes from when building an
// inference vector.
type DFSource string

const (
	// DFTraining uses the per-term document frequency frozen at training time
	DFTraining DFSource = "training"
	// DFLocal uses the document frequency of the document-local index, which
	// is always 1 for a present term
	DFLocal DFSource = "local"
)

// ParseDFSource validates a DF source name from configuration
func ParseDFSource(s string) (DFSource, error) {
	switch DFSource(s) {
	case DFTraining, DFLocal:
		return DFSource(s), nil
	default:
		return "", fmt.Errorf("%w: df source %q", ErrUnknownWeighting, s)
	}
}

var (
	_ Weighting = Frequency{}
	_ Weighting = TFIDF{}
)
