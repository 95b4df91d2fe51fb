package learning

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyTrainingSet  = errors.New("training set is empty")
	ErrMissingClass      = errors.New("training set has no examples of a class")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrNegativeFeature   = errors.New("feature values must be finite and non-negative")
	ErrNotTrained        = errors.New("classifier not trained")
	ErrUnknownClassifier = errors.New("unknown classifier")
	ErrInvalidSmoothing  = errors.New("smoothing must be greater than zero")
)

// Label is the ground-truth or predicted class of an email
type Label int

const (
	Ham Label = iota
	Spam
)

// Labels lists every class in index order
var Labels = [...]Label{Ham, Spam}

func (l Label) String() string {
	switch l {
	case Ham:
		return "ham"
	case Spam:
		return "spam"
	default:
		return fmt.Sprintf("label(%d)", int(l))
	}
}

// ParseLabel parses "ham" or "spam" (case-insensitive)
func ParseLabel(s string) (Label, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ham":
		return Ham, nil
	case "spam":
		return Spam, nil
	default:
		return Ham, fmt.Errorf("invalid label %q", s)
	}
}

func (l Label) MarshalText() ([]byte, error) {
	if l != Ham && l != Spam {
		return nil, fmt.Errorf("invalid label %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *Label) UnmarshalText(text []byte) error {
	parsed, err := ParseLabel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// LabelledVector is a training example
type LabelledVector struct {
	Label  Label
	Vector []float64
}

// Kind identifies a concrete classifier variant
type Kind string

const (
	KindNaiveBayes      Kind = "naive_bayes"
	KindNearestCentroid Kind = "nearest_centroid"
)

// Classifier learns from labelled vectors and predicts labels for new ones.
// Implementations are immutable once Train returns successfully, so Classify
// may be called from many goroutines. Train itself must not run concurrently
// with any other method.
type Classifier interface {
	Kind() Kind
	Train(examples []LabelledVector) error
	Classify(vector []float64) (Label, error)
}

// FeatureRanker is implemented by classifiers that can rank feature indices
// by how strongly they point toward spam or ham. Most discriminative first.
type FeatureRanker interface {
	RankedPositiveFeatures() []int
	RankedNegativeFeatures() []int
}

// Scorer is implemented by classifiers that expose per-class log posteriors
type Scorer interface {
	LogPosteriors(vector []float64) ([2]float64, error)
}

// RankedPositiveFeatures returns the spam-leaning feature ranking, or false
// when the classifier variant does not support ranking.
func RankedPositiveFeatures(c Classifier) ([]int, bool) {
	r, ok := c.(FeatureRanker)
	if !ok {
		return nil, false
	}
	return r.RankedPositiveFeatures(), true
}

// RankedNegativeFeatures returns the ham-leaning feature ranking, or false
// when the classifier variant does not support ranking.
func RankedNegativeFeatures(c Classifier) ([]int, bool) {
	r, ok := c.(FeatureRanker)
	if !ok {
		return nil, false
	}
	return r.RankedNegativeFeatures(), true
}

// Options configures classifier construction
type Options struct {
	// Additive smoothing for Naive Bayes likelihoods
	Smoothing float64
}

// DefaultOptions returns Laplace smoothing
func DefaultOptions() Options {
	return Options{Smoothing: 1.0}
}

// New creates an untrained classifier of the given kind
func New(kind Kind, opts Options) (Classifier, error) {
	switch kind {
	case KindNaiveBayes:
		return NewNaiveBayes(opts.Smoothing)
	case KindNearestCentroid:
		return NewNearestCentroid(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownClassifier, kind)
	}
}

// ParseKind validates a classifier name from configuration
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindNaiveBayes, KindNearestCentroid:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownClassifier, s)
	}
}

// validateExamples checks shape and class coverage and returns the vector
// dimension plus per-class example counts.
func validateExamples(examples []LabelledVector, allowNegative bool) (int, [2]int, error) {
	var counts [2]int
	if len(examples) == 0 {
		return 0, counts, ErrEmptyTrainingSet
	}

	dims := len(examples[0].Vector)
	for i, ex := range examples {
		if ex.Label != Ham && ex.Label != Spam {
			return 0, counts, fmt.Errorf("example %d: invalid label %d", i, int(ex.Label))
		}
		if len(ex.Vector) != dims {
			return 0, counts, fmt.Errorf("%w: example %d has %d features, expected %d",
				ErrDimensionMismatch, i, len(ex.Vector), dims)
		}
		for j, v := range ex.Vector {
			if !isFinite(v) || (!allowNegative && v < 0) {
				return 0, counts, fmt.Errorf("%w: example %d feature %d = %v", ErrNegativeFeature, i, j, v)
			}
		}
		counts[ex.Label]++
	}

	for _, label := range Labels {
		if counts[label] == 0 {
			return 0, counts, fmt.Errorf("%w: no %s examples", ErrMissingClass, label)
		}
	}

	return dims, counts, nil
}
