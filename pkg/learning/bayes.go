package learning

import (
	"fmt"
	"math"
	"sort"
)

// NaiveBayes is a multinomial Naive Bayes classifier over weighted feature
// vectors. Feature magnitudes are treated as frequency-like evidence:
//
//	score(c) = log P(c) + Σ_j x_j · log θ_cj
//	θ_cj     = (Σ_{x ∈ c} x_j + α) / (Σ_{x ∈ c} Σ_k x_k + α·n)
//
// where α is the additive smoothing factor and n the vector dimension.
type NaiveBayes struct {
	smoothing float64

	trained        bool
	dims           int
	logPriors      [2]float64
	logLikelihoods [2][]float64
}

// NewNaiveBayes creates an untrained Naive Bayes classifier
func NewNaiveBayes(smoothing float64) (*NaiveBayes, error) {
	if !(smoothing > 0) || math.IsInf(smoothing, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSmoothing, smoothing)
	}
	return &NaiveBayes{smoothing: smoothing}, nil
}

func (nb *NaiveBayes) Kind() Kind {
	return KindNaiveBayes
}

// Smoothing returns the additive smoothing factor
func (nb *NaiveBayes) Smoothing() float64 {
	return nb.smoothing
}

// Train estimates priors and smoothed likelihoods. All previous state is
// replaced; on error the classifier is left untrained.
func (nb *NaiveBayes) Train(examples []LabelledVector) error {
	nb.trained = false

	dims, counts, err := validateExamples(examples, false)
	if err != nil {
		return err
	}

	var featureSums [2][]float64
	var totals [2]float64
	for _, label := range Labels {
		featureSums[label] = make([]float64, dims)
	}

	for _, ex := range examples {
		sums := featureSums[ex.Label]
		for j, v := range ex.Vector {
			sums[j] += v
			totals[ex.Label] += v
		}
	}

	total := float64(len(examples))
	var logPriors [2]float64
	var logLikelihoods [2][]float64
	for _, label := range Labels {
		logPriors[label] = math.Log(float64(counts[label]) / total)

		denominator := totals[label] + nb.smoothing*float64(dims)
		ll := make([]float64, dims)
		for j, sum := range featureSums[label] {
			ll[j] = math.Log((sum + nb.smoothing) / denominator)
		}
		logLikelihoods[label] = ll
	}

	nb.dims = dims
	nb.logPriors = logPriors
	nb.logLikelihoods = logLikelihoods
	nb.trained = true
	return nil
}

// LogPosteriors returns the unnormalised log posterior of each class
func (nb *NaiveBayes) LogPosteriors(vector []float64) ([2]float64, error) {
	var scores [2]float64
	if !nb.trained {
		return scores, ErrNotTrained
	}
	if len(vector) != nb.dims {
		return scores, fmt.Errorf("%w: got %d features, model has %d", ErrDimensionMismatch, len(vector), nb.dims)
	}

	for _, label := range Labels {
		score := nb.logPriors[label]
		ll := nb.logLikelihoods[label]
		for j, v := range vector {
			if v != 0 {
				score += v * ll[j]
			}
		}
		scores[label] = score
	}
	return scores, nil
}

// Classify returns the class with the larger log posterior. Equal scores
// classify as Ham.
func (nb *NaiveBayes) Classify(vector []float64) (Label, error) {
	scores, err := nb.LogPosteriors(vector)
	if err != nil {
		return Ham, err
	}
	if scores[Spam] > scores[Ham] {
		return Spam, nil
	}
	return Ham, nil
}

// RankedPositiveFeatures orders feature indices by log-likelihood ratio
// toward spam, strongest first.
func (nb *NaiveBayes) RankedPositiveFeatures() []int {
	return nb.rank(func(a, b float64) bool { return a > b })
}

// RankedNegativeFeatures orders feature indices by log-likelihood ratio
// toward ham, strongest first.
func (nb *NaiveBayes) RankedNegativeFeatures() []int {
	return nb.rank(func(a, b float64) bool { return a < b })
}

func (nb *NaiveBayes) rank(before func(a, b float64) bool) []int {
	if !nb.trained {
		return nil
	}

	ratios := make([]float64, nb.dims)
	indices := make([]int, nb.dims)
	for j := range ratios {
		ratios[j] = nb.logLikelihoods[Spam][j] - nb.logLikelihoods[Ham][j]
		indices[j] = j
	}

	sort.SliceStable(indices, func(a, b int) bool {
		ra, rb := ratios[indices[a]], ratios[indices[b]]
		if ra != rb {
			return before(ra, rb)
		}
		return indices[a] < indices[b]
	})
	return indices
}

// NaiveBayesState is the persisted form of a trained NaiveBayes
type NaiveBayesState struct {
	Smoothing      float64      `json:"smoothing"`
	Dimensions     int          `json:"dimensions"`
	LogPriors      [2]float64   `json:"log_priors"`
	LogLikelihoods [2][]float64 `json:"log_likelihoods"`
}

func (nb *NaiveBayes) state() (*NaiveBayesState, error) {
	if !nb.trained {
		return nil, ErrNotTrained
	}
	st := &NaiveBayesState{
		Smoothing:  nb.smoothing,
		Dimensions: nb.dims,
		LogPriors:  nb.logPriors,
	}
	for _, label := range Labels {
		st.LogLikelihoods[label] = append([]float64(nil), nb.logLikelihoods[label]...)
	}
	return st, nil
}

func naiveBayesFromState(st *NaiveBayesState) (*NaiveBayes, error) {
	nb, err := NewNaiveBayes(st.Smoothing)
	if err != nil {
		return nil, err
	}
	for _, label := range Labels {
		if len(st.LogLikelihoods[label]) != st.Dimensions {
			return nil, fmt.Errorf("%w: %s likelihoods have %d entries, expected %d",
				ErrDimensionMismatch, label, len(st.LogLikelihoods[label]), st.Dimensions)
		}
		nb.logLikelihoods[label] = append([]float64(nil), st.LogLikelihoods[label]...)
	}
	nb.dims = st.Dimensions
	nb.logPriors = st.LogPriors
	nb.trained = true
	return nb, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

var (
	_ Classifier    = (*NaiveBayes)(nil)
	_ FeatureRanker = (*NaiveBayes)(nil)
	_ Scorer        = (*NaiveBayes)(nil)
)
