// Package crossval estimates classifier quality with k-fold cross-validation.
// Every fold trains a fresh model on the remaining folds only, so nothing
// from the held-out documents reaches the vocabulary or the model.
package crossval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/zpam/spamlearn/pkg/corpus"
	"github.com/zpam/spamlearn/pkg/filter"
	"github.com/zpam/spamlearn/pkg/index"
	"github.com/zpam/spamlearn/pkg/learning"
	"github.com/zpam/spamlearn/pkg/logger"
	"github.com/zpam/spamlearn/pkg/metrics"
)

// ErrInvalidFoldCount is returned when k is below 2 or exceeds the number of documents
var ErrInvalidFoldCount = errors.New("invalid fold count")

// Model is a trainable classifier evaluated on one fold
type Model interface {
	Train(ctx context.Context, docs []corpus.Document, lower, upper float64) error
	Classify(ctx context.Context, doc corpus.Document) (learning.Label, error)
}

// Factory creates an untrained model for each fold
type Factory func() Model

// Partition splits items into k disjoint folds whose union is items.
// Item i goes to fold i mod k, so when len(items) is not a multiple of k the
// first len(items) mod k folds hold one extra item.
func Partition[T any](items []T, k int) ([][]T, error) {
	if k < 2 || k > len(items) {
		return nil, fmt.Errorf("%w: k=%d with %d documents", ErrInvalidFoldCount, k, len(items))
	}
	folds := make([][]T, k)
	for i, item := range items {
		folds[i%k] = append(folds[i%k], item)
	}
	return folds, nil
}

// FoldResult is the outcome of one held-out evaluation
type FoldResult struct {
	Fold      int             `json:"fold"`
	TrainSize int             `json:"train_size"`
	TestSize  int             `json:"test_size"`
	Matrix    ConfusionMatrix `json:"matrix"`
	Accuracy  float64         `json:"accuracy"`
	Duration  time.Duration   `json:"duration"`
}

// Report aggregates every fold of an evaluation run
type Report struct {
	RunID        string          `json:"run_id"`
	K            int             `json:"k"`
	Documents    int             `json:"documents"`
	Folds        []FoldResult    `json:"folds"`
	Combined     ConfusionMatrix `json:"combined"`
	MeanAccuracy float64         `json:"mean_accuracy"`
	// StdDev is the population standard deviation of per-fold accuracy
	StdDev    float64       `json:"std_dev"`
	CreatedAt time.Time     `json:"created_at"`
	Duration  time.Duration `json:"duration"`
}

// Print writes per-fold accuracy, the combined matrix and the dispersion
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Cross-validation run %s (%d folds, %d documents)\n", r.RunID, r.K, r.Documents)
	for _, f := range r.Folds {
		fmt.Fprintf(w, "  fold %2d: train=%d test=%d accuracy=%.4f (%v)\n",
			f.Fold, f.TrainSize, f.TestSize, f.Accuracy, f.Duration.Round(time.Millisecond))
	}
	fmt.Fprintln(w)
	r.Combined.Print(w)
	fmt.Fprintf(w, "Mean accuracy: %.4f\n", r.MeanAccuracy)
	fmt.Fprintf(w, "StdDev: %f\n", r.StdDev)
}

// Validator runs k-fold cross-validation
type Validator struct {
	factory     Factory
	lower       float64
	upper       float64
	shuffle     bool
	seed        int64
	concurrency int
	log         *logrus.Entry
	metrics     *metrics.Metrics
}

// Option customises a Validator
type Option func(*Validator)

// WithPercentiles sets the selection percentiles used by every fold's training
func WithPercentiles(lower, upper float64) Option {
	return func(v *Validator) {
		v.lower = lower
		v.upper = upper
	}
}

// WithShuffle shuffles documents with a fixed seed before partitioning
func WithShuffle(seed int64) Option {
	return func(v *Validator) {
		v.shuffle = true
		v.seed = seed
	}
}

// WithConcurrency bounds the number of folds evaluated at once
func WithConcurrency(n int) Option {
	return func(v *Validator) { v.concurrency = n }
}

func WithLogger(log *logrus.Entry) Option {
	return func(v *Validator) { v.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Validator) { v.metrics = m }
}

// NewValidator creates a validator that trains models built by factory
func NewValidator(factory Factory, options ...Option) *Validator {
	v := &Validator{
		factory:     factory,
		lower:       filter.DefaultLowerPercentile,
		upper:       filter.DefaultUpperPercentile,
		concurrency: 1,
	}
	for _, o := range options {
		o(v)
	}
	if v.concurrency < 1 {
		v.concurrency = 1
	}
	v.log = logger.OrDiscard(v.log, "crossval")
	return v
}

// Evaluate partitions docs into k folds and evaluates each fold against a
// model trained on the other k-1. Any fold failure aborts the run.
func (v *Validator) Evaluate(ctx context.Context, docs []corpus.Document, k int) (*Report, error) {
	if err := index.ValidatePercentile(v.lower); err != nil {
		return nil, fmt.Errorf("lower %w", err)
	}
	if err := index.ValidatePercentile(v.upper); err != nil {
		return nil, fmt.Errorf("upper %w", err)
	}

	ordered := append([]corpus.Document(nil), docs...)
	if v.shuffle {
		rng := rand.New(rand.NewSource(v.seed))
		rng.Shuffle(len(ordered), func(i, j int) { ordered[i], ordered[j] = ordered[j], ordered[i] })
	}

	folds, err := Partition(ordered, k)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     ulid.Make().String(),
		K:         k,
		Documents: len(docs),
		Folds:     make([]FoldResult, k),
		CreatedAt: time.Now().UTC(),
	}
	log := v.log.WithField("run_id", report.RunID)
	log.WithFields(logrus.Fields{"folds": k, "documents": len(docs)}).Info("starting cross-validation")

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for f := range folds {
		g.Go(func() error {
			res, err := v.runFold(gctx, folds, f)
			if err != nil {
				return fmt.Errorf("fold %d: %w", f, err)
			}
			report.Folds[f] = res
			log.WithFields(logrus.Fields{
				"fold":     f,
				"accuracy": res.Accuracy,
				"elapsed":  res.Duration,
			}).Debug("fold evaluated")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.WithError(err).Warn("cross-validation failed")
		return nil, err
	}
	report.Duration = time.Since(start)

	accuracies := make([]float64, k)
	for i, f := range report.Folds {
		report.Combined.Merge(f.Matrix)
		accuracies[i] = f.Accuracy
		v.metrics.SetFoldAccuracy(strconv.Itoa(i), f.Accuracy)
	}
	report.MeanAccuracy, report.StdDev = meanStdDev(accuracies)
	v.metrics.SetEvaluationAccuracy(report.MeanAccuracy)

	log.WithFields(logrus.Fields{
		"accuracy": report.Combined.Accuracy(),
		"std_dev":  report.StdDev,
		"elapsed":  report.Duration,
	}).Info("cross-validation complete")
	return report, nil
}

func (v *Validator) runFold(ctx context.Context, folds [][]corpus.Document, held int) (FoldResult, error) {
	start := time.Now()

	var train []corpus.Document
	for f, fold := range folds {
		if f != held {
			train = append(train, fold...)
		}
	}

	m := v.factory()
	if err := m.Train(ctx, train, v.lower, v.upper); err != nil {
		return FoldResult{}, err
	}

	res := FoldResult{Fold: held, TrainSize: len(train), TestSize: len(folds[held])}
	for _, doc := range folds[held] {
		predicted, err := m.Classify(ctx, doc)
		if err != nil {
			return FoldResult{}, err
		}
		res.Matrix.Add(doc.Label, predicted)
	}
	res.Accuracy = res.Matrix.Accuracy()
	res.Duration = time.Since(start)
	return res, nil
}

// meanStdDev returns the mean and population standard deviation of xs
func meanStdDev(xs []float64) (mean, stddev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}
