package filter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/zpam/spamlearn/pkg/config"
	"github.com/zpam/spamlearn/pkg/corpus"
	"github.com/zpam/spamlearn/pkg/email"
	"github.com/zpam/spamlearn/pkg/index"
	"github.com/zpam/spamlearn/pkg/learning"
	"github.com/zpam/spamlearn/pkg/logger"
	"github.com/zpam/spamlearn/pkg/metrics"
	"github.com/zpam/spamlearn/pkg/profiler"
	"github.com/zpam/spamlearn/pkg/text"
	"github.com/zpam/spamlearn/pkg/vector"
	"github.com/zpam/spamlearn/pkg/weighting"
)

// ErrNotTrained is returned when classifying before a successful Train
var ErrNotTrained = errors.New("email classifier not trained")

// ErrDuplicateDocument is returned when a training set repeats a document ID
var ErrDuplicateDocument = errors.New("duplicate document")

// Default selection percentiles
const (
	DefaultLowerPercentile = 0.001
	DefaultUpperPercentile = 0.50
)

// Options configures the training pipeline
type Options struct {
	Classifier        learning.Kind
	Smoothing         float64
	Weighting         weighting.Kind
	DFSource          weighting.DFSource
	TextPreProcessing bool
	FeatureSelection  bool
	// Workers bounds parallel document indexing
	Workers int
	// Parser must match the options of the source that reads training mail;
	// it is persisted so restored models tokenise the same way
	Parser email.Options
}

// DefaultOptions returns Naive Bayes over frequency weights with text
// pre-processing and feature selection enabled
func DefaultOptions() Options {
	return Options{
		Classifier:        learning.KindNaiveBayes,
		Smoothing:         1.0,
		Weighting:         weighting.KindFrequency,
		DFSource:          weighting.DFTraining,
		TextPreProcessing: true,
		FeatureSelection:  true,
		Workers:           runtime.NumCPU(),
		Parser:            email.DefaultOptions(),
	}
}

// OptionsFromConfig converts the learning section of a configuration
func OptionsFromConfig(cfg config.LearningConfig) (Options, error) {
	kind, err := learning.ParseKind(cfg.Classifier)
	if err != nil {
		return Options{}, err
	}
	w, err := weighting.ParseKind(cfg.Weighting)
	if err != nil {
		return Options{}, err
	}
	src, err := weighting.ParseDFSource(cfg.DFSource)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Classifier:        kind,
		Smoothing:         cfg.Smoothing,
		Weighting:         w,
		DFSource:          src,
		TextPreProcessing: cfg.TextPreProcessing,
		FeatureSelection:  cfg.FeatureSelection,
		Workers:           cfg.Workers,
		Parser:            email.DefaultOptions(),
	}, nil
}

// Option customises an EmailClassifier
type Option func(*EmailClassifier)

// WithLogger sets the component logger
func WithLogger(log *logrus.Entry) Option {
	return func(c *EmailClassifier) { c.log = log }
}

// WithMetrics records training and classification metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *EmailClassifier) { c.metrics = m }
}

// WithProfiler records per-stage training durations
func WithProfiler(p *profiler.Profiler) Option {
	return func(c *EmailClassifier) { c.profiler = p }
}

// WithNormalizer replaces the default term normalizer
func WithNormalizer(n *text.Normalizer) Option {
	return func(c *EmailClassifier) { c.normalizer = n }
}

// EmailClassifier turns documents into weighted term vectors and classifies
// them as ham or spam. It is Untrained until Train succeeds; every Train
// rebuilds the vocabulary and model from scratch, and a failed Train leaves
// it Untrained. Classification is safe for concurrent use.
type EmailClassifier struct {
	opts       Options
	source     corpus.Source
	normalizer *text.Normalizer
	log        *logrus.Entry
	metrics    *metrics.Metrics
	profiler   *profiler.Profiler

	trainMu sync.Mutex

	mu    sync.RWMutex
	state *trainedState
}

// trainedState is immutable once published
type trainedState struct {
	id         string
	trainedAt  time.Time
	builder    *vector.Builder
	classifier learning.Classifier
}

// New creates an untrained classifier reading documents through source
func New(opts Options, source corpus.Source, options ...Option) *EmailClassifier {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	c := &EmailClassifier{
		opts:       opts,
		source:     source,
		normalizer: text.NewNormalizer(),
	}
	for _, o := range options {
		o(c)
	}
	c.log = logger.OrDiscard(c.log, "filter")
	return c
}

// Options returns the pipeline configuration
func (c *EmailClassifier) Options() Options {
	return c.opts
}

// Normalizer returns the term normalizer in use
func (c *EmailClassifier) Normalizer() *text.Normalizer {
	return c.normalizer
}

// Train builds the vocabulary and model from docs. Percentiles must lie in
// [0, 1] and are checked before any document is read.
func (c *EmailClassifier) Train(ctx context.Context, docs []corpus.Document, lower, upper float64) (err error) {
	if err := index.ValidatePercentile(lower); err != nil {
		return fmt.Errorf("lower %w", err)
	}
	if err := index.ValidatePercentile(upper); err != nil {
		return fmt.Errorf("upper %w", err)
	}

	c.trainMu.Lock()
	defer c.trainMu.Unlock()

	c.mu.Lock()
	c.state = nil
	c.mu.Unlock()

	start := time.Now()
	var vocabSize int
	defer func() {
		c.metrics.ObserveTraining(time.Since(start), vocabSize, err)
		if err != nil {
			c.log.WithError(err).Warn("training failed")
		}
	}()

	if err := checkDuplicates(docs); err != nil {
		return err
	}

	timer := c.profiler.Start("index")
	ix, err := c.buildIndex(ctx, docs)
	timer.Stop()
	if err != nil {
		return err
	}
	c.metrics.AddDocumentsIndexed(len(docs))

	if c.opts.FeatureSelection {
		timer = c.profiler.Start("prune")
		minDF, maxDF, err := index.PruneBounds(lower, upper, ix.DocumentCount())
		if err != nil {
			timer.Stop()
			return err
		}
		before := ix.TermCount()
		removed := ix.Prune(minDF, maxDF)
		timer.Stop()
		c.log.WithFields(logrus.Fields{
			"min_df":  minDF,
			"max_df":  maxDF,
			"terms":   before,
			"removed": removed,
		}).Debug("pruned index")
	}

	w, err := weighting.New(c.opts.Weighting)
	if err != nil {
		return err
	}

	vocab := vector.NewVocabulary(ix)
	builder := &vector.Builder{
		Vocabulary: vocab,
		Weighting:  w,
		Stats: vector.Stats{
			MaxRawCount:   ix.MaxRawCount(),
			DocumentCount: ix.DocumentCount(),
		},
		DFSource: c.opts.DFSource,
	}
	vocabSize = vocab.Size()
	if vocabSize == 0 {
		c.log.Warn("vocabulary is empty; predictions will follow class priors")
	}

	timer = c.profiler.Start("vectors")
	examples := make([]learning.LabelledVector, len(docs))
	for i, doc := range docs {
		examples[i] = learning.LabelledVector{
			Label:  doc.Label,
			Vector: builder.Build(ix, doc.ID),
		}
	}
	timer.Stop()

	cls, err := learning.New(c.opts.Classifier, learning.Options{Smoothing: c.opts.Smoothing})
	if err != nil {
		return err
	}

	timer = c.profiler.Start("train")
	err = cls.Train(examples)
	timer.Stop()
	if err != nil {
		return fmt.Errorf("failed to train %s: %w", cls.Kind(), err)
	}

	st := &trainedState{
		id:         ulid.Make().String(),
		trainedAt:  time.Now().UTC(),
		builder:    builder,
		classifier: cls,
	}

	c.mu.Lock()
	c.state = st
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"model_id":   st.id,
		"documents":  len(docs),
		"features":   vocabSize,
		"classifier": cls.Kind(),
		"weighting":  w.Kind(),
		"elapsed":    time.Since(start),
	}).Info("training complete")

	return nil
}

func checkDuplicates(docs []corpus.Document) error {
	seen := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		if _, ok := seen[doc.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateDocument, doc.ID)
		}
		seen[doc.ID] = struct{}{}
	}
	return nil
}

// buildIndex indexes docs with up to Workers goroutines, each filling its
// own partial index, then merges the partials.
func (c *EmailClassifier) buildIndex(ctx context.Context, docs []corpus.Document) (*index.Index, error) {
	workers := c.opts.Workers
	if workers > len(docs) {
		workers = len(docs)
	}
	if workers < 1 {
		return index.New(), nil
	}

	partials := make([]*index.Index, workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			ix := index.New()
			for i := w; i < len(docs); i += workers {
				if err := gctx.Err(); err != nil {
					return err
				}
				doc := docs[i]
				terms, err := c.source.Terms(gctx, doc)
				if err != nil {
					return fmt.Errorf("failed to read document %s: %w", doc.ID, err)
				}
				ix.RegisterDocument(doc.ID)
				for _, raw := range terms {
					if term, ok := c.term(raw); ok {
						ix.Add(term, doc.ID)
					}
				}
			}
			partials[w] = ix
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := index.New()
	for _, p := range partials {
		merged.Merge(p)
	}
	return merged, nil
}

func (c *EmailClassifier) term(raw string) (string, bool) {
	if c.opts.TextPreProcessing {
		return c.normalizer.Normalize(raw)
	}
	return raw, raw != ""
}

func (c *EmailClassifier) current() (*trainedState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return nil, ErrNotTrained
	}
	return c.state, nil
}

// Prediction is the outcome of classifying one document
type Prediction struct {
	Label learning.Label
	// SpamProbability is the normalised posterior of spam; only meaningful
	// when Scored is true
	SpamProbability float64
	Scored          bool
}

// Classify reads doc through the source and predicts its label
func (c *EmailClassifier) Classify(ctx context.Context, doc corpus.Document) (learning.Label, error) {
	p, err := c.PredictDocument(ctx, doc)
	return p.Label, err
}

// PredictDocument reads doc through the source and returns the full prediction
func (c *EmailClassifier) PredictDocument(ctx context.Context, doc corpus.Document) (Prediction, error) {
	st, err := c.current()
	if err != nil {
		return Prediction{}, err
	}
	terms, err := c.source.Terms(ctx, doc)
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to read document %s: %w", doc.ID, err)
	}
	return c.predict(st, doc.ID, terms)
}

// ClassifyTerms predicts the label of an already tokenised document
func (c *EmailClassifier) ClassifyTerms(terms []string) (learning.Label, error) {
	p, err := c.Predict(terms)
	return p.Label, err
}

// ClassifyEmail tokenises a parsed message and predicts its label
func (c *EmailClassifier) ClassifyEmail(tok *email.Tokenizer, e *email.Email) (Prediction, error) {
	return c.Predict(tok.Tokenize(e))
}

// Predict classifies raw terms and reports the spam probability when the
// classifier exposes posteriors
func (c *EmailClassifier) Predict(terms []string) (Prediction, error) {
	st, err := c.current()
	if err != nil {
		return Prediction{}, err
	}
	return c.predict(st, "document", terms)
}

func (c *EmailClassifier) predict(st *trainedState, docID string, terms []string) (Prediction, error) {
	start := time.Now()

	// A document-local index keeps inference out of the training statistics
	local := index.New()
	local.RegisterDocument(docID)
	for _, raw := range terms {
		term, ok := c.term(raw)
		if !ok || !st.builder.Vocabulary.Contains(term) {
			continue
		}
		local.Add(term, docID)
	}

	vec := st.builder.Build(local, docID)

	var p Prediction
	if scorer, ok := st.classifier.(learning.Scorer); ok {
		scores, err := scorer.LogPosteriors(vec)
		if err != nil {
			return Prediction{}, err
		}
		p.SpamProbability = 1 / (1 + math.Exp(scores[learning.Ham]-scores[learning.Spam]))
		p.Scored = true
	}

	label, err := st.classifier.Classify(vec)
	if err != nil {
		return Prediction{}, err
	}
	p.Label = label

	c.metrics.ObserveClassification(label, time.Since(start))
	return p, nil
}

// TopFeatures returns up to n vocabulary terms that most strongly indicate
// spam and ham. ok is false when the classifier cannot rank features.
func (c *EmailClassifier) TopFeatures(n int) (spam, ham []string, ok bool, err error) {
	st, err := c.current()
	if err != nil {
		return nil, nil, false, err
	}

	positive, ok := learning.RankedPositiveFeatures(st.classifier)
	if !ok {
		return nil, nil, false, nil
	}
	negative, _ := learning.RankedNegativeFeatures(st.classifier)

	vocab := st.builder.Vocabulary
	terms := func(ranked []int) []string {
		if n < len(ranked) {
			ranked = ranked[:n]
		}
		out := make([]string, len(ranked))
		for i, col := range ranked {
			out[i] = vocab.Term(col)
		}
		return out
	}
	return terms(positive), terms(negative), true, nil
}

// Trained reports whether a model is available
func (c *EmailClassifier) Trained() bool {
	_, err := c.current()
	return err == nil
}

// TermCount returns the feature dimension, or 0 when untrained
func (c *EmailClassifier) TermCount() int {
	st, err := c.current()
	if err != nil {
		return 0
	}
	return st.builder.Vocabulary.Size()
}

// MaxRawCount returns the largest posting count captured at training time
func (c *EmailClassifier) MaxRawCount() int {
	st, err := c.current()
	if err != nil {
		return 0
	}
	return st.builder.Stats.MaxRawCount
}

// DocumentCount returns the training corpus size
func (c *EmailClassifier) DocumentCount() int {
	st, err := c.current()
	if err != nil {
		return 0
	}
	return st.builder.Stats.DocumentCount
}

// ModelID returns the ULID assigned by the last successful Train
func (c *EmailClassifier) ModelID() string {
	st, err := c.current()
	if err != nil {
		return ""
	}
	return st.id
}

// Vocabulary returns the frozen vocabulary, or nil when untrained
func (c *EmailClassifier) Vocabulary() *vector.Vocabulary {
	st, err := c.current()
	if err != nil {
		return nil
	}
	return st.builder.Vocabulary
}

// ClassifierKind returns the classifier variant in use
func (c *EmailClassifier) ClassifierKind() learning.Kind {
	st, err := c.current()
	if err != nil {
		return c.opts.Classifier
	}
	return st.classifier.Kind()
}
