package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/zpam/spamlearn/pkg/config"
	"github.com/zpam/spamlearn/pkg/corpus"
	"github.com/zpam/spamlearn/pkg/email"
	"github.com/zpam/spamlearn/pkg/filter"
	"github.com/zpam/spamlearn/pkg/index"
	"github.com/zpam/spamlearn/pkg/logger"
	"github.com/zpam/spamlearn/pkg/metrics"
	"github.com/zpam/spamlearn/pkg/model"
	"github.com/zpam/spamlearn/pkg/store"
)

// app bundles what every command needs: validated configuration, the
// logger and the metrics registry
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	closer   io.Closer
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func setup() (*app, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, closer, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	return &app{
		cfg:      cfg,
		log:      log,
		closer:   closer,
		registry: registry,
		metrics:  metrics.New(registry),
	}, nil
}

func (a *app) Close() error {
	return a.closer.Close()
}

func (a *app) component(name string) *logrus.Entry {
	return logger.Component(a.log, name)
}

func (a *app) parserOptions() email.Options {
	return email.Options{
		StripHTML:      a.cfg.Parser.StripHTML,
		SplitMultipart: a.cfg.Parser.SplitMultipart,
		IncludeSubject: a.cfg.Parser.IncludeSubject,
	}
}

func (a *app) source() corpus.Source {
	return corpus.NewFileSource(a.parserOptions())
}

// loadCorpus lists the labelled documents of dir
func (a *app) loadCorpus(dir string) ([]corpus.Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read training data: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("training data must be a directory: %s", dir)
	}
	return corpus.LoadDirectory(dir, corpus.Labeler{Marker: a.cfg.Learning.HamMarker}, a.cfg.Parser.Extensions)
}

// classifierFactory validates the learning section once and returns a
// constructor for untrained classifiers
func (a *app) classifierFactory(extra ...filter.Option) (func() *filter.EmailClassifier, error) {
	opts, err := filter.OptionsFromConfig(a.cfg.Learning)
	if err != nil {
		return nil, err
	}
	opts.Parser = a.parserOptions()
	options := append([]filter.Option{
		filter.WithLogger(a.component("filter")),
		filter.WithMetrics(a.metrics),
	}, extra...)
	source := a.source()
	return func() *filter.EmailClassifier {
		return filter.New(opts, source, options...)
	}, nil
}

// newClassifier creates an untrained classifier from the learning section
func (a *app) newClassifier(extra ...filter.Option) (*filter.EmailClassifier, error) {
	factory, err := a.classifierFactory(extra...)
	if err != nil {
		return nil, err
	}
	return factory(), nil
}

// loadClassifier restores a model from a JSON file path, or by name from
// the configured store when ref is not an existing file. Restored models read
// mail with the parser settings they were trained with.
func (a *app) loadClassifier(ctx context.Context, ref string) (*filter.EmailClassifier, error) {
	options := []filter.Option{
		filter.WithLogger(a.component("filter")),
		filter.WithMetrics(a.metrics),
	}

	if info, err := os.Stat(ref); err == nil && !info.IsDir() || strings.HasSuffix(ref, ".json") {
		snap, err := model.LoadFile(ref)
		if err != nil {
			return nil, err
		}
		return filter.Restore(snap, nil, options...)
	}

	if ref == "" {
		ref = a.cfg.Store.ModelName
	}
	s, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return store.LoadClassifier(ctx, s, ref, nil, options...)
}

func (a *app) openStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, a.cfg, a.component("store"))
}

// startMetrics serves /metrics when enabled; the returned function stops it
func (a *app) startMetrics() func(context.Context) error {
	if !a.cfg.Metrics.Enabled {
		return func(context.Context) error { return nil }
	}
	return metrics.StartServer(a.cfg.Metrics.Address, a.cfg.Metrics.Path, a.registry, a.component("metrics"))
}

// percentiles applies --lower/--upper overrides to the configured selection
// window and validates the result before any corpus is read
func (a *app) percentiles(lower, upper float64, lowerSet, upperSet bool) (float64, float64, error) {
	if !lowerSet {
		lower = a.cfg.Learning.LowerPercentile
	}
	if !upperSet {
		upper = a.cfg.Learning.UpperPercentile
	}
	if err := index.ValidatePercentile(lower); err != nil {
		return 0, 0, fmt.Errorf("lower %w", err)
	}
	if err := index.ValidatePercentile(upper); err != nil {
		return 0, 0, fmt.Errorf("upper %w", err)
	}
	if lower > upper {
		return 0, 0, fmt.Errorf("lower percentile %.3f exceeds upper percentile %.3f", lower, upper)
	}
	return lower, upper, nil
}
