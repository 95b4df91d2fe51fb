package filter

import (
	"fmt"

	"github.com/zpam/spamlearn/pkg/corpus"
	"github.com/zpam/spamlearn/pkg/email"
	"github.com/zpam/spamlearn/pkg/learning"
	"github.com/zpam/spamlearn/pkg/model"
	"github.com/zpam/spamlearn/pkg/text"
	"github.com/zpam/spamlearn/pkg/vector"
	"github.com/zpam/spamlearn/pkg/weighting"
)

// Snapshot captures the trained state for persistence
func (c *EmailClassifier) Snapshot() (*model.Snapshot, error) {
	st, err := c.current()
	if err != nil {
		return nil, err
	}

	env, err := learning.Encode(st.classifier)
	if err != nil {
		return nil, err
	}

	vocab := st.builder.Vocabulary
	return &model.Snapshot{
		FormatVersion: model.FormatVersion,
		ModelID:       st.id,
		TrainedAt:     st.trainedAt,
		Options: model.Options{
			TextPreProcessing: c.opts.TextPreProcessing,
			FeatureSelection:  c.opts.FeatureSelection,
			DFSource:          st.builder.DFSource,
			Parser: &model.Parser{
				StripHTML:      c.opts.Parser.StripHTML,
				SplitMultipart: c.opts.Parser.SplitMultipart,
				IncludeSubject: c.opts.Parser.IncludeSubject,
			},
			Normalizer: &model.Normalizer{
				MinLength: c.normalizer.MinLength,
				Stem:      c.normalizer.Stem,
				Language:  c.normalizer.Language,
			},
		},
		Vocabulary: model.Vocabulary{
			Terms:               vocab.Terms(),
			DocumentFrequencies: vocab.DocumentFrequencies(),
		},
		MaxRawCount:   st.builder.Stats.MaxRawCount,
		DocumentCount: st.builder.Stats.DocumentCount,
		Weighting:     model.Weighting{Type: st.builder.Weighting.Kind()},
		Classifier:    env,
	}, nil
}

// Restore rebuilds a Trained classifier from a snapshot. The result
// classifies exactly as the classifier the snapshot was taken from: the
// recorded parser and normalizer settings override any WithNormalizer option,
// and a nil source reads files with the recorded parser settings.
func Restore(snap *model.Snapshot, source corpus.Source, options ...Option) (*EmailClassifier, error) {
	vocab, err := vector.RestoreVocabulary(snap.Vocabulary.Terms, snap.Vocabulary.DocumentFrequencies)
	if err != nil {
		return nil, fmt.Errorf("invalid model vocabulary: %w", err)
	}

	w, err := weighting.New(snap.Weighting.Type)
	if err != nil {
		return nil, err
	}

	dfSource := snap.Options.DFSource
	if dfSource == "" {
		dfSource = weighting.DFTraining
	}
	if _, err := weighting.ParseDFSource(string(dfSource)); err != nil {
		return nil, err
	}

	cls, err := learning.Decode(snap.Classifier)
	if err != nil {
		return nil, err
	}
	if _, err := cls.Classify(make([]float64, vocab.Size())); err != nil {
		return nil, fmt.Errorf("model classifier does not match vocabulary: %w", err)
	}

	opts := DefaultOptions()
	opts.Classifier = cls.Kind()
	opts.Weighting = w.Kind()
	opts.DFSource = dfSource
	opts.TextPreProcessing = snap.Options.TextPreProcessing
	opts.FeatureSelection = snap.Options.FeatureSelection
	if nb, ok := cls.(*learning.NaiveBayes); ok {
		opts.Smoothing = nb.Smoothing()
	}
	if p := snap.Options.Parser; p != nil {
		opts.Parser = email.Options{
			StripHTML:      p.StripHTML,
			SplitMultipart: p.SplitMultipart,
			IncludeSubject: p.IncludeSubject,
		}
	}
	if source == nil {
		source = corpus.NewFileSource(opts.Parser)
	}

	c := New(opts, source, options...)
	if n := snap.Options.Normalizer; n != nil {
		c.normalizer = &text.Normalizer{MinLength: n.MinLength, Stem: n.Stem, Language: n.Language}
	}
	c.state = &trainedState{
		id:        snap.ModelID,
		trainedAt: snap.TrainedAt,
		builder: &vector.Builder{
			Vocabulary: vocab,
			Weighting:  w,
			Stats: vector.Stats{
				MaxRawCount:   snap.MaxRawCount,
				DocumentCount: snap.DocumentCount,
			},
			DFSource: dfSource,
		},
		classifier: cls,
	}

	c.log.WithField("model_id", snap.ModelID).Debug("restored model")
	return c, nil
}
