package filter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zpam/spamlearn/pkg/corpus"
	"github.com/zpam/spamlearn/pkg/email"
	"github.com/zpam/spamlearn/pkg/index"
	"github.com/zpam/spamlearn/pkg/learning"
	"github.com/zpam/spamlearn/pkg/model"
	"github.com/zpam/spamlearn/pkg/profiler"
	"github.com/zpam/spamlearn/pkg/text"
	"github.com/zpam/spamlearn/pkg/weighting"
)

func testCorpus() ([]corpus.Document, corpus.MemorySource) {
	src := corpus.MemorySource{}
	var docs []corpus.Document
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("spam_%02d", i)
		src[id] = []string{"free", "cash", "prize", "the", fmt.Sprintf("noise%d", i)}
		docs = append(docs, corpus.Document{ID: id, Label: learning.Spam})

		id = fmt.Sprintf("ham_%02d", i)
		src[id] = []string{"meeting", "agenda", "notes", "the", fmt.Sprintf("filler%d", i)}
		docs = append(docs, corpus.Document{ID: id, Label: learning.Ham})
	}
	return docs, src
}

func rawOptions() Options {
	opts := DefaultOptions()
	opts.TextPreProcessing = false
	opts.Workers = 3
	return opts
}

func trainedClassifier(t *testing.T, opts Options) *EmailClassifier {
	t.Helper()
	docs, src := testCorpus()
	c := New(opts, src)
	require.NoError(t, c.Train(context.Background(), docs, DefaultLowerPercentile, DefaultUpperPercentile))
	return c
}

type countingSource struct {
	corpus.MemorySource
	calls atomic.Int32
}

func (s *countingSource) Terms(ctx context.Context, doc corpus.Document) ([]string, error) {
	s.calls.Add(1)
	return s.MemorySource.Terms(ctx, doc)
}

func TestClassifyBeforeTrain(t *testing.T) {
	_, src := testCorpus()
	c := New(rawOptions(), src)

	assert.False(t, c.Trained())

	_, err := c.Classify(context.Background(), corpus.Document{ID: "spam_00"})
	assert.ErrorIs(t, err, ErrNotTrained)

	_, err = c.ClassifyTerms([]string{"free"})
	assert.ErrorIs(t, err, ErrNotTrained)

	_, err = c.Snapshot()
	assert.ErrorIs(t, err, ErrNotTrained)

	_, _, _, err = c.TopFeatures(5)
	assert.ErrorIs(t, err, ErrNotTrained)

	assert.Equal(t, 0, c.TermCount())
	assert.Empty(t, c.ModelID())
}

func TestTrainAndClassify(t *testing.T) {
	c := trainedClassifier(t, rawOptions())

	assert.True(t, c.Trained())
	assert.Equal(t, 20, c.DocumentCount())
	assert.Equal(t, 1, c.MaxRawCount())
	assert.Equal(t, 26, c.TermCount())
	assert.False(t, c.Vocabulary().Contains("the"), "term in every document exceeds the upper bound")
	assert.True(t, c.Vocabulary().Contains("noise3"))
	assert.NotEmpty(t, c.ModelID())

	testCases := []struct {
		name     string
		terms    []string
		expected learning.Label
	}{
		{"spam words", []string{"free", "cash"}, learning.Spam},
		{"ham words", []string{"meeting", "notes"}, learning.Ham},
		{"unknown words only", []string{"zebra", "quantum"}, learning.Ham},
		{"spam with unknown words", []string{"prize", "zebra", "quantum", "lottery"}, learning.Spam},
		{"empty document", nil, learning.Ham},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			label, err := c.ClassifyTerms(tc.terms)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, label)
		})
	}

	label, err := c.Classify(context.Background(), corpus.Document{ID: "spam_04"})
	require.NoError(t, err)
	assert.Equal(t, learning.Spam, label)

	p, err := c.Predict([]string{"free", "prize"})
	require.NoError(t, err)
	assert.True(t, p.Scored)
	assert.Greater(t, p.SpamProbability, 0.5)
}

func TestTrainWithoutFeatureSelectionKeepsAllTerms(t *testing.T) {
	opts := rawOptions()
	opts.FeatureSelection = false
	c := trainedClassifier(t, opts)

	assert.Equal(t, 27, c.TermCount())
	assert.True(t, c.Vocabulary().Contains("the"))
}

func TestTrainWithTextPreProcessing(t *testing.T) {
	src := corpus.MemorySource{
		"spam_1": {"FREE!!", "Cash", "prizes", "http://www.win.example/now"},
		"spam_2": {"Free", "CASH", "prize", "win.example"},
		"ham_1":  {"Meetings", "agenda", "on", "Tuesday"},
		"ham_2":  {"meeting", "agenda", "notes", "12:30"},
	}
	docs := []corpus.Document{
		{ID: "spam_1", Label: learning.Spam},
		{ID: "spam_2", Label: learning.Spam},
		{ID: "ham_1", Label: learning.Ham},
		{ID: "ham_2", Label: learning.Ham},
	}

	opts := DefaultOptions()
	opts.FeatureSelection = false
	c := New(opts, src)
	require.NoError(t, c.Train(context.Background(), docs, 0, 1))

	vocab := c.Vocabulary()
	assert.True(t, vocab.Contains("meet"))
	assert.True(t, vocab.Contains("prize"))
	assert.True(t, vocab.Contains("win.example"))
	assert.False(t, vocab.Contains("on"), "short terms are discarded")
	assert.False(t, vocab.Contains("Cash"))

	label, err := c.ClassifyTerms([]string{"FREE", "Prizes!"})
	require.NoError(t, err)
	assert.Equal(t, learning.Spam, label)
}

func TestTrainValidatesPercentilesBeforeReading(t *testing.T) {
	docs, mem := testCorpus()
	src := &countingSource{MemorySource: mem}
	c := New(rawOptions(), src)

	err := c.Train(context.Background(), docs, -0.1, 0.5)
	assert.ErrorIs(t, err, index.ErrInvalidPercentile)

	err = c.Train(context.Background(), docs, 0.1, 1.5)
	assert.ErrorIs(t, err, index.ErrInvalidPercentile)

	assert.Equal(t, int32(0), src.calls.Load())
	assert.False(t, c.Trained())
}

func TestFailedTrainLeavesUntrained(t *testing.T) {
	docs, src := testCorpus()
	c := New(rawOptions(), src)
	require.NoError(t, c.Train(context.Background(), docs, DefaultLowerPercentile, DefaultUpperPercentile))
	require.True(t, c.Trained())

	broken := append(append([]corpus.Document(nil), docs...), corpus.Document{ID: "missing", Label: learning.Spam})
	err := c.Train(context.Background(), broken, DefaultLowerPercentile, DefaultUpperPercentile)
	require.Error(t, err)
	assert.True(t, errors.Is(err, corpus.ErrUnknownDocument))

	assert.False(t, c.Trained())
	_, err = c.ClassifyTerms([]string{"free"})
	assert.ErrorIs(t, err, ErrNotTrained)
}

func TestTrainRequiresBothClasses(t *testing.T) {
	docs, src := testCorpus()
	var hamOnly []corpus.Document
	for _, d := range docs {
		if d.Label == learning.Ham {
			hamOnly = append(hamOnly, d)
		}
	}

	c := New(rawOptions(), src)
	err := c.Train(context.Background(), hamOnly, DefaultLowerPercentile, DefaultUpperPercentile)
	assert.ErrorIs(t, err, learning.ErrMissingClass)
	assert.False(t, c.Trained())
}

func TestTrainRejectsDuplicateDocuments(t *testing.T) {
	docs, src := testCorpus()
	c := New(rawOptions(), src)

	err := c.Train(context.Background(), append(docs, docs[0]), DefaultLowerPercentile, DefaultUpperPercentile)
	assert.ErrorIs(t, err, ErrDuplicateDocument)
}

func TestTrainHonoursCancellation(t *testing.T) {
	docs, src := testCorpus()
	c := New(rawOptions(), src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Train(ctx, docs, DefaultLowerPercentile, DefaultUpperPercentile)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, c.Trained())
}

func TestRetrainReplacesState(t *testing.T) {
	c := trainedClassifier(t, rawOptions())
	firstID := c.ModelID()

	src := corpus.MemorySource{
		"spam_a": {"lottery", "winner"},
		"ham_a":  {"invoice", "attached"},
	}
	c.source = src
	docs := []corpus.Document{{ID: "spam_a", Label: learning.Spam}, {ID: "ham_a", Label: learning.Ham}}
	require.NoError(t, c.Train(context.Background(), docs, 0, 1))

	assert.NotEqual(t, firstID, c.ModelID())
	assert.Equal(t, []string{"attached", "invoice", "lottery", "winner"}, c.Vocabulary().Terms())
	assert.Equal(t, 2, c.DocumentCount())
}

func TestParallelIndexingMatchesSequential(t *testing.T) {
	sequential := rawOptions()
	sequential.Workers = 1
	parallel := rawOptions()
	parallel.Workers = 8

	a, err := trainedClassifier(t, sequential).Snapshot()
	require.NoError(t, err)
	b, err := trainedClassifier(t, parallel).Snapshot()
	require.NoError(t, err)

	assert.Equal(t, a.Vocabulary, b.Vocabulary)
	assert.Equal(t, a.MaxRawCount, b.MaxRawCount)
	assert.Equal(t, a.DocumentCount, b.DocumentCount)
	assert.Equal(t, a.Classifier, b.Classifier)
}

func TestConcurrentClassification(t *testing.T) {
	c := trainedClassifier(t, rawOptions())

	inputs := [][]string{{"free", "cash"}, {"meeting", "agenda"}, {"prize"}, {"notes", "zebra"}}
	expected := []learning.Label{learning.Spam, learning.Ham, learning.Spam, learning.Ham}

	var wg sync.WaitGroup
	var failures atomic.Int32
	for g := 0; g < 32; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				k := (g + i) % len(inputs)
				label, err := c.ClassifyTerms(inputs[k])
				if err != nil || label != expected[k] {
					failures.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), failures.Load())
}

func TestSnapshotRestoreClassifiesIdentically(t *testing.T) {
	for _, kind := range []learning.Kind{learning.KindNaiveBayes, learning.KindNearestCentroid} {
		for _, w := range []weighting.Kind{weighting.KindFrequency, weighting.KindTFIDF} {
			t.Run(fmt.Sprintf("%s/%s", kind, w), func(t *testing.T) {
				opts := rawOptions()
				opts.Classifier = kind
				opts.Weighting = w
				original := trainedClassifier(t, opts)

				snap, err := original.Snapshot()
				require.NoError(t, err)
				data, err := model.Marshal(snap)
				require.NoError(t, err)
				decoded, err := model.Unmarshal(data)
				require.NoError(t, err)

				_, src := testCorpus()
				restored, err := Restore(decoded, src)
				require.NoError(t, err)

				assert.True(t, restored.Trained())
				assert.Equal(t, original.ModelID(), restored.ModelID())
				assert.Equal(t, original.TermCount(), restored.TermCount())
				assert.Equal(t, kind, restored.ClassifierKind())
				assert.Equal(t, w, restored.Options().Weighting)

				inputs := [][]string{
					{"free", "cash"},
					{"meeting"},
					{"prize", "agenda", "notes"},
					{"noise1", "filler1", "filler2"},
					{},
				}
				for _, terms := range inputs {
					want, err := original.Predict(terms)
					require.NoError(t, err)
					got, err := restored.Predict(terms)
					require.NoError(t, err)
					assert.Equal(t, want, got, "terms %v", terms)
				}
			})
		}
	}
}

func TestRestoreRejectsInconsistentModel(t *testing.T) {
	c := trainedClassifier(t, rawOptions())
	snap, err := c.Snapshot()
	require.NoError(t, err)

	snap.Vocabulary.Terms = snap.Vocabulary.Terms[:3]
	snap.Vocabulary.DocumentFrequencies = snap.Vocabulary.DocumentFrequencies[:3]
	_, err = Restore(snap, nil)
	assert.ErrorIs(t, err, learning.ErrDimensionMismatch)
}

func TestTopFeatures(t *testing.T) {
	c := trainedClassifier(t, rawOptions())

	spam, ham, ok, err := c.TopFeatures(3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"cash", "free", "prize"}, spam)
	assert.Equal(t, []string{"agenda", "meeting", "notes"}, ham)

	spam, _, _, err = c.TopFeatures(1000)
	require.NoError(t, err)
	assert.Len(t, spam, c.TermCount())

	opts := rawOptions()
	opts.Classifier = learning.KindNearestCentroid
	centroid := trainedClassifier(t, opts)
	_, _, ok, err = centroid.TopFeatures(3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProfilerRecordsStages(t *testing.T) {
	docs, src := testCorpus()
	p := profiler.NewProfiler()
	c := New(rawOptions(), src, WithProfiler(p))
	require.NoError(t, c.Train(context.Background(), docs, DefaultLowerPercentile, DefaultUpperPercentile))

	var names []string
	for _, s := range p.Stats() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"index", "prune", "vectors", "train"}, names)
}

func TestSnapshotKeepsTokenisationSettings(t *testing.T) {
	docs, src := testCorpus()
	opts := rawOptions()
	opts.TextPreProcessing = true
	opts.Parser = email.Options{StripHTML: false, SplitMultipart: true, IncludeSubject: false}
	normalizer := &text.Normalizer{MinLength: 3, Stem: false, Language: "english"}

	c := New(opts, src, WithNormalizer(normalizer))
	require.NoError(t, c.Train(context.Background(), docs, 0, 1))

	snap, err := c.Snapshot()
	require.NoError(t, err)
	data, err := model.Marshal(snap)
	require.NoError(t, err)
	decoded, err := model.Unmarshal(data)
	require.NoError(t, err)

	// A caller-supplied normalizer must not change how the model reads terms
	restored, err := Restore(decoded, nil, WithNormalizer(text.NewNormalizer()))
	require.NoError(t, err)

	assert.Equal(t, opts.Parser, restored.Options().Parser)
	assert.Equal(t, *normalizer, *restored.Normalizer())

	fs, ok := restored.source.(*corpus.FileSource)
	require.True(t, ok, "nil source should become a file source")
	assert.Equal(t, opts.Parser, fs.Parser.Options())

	for _, terms := range [][]string{{"free", "cash", "prizes"}, {"meetings", "agenda"}} {
		want, err := c.Predict(terms)
		require.NoError(t, err)
		got, err := restored.Predict(terms)
		require.NoError(t, err)
		assert.Equal(t, want, got, "terms %v", terms)
	}
}

func TestRestoreWithoutTokenisationSettingsUsesDefaults(t *testing.T) {
	c := trainedClassifier(t, rawOptions())
	snap, err := c.Snapshot()
	require.NoError(t, err)
	snap.Options.Parser = nil
	snap.Options.Normalizer = nil

	restored, err := Restore(snap, nil)
	require.NoError(t, err)
	assert.Equal(t, email.DefaultOptions(), restored.Options().Parser)
	assert.Equal(t, *text.NewNormalizer(), *restored.Normalizer())
}
