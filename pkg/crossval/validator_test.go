package crossval

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zpam/spamlearn/pkg/corpus"
	"github.com/zpam/spamlearn/pkg/filter"
	"github.com/zpam/spamlearn/pkg/index"
	"github.com/zpam/spamlearn/pkg/learning"
)

func labelledCorpus(n int) ([]corpus.Document, corpus.MemorySource) {
	src := corpus.MemorySource{}
	docs := make([]corpus.Document, 0, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			id := fmt.Sprintf("spam_%03d", i)
			src[id] = []string{"free", "cash", "prize", fmt.Sprintf("offer%d", i)}
			docs = append(docs, corpus.Document{ID: id, Label: learning.Spam})
		} else {
			id := fmt.Sprintf("ham_%03d", i)
			src[id] = []string{"meeting", "agenda", "notes", fmt.Sprintf("memo%d", i)}
			docs = append(docs, corpus.Document{ID: id, Label: learning.Ham})
		}
	}
	return docs, src
}

func filterFactory(src corpus.Source) Factory {
	return func() Model {
		opts := filter.DefaultOptions()
		opts.TextPreProcessing = false
		opts.Workers = 2
		return filter.New(opts, src)
	}
}

// recordingModel predicts a fixed label and remembers what it was trained on
type recordingModel struct {
	mu       *sync.Mutex
	trained  *[][]corpus.Document
	predict  learning.Label
	trainErr error
}

func (m *recordingModel) Train(_ context.Context, docs []corpus.Document, _, _ float64) error {
	if m.trainErr != nil {
		return m.trainErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	*m.trained = append(*m.trained, docs)
	return nil
}

func (m *recordingModel) Classify(context.Context, corpus.Document) (learning.Label, error) {
	return m.predict, nil
}

func TestTenFoldOnTenDocuments(t *testing.T) {
	docs, src := labelledCorpus(10)
	v := NewValidator(filterFactory(src), WithConcurrency(4))

	report, err := v.Evaluate(context.Background(), docs, 10)
	require.NoError(t, err)

	require.Len(t, report.Folds, 10)
	for i, f := range report.Folds {
		assert.Equal(t, i, f.Fold)
		assert.Equal(t, 1, f.TestSize)
		assert.Equal(t, 9, f.TrainSize)
		assert.Equal(t, 1, f.Matrix.Total())
	}
	assert.Equal(t, 10, report.Combined.Total())
	assert.Equal(t, 10, report.K)
	assert.NotEmpty(t, report.RunID)
}

func TestEvaluateSeparableCorpus(t *testing.T) {
	docs, src := labelledCorpus(40)
	v := NewValidator(filterFactory(src), WithPercentiles(0, 1), WithConcurrency(3))

	report, err := v.Evaluate(context.Background(), docs, 5)
	require.NoError(t, err)

	assert.Equal(t, 40, report.Combined.Total())
	assert.Equal(t, 1.0, report.Combined.Accuracy())
	assert.Equal(t, 1.0, report.MeanAccuracy)
	assert.Equal(t, 0.0, report.StdDev)
	assert.Equal(t, 20, report.Combined.Count(learning.Spam, learning.Spam))

	var buf bytes.Buffer
	report.Print(&buf)
	assert.Contains(t, buf.String(), "StdDev: 0.000000")
	assert.Contains(t, buf.String(), "Accuracy: 1.0000 (40/40)")
}

func TestEvaluateHoldsOutEachFold(t *testing.T) {
	docs, _ := labelledCorpus(11)
	var mu sync.Mutex
	var trained [][]corpus.Document
	factory := func() Model {
		return &recordingModel{mu: &mu, trained: &trained, predict: learning.Spam}
	}

	report, err := NewValidator(factory, WithConcurrency(2)).Evaluate(context.Background(), docs, 3)
	require.NoError(t, err)
	require.Len(t, trained, 3)

	for _, f := range report.Folds {
		assert.Equal(t, len(docs), f.TrainSize+f.TestSize)
	}
	assert.Equal(t, []int{4, 4, 3}, []int{report.Folds[0].TestSize, report.Folds[1].TestSize, report.Folds[2].TestSize})

	for _, set := range trained {
		assert.Contains(t, []int{7, 8}, len(set))
	}

	// Always predicting spam: recall of spam is perfect, ham is never found
	assert.Equal(t, 1.0, report.Combined.Recall(learning.Spam))
	assert.Equal(t, 0.0, report.Combined.Recall(learning.Ham))
}

func TestEvaluateShuffleIsDeterministic(t *testing.T) {
	docs, src := labelledCorpus(20)

	run := func() *Report {
		report, err := NewValidator(filterFactory(src), WithShuffle(42), WithPercentiles(0, 1)).Evaluate(context.Background(), docs, 4)
		require.NoError(t, err)
		return report
	}

	a, b := run(), run()
	for i := range a.Folds {
		assert.Equal(t, a.Folds[i].Matrix, b.Folds[i].Matrix)
	}
}

func TestEvaluateErrors(t *testing.T) {
	docs, src := labelledCorpus(6)

	_, err := NewValidator(filterFactory(src)).Evaluate(context.Background(), docs, 1)
	assert.ErrorIs(t, err, ErrInvalidFoldCount)

	_, err = NewValidator(filterFactory(src)).Evaluate(context.Background(), docs, 7)
	assert.ErrorIs(t, err, ErrInvalidFoldCount)

	_, err = NewValidator(filterFactory(src), WithPercentiles(0.2, 1.2)).Evaluate(context.Background(), docs, 3)
	assert.ErrorIs(t, err, index.ErrInvalidPercentile)

	boom := errors.New("disk on fire")
	var mu sync.Mutex
	var trained [][]corpus.Document
	failing := func() Model {
		return &recordingModel{mu: &mu, trained: &trained, trainErr: boom}
	}
	_, err = NewValidator(failing).Evaluate(context.Background(), docs, 3)
	assert.ErrorIs(t, err, boom)

	// A fold whose training split lacks a class fails the whole run
	oneSpam := append([]corpus.Document(nil), docs...)
	for i := range oneSpam {
		oneSpam[i].Label = learning.Ham
	}
	oneSpam[0].Label = learning.Spam
	_, err = NewValidator(filterFactory(src)).Evaluate(context.Background(), oneSpam, 3)
	assert.ErrorIs(t, err, learning.ErrMissingClass)
}

func TestPartition(t *testing.T) {
	for n := 2; n <= 25; n++ {
		items := make([]int, n)
		for i := range items {
			items[i] = i
		}
		for k := 2; k <= n; k++ {
			folds, err := Partition(items, k)
			require.NoError(t, err)
			require.Len(t, folds, k)

			seen := make(map[int]int)
			for f, fold := range folds {
				want := n / k
				if f < n%k {
					want++
				}
				assert.Len(t, fold, want, "n=%d k=%d fold=%d", n, k, f)
				for _, item := range fold {
					seen[item]++
				}
			}
			assert.Len(t, seen, n)
			for item, count := range seen {
				assert.Equal(t, 1, count, "item %d appears %d times", item, count)
			}
		}
	}

	_, err := Partition([]int{1, 2, 3}, 0)
	assert.ErrorIs(t, err, ErrInvalidFoldCount)
	_, err = Partition([]int{}, 2)
	assert.ErrorIs(t, err, ErrInvalidFoldCount)
}

func TestConfusionMatrix(t *testing.T) {
	var m ConfusionMatrix
	m.Add(learning.Spam, learning.Spam)
	m.Add(learning.Spam, learning.Spam)
	m.Add(learning.Spam, learning.Spam)
	m.Add(learning.Spam, learning.Ham)
	m.Add(learning.Ham, learning.Ham)
	m.Add(learning.Ham, learning.Spam)

	assert.Equal(t, 6, m.Total())
	assert.Equal(t, 4, m.Correct())
	assert.InDelta(t, 4.0/6.0, m.Accuracy(), 1e-12)
	assert.InDelta(t, 0.75, m.Precision(learning.Spam), 1e-12)
	assert.InDelta(t, 0.75, m.Recall(learning.Spam), 1e-12)
	assert.InDelta(t, 0.75, m.F1(learning.Spam), 1e-12)
	assert.InDelta(t, 0.5, m.Precision(learning.Ham), 1e-12)
	assert.InDelta(t, 0.5, m.Recall(learning.Ham), 1e-12)

	var other ConfusionMatrix
	other.Add(learning.Ham, learning.Ham)
	m.Merge(other)
	assert.Equal(t, 2, m.Count(learning.Ham, learning.Ham))
	assert.Equal(t, 7, m.Total())

	var empty ConfusionMatrix
	assert.Zero(t, empty.Accuracy())
	assert.Zero(t, empty.F1(learning.Spam))
}

func TestMeanStdDev(t *testing.T) {
	mean, sd := meanStdDev([]float64{1, 0.5})
	assert.InDelta(t, 0.75, mean, 1e-12)
	assert.InDelta(t, 0.25, sd, 1e-12)

	mean, sd = meanStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, 1e-12)
	assert.InDelta(t, 2.0, sd, 1e-12)
}
