package weighting

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioWeights(t *testing.T) {
	p := Posting{Count: 3, DocumentFrequency: 5, MaxRawCount: 3, DocumentCount: 10}

	assert.Equal(t, 1.0, Frequency{}.Weight(p))
	assert.InDelta(t, math.Log(2), TFIDF{}.Weight(p), 1e-12)
	assert.InDelta(t, 0.693, TFIDF{}.Weight(p), 1e-3)
}

func TestUbiquitousTermWeighsZero(t *testing.T) {
	p := Posting{Count: 2, DocumentFrequency: 10, MaxRawCount: 4, DocumentCount: 10}
	assert.Equal(t, 0.0, TFIDF{}.Weight(p))
	assert.Equal(t, 0.5, Frequency{}.Weight(p))
}

func TestDegenerateDenominators(t *testing.T) {
	testCases := []struct {
		name string
		p    Posting
	}{
		{"zero max count", Posting{Count: 1, DocumentFrequency: 1, MaxRawCount: 0, DocumentCount: 3}},
		{"zero document frequency", Posting{Count: 1, DocumentFrequency: 0, MaxRawCount: 1, DocumentCount: 3}},
		{"zero count", Posting{Count: 0, DocumentFrequency: 1, MaxRawCount: 1, DocumentCount: 3}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for _, w := range []Weighting{Frequency{}, TFIDF{}} {
				v := w.Weight(tc.p)
				assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s produced %v", w.Kind(), v)
			}
		})
	}
}

func TestFrequencyMonotonicInCount(t *testing.T) {
	for _, w := range []Weighting{Frequency{}, TFIDF{}} {
		prev := -1.0
		for count := 1; count <= 20; count++ {
			v := w.Weight(Posting{Count: count, DocumentFrequency: 3, MaxRawCount: 20, DocumentCount: 50})
			assert.GreaterOrEqual(t, v, prev, "%s weight decreased at count %d", w.Kind(), count)
			prev = v
		}
	}
}

func TestNewAndParse(t *testing.T) {
	for _, kind := range []Kind{KindFrequency, KindTFIDF} {
		w, err := New(kind)
		require.NoError(t, err)
		assert.Equal(t, kind, w.Kind())

		parsed, err := ParseKind(string(kind))
		require.NoError(t, err)
		assert.Equal(t, kind, parsed)
	}

	_, err := New("bm25")
	assert.ErrorIs(t, err, ErrUnknownWeighting)
	_, err = ParseKind("")
	assert.ErrorIs(t, err, ErrUnknownWeighting)

	src, err := ParseDFSource("local")
	require.NoError(t, err)
	assert.Equal(t, DFLocal, src)
	_, err = ParseDFSource("global")
	assert.ErrorIs(t, err, ErrUnknownWeighting)
}
