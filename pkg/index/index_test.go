package index

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndCounts(t *testing.T) {
	ix := New()
	ix.Add("free", "d1")
	ix.Add("free", "d1")
	ix.Add("free", "d2")
	ix.Add("meeting", "d3")
	ix.RegisterDocument("empty")

	assert.Equal(t, 2, ix.DocumentFrequency("free"))
	assert.Equal(t, 1, ix.DocumentFrequency("meeting"))
	assert.Equal(t, 0, ix.DocumentFrequency("absent"))
	assert.Equal(t, 2, ix.Count("free", "d1"))
	assert.Equal(t, 0, ix.Count("free", "d3"))
	assert.Equal(t, 2, ix.MaxRawCount())
	assert.Equal(t, 4, ix.DocumentCount())
	assert.Equal(t, []string{"free", "meeting"}, ix.Terms())
	assert.Equal(t, []string{"d1", "d2", "d3", "empty"}, ix.Documents())
	assert.Equal(t, []string{"d1", "d2"}, ix.DocumentsOf("free"))
	assert.Equal(t, Postings{"d1": 2, "d2": 1}, ix.PostingsOf("free"))
	assert.Nil(t, ix.PostingsOf("absent"))
}

func TestPostingsOfReturnsCopy(t *testing.T) {
	ix := New()
	ix.Add("free", "d1")

	p := ix.PostingsOf("free")
	p["d1"] = 100
	p["d9"] = 1

	assert.Equal(t, 1, ix.Count("free", "d1"))
	assert.Equal(t, 1, ix.DocumentFrequency("free"))
}

func TestPruneScenario(t *testing.T) {
	ix := New()
	for d := 0; d < 100; d++ {
		doc := fmt.Sprintf("doc%03d", d)
		ix.RegisterDocument(doc)
		if d < 60 {
			ix.Add("offer", doc)
		}
		if d < 50 {
			ix.Add("meeting", doc)
		}
		if d == 7 {
			ix.Add("rare", doc)
		}
	}

	removed := ix.Prune(1, 50)

	assert.Equal(t, 1, removed)
	assert.False(t, ix.Contains("offer"), "term in 60 documents should be pruned")
	assert.True(t, ix.Contains("meeting"), "term in exactly 50 documents should be kept")
	assert.True(t, ix.Contains("rare"), "term in exactly 1 document should be kept")
	assert.Equal(t, 100, ix.DocumentCount(), "pruning must not remove documents")
}

func TestPruneKeepsExactlyInRangeTerms(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ix := New()
	for d := 0; d < 40; d++ {
		doc := fmt.Sprintf("d%d", d)
		ix.RegisterDocument(doc)
		for i := 0; i < 30; i++ {
			ix.Add(fmt.Sprintf("t%d", rng.Intn(60)), doc)
		}
	}

	before := make(map[string]int)
	for _, term := range ix.Terms() {
		before[term] = ix.DocumentFrequency(term)
	}

	lo, hi := 3, 20
	ix.Prune(lo, hi)

	for term, df := range before {
		kept := lo <= df && df <= hi
		assert.Equal(t, kept, ix.Contains(term), "term %s with df %d", term, df)
		if kept {
			assert.Equal(t, df, ix.DocumentFrequency(term), "surviving postings must be unchanged")
		}
	}
}

func TestPruneChangesMaxRawCount(t *testing.T) {
	ix := New()
	for i := 0; i < 5; i++ {
		ix.Add("spam", "d1")
	}
	ix.Add("spam", "d2")
	ix.Add("cash", "d1")

	require.Equal(t, 5, ix.MaxRawCount())
	ix.Prune(0, 1)
	assert.Equal(t, 1, ix.MaxRawCount())

	ix.Prune(5, 5)
	assert.Equal(t, 0, ix.MaxRawCount())
	assert.Empty(t, ix.Terms())
}

func TestMergeIsCommutative(t *testing.T) {
	build := func(pairs [][2]string) *Index {
		ix := New()
		for _, p := range pairs {
			ix.Add(p[0], p[1])
		}
		return ix
	}
	a := [][2]string{{"free", "d1"}, {"free", "d1"}, {"cash", "d2"}}
	b := [][2]string{{"free", "d1"}, {"meeting", "d3"}}

	ab := New()
	ab.Merge(build(a))
	ab.Merge(build(b))

	ba := New()
	ba.Merge(build(b))
	ba.Merge(build(a))

	assert.Equal(t, ab.Terms(), ba.Terms())
	assert.Equal(t, ab.Documents(), ba.Documents())
	for _, term := range ab.Terms() {
		assert.Equal(t, ab.PostingsOf(term), ba.PostingsOf(term))
	}
	assert.Equal(t, 3, ab.Count("free", "d1"))
}

func TestPruneBounds(t *testing.T) {
	testCases := []struct {
		name         string
		lower, upper float64
		docs         int
		min, max     int
		wantErr      bool
	}{
		{"defaults", 0.001, 0.50, 100, 0, 50, false},
		{"large corpus", 0.001, 0.50, 5000, 5, 2500, false},
		{"full range", 0, 1, 10, 0, 10, false},
		{"floors", 0.25, 0.75, 7, 1, 5, false},
		{"negative lower", -0.1, 0.5, 10, 0, 0, true},
		{"upper above one", 0.1, 1.5, 10, 0, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			min, max, err := PruneBounds(tc.lower, tc.upper, tc.docs)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPercentile)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.min, min)
			assert.Equal(t, tc.max, max)
		})
	}
}
