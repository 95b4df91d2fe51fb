package profiler

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStagesKeepFirstRecordedOrder(t *testing.T) {
	p := NewProfiler()
	p.Record("index", 30*time.Millisecond)
	p.Record("prune", time.Millisecond)
	p.Record("index", 10*time.Millisecond)
	p.Record("train", 5*time.Millisecond)

	stats := p.Stats()
	require.Len(t, stats, 3)
	assert.Equal(t, []string{"index", "prune", "train"}, []string{stats[0].Name, stats[1].Name, stats[2].Name})

	index := stats[0]
	assert.Equal(t, 2, index.Count)
	assert.Equal(t, 40*time.Millisecond, index.Total)
	assert.Equal(t, 10*time.Millisecond, index.Min)
	assert.Equal(t, 30*time.Millisecond, index.Max)
	assert.Equal(t, 20*time.Millisecond, index.Average)
}

func TestTimer(t *testing.T) {
	p := NewProfiler()
	timer := p.Start("vectors")
	assert.GreaterOrEqual(t, timer.Stop(), time.Duration(0))

	stats := p.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Count)

	p.Reset()
	assert.Empty(t, p.Stats())
}

func TestNilProfiler(t *testing.T) {
	var p *Profiler
	p.Record("index", time.Second)
	p.Start("train").Stop()
	p.Reset()

	assert.Nil(t, p.Stats())

	var buf bytes.Buffer
	p.Report(&buf)
	assert.Contains(t, buf.String(), "No timing data")
}

func TestReport(t *testing.T) {
	p := NewProfiler()
	p.Record("a-very-long-stage-name-indeed", 1500*time.Millisecond)

	var buf bytes.Buffer
	p.Report(&buf)
	out := buf.String()

	assert.Contains(t, out, "a-very-long-stage...", "stage name truncated")
	assert.Contains(t, out, "1.500s")
}

func TestFormatDuration(t *testing.T) {
	testCases := []struct {
		d        time.Duration
		expected string
	}{
		{500 * time.Nanosecond, "500ns"},
		{1500 * time.Nanosecond, "1.5μs"},
		{2500 * time.Microsecond, "2.50ms"},
		{2 * time.Second, "2.000s"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, formatDuration(tc.d), tc.d.String())
	}
}
