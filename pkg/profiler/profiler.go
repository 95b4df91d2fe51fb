package profiler

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Profiler tracks the durations of pipeline stages. Stages are reported in
// the order they were first recorded. A nil *Profiler records nothing.
type Profiler struct {
	mu     sync.Mutex
	order  []string
	stages map[string][]time.Duration
}

// NewProfiler creates a new profiler
func NewProfiler() *Profiler {
	return &Profiler{
		stages: make(map[string][]time.Duration),
	}
}

// Timer represents a timing operation
type Timer struct {
	profiler *Profiler
	name     string
	start    time.Time
}

// Start begins timing a stage
func (p *Profiler) Start(name string) *Timer {
	return &Timer{
		profiler: p,
		name:     name,
		start:    time.Now(),
	}
}

// Stop completes the timing and records the duration
func (t *Timer) Stop() time.Duration {
	duration := time.Since(t.start)
	t.profiler.Record(t.name, duration)
	return duration
}

// Record manually records a timing
func (p *Profiler) Record(name string, duration time.Duration) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, seen := p.stages[name]; !seen {
		p.order = append(p.order, name)
	}
	p.stages[name] = append(p.stages[name], duration)
}

// Stats contains timing statistics of one stage
type Stats struct {
	Name    string
	Count   int
	Total   time.Duration
	Average time.Duration
	Min     time.Duration
	Max     time.Duration
	Median  time.Duration
}

// Stats returns statistics for every stage in first-recorded order
func (p *Profiler) Stats() []Stats {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Stats, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, summarize(name, p.stages[name]))
	}
	return out
}

func summarize(name string, times []time.Duration) Stats {
	sorted := append([]time.Duration(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, t := range sorted {
		total += t
	}

	return Stats{
		Name:    name,
		Count:   len(sorted),
		Total:   total,
		Average: total / time.Duration(len(sorted)),
		Min:     sorted[0],
		Max:     sorted[len(sorted)-1],
		Median:  sorted[len(sorted)/2],
	}
}

// Reset clears all timing data
func (p *Profiler) Reset() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.order = nil
	p.stages = make(map[string][]time.Duration)
	p.mu.Unlock()
}

// Report writes a formatted stage timing table
func (p *Profiler) Report(w io.Writer) {
	stats := p.Stats()

	if len(stats) == 0 {
		fmt.Fprintln(w, "No timing data available")
		return
	}

	fmt.Fprintf(w, "⏱️  Stage Timings\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "%-20s %8s %10s %10s %10s %10s\n", "Stage", "Count", "Total", "Avg", "Min", "Max")
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────────────\n")

	for _, stat := range stats {
		fmt.Fprintf(w, "%-20s %8d %10s %10s %10s %10s\n",
			truncate(stat.Name, 20),
			stat.Count,
			formatDuration(stat.Total),
			formatDuration(stat.Average),
			formatDuration(stat.Min),
			formatDuration(stat.Max),
		)
	}

	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════════\n")
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%.0fns", float64(d.Nanoseconds()))
	case d < time.Millisecond:
		return fmt.Sprintf("%.1fμs", float64(d.Nanoseconds())/1000)
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	default:
		return fmt.Sprintf("%.3fs", d.Seconds())
	}
}

// truncate truncates a string to a maximum length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
