package crossval

import (
	"fmt"
	"io"

	"github.com/zpam/spamlearn/pkg/learning"
)

// ConfusionMatrix counts classifications by actual (row) and predicted
// (column) label
type ConfusionMatrix struct {
	Counts [2][2]int `json:"counts"`
}

// Add records one classification
func (m *ConfusionMatrix) Add(actual, predicted learning.Label) {
	m.Counts[actual][predicted]++
}

// Merge adds every count of other into m
func (m *ConfusionMatrix) Merge(other ConfusionMatrix) {
	for a := range m.Counts {
		for p := range m.Counts[a] {
			m.Counts[a][p] += other.Counts[a][p]
		}
	}
}

// Count returns the number of documents of actual class classified as predicted
func (m ConfusionMatrix) Count(actual, predicted learning.Label) int {
	return m.Counts[actual][predicted]
}

// Total returns the number of recorded classifications
func (m ConfusionMatrix) Total() int {
	total := 0
	for a := range m.Counts {
		for p := range m.Counts[a] {
			total += m.Counts[a][p]
		}
	}
	return total
}

// Correct returns the number of classifications on the diagonal
func (m ConfusionMatrix) Correct() int {
	return m.Counts[learning.Ham][learning.Ham] + m.Counts[learning.Spam][learning.Spam]
}

// Accuracy is Correct / Total, or 0 for an empty matrix
func (m ConfusionMatrix) Accuracy() float64 {
	return ratio(m.Correct(), m.Total())
}

// Precision of label: the share of predictions of label that were right
func (m ConfusionMatrix) Precision(label learning.Label) float64 {
	predicted := m.Counts[learning.Ham][label] + m.Counts[learning.Spam][label]
	return ratio(m.Counts[label][label], predicted)
}

// Recall of label: the share of documents of label that were found
func (m ConfusionMatrix) Recall(label learning.Label) float64 {
	actual := m.Counts[label][learning.Ham] + m.Counts[label][learning.Spam]
	return ratio(m.Counts[label][label], actual)
}

// F1 is the harmonic mean of precision and recall for label
func (m ConfusionMatrix) F1(label learning.Label) float64 {
	p, r := m.Precision(label), m.Recall(label)
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Print writes the matrix and per-class metrics
func (m ConfusionMatrix) Print(w io.Writer) {
	fmt.Fprintf(w, "%-12s %10s %10s\n", "actual\\pred", "ham", "spam")
	for _, actual := range learning.Labels {
		fmt.Fprintf(w, "%-12s %10d %10d\n", actual, m.Counts[actual][learning.Ham], m.Counts[actual][learning.Spam])
	}
	fmt.Fprintf(w, "Accuracy: %.4f (%d/%d)\n", m.Accuracy(), m.Correct(), m.Total())
	for _, label := range learning.Labels {
		fmt.Fprintf(w, "%-5s precision: %.4f  recall: %.4f  f1: %.4f\n",
			label, m.Precision(label), m.Recall(label), m.F1(label))
	}
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
