package learning

import "fmt"

// NearestCentroid assigns a vector to the class whose mean training vector
// is closest in Euclidean distance. It does not support feature ranking.
type NearestCentroid struct {
	trained   bool
	dims      int
	centroids [2][]float64
}

// NewNearestCentroid creates an untrained nearest-centroid classifier
func NewNearestCentroid() *NearestCentroid {
	return &NearestCentroid{}
}

func (nc *NearestCentroid) Kind() Kind {
	return KindNearestCentroid
}

func (nc *NearestCentroid) Train(examples []LabelledVector) error {
	nc.trained = false

	dims, counts, err := validateExamples(examples, true)
	if err != nil {
		return err
	}

	var centroids [2][]float64
	for _, label := range Labels {
		centroids[label] = make([]float64, dims)
	}
	for _, ex := range examples {
		c := centroids[ex.Label]
		for j, v := range ex.Vector {
			c[j] += v
		}
	}
	for _, label := range Labels {
		n := float64(counts[label])
		for j := range centroids[label] {
			centroids[label][j] /= n
		}
	}

	nc.dims = dims
	nc.centroids = centroids
	nc.trained = true
	return nil
}

// Classify returns the nearest class; equidistant vectors classify as Ham
func (nc *NearestCentroid) Classify(vector []float64) (Label, error) {
	if !nc.trained {
		return Ham, ErrNotTrained
	}
	if len(vector) != nc.dims {
		return Ham, fmt.Errorf("%w: got %d features, model has %d", ErrDimensionMismatch, len(vector), nc.dims)
	}

	var dist [2]float64
	for _, label := range Labels {
		c := nc.centroids[label]
		for j, v := range vector {
			d := v - c[j]
			dist[label] += d * d
		}
	}
	if dist[Spam] < dist[Ham] {
		return Spam, nil
	}
	return Ham, nil
}

// CentroidState is the persisted form of a trained NearestCentroid
type CentroidState struct {
	Dimensions int          `json:"dimensions"`
	Centroids  [2][]float64 `json:"centroids"`
}

func (nc *NearestCentroid) state() (*CentroidState, error) {
	if !nc.trained {
		return nil, ErrNotTrained
	}
	st := &CentroidState{Dimensions: nc.dims}
	for _, label := range Labels {
		st.Centroids[label] = append([]float64(nil), nc.centroids[label]...)
	}
	return st, nil
}

func centroidFromState(st *CentroidState) (*NearestCentroid, error) {
	nc := NewNearestCentroid()
	for _, label := range Labels {
		if len(st.Centroids[label]) != st.Dimensions {
			return nil, fmt.Errorf("%w: %s centroid has %d entries, expected %d",
				ErrDimensionMismatch, label, len(st.Centroids[label]), st.Dimensions)
		}
		nc.centroids[label] = append([]float64(nil), st.Centroids[label]...)
	}
	nc.dims = st.Dimensions
	nc.trained = true
	return nc, nil
}

var _ Classifier = (*NearestCentroid)(nil)
