package learning

import "fmt"

// Envelope is the tagged-union persisted form of a trained classifier.
// Exactly one variant field is set, matching Type.
type Envelope struct {
	Type            Kind             `json:"type"`
	NaiveBayes      *NaiveBayesState `json:"naive_bayes,omitempty"`
	NearestCentroid *CentroidState   `json:"nearest_centroid,omitempty"`
}

// Encode captures the learned parameters of a trained classifier
func Encode(c Classifier) (Envelope, error) {
	switch v := c.(type) {
	case *NaiveBayes:
		st, err := v.state()
		if err != nil {
			return Envelope{}, err
		}
		return Envelope{Type: KindNaiveBayes, NaiveBayes: st}, nil
	case *NearestCentroid:
		st, err := v.state()
		if err != nil {
			return Envelope{}, err
		}
		return Envelope{Type: KindNearestCentroid, NearestCentroid: st}, nil
	default:
		return Envelope{}, fmt.Errorf("%w: cannot encode %T", ErrUnknownClassifier, c)
	}
}

// Decode rebuilds the concrete trained classifier named by the envelope tag
func Decode(env Envelope) (Classifier, error) {
	switch env.Type {
	case KindNaiveBayes:
		if env.NaiveBayes == nil {
			return nil, fmt.Errorf("envelope %q has no parameters", env.Type)
		}
		return naiveBayesFromState(env.NaiveBayes)
	case KindNearestCentroid:
		if env.NearestCentroid == nil {
			return nil, fmt.Errorf("envelope %q has no parameters", env.Type)
		}
		return centroidFromState(env.NearestCentroid)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownClassifier, env.Type)
	}
}
