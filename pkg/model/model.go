package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zpam/spamlearn/pkg/learning"
	"github.com/zpam/spamlearn/pkg/weighting"
)

// FormatVersion is the current persisted model layout
const FormatVersion = 1

// ErrUnsupportedVersion is returned when decoding a model written by an
// incompatible format version
var ErrUnsupportedVersion = errors.New("unsupported model format version")

// Snapshot is the persisted state of a trained email classifier
type Snapshot struct {
	FormatVersion int       `json:"format_version"`
	ModelID       string    `json:"model_id"`
	TrainedAt     time.Time `json:"trained_at"`

	Options Options `json:"options"`

	Vocabulary    Vocabulary `json:"vocabulary"`
	MaxRawCount   int        `json:"max_raw_count"`
	DocumentCount int        `json:"document_count"`

	Weighting  Weighting         `json:"weighting"`
	Classifier learning.Envelope `json:"classifier"`
}

// Options are the pipeline settings a model must be used with
type Options struct {
	TextPreProcessing bool               `json:"text_preprocessing"`
	FeatureSelection  bool               `json:"feature_selection"`
	DFSource          weighting.DFSource `json:"df_source"`

	// Parser and Normalizer are absent in models written before they were
	// recorded; readers fall back to the defaults
	Parser     *Parser     `json:"parser,omitempty"`
	Normalizer *Normalizer `json:"normalizer,omitempty"`
}

// Parser records how training mail was parsed and tokenised
type Parser struct {
	StripHTML      bool `json:"strip_html"`
	SplitMultipart bool `json:"split_multipart"`
	IncludeSubject bool `json:"include_subject"`
}

// Normalizer records the term normalisation rules
type Normalizer struct {
	MinLength int    `json:"min_length"`
	Stem      bool   `json:"stem"`
	Language  string `json:"language"`
}

// Vocabulary holds the frozen term columns and their training document frequencies
type Vocabulary struct {
	Terms               []string `json:"terms"`
	DocumentFrequencies []int    `json:"document_frequencies"`
}

// Weighting tags the weighting strategy
type Weighting struct {
	Type weighting.Kind `json:"type"`
}

// Encode writes s as indented JSON
func Encode(w io.Writer, s *Snapshot) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s); err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	return nil
}

// Decode reads a snapshot and checks its format version
func Decode(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	if s.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, s.FormatVersion)
	}
	return &s, nil
}

// Marshal returns the indented JSON encoding of s
func Marshal(s *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a snapshot held in memory
func Unmarshal(data []byte) (*Snapshot, error) {
	return Decode(bytes.NewReader(data))
}

// SaveFile writes s to path, creating parent directories
func SaveFile(path string, s *Snapshot) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create model directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create model file: %w", err)
	}
	defer file.Close()

	if err := Encode(file, s); err != nil {
		return err
	}
	return file.Close()
}

// LoadFile reads a snapshot from path
func LoadFile(path string) (*Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer file.Close()

	return Decode(file)
}
