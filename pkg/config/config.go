package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zpam/spamlearn/pkg/learning"
	"github.com/zpam/spamlearn/pkg/weighting"
)

// Config represents the complete spamlearn configuration
type Config struct {
	// Feature extraction and model training
	Learning LearningConfig `yaml:"learning"`

	// Cross-validation
	Evaluation EvaluationConfig `yaml:"evaluation"`

	// Mail parsing
	Parser ParserConfig `yaml:"parser"`

	// Model persistence
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Milter server
	Milter MilterConfig `yaml:"milter"`

	// Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics"`
}

// LearningConfig contains the training pipeline settings
type LearningConfig struct {
	Classifier string  `yaml:"classifier"` // naive_bayes, nearest_centroid
	Weighting  string  `yaml:"weighting"`  // frequency, tfidf
	DFSource   string  `yaml:"df_source"`  // training, local
	Smoothing  float64 `yaml:"smoothing"`

	TextPreProcessing bool `yaml:"text_preprocessing"`
	FeatureSelection  bool `yaml:"feature_selection"`

	// Document-frequency percentiles used for feature selection
	LowerPercentile float64 `yaml:"lower_percentile"`
	UpperPercentile float64 `yaml:"upper_percentile"`

	// Filename substring that marks ham
	HamMarker string `yaml:"ham_marker"`

	// Parallel indexing workers
	Workers int `yaml:"workers"`
}

// EvaluationConfig contains k-fold cross-validation settings
type EvaluationConfig struct {
	Folds              int   `yaml:"folds"`
	Shuffle            bool  `yaml:"shuffle"`
	Seed               int64 `yaml:"seed"`
	MaxConcurrentFolds int   `yaml:"max_concurrent_folds"`
}

// ParserConfig contains mail parsing settings
type ParserConfig struct {
	StripHTML      bool     `yaml:"strip_html"`
	IncludeSubject bool     `yaml:"include_subject"`
	SplitMultipart bool     `yaml:"split_multipart"`
	Extensions     []string `yaml:"extensions"`
}

// StoreConfig selects where trained models are kept
type StoreConfig struct {
	// Backend type: "file", "redis", "sqlite" or "postgres"
	Backend string `yaml:"backend"`

	// Name under which the default model is saved
	ModelName string `yaml:"model_name"`

	File  FileStoreConfig  `yaml:"file"`
	Redis RedisStoreConfig `yaml:"redis"`
	SQL   SQLStoreConfig   `yaml:"sql"`
}

// FileStoreConfig contains file backend settings
type FileStoreConfig struct {
	Dir string `yaml:"dir"`
}

// RedisStoreConfig contains Redis backend settings
type RedisStoreConfig struct {
	RedisURL    string `yaml:"redis_url"`
	KeyPrefix   string `yaml:"key_prefix"`
	DatabaseNum int    `yaml:"database_num"`
	TTL         string `yaml:"ttl"` // Duration string like "720h", empty = no expiry
}

// SQLStoreConfig contains SQLite/Postgres backend settings
type SQLStoreConfig struct {
	DSN string `yaml:"dsn"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	File   string `yaml:"file"`   // log file path, empty = stderr
	Format string `yaml:"format"` // json, text
}

// MilterConfig contains milter server settings
type MilterConfig struct {
	Enabled bool `yaml:"enabled"`

	// Network and address for milter socket
	Network string `yaml:"network"` // "tcp" or "unix"
	Address string `yaml:"address"` // "127.0.0.1:7357" or "/tmp/spamlearn.sock"

	// Connection settings
	ReadTimeoutMs  int `yaml:"read_timeout_ms"`
	WriteTimeoutMs int `yaml:"write_timeout_ms"`

	// Protocol options (what events to skip)
	SkipConnect bool `yaml:"skip_connect"`
	SkipHelo    bool `yaml:"skip_helo"`
	SkipRcpt    bool `yaml:"skip_rcpt"`

	GracefulShutdownTimeout int `yaml:"graceful_shutdown_timeout_ms"`

	// Response modes
	RejectSpam    bool   `yaml:"reject_spam"`
	RejectMessage string `yaml:"reject_message"`

	// Header modifications
	AddSpamHeaders   bool   `yaml:"add_spam_headers"`
	SpamHeaderPrefix string `yaml:"spam_header_prefix"`
}

// MetricsConfig contains the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Learning: LearningConfig{
			Classifier:        string(learning.KindNaiveBayes),
			Weighting:         string(weighting.KindFrequency),
			DFSource:          string(weighting.DFTraining),
			Smoothing:         1.0,
			TextPreProcessing: true,
			FeatureSelection:  true,
			LowerPercentile:   0.001,
			UpperPercentile:   0.50,
			HamMarker:         "ham",
			Workers:           4,
		},
		Evaluation: EvaluationConfig{
			Folds:              10,
			Shuffle:            false,
			Seed:               1,
			MaxConcurrentFolds: 4,
		},
		Parser: ParserConfig{
			StripHTML:      true,
			IncludeSubject: true,
			SplitMultipart: true,
			Extensions:     []string{".eml", ".msg", ".txt", ".email", ""},
		},
		Store: StoreConfig{
			Backend:   "file",
			ModelName: "default",
			File: FileStoreConfig{
				Dir: "models",
			},
			Redis: RedisStoreConfig{
				RedisURL:    "redis://localhost:6379",
				KeyPrefix:   "spamlearn",
				DatabaseNum: 0,
				TTL:         "",
			},
			SQL: SQLStoreConfig{
				DSN: "spamlearn.db",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			File:   "",
			Format: "text",
		},
		Milter: MilterConfig{
			Enabled:                 false,
			Network:                 "tcp",
			Address:                 "127.0.0.1:7357",
			ReadTimeoutMs:           10000,
			WriteTimeoutMs:          10000,
			SkipConnect:             false,
			SkipHelo:                false,
			SkipRcpt:                false,
			GracefulShutdownTimeout: 10000,
			RejectSpam:              false,
			RejectMessage:           "",
			AddSpamHeaders:          true,
			SpamHeaderPrefix:        "X-Spamlearn-",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9108",
			Path:    "/metrics",
		},
	}
}

// LoadConfig loads configuration from file, falling back to defaults
func LoadConfig(configPath string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// If no config file specified, return defaults
	if configPath == "" {
		return config, nil
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// SaveConfig saves configuration to file
func (c *Config) SaveConfig(configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	l := c.Learning
	if _, err := learning.ParseKind(l.Classifier); err != nil {
		return err
	}
	if _, err := weighting.ParseKind(l.Weighting); err != nil {
		return err
	}
	if _, err := weighting.ParseDFSource(l.DFSource); err != nil {
		return err
	}
	if !(l.Smoothing > 0) || math.IsInf(l.Smoothing, 0) {
		return fmt.Errorf("smoothing must be > 0")
	}
	if !validPercentile(l.LowerPercentile) || !validPercentile(l.UpperPercentile) {
		return fmt.Errorf("lower_percentile and upper_percentile must be between 0 and 1")
	}
	if l.LowerPercentile > l.UpperPercentile {
		return fmt.Errorf("lower_percentile must not exceed upper_percentile")
	}
	if l.HamMarker == "" {
		return fmt.Errorf("ham_marker cannot be empty")
	}
	if l.Workers < 1 {
		return fmt.Errorf("workers must be >= 1")
	}

	if c.Evaluation.Folds < 2 {
		return fmt.Errorf("folds must be >= 2")
	}
	if c.Evaluation.MaxConcurrentFolds < 1 {
		return fmt.Errorf("max_concurrent_folds must be >= 1")
	}

	switch c.Store.Backend {
	case "file", "redis", "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid store backend: %s", c.Store.Backend)
	}
	if c.Store.ModelName == "" {
		return fmt.Errorf("store model_name cannot be empty")
	}
	if c.Store.Redis.TTL != "" {
		if _, err := time.ParseDuration(c.Store.Redis.TTL); err != nil {
			return fmt.Errorf("invalid redis ttl: %w", err)
		}
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error"}
	validLevel := false
	for _, level := range validLevels {
		if c.Logging.Level == level {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}

	// Validate milter settings
	if c.Milter.Enabled {
		if c.Milter.Network != "tcp" && c.Milter.Network != "unix" {
			return fmt.Errorf("milter network must be 'tcp' or 'unix'")
		}

		if c.Milter.Address == "" {
			return fmt.Errorf("milter address cannot be empty when enabled")
		}

		if c.Milter.ReadTimeoutMs < 1000 {
			return fmt.Errorf("milter read_timeout_ms must be >= 1000")
		}

		if c.Milter.WriteTimeoutMs < 1000 {
			return fmt.Errorf("milter write_timeout_ms must be >= 1000")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics address cannot be empty when enabled")
	}

	return nil
}

func validPercentile(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 1
}

// RedisTTL returns the parsed Redis key expiry, zero meaning none
func (c *Config) RedisTTL() time.Duration {
	if c.Store.Redis.TTL == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Store.Redis.TTL)
	if err != nil {
		return 0
	}
	return d
}
