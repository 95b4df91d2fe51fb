// Package store persists trained model snapshots. Backends: a directory of
// JSON files, Redis, SQLite and PostgreSQL. The SQL backends also keep a
// history of cross-validation runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zpam/spamlearn/pkg/config"
	"github.com/zpam/spamlearn/pkg/corpus"
	"github.com/zpam/spamlearn/pkg/crossval"
	"github.com/zpam/spamlearn/pkg/filter"
	"github.com/zpam/spamlearn/pkg/logger"
	"github.com/zpam/spamlearn/pkg/model"
)

var (
	// ErrModelNotFound is returned by Load when no model has the given name
	ErrModelNotFound = errors.New("model not found")
	// ErrInvalidName is returned for empty names or names containing path separators
	ErrInvalidName = errors.New("invalid model name")
	// ErrUnknownBackend is returned by Open for an unsupported backend
	ErrUnknownBackend = errors.New("unknown store backend")
)

// ModelInfo summarises a stored model without decoding its parameters
type ModelInfo struct {
	Name      string
	ModelID   string
	TrainedAt time.Time
	Features  int
	Documents int
}

// Store saves and loads model snapshots by name
type Store interface {
	Save(ctx context.Context, name string, snap *model.Snapshot) error
	Load(ctx context.Context, name string) (*model.Snapshot, error)
	List(ctx context.Context) ([]ModelInfo, error)
	Close() error
}

// EvaluationRecord is a stored cross-validation report
type EvaluationRecord struct {
	RunID        string
	ModelName    string
	K            int
	Documents    int
	Combined     crossval.ConfusionMatrix
	MeanAccuracy float64
	StdDev       float64
	CreatedAt    time.Time
}

// EvaluationRecorder is implemented by stores that keep evaluation history
type EvaluationRecorder interface {
	RecordEvaluation(ctx context.Context, modelName string, report *crossval.Report) error
	Evaluations(ctx context.Context, modelName string, limit int) ([]EvaluationRecord, error)
}

// Open creates the store selected by cfg.Store.Backend
func Open(ctx context.Context, cfg *config.Config, log *logrus.Entry) (Store, error) {
	log = logger.OrDiscard(log, "store")
	sc := cfg.Store

	var (
		s   Store
		err error
	)
	switch sc.Backend {
	case "file", "":
		s, err = NewFileStore(sc.File.Dir)
	case "redis":
		s, err = NewRedisStore(ctx, RedisOptions{
			URL:         sc.Redis.RedisURL,
			KeyPrefix:   sc.Redis.KeyPrefix,
			DatabaseNum: sc.Redis.DatabaseNum,
			TTL:         cfg.RedisTTL(),
		})
	case "sqlite":
		s, err = OpenSQLite(ctx, sc.SQL.DSN)
	case "postgres":
		s, err = OpenPostgres(ctx, sc.SQL.DSN)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, sc.Backend)
	}
	if err != nil {
		return nil, err
	}

	log.WithField("backend", sc.Backend).Debug("opened model store")
	return s, nil
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func infoOf(name string, snap *model.Snapshot) ModelInfo {
	return ModelInfo{
		Name:      name,
		ModelID:   snap.ModelID,
		TrainedAt: snap.TrainedAt,
		Features:  len(snap.Vocabulary.Terms),
		Documents: snap.DocumentCount,
	}
}

// SaveClassifier snapshots a trained classifier into s under name
func SaveClassifier(ctx context.Context, s Store, name string, c *filter.EmailClassifier) error {
	snap, err := c.Snapshot()
	if err != nil {
		return err
	}
	return s.Save(ctx, name, snap)
}

// LoadClassifier restores a trained classifier from s
func LoadClassifier(ctx context.Context, s Store, name string, source corpus.Source, options ...filter.Option) (*filter.EmailClassifier, error) {
	snap, err := s.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	return filter.Restore(snap, source, options...)
}
