package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/zpam/spamlearn/pkg/crossval"
	"github.com/zpam/spamlearn/pkg/model"
)

// timeLayout has fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type dialect struct {
	driver     string
	realType   string
	dollarArgs bool
}

var (
	sqliteDialect   = dialect{driver: "sqlite", realType: "REAL"}
	postgresDialect = dialect{driver: "postgres", realType: "DOUBLE PRECISION", dollarArgs: true}
)

// rebind rewrites ? placeholders as $1, $2, ... for postgres
func (d dialect) rebind(query string) string {
	if !d.dollarArgs {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d dialect) schema() string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS models (
	name TEXT PRIMARY KEY,
	model_id TEXT NOT NULL,
	trained_at TEXT NOT NULL,
	features INTEGER NOT NULL,
	documents INTEGER NOT NULL,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS evaluations (
	run_id TEXT PRIMARY KEY,
	model_name TEXT NOT NULL,
	k INTEGER NOT NULL,
	documents INTEGER NOT NULL,
	mean_accuracy %[1]s NOT NULL,
	std_dev %[1]s NOT NULL,
	matrix TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_model ON evaluations(model_name, created_at);
`, d.realType)
}

// SQLStore keeps models and evaluation history in SQLite or PostgreSQL
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// OpenSQLite opens a SQLite database with WAL mode enabled
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open(sqliteDialect.driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, err
	}

	return newSQLStore(ctx, db, sqliteDialect)
}

// OpenPostgres connects to PostgreSQL and verifies the connection
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open(postgresDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return newSQLStore(ctx, db, postgresDialect)
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect) (*SQLStore, error) {
	for _, stmt := range strings.Split(d.schema(), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initialising schema: %w", err)
		}
	}
	return &SQLStore{db: db, dialect: d}, nil
}

func (s *SQLStore) Save(ctx context.Context, name string, snap *model.Snapshot) error {
	if err := validName(name); err != nil {
		return err
	}
	data, err := model.Marshal(snap)
	if err != nil {
		return err
	}
	info := infoOf(name, snap)

	_, err = s.db.ExecContext(ctx, s.dialect.rebind(`
INSERT INTO models (name, model_id, trained_at, features, documents, data)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (name) DO UPDATE SET
	model_id = excluded.model_id,
	trained_at = excluded.trained_at,
	features = excluded.features,
	documents = excluded.documents,
	data = excluded.data`),
		name, info.ModelID, info.TrainedAt.UTC().Format(timeLayout), info.Features, info.Documents, string(data))
	if err != nil {
		return fmt.Errorf("failed to save model %s: %w", name, err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context, name string) (*model.Snapshot, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	var data string
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT data FROM models WHERE name = ?`), name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", name, err)
	}
	return model.Unmarshal([]byte(data))
}

func (s *SQLStore) List(ctx context.Context) ([]ModelInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, model_id, trained_at, features, documents FROM models ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	defer rows.Close()

	var infos []ModelInfo
	for rows.Next() {
		var (
			info      ModelInfo
			trainedAt string
		)
		if err := rows.Scan(&info.Name, &info.ModelID, &trainedAt, &info.Features, &info.Documents); err != nil {
			return nil, err
		}
		if info.TrainedAt, err = time.Parse(timeLayout, trainedAt); err != nil {
			return nil, fmt.Errorf("decoding trained_at of model %s: %w", info.Name, err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// RecordEvaluation stores a cross-validation report under its run ID
func (s *SQLStore) RecordEvaluation(ctx context.Context, modelName string, report *crossval.Report) error {
	matrix, err := json.Marshal(report.Combined)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.dialect.rebind(`
INSERT INTO evaluations (run_id, model_name, k, documents, mean_accuracy, std_dev, matrix, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		report.RunID, modelName, report.K, report.Documents, report.MeanAccuracy, report.StdDev,
		string(matrix), report.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to record evaluation %s: %w", report.RunID, err)
	}
	return nil
}

// Evaluations returns the most recent runs for modelName, newest first.
// An empty modelName matches every model.
func (s *SQLStore) Evaluations(ctx context.Context, modelName string, limit int) ([]EvaluationRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT run_id, model_name, k, documents, mean_accuracy, std_dev, matrix, created_at FROM evaluations`
	args := []any{}
	if modelName != "" {
		query += ` WHERE model_name = ?`
		args = append(args, modelName)
	}
	query += ` ORDER BY created_at DESC, run_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing evaluations: %w", err)
	}
	defer rows.Close()

	var records []EvaluationRecord
	for rows.Next() {
		var (
			r         EvaluationRecord
			matrix    string
			createdAt string
		)
		if err := rows.Scan(&r.RunID, &r.ModelName, &r.K, &r.Documents, &r.MeanAccuracy, &r.StdDev, &matrix, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(matrix), &r.Combined); err != nil {
			return nil, fmt.Errorf("decoding matrix of %s: %w", r.RunID, err)
		}
		if r.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("decoding created_at of %s: %w", r.RunID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
