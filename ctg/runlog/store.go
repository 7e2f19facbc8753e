// Package runlog persists per-epoch training scalars to a libsql
// database so runs can be compared after the fact.
package runlog

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	internal "github.com/MathieuTuli/transformers-practice/ctg"
)

// Store writes one row per run and one row per (trial, epoch).
type Store struct {
	db *sql.DB
}

// Open connects to the database at dsn and creates the schema if needed.
// An empty dsn falls back to the shared in-memory database. Plain file
// paths are accepted and rewritten to file: DSNs.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = internal.DefaultDatabaseDSN
	}
	if !strings.HasPrefix(dsn, "file:") && !strings.Contains(dsn, "://") {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("could not create run log directory: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s", dsn)
	}

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log database: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("run log open", "dsn", dsn)
	return s, nil
}

// init sets up the run log tables.
func (s *Store) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY UNIQUE,
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		config TEXT
	)`)
	if err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}

	_, err = s.db.Exec(`CREATE TABLE IF NOT EXISTS epochs (
		run_id TEXT NOT NULL,
		trial INTEGER NOT NULL,
		epoch INTEGER NOT NULL,
		train_loss REAL,
		val_loss REAL,
		train_seconds REAL,
		val_seconds REAL,
		steps INTEGER,
		PRIMARY KEY (run_id, trial, epoch)
	)`)
	if err != nil {
		return fmt.Errorf("failed to create epochs table: %w", err)
	}
	return nil
}

// BeginRun registers a new run and returns its id. The config string is
// stored verbatim, normally the serialized training configuration.
func (s *Store) BeginRun(config string) (string, error) {
	id := uuid.New().String()
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Will be a no-op if transaction is committed

	if _, err := tx.Exec("INSERT INTO runs (id, config) VALUES (?, ?)", id, config); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

// EpochRecord is one persisted epoch summary. Losses are the summed
// per-step values the agent reports; steps is recorded so offline
// consumers can derive means.
type EpochRecord struct {
	Trial        int
	Epoch        int
	TrainLoss    float64
	ValLoss      float64
	TrainSeconds float64
	ValSeconds   float64
	Steps        int
}

// RecordEpoch appends one epoch row for a run.
func (s *Store) RecordEpoch(runID string, rec EpochRecord) error {
	_, err := s.db.Exec(`INSERT INTO epochs
		(run_id, trial, epoch, train_loss, val_loss, train_seconds, val_seconds, steps)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Trial, rec.Epoch, rec.TrainLoss, rec.ValLoss,
		rec.TrainSeconds, rec.ValSeconds, rec.Steps)
	if err != nil {
		return fmt.Errorf("failed to insert epoch row: %w", err)
	}
	return nil
}

// Epochs returns every epoch row for a run ordered by trial then epoch.
func (s *Store) Epochs(runID string) ([]EpochRecord, error) {
	rows, err := s.db.Query(`SELECT trial, epoch, train_loss, val_loss,
		train_seconds, val_seconds, steps
		FROM epochs WHERE run_id = ? ORDER BY trial, epoch`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query epochs: %w", err)
	}
	defer rows.Close()

	var records []EpochRecord
	for rows.Next() {
		var rec EpochRecord
		if err := rows.Scan(&rec.Trial, &rec.Epoch, &rec.TrainLoss, &rec.ValLoss,
			&rec.TrainSeconds, &rec.ValSeconds, &rec.Steps); err != nil {
			return nil, fmt.Errorf("failed to scan epoch row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RunConfig returns the config string stored for a run.
func (s *Store) RunConfig(runID string) (string, error) {
	var config string
	err := s.db.QueryRow("SELECT config FROM runs WHERE id = ?", runID).Scan(&config)
	if err != nil {
		return "", fmt.Errorf("failed to read run %s: %w", runID, err)
	}
	return config, nil
}

// StartedAt returns when a run was registered.
func (s *Store) StartedAt(runID string) (time.Time, error) {
	var raw string
	err := s.db.QueryRow("SELECT started_at FROM runs WHERE id = ?", runID).Scan(&raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read run %s: %w", runID, err)
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, perr := time.Parse(layout, raw); perr == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q for run %s", raw, runID)
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
