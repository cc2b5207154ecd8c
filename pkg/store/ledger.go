package store

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schemaVersion = 1

var (
	//go:embed sql/*
	f embed.FS

	errDBNotInitialized = errors.New("database not initialized")
)

const (
	insertRun = `INSERT INTO run (id, trained_at, data_path, winner, roc_auc, candidates, train_rows, test_rows, positive_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectRuns = `SELECT id, trained_at, data_path, winner, roc_auc, candidates, train_rows, test_rows, positive_rate
		FROM run ORDER BY trained_at DESC, rowid DESC LIMIT ?`

	insertVersion = `INSERT INTO schema_version (version, applied_at) VALUES (?, ?)
		ON CONFLICT(version) DO NOTHING`
)

// NewRunID returns a fresh training run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Init creates the ledger schema in the database at dbFilePath. It is safe
// to call on an existing ledger.
func Init(dbFilePath string) error {
	if dbFilePath == "" {
		return errors.New("dbFilePath not specified")
	}

	db, err := GetDB(dbFilePath)
	if err != nil {
		return err
	}
	defer db.Close()

	b, err := f.ReadFile("sql/ddl.sql")
	if err != nil {
		return fmt.Errorf("failed to read the schema creation file: %w", err)
	}
	if _, err := db.Exec(string(b)); err != nil {
		return fmt.Errorf("failed to create database schema in %s: %w", dbFilePath, err)
	}
	if _, err := db.Exec(insertVersion, schemaVersion, time.Now().UTC().Unix()); err != nil {
		return fmt.Errorf("failed to record schema version in %s: %w", dbFilePath, err)
	}

	slog.Debug("ledger ready", "path", dbFilePath)
	return nil
}

// GetDB opens the sqlite database at path.
func GetDB(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return conn, nil
}

// RecordRun appends a training run to the ledger. A blank run ID is
// replaced with a fresh one.
func (s *Store) RecordRun(m *Metrics) error {
	if m == nil {
		return errors.New("run required")
	}
	if m.RunID == "" {
		m.RunID = NewRunID()
	}

	db, err := s.ledger(true)
	if err != nil {
		return err
	}
	defer db.Close()

	return insertRunRow(db, m)
}

// ListRuns returns up to limit training runs, newest first. A ledger that
// was never written holds no runs.
func (s *Store) ListRuns(limit int) ([]*Metrics, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive: %d", limit)
	}
	if _, err := os.Stat(s.Path(LedgerFile)); errors.Is(err, os.ErrNotExist) {
		return []*Metrics{}, nil
	}

	db, err := s.ledger(false)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return selectRunRows(db, limit)
}

func (s *Store) ledger(create bool) (*sql.DB, error) {
	path := s.Path(LedgerFile)
	if create {
		if err := os.MkdirAll(s.dir, dirMode); err != nil {
			return nil, fmt.Errorf("error creating artifact directory %s: %w", s.dir, err)
		}
		if err := Init(path); err != nil {
			return nil, err
		}
	}
	return GetDB(path)
}

func insertRunRow(db *sql.DB, m *Metrics) error {
	if db == nil {
		return errDBNotInitialized
	}

	candidates, err := json.Marshal(m.Candidates)
	if err != nil {
		return fmt.Errorf("failed to encode candidate scores: %w", err)
	}

	stmt, err := db.Prepare(insertRun)
	if err != nil {
		return fmt.Errorf("failed to prepare run insert statement: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.Exec(m.RunID, m.TrainedAt.UTC().UnixNano(), m.DataPath, m.Winner, m.ROCAUC,
		string(candidates), m.TrainRows, m.TestRows, m.PositiveRate); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", m.RunID, err)
	}
	return nil
}

func selectRunRows(db *sql.DB, limit int) ([]*Metrics, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	stmt, err := db.Prepare(selectRuns)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare run select statement: %w", err)
	}
	defer stmt.Close()

	rows, err := stmt.Query(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	list := make([]*Metrics, 0)
	for rows.Next() {
		var (
			m          Metrics
			trainedAt  int64
			candidates string
		)
		if err := rows.Scan(&m.RunID, &trainedAt, &m.DataPath, &m.Winner, &m.ROCAUC,
			&candidates, &m.TrainRows, &m.TestRows, &m.PositiveRate); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if err := json.Unmarshal([]byte(candidates), &m.Candidates); err != nil {
			return nil, fmt.Errorf("failed to decode candidate scores of run %s: %w", m.RunID, err)
		}
		m.TrainedAt = time.Unix(0, trainedAt).UTC()
		list = append(list, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return list, nil
}
