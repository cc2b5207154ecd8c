// Package store persists churnctl artifacts in a single directory: the
// fitted pipeline, its metrics, the latest risk report, and a ledger of
// training runs.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/mchmarny/churnctl/pkg/failure"
	"github.com/mchmarny/churnctl/pkg/pipeline"
	"github.com/mchmarny/churnctl/pkg/score"
)

const (
	PipelineFile = "model.json"
	MetricsFile  = "metrics.json"
	ReportFile   = "top_risk.csv"
	LedgerFile   = "runs.db"

	dirMode  = 0755
	fileMode = 0644
)

// ErrCorrupt means an artifact exists but cannot be decoded.
var ErrCorrupt = errors.New("artifact corrupt")

// Store reads and writes artifacts under one directory.
type Store struct {
	dir string
}

// New returns a store rooted at dir. The directory is created on first write.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("artifact directory not specified")
	}
	return &Store{dir: dir}, nil
}

// Dir returns the artifact directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the location of the named artifact.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Score is the held-out metric of one candidate.
type Score struct {
	Name string  `json:"name" yaml:"name"`
	AUC  float64 `json:"roc_auc" yaml:"rocAuc"`
}

// Metrics describes one training run and its winning pipeline.
type Metrics struct {
	RunID        string    `json:"run_id" yaml:"runId"`
	TrainedAt    time.Time `json:"trained_at" yaml:"trainedAt"`
	DataPath     string    `json:"data_path" yaml:"dataPath"`
	Winner       string    `json:"winner" yaml:"winner"`
	ROCAUC       float64   `json:"roc_auc" yaml:"rocAuc"`
	Candidates   []Score   `json:"candidates" yaml:"candidates"`
	TrainRows    int       `json:"train_rows" yaml:"trainRows"`
	TestRows     int       `json:"test_rows" yaml:"testRows"`
	PositiveRate float64   `json:"positive_rate" yaml:"positiveRate"`
}

// SavePipeline replaces the persisted pipeline.
func (s *Store) SavePipeline(p *pipeline.Fitted) error {
	if p == nil {
		return errors.New("pipeline required")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("error encoding pipeline: %w", err)
	}
	return s.write(PipelineFile, func(w io.Writer) error {
		_, err := w.Write(b)
		return err
	})
}

// LoadPipeline restores the persisted pipeline.
func (s *Store) LoadPipeline() (*pipeline.Fitted, error) {
	b, err := s.read(PipelineFile)
	if err != nil {
		return nil, err
	}
	p := &pipeline.Fitted{}
	if err := json.Unmarshal(b, p); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, s.Path(PipelineFile), err)
	}
	return p, nil
}

// SaveMetrics replaces the persisted metrics record.
func (s *Store) SaveMetrics(m *Metrics) error {
	if m == nil {
		return errors.New("metrics required")
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding metrics: %w", err)
	}
	return s.write(MetricsFile, func(w io.Writer) error {
		_, err := w.Write(append(b, '\n'))
		return err
	})
}

// LoadMetrics reads the persisted metrics record.
func (s *Store) LoadMetrics() (*Metrics, error) {
	b, err := s.read(MetricsFile)
	if err != nil {
		return nil, err
	}
	m := &Metrics{}
	if err := json.Unmarshal(b, m); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, s.Path(MetricsFile), err)
	}
	return m, nil
}

// SaveReport replaces the persisted risk report.
func (s *Store) SaveReport(list []score.Risk) error {
	if list == nil {
		list = []score.Risk{}
	}
	return s.write(ReportFile, func(w io.Writer) error {
		return gocsv.Marshal(list, w)
	})
}

// LoadReport reads the persisted risk report in ranked order.
func (s *Store) LoadReport() ([]score.Risk, error) {
	b, err := s.read(ReportFile)
	if err != nil {
		return nil, err
	}
	list := []score.Risk{}
	if err := gocsv.UnmarshalBytes(b, &list); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, s.Path(ReportFile), err)
	}
	return list, nil
}

// write stages content in a temp file next to the target and renames it
// into place so readers never see a partial artifact.
func (s *Store) write(name string, fn func(io.Writer) error) error {
	if err := os.MkdirAll(s.dir, dirMode); err != nil {
		return fmt.Errorf("error creating artifact directory %s: %w", s.dir, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("error creating temp file for %s: %w", name, err)
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	if err := fn(tmp); err != nil {
		cleanup()
		return fmt.Errorf("error writing %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("error syncing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("error closing %s: %w", name, err)
	}
	if err := os.Chmod(tmp.Name(), fileMode); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("error setting mode of %s: %w", name, err)
	}

	target := s.Path(name)
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("error replacing %s: %w", target, err)
	}

	slog.Debug("artifact saved", "path", target)
	return nil
}

func (s *Store) read(name string) ([]byte, error) {
	path := s.Path(name)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", failure.ErrArtifactMissing, path)
		}
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrCorrupt, path)
	}
	return b, nil
}
