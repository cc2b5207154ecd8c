package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	FileName = "config.yaml"
	dirMode  = 0700
	fileMode = 0600

	CandidateLogReg = "logreg"
	CandidateForest = "forest"
)

// Config is the churnctl policy file.
type Config struct {
	Data       Data        `yaml:"data"`
	Artifacts  Artifacts   `yaml:"artifacts"`
	Split      Split       `yaml:"split"`
	Candidates []Candidate `yaml:"candidates"`
	Report     Report      `yaml:"report"`
	Tiers      Tiers       `yaml:"tiers"`
	Dashboard  Dashboard   `yaml:"dashboard"`
}

// Data describes the raw input file and its fixed columns.
type Data struct {
	Path        string   `yaml:"path"`
	IDColumn    string   `yaml:"idColumn"`
	LabelColumn string   `yaml:"labelColumn"`
	PositiveTag string   `yaml:"positiveLabel"`
	Numeric     []string `yaml:"numeric,omitempty"`
	Categorical []string `yaml:"categorical,omitempty"`
}

type Artifacts struct {
	Dir string `yaml:"dir"`
}

// Split controls the held-out partition used for model selection.
type Split struct {
	TestFraction float64 `yaml:"testFraction"`
	Seed         uint64  `yaml:"seed"`
}

// Candidate is one classifier specification evaluated by the selector.
type Candidate struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	// logistic regression
	C              float64 `yaml:"c,omitempty"`
	MaxIter        int     `yaml:"maxIter,omitempty"`
	BalanceClasses bool    `yaml:"balanceClasses,omitempty"`

	// random forest
	Trees          int    `yaml:"trees,omitempty"`
	MaxDepth       int    `yaml:"maxDepth,omitempty"`
	MinSamplesLeaf int    `yaml:"minSamplesLeaf,omitempty"`
	Seed           uint64 `yaml:"seed,omitempty"`
	Workers        int    `yaml:"workers,omitempty"`
}

type Report struct {
	Top int `yaml:"top"`
}

// Tiers holds the lower bounds of the MEDIUM and HIGH risk tiers.
type Tiers struct {
	Medium float64 `yaml:"medium"`
	High   float64 `yaml:"high"`
}

type Dashboard struct {
	Port   int              `yaml:"port"`
	Ranges map[string]Range `yaml:"ranges"`
}

// Range bounds a numeric dashboard input, inclusive on both ends.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Default returns the policy the churn model was originally tuned with.
func Default() *Config {
	return &Config{
		Data: Data{
			Path:        filepath.Join("data", "raw", "telco_churn.csv"),
			IDColumn:    "customerID",
			LabelColumn: "Churn",
			PositiveTag: "Yes",
		},
		Artifacts: Artifacts{Dir: "artifacts"},
		Split: Split{
			TestFraction: 0.2,
			Seed:         42,
		},
		Candidates: []Candidate{
			{Name: "logreg", Kind: CandidateLogReg, C: 1, MaxIter: 500, BalanceClasses: true},
			{Name: "rf", Kind: CandidateForest, Trees: 400, Seed: 13, MinSamplesLeaf: 1, Workers: 1},
		},
		Report: Report{Top: 500},
		Tiers: Tiers{
			Medium: 0.4,
			High:   0.7,
		},
		Dashboard: Dashboard{
			Port: 8080,
			Ranges: map[string]Range{
				"tenure":         {Min: 0, Max: 72},
				"MonthlyCharges": {Min: 0, Max: 200},
				"TotalCharges":   {Min: 0, Max: 10000},
			},
		},
	}
}

// Validate rejects policies the pipeline cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config required")
	}
	if c.Data.IDColumn == "" || c.Data.LabelColumn == "" {
		return errors.New("data.idColumn and data.labelColumn are required")
	}
	if c.Data.IDColumn == c.Data.LabelColumn {
		return fmt.Errorf("data.idColumn and data.labelColumn must differ: %s", c.Data.IDColumn)
	}
	if c.Data.PositiveTag == "" {
		return errors.New("data.positiveLabel is required")
	}
	if c.Split.TestFraction <= 0 || c.Split.TestFraction >= 1 {
		return fmt.Errorf("split.testFraction must be in (0, 1): %v", c.Split.TestFraction)
	}
	if len(c.Candidates) == 0 {
		return errors.New("at least one candidate is required")
	}
	seen := make(map[string]bool, len(c.Candidates))
	for _, cand := range c.Candidates {
		if cand.Name == "" {
			return errors.New("candidate name is required")
		}
		if seen[cand.Name] {
			return fmt.Errorf("duplicate candidate name: %s", cand.Name)
		}
		seen[cand.Name] = true
		if cand.Kind != CandidateLogReg && cand.Kind != CandidateForest {
			return fmt.Errorf("candidate %s has unknown kind: %q", cand.Name, cand.Kind)
		}
	}
	if c.Report.Top < 1 {
		return fmt.Errorf("report.top must be positive: %d", c.Report.Top)
	}
	if c.Tiers.Medium <= 0 || c.Tiers.High >= 1 || c.Tiers.Medium >= c.Tiers.High {
		return fmt.Errorf("tiers must satisfy 0 < medium < high < 1: %v, %v", c.Tiers.Medium, c.Tiers.High)
	}
	for name, r := range c.Dashboard.Ranges {
		if r.Min > r.Max {
			return fmt.Errorf("dashboard range %s has min > max", name)
		}
	}
	return nil
}

// Save writes c into dirPath/config.yaml.
func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dirPath, FileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// Load reads and validates the config file at path. Fields absent from the
// file keep their default values.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path required")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("error unmarshalling config file %s: %w", path, err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

// ReadOrCreate reads the config from dirPath, writing the defaults first
// when the directory or file does not exist.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dirPath, dirMode); err != nil {
			return nil, fmt.Errorf("failed to create dir %s: %w", dirPath, err)
		}
	}

	path := filepath.Join(dirPath, FileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating default config", "path", path)
		if err := Save(dirPath, Default()); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	return Load(path)
}

// GetOrCreateHomeDir returns $HOME/.<name>, creating it when missing.
// The created flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("failed to get user home dir: %w", err)
	}

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}
