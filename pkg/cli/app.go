package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mchmarny/churnctl/pkg/config"
	"github.com/mchmarny/churnctl/pkg/failure"
	"github.com/mchmarny/churnctl/pkg/logging"
	"github.com/mchmarny/churnctl/pkg/store"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName      = "churnctl"
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"

	debugFlagName     = "debug"
	configFlagName    = "config"
	artifactsFlagName = "artifacts"
	formatFlagName    = "format"
	dataFlagName      = "data"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""
)

// Execute creates and runs the CLI application, exiting with a code that
// identifies the kind of failure.
func Execute() {
	logging.SetDefaultCLILogger("info")

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		slog.Error("command failed", "kind", failure.Kind(err), "error", err)
		os.Exit(failure.ExitCode(err))
	}
}

type appConfig struct {
	Config *config.Config
	Store  *store.Store
	Format string
	Debug  bool
}

func getConfig(cmd *cli.Command) *appConfig {
	return cmd.Root().Metadata[appConfigKey].(*appConfig)
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Usage:                 "Train, score, and inspect a customer churn model",
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Metadata:              map[string]any{},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  debugFlagName,
				Usage: "Prints verbose logs (optional, default: false)",
			},
			&cli.StringFlag{
				Name:  configFlagName,
				Usage: "Path to the config file (default: ~/.churnctl/config.yaml)",
			},
			&cli.StringFlag{
				Name:  artifactsFlagName,
				Usage: "Artifact directory, overrides artifacts.dir from config",
			},
			&cli.StringFlag{
				Name:  formatFlagName,
				Usage: "Output format [json, yaml]",
				Value: formatJSON,
			},
		},
		Commands: []*cli.Command{
			trainCmd(),
			scoreCmd(),
			predictCmd(),
			metricsCmd(),
			runsCmd(),
			serverCmd(),
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			debug := cmd.Bool(debugFlagName)
			if debug {
				logging.SetDefaultCLILogger("debug")
			}

			format, err := parseFormat(cmd.String(formatFlagName))
			if err != nil {
				return ctx, err
			}

			cfg, err := loadConfig(cmd.String(configFlagName))
			if err != nil {
				return ctx, err
			}

			dir := cmd.String(artifactsFlagName)
			if dir == "" {
				dir = cfg.Artifacts.Dir
			}
			st, err := store.New(dir)
			if err != nil {
				return ctx, err
			}

			cmd.Metadata[appConfigKey] = &appConfig{
				Config: cfg,
				Store:  st,
				Format: format,
				Debug:  debug,
			}
			return ctx, nil
		},
	}
}

func parseFormat(v string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", formatJSON:
		return formatJSON, nil
	case formatYAML, "yml":
		return formatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", v)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	dir, created, err := config.GetOrCreateHomeDir(appName)
	if err != nil {
		return nil, err
	}
	if created {
		slog.Info("created config", "path", filepath.Join(dir, config.FileName))
	}
	return config.ReadOrCreate(dir)
}

func encode(cmd *cli.Command, v any) error {
	var w io.Writer = os.Stdout
	if cmd.Root().Writer != nil {
		w = cmd.Root().Writer
	}
	if getConfig(cmd).Format == formatYAML {
		return yaml.NewEncoder(w).Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
