package cli

import (
	"context"
	"fmt"

	"github.com/mchmarny/churnctl/pkg/failure"
	"github.com/urfave/cli/v3"
)

const (
	limitFlagName    = "limit"
	runsLimitDefault = 10
)

func metricsCmd() *cli.Command {
	return &cli.Command{
		Name:   "metrics",
		Usage:  "Print the metrics of the current model",
		Action: cmdMetrics,
	}
}

func runsCmd() *cli.Command {
	return &cli.Command{
		Name:   "runs",
		Usage:  "Print the training history, newest first",
		Action: cmdRuns,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  limitFlagName,
				Usage: "Maximum number of runs to print",
				Value: runsLimitDefault,
			},
		},
	}
}

func cmdMetrics(_ context.Context, cmd *cli.Command) error {
	m, err := getConfig(cmd).Store.LoadMetrics()
	if err != nil {
		return err
	}
	return encode(cmd, m)
}

func cmdRuns(_ context.Context, cmd *cli.Command) error {
	limit := cmd.Int(limitFlagName)
	if limit < 1 {
		return fmt.Errorf("%w: --limit must be positive: %d", failure.ErrInvalidInput, limit)
	}
	runs, err := getConfig(cmd).Store.ListRuns(limit)
	if err != nil {
		return err
	}
	return encode(cmd, runs)
}
