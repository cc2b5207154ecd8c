package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mchmarny/churnctl/pkg/data"
	"github.com/mchmarny/churnctl/pkg/failure"
	"github.com/mchmarny/churnctl/pkg/score"
	"github.com/mchmarny/churnctl/pkg/store"
	"github.com/mchmarny/churnctl/pkg/train"
	"github.com/urfave/cli/v3"
)

const (
	topFlagName      = "top"
	summaryRowsLimit = 10
)

func scoreCmd() *cli.Command {
	return &cli.Command{
		Name:   "score",
		Usage:  "Rank customers by churn probability and write the risk report",
		Action: cmdScore,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  dataFlagName,
				Usage: "Path to the customer CSV to score, overrides data.path from config",
			},
			&cli.IntFlag{
				Name:  topFlagName,
				Usage: "Number of customers kept in the report, overrides report.top from config",
			},
		},
	}
}

type scoreSummary struct {
	Data   string       `json:"data" yaml:"data"`
	Report string       `json:"report" yaml:"report"`
	Scored int          `json:"scored" yaml:"scored"`
	Kept   int          `json:"kept" yaml:"kept"`
	Top    []score.Risk `json:"top" yaml:"top"`
}

func cmdScore(ctx context.Context, cmd *cli.Command) error {
	app := getConfig(cmd)
	log := slog.Default().WithGroup("score")

	path := cmd.String(dataFlagName)
	if path == "" {
		path = app.Config.Data.Path
	}
	top := cmd.Int(topFlagName)
	if top == 0 {
		top = app.Config.Report.Top
	}
	if top < 0 {
		return fmt.Errorf("%w: --top must be positive: %d", failure.ErrInvalidInput, top)
	}

	p, err := app.Store.LoadPipeline()
	if err != nil {
		return err
	}

	raw, err := data.Load(ctx, path)
	if err != nil {
		return err
	}

	features, ids, err := data.SplitForScoring(raw, train.ColumnsFrom(app.Config.Data))
	if err != nil {
		return fmt.Errorf("%w: %w", failure.ErrScoring, err)
	}

	list, err := score.Rank(p, features, ids, top)
	if err != nil {
		return err
	}
	if err := app.Store.SaveReport(list); err != nil {
		return err
	}
	log.Info("report saved", "path", app.Store.Path(store.ReportFile), "scored", len(ids), "kept", len(list))

	return encode(cmd, &scoreSummary{
		Data:   path,
		Report: app.Store.Path(store.ReportFile),
		Scored: len(ids),
		Kept:   len(list),
		Top:    list[:min(len(list), summaryRowsLimit)],
	})
}
