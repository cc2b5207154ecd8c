package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/mchmarny/churnctl/pkg/data"
	"github.com/mchmarny/churnctl/pkg/store"
	"github.com/mchmarny/churnctl/pkg/train"
	"github.com/urfave/cli/v3"
)

func trainCmd() *cli.Command {
	return &cli.Command{
		Name:   "train",
		Usage:  "Fit every candidate model, keep the best, and record the run",
		Action: cmdTrain,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  dataFlagName,
				Usage: "Path to the labeled customer CSV, overrides data.path from config",
			},
		},
	}
}

func cmdTrain(ctx context.Context, cmd *cli.Command) error {
	app := getConfig(cmd)
	log := slog.Default().WithGroup("train")

	path := cmd.String(dataFlagName)
	if path == "" {
		path = app.Config.Data.Path
	}

	raw, err := data.Load(ctx, path)
	if err != nil {
		return err
	}
	log.Info("data loaded", "path", path, "rows", raw.Len())

	opts, err := train.OptionsFrom(app.Config)
	if err != nil {
		return err
	}

	res, err := train.Run(raw, opts)
	if err != nil {
		return err
	}
	log.Info("model selected", "winner", res.Winner, "roc_auc", res.AUC)

	m := metricsFrom(res, path, time.Now().UTC())
	if err := app.Store.SavePipeline(res.Pipeline); err != nil {
		return err
	}
	if err := app.Store.SaveMetrics(m); err != nil {
		return err
	}
	if err := app.Store.RecordRun(m); err != nil {
		return err
	}
	log.Info("artifacts saved", "dir", app.Store.Dir(), "run", m.RunID)

	return encode(cmd, m)
}

func metricsFrom(res *train.Result, path string, at time.Time) *store.Metrics {
	scores := make([]store.Score, len(res.Scores))
	for i, s := range res.Scores {
		scores[i] = store.Score{Name: s.Name, AUC: s.AUC}
	}
	return &store.Metrics{
		RunID:        store.NewRunID(),
		TrainedAt:    at,
		DataPath:     path,
		Winner:       res.Winner,
		ROCAUC:       res.AUC,
		Candidates:   scores,
		TrainRows:    res.TrainRows,
		TestRows:     res.TestRows,
		PositiveRate: res.PositiveRate,
	}
}
