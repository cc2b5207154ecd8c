package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/mchmarny/churnctl/pkg/failure"
	"github.com/mchmarny/churnctl/pkg/score"
	"github.com/urfave/cli/v3"
)

const setFlagName = "set"

func predictCmd() *cli.Command {
	return &cli.Command{
		Name:   "predict",
		Usage:  "Score one customer described on the command line",
		Action: cmdPredict,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  setFlagName,
				Usage: "Feature value as column=value, repeatable; unset fields take form defaults",
			},
		},
	}
}

type predictResult struct {
	Model  string            `json:"model" yaml:"model"`
	Record map[string]string `json:"record" yaml:"record"`

	score.Prediction `yaml:",inline"`
}

func cmdPredict(_ context.Context, cmd *cli.Command) error {
	app := getConfig(cmd)

	record, err := parseAssignments(cmd.StringSlice(setFlagName))
	if err != nil {
		return err
	}

	p, err := app.Store.LoadPipeline()
	if err != nil {
		return err
	}

	pred, record, err := predictRecord(app.Config, p, record)
	if err != nil {
		return err
	}

	return encode(cmd, &predictResult{Model: p.Name, Record: record, Prediction: *pred})
}

// parseAssignments turns column=value pairs into a record. Later pairs win.
func parseAssignments(pairs []string) (map[string]string, error) {
	record := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: expected column=value, got %q", failure.ErrInvalidInput, p)
		}
		record[k] = strings.TrimSpace(v)
	}
	return record, nil
}
