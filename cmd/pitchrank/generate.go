package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/okian/pitchrank/internal/fixtures"
	"github.com/okian/pitchrank/pkg/logger"
)

func generateCommand() *cli.Command {
	defaults := fixtures.DefaultConfig()
	return &cli.Command{
		Name:  "generate",
		Usage: "Write a synthetic rankings file for the configured cohorts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "out",
				Usage: "Output path; - writes to stdout (default: configured data_file)",
			},
			&cli.IntFlag{
				Name:  "teams",
				Usage: "Teams per cohort",
				Value: defaults.TeamsPerCohort,
			},
			&cli.IntFlag{
				Name:  "pending-percent",
				Usage: "Percentage of teams without a cohort rank",
				Value: int(defaults.PendingRatio * 100),
			},
			&cli.IntFlag{
				Name:  "season",
				Usage: "Season year used for birth years in team names",
				Value: defaults.Season,
			},
			&cli.IntFlag{
				Name:  "seed",
				Usage: "Random seed; the same seed writes the same file",
				Value: int(defaults.Seed),
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			// stdout carries the command's output.
			if err := logger.InitWriter(os.Stderr); err != nil {
				return err
			}
			cfg, err := loadConfig(ctx, c.String("config"))
			if err != nil {
				return err
			}
			cohorts, err := parseCohorts(cfg.Cohorts)
			if err != nil {
				return err
			}
			gen := fixtures.Config{
				Cohorts:        cohorts,
				TeamsPerCohort: c.Int("teams"),
				PendingRatio:   float64(c.Int("pending-percent")) / 100,
				Season:         c.Int("season"),
				Seed:           uint64(c.Int("seed")),
			}
			rankings, err := fixtures.Generate(ctx, gen)
			if err != nil {
				return err
			}

			out := c.String("out")
			if out == "" {
				out = cfg.DataFile
			}
			if out == "-" {
				return fixtures.Write(c.Root().Writer, rankings)
			}
			if err := fixtures.WriteFile(out, rankings); err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.Root().Writer, "wrote %d cohorts of %d teams to %s\n", len(rankings), gen.TeamsPerCohort, out)
			return err
		},
	}
}
