package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/okian/pitchrank/internal/domain/model"
	"github.com/okian/pitchrank/internal/tui"
	"github.com/okian/pitchrank/pkg/logger"
)

func browseCommand() *cli.Command {
	return &cli.Command{
		Name:      "browse",
		Usage:     "Browse a cohort's rankings in the terminal",
		ArgsUsage: "[cohort]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "sort",
				Usage: "Initial sort field (rank, name, club, region, score, strength, strength_rank, games)",
				Value: string(model.FieldRank),
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Write logs here while the screen is active (default: discard)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(ctx, c.String("config"))
			if err != nil {
				return err
			}
			field, err := model.ParseField(c.String("sort"))
			if err != nil {
				return err
			}
			cohort := c.Args().First()
			if cohort == "" {
				cohort = cfg.Cohorts[0]
			}

			// The terminal belongs to the screen; logs go elsewhere.
			var sink io.Writer = io.Discard
			if path := c.String("log-file"); path != "" {
				f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
				if err != nil {
					return fmt.Errorf("open log file: %w", err)
				}
				defer f.Close()
				sink = f
			}
			if err := logger.InitWriter(sink); err != nil {
				return err
			}
			_ = logger.SetLevelString(cfg.LogLevel)

			svc, closeFlags, err := buildService(ctx, cfg, logger.Get())
			if err != nil {
				return err
			}
			defer closeFlags()
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()

			if _, err := svc.Status(ctx, cohort); err != nil {
				return err
			}
			_, vp := svc.Settings()
			return tui.New(svc, cohort,
				tui.WithSort(model.SortSpec{Field: field}),
				tui.WithOverscan(vp.Overscan),
				tui.WithLogger(logger.Named("tui")),
			).Run(ctx)
		},
	}
}
