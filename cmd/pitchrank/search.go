package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	app "github.com/okian/pitchrank/internal/app"
	"github.com/okian/pitchrank/internal/domain/model"
	"github.com/okian/pitchrank/internal/domain/types"
	"github.com/okian/pitchrank/pkg/logger"
)

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search a cohort for teams and print their ranks",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "cohort",
				Usage: "Cohort key, e.g. u12-boys (default: first configured)",
			},
			&cli.StringFlag{
				Name:  "exclude",
				Usage: "Team id to leave out of the results",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			query := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				return fmt.Errorf("a query is required")
			}
			// stdout carries the command's output.
			if err := logger.InitWriter(os.Stderr); err != nil {
				return err
			}
			cfg, err := loadConfig(ctx, c.String("config"))
			if err != nil {
				return err
			}
			cfg.WatchDataFile = false
			key := c.String("cohort")
			if key == "" {
				key = cfg.Cohorts[0]
			}

			svc, closeFlags, err := buildService(ctx, cfg, logger.Get())
			if err != nil {
				return err
			}
			defer closeFlags()
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()
			if err := waitForCohort(ctx, svc, key, cfg.FetchTimeout()); err != nil {
				return err
			}
			return printSearch(ctx, c.Root().Writer, svc, key, query, c.String("exclude"))
		},
	}
}

// printSearch writes one line per match with the team's cohort rank.
func printSearch(ctx context.Context, w io.Writer, svc *app.Service, key, query, exclude string) error {
	teams, err := svc.Search(ctx, key, query, exclude)
	if err != nil {
		return err
	}
	if len(teams) == 0 {
		_, err := fmt.Fprintf(w, "no teams in %s match %q\n", key, query)
		return err
	}

	rows, err := svc.Table(ctx, key, model.DefaultSort())
	if err != nil {
		return err
	}
	byID := make(map[string]*types.Row, len(rows))
	for i := range rows {
		byID[rows[i].Team.ID] = &rows[i]
	}

	for _, t := range teams {
		rank := "—"
		if r := byID[t.ID]; r != nil && r.Rank != nil {
			rank = fmt.Sprintf("#%d", *r.Rank)
		}
		line := fmt.Sprintf("%-5s %s", rank, t.Name)
		if t.Club != "" {
			line += " · " + t.Club
		}
		if t.Region != "" {
			line += " (" + t.Region + ")"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
