// Command pitchrank serves and browses youth soccer ranking lists.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"

	"github.com/okian/pitchrank/pkg/logger"
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).Run(ctx, os.Args); err != nil {
		os.Stderr.WriteString("pitchrank: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

// newApp builds the root command. Command output goes to w.
func newApp(w io.Writer) *cli.Command {
	return &cli.Command{
		Name:   "pitchrank",
		Usage:  "Search, sort and browse youth soccer rankings",
		Writer: w,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "YAML configuration file (defaults, then this file, then PITCHRANK_* env; falls back to $PITCHRANK_CONFIG)",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			browseCommand(),
			searchCommand(),
			generateCommand(),
		},
	}
}
