package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/pitchrank/internal/adapters/flagstore"
	"github.com/okian/pitchrank/internal/adapters/source"
	app "github.com/okian/pitchrank/internal/app"
	"github.com/okian/pitchrank/internal/config"
	"github.com/okian/pitchrank/internal/domain/flags"
	"github.com/okian/pitchrank/internal/domain/matcher"
	"github.com/okian/pitchrank/internal/domain/model"
	"github.com/okian/pitchrank/pkg/logger"
)

// loadConfig loads configuration and applies its log level.
func loadConfig(ctx context.Context, path string) (*config.Config, error) {
	cfg, err := config.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}

// parseCohorts parses configured cohort keys.
func parseCohorts(keys []string) ([]model.Cohort, error) {
	cohorts := make([]model.Cohort, 0, len(keys))
	for _, key := range keys {
		c, err := model.ParseCohort(key)
		if err != nil {
			return nil, err
		}
		cohorts = append(cohorts, c)
	}
	return cohorts, nil
}

// buildService assembles the service from cfg. close releases the flag
// store and must be called after the service stops.
func buildService(ctx context.Context, cfg *config.Config, l logger.Logger) (svc *app.Service, closeFn func(), err error) {
	cohorts, err := parseCohorts(cfg.Cohorts)
	if err != nil {
		return nil, nil, err
	}

	var fetcher source.Fetcher
	switch cfg.DataSource {
	case config.SourceHTTP:
		fetcher = source.NewHTTPFetcher(cfg.DataURL, &http.Client{Timeout: cfg.FetchTimeout()}, cfg.FetchTimeout(), l.Named("source"))
	default:
		fetcher = source.NewFileFetcher(cfg.DataFile, l.Named("source"))
	}

	closeFn = func() {}
	var store flags.Store
	if cfg.FlagsDB != "" {
		db, err := flagstore.Open(ctx, cfg.FlagsDB)
		if err != nil {
			return nil, nil, fmt.Errorf("open flags db: %w", err)
		}
		store = db
		closeFn = func() {
			if err := db.Close(); err != nil {
				l.Error(context.Background(), "failed to close flags db", logger.Error(err))
			}
		}
	} else {
		store = flags.NewMemoryStore(flags.WithMaxSize(cfg.FlagsMaxSize))
	}

	opts := []app.Option{
		app.WithLogger(l),
		app.WithFetcher(fetcher),
		app.WithCohorts(cohorts...),
		app.WithFlags(store),
		app.WithMatcherOptions(matcher.Options{MinQueryLength: cfg.MinQueryLength, ResultCap: cfg.ResultCap}),
		app.WithWindow(cfg.RowHeight, cfg.Overscan, cfg.ViewportHeight, cfg.MaxWindowRows),
		app.WithScheduler(cfg.SchedulerWorkers, cfg.SchedulerQueueSize),
		app.WithFetchTimeout(cfg.FetchTimeout()),
		app.WithBlurGrace(cfg.BlurGrace()),
	}
	if cfg.DataSource == config.SourceFile && cfg.WatchDataFile {
		opts = append(opts, app.WithWatchFile(cfg.DataFile))
	}
	return app.New(opts...), closeFn, nil
}

// waitForCohort blocks until the cohort has loaded or failed.
func waitForCohort(ctx context.Context, svc *app.Service, key string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	t := time.NewTicker(20 * time.Millisecond)
	defer t.Stop()
	for {
		st, err := svc.Status(ctx, key)
		if err != nil {
			return err
		}
		switch st.State {
		case "ready":
			return nil
		case "failed":
			return fmt.Errorf("cohort %s failed to load: %s", key, st.Error)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("cohort %s still loading: %w", key, ctx.Err())
		case <-t.C:
		}
	}
}
