package service

import (
	"time"

	"github.com/okian/pitchrank/internal/adapters/repository"
	"github.com/okian/pitchrank/internal/adapters/source"
	"github.com/okian/pitchrank/internal/domain/flags"
	"github.com/okian/pitchrank/internal/domain/matcher"
	"github.com/okian/pitchrank/internal/domain/model"
	"github.com/okian/pitchrank/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithFetcher sets where cohort lists come from.
func WithFetcher(f source.Fetcher) Option {
	return func(s *Service) {
		if f != nil {
			s.fetcher = f
		}
	}
}

// WithCohorts sets the cohorts to load.
func WithCohorts(cohorts ...model.Cohort) Option {
	return func(s *Service) {
		if len(cohorts) > 0 {
			s.cohorts = cohorts
		}
	}
}

// WithStore sets the snapshot store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithFlags sets the keyed flag store.
func WithFlags(f flags.Store) Option {
	return func(s *Service) {
		if f != nil {
			s.flags = f
		}
	}
}

// WithMatcherOptions sets the minimum query length and result cap.
func WithMatcherOptions(opts matcher.Options) Option {
	return func(s *Service) {
		s.matcher = opts
	}
}

// WithWindow sets the row-height estimate, overscan, default viewport
// height and the hard cap on rows per page.
func WithWindow(rowHeight float64, overscan int, viewportHeight float64, maxRows int) Option {
	return func(s *Service) {
		if rowHeight > 0 {
			s.rowHeight = rowHeight
		}
		if overscan >= 0 {
			s.overscan = overscan
		}
		if viewportHeight > 0 {
			s.viewportHeight = viewportHeight
		}
		if maxRows > 0 {
			s.maxRows = maxRows
		}
	}
}

// WithScheduler sets the worker count and queue capacity for deferred
// matching.
func WithScheduler(workers, queueSize int) Option {
	return func(s *Service) {
		if workers > 0 {
			s.workers = workers
		}
		if queueSize > 0 {
			s.queueSize = queueSize
		}
	}
}

// WithFetchTimeout bounds each cohort fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// WithBlurGrace sets the session blur delay.
func WithBlurGrace(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.blurGrace = d
		}
	}
}

// WithWatchFile reloads every cohort when path changes.
func WithWatchFile(path string) Option {
	return func(s *Service) {
		s.watchPath = path
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
