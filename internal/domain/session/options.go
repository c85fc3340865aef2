package session

import (
	"time"

	"github.com/okian/pitchrank/internal/domain/matcher"
	"github.com/okian/pitchrank/pkg/logger"
)

// Option applies a configuration option to the Controller.
type Option func(*Controller)

// WithMatcherOptions sets the search bounds.
func WithMatcherOptions(opts matcher.Options) Option {
	return func(c *Controller) {
		if opts.MinQueryLength > 0 {
			c.opts.MinQueryLength = opts.MinQueryLength
		}
		if opts.ResultCap > 0 {
			c.opts.ResultCap = opts.ResultCap
		}
	}
}

// WithScheduler sets where searches run. Defaults to SyncScheduler.
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) {
		if s != nil {
			c.scheduler = s
		}
	}
}

// WithOnSelect sets the selection callback.
func WithOnSelect(fn SelectFunc) Option {
	return func(c *Controller) {
		c.onSelect = fn
	}
}

// WithOnChange sets a callback fired after every visible state change,
// including deferred search completions.
func WithOnChange(fn func()) Option {
	return func(c *Controller) {
		c.onChange = fn
	}
}

// WithBlurGrace sets how long a blurred session stays open.
func WithBlurGrace(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.blurGrace = d
		}
	}
}

// WithAfterFunc replaces time.AfterFunc for the blur timer.
func WithAfterFunc(fn func(time.Duration, func()) Timer) Option {
	return func(c *Controller) {
		if fn != nil {
			c.afterFunc = fn
		}
	}
}

// WithExclude hides an entity from results from the start.
func WithExclude(id string) Option {
	return func(c *Controller) {
		c.exclude = id
	}
}

// WithLogger sets a custom logger for the controller.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}
