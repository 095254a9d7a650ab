package session

import (
	"time"

	"github.com/tmc/nodedbg/internal/dbgerr"
)

// config holds the functional-options surface for the Manager.
type config struct {
	runtimePath      string
	attachTimeout    time.Duration
	consoleBufferCap int
	logger           *dbgerr.Logger
	transcriptPath   string
}

func defaultConfig() config {
	return config{
		attachTimeout:    15 * time.Second,
		consoleBufferCap: 1000,
		logger:           dbgerr.DefaultLogger(),
	}
}

// Option configures a Manager at construction time.
type Option func(*config)

// WithRuntimePath pins the target runtime executable instead of
// letting internal/discovery pick one.
func WithRuntimePath(path string) Option {
	return func(c *config) { c.runtimePath = path }
}

// WithAttachTimeout bounds how long Start waits for the enable
// round-trips and the initial pause before failing with start-failed.
// Launching the target and dialing its inspector endpoint are bounded
// only by the caller's context.
func WithAttachTimeout(d time.Duration) Option {
	return func(c *config) { c.attachTimeout = d }
}

// WithConsoleBufferCap bounds the number of buffered console entries;
// oldest entries are dropped once the cap is exceeded.
func WithConsoleBufferCap(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.consoleBufferCap = n
		}
	}
}

// WithLogger overrides the diagnostic-stream logger.
func WithLogger(l *dbgerr.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTranscript enables the secureio-backed session transcript at the
// given path (attach, each recorded pause, each resume-race command);
// empty (the default) disables it.
func WithTranscript(path string) Option {
	return func(c *config) { c.transcriptPath = path }
}
