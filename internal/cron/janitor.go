// Package cron runs the periodic sweep that expires stale relay state.
package cron

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"tgrelay/internal/session"
	"tgrelay/pkg/logger"
)

// DefaultInterval is the sweep period used when none is configured.
const DefaultInterval = time.Hour

// Config configures the janitor.
type Config struct {
	// Interval between sweeps.
	Interval time.Duration

	// Retention is the age after which routed messages are evicted.
	Retention time.Duration

	// RateStateIdle evicts rate limiter entries idle for longer than this.
	// Zero keeps them forever.
	RateStateIdle time.Duration
}

// SweepResult counts what one sweep removed.
type SweepResult struct {
	At           time.Time `json:"at"`
	Identities   int       `json:"identities"`
	Interactions int       `json:"interactions"`
	RateStates   int       `json:"rateStates"`
}

// Janitor evicts expired entries from the session structures on a fixed
// interval. A sweep never fails; it only logs what it removed.
type Janitor struct {
	cron       *cron.Cron
	cfg        Config
	identities *session.IdentityMap
	dedup      *session.Deduplicator
	limiter    *session.RateLimiter
	now        session.Clock
	log        zerolog.Logger

	mu      sync.Mutex
	running bool
	last    SweepResult
}

// NewJanitor creates a janitor over the given structures. limiter may be nil.
func NewJanitor(cfg Config, identities *session.IdentityMap, dedup *session.Deduplicator, limiter *session.RateLimiter, log zerolog.Logger) (*Janitor, error) {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Interval < time.Second {
		return nil, &InvalidIntervalError{Interval: cfg.Interval}
	}
	if cfg.Retention <= 0 {
		cfg.Retention = session.DefaultRetention
		if identities != nil {
			cfg.Retention = identities.Retention()
		}
	}

	log = logger.Component(log, "janitor")
	adapter := cronLogger{log: log}
	c := cron.New(
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
	)

	return &Janitor{
		cron:       c,
		cfg:        cfg,
		identities: identities,
		dedup:      dedup,
		limiter:    limiter,
		now:        time.Now,
		log:        log,
	}, nil
}

// Start registers the sweep and starts the scheduler.
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return ErrJanitorRunning
	}
	j.cron.Schedule(cron.Every(j.cfg.Interval), cron.FuncJob(func() { j.Sweep() }))
	j.cron.Start()
	j.running = true
	j.log.Info().Dur("interval", j.cfg.Interval).Msg("janitor started")
	return nil
}

// Stop stops the scheduler and returns a context that is done once a
// running sweep finished.
func (j *Janitor) Stop() context.Context {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	j.running = false
	j.log.Info().Msg("janitor stopped")
	return j.cron.Stop()
}

// Run starts the janitor and blocks until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	if err := j.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	<-j.Stop().Done()
	return nil
}

// Sweep runs one eviction cycle immediately.
func (j *Janitor) Sweep() SweepResult {
	now := j.now()
	res := SweepResult{At: now}

	if j.identities != nil {
		res.Identities = j.identities.EvictOlderThan(j.cfg.Retention)
	}
	if j.dedup != nil {
		res.Interactions = j.dedup.Evict(now)
	}
	if j.limiter != nil && j.cfg.RateStateIdle > 0 {
		res.RateStates = j.limiter.EvictIdle(now, j.cfg.RateStateIdle)
	}

	j.mu.Lock()
	j.last = res
	j.mu.Unlock()

	j.log.Info().
		Int("identities", res.Identities).
		Int("interactions", res.Interactions).
		Int("rate_states", res.RateStates).
		Msg("sweep done")
	return res
}

// LastSweep returns the result of the most recent sweep.
func (j *Janitor) LastSweep() SweepResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
