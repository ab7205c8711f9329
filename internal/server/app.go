// Package server assembles the relay from its parts and runs it until the
// root context is cancelled.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tgrelay/internal/bans"
	"tgrelay/internal/config"
	"tgrelay/internal/cron"
	"tgrelay/internal/router"
	"tgrelay/internal/scheduler"
	"tgrelay/internal/session"
	"tgrelay/internal/storage"
	"tgrelay/internal/telegram"
	"tgrelay/pkg/gateway"
	"tgrelay/pkg/logger"
)

const defaultShutdownGrace = 10 * time.Second

// Options configure an App.
type Options struct {
	Config  *config.Config
	Version string
	Logger  zerolog.Logger

	// Gateway replaces the Telegram client when set.
	Gateway gateway.Gateway
}

// App owns every long-lived component of a running relay.
type App struct {
	cfg *config.Config
	log zerolog.Logger
	gw  gateway.Gateway
	db  *storage.DB

	registry   *bans.Registry
	watcher    *bans.Watcher
	identities *session.IdentityMap
	limiter    *session.RateLimiter
	dedup      *session.Deduplicator
	queue      *scheduler.Queue
	pool       *scheduler.Pool
	router     *router.Router
	janitor    *cron.Janitor
	status     *StatusServer
}

// New validates the configuration, opens the ban store and connects the
// gateway. Without Options.Gateway the bot token is checked with getMe.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, &config.ConfigError{Field: "config", Message: "not loaded"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: opts.Logger}

	store, err := a.openBanStore(ctx)
	if err != nil {
		return nil, err
	}

	a.registry = bans.NewRegistry(store, a.log)
	if err := a.registry.Load(); err != nil {
		a.Close()
		return nil, fmt.Errorf("load bans: %w", err)
	}
	a.log.Info().Str("store", fmt.Sprint(store)).Int("banned", a.registry.Len()).Msg("ban list loaded")

	if fs, ok := store.(*bans.FileStore); ok && cfg.Bans.Watch {
		a.watcher = bans.NewWatcher(a.registry, fs, a.log)
	}

	policy := gateway.RetryPolicy{
		MaxAttempts: cfg.Relay.MaxRetries,
		Delay:       cfg.Relay.RetryDelay,
	}

	a.gw = opts.Gateway
	if a.gw == nil {
		client := telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			BaseURL:     cfg.Telegram.BaseURL,
			PollTimeout: cfg.Telegram.PollTimeout,
		}, a.log)

		var me telegram.BotInfo
		err := policy.Do(ctx, a.log, "getMe", func(ctx context.Context) error {
			var err error
			me, err = client.GetMe(ctx)
			return err
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("telegram init: %w", err)
		}
		a.log.Info().Int64("bot_id", me.ID).Str("bot", me.Username).Msg("connected to telegram")
		a.gw = client
	}

	a.identities = session.NewIdentityMap(cfg.Relay.Retention, nil)
	a.limiter = session.NewRateLimiter(cfg.Relay.MinInterval)
	a.dedup = session.NewDeduplicator(cfg.Relay.DedupWindow)
	a.queue = scheduler.NewQueue()

	sender := gateway.WithRetry(a.gw, policy, logger.Component(a.log, "gateway"))

	a.router = router.New(router.Deps{
		AdminID:        cfg.AdminID,
		Sender:         sender,
		Queue:          a.queue,
		Identities:     a.identities,
		Bans:           a.registry,
		Limiter:        a.limiter,
		Dedup:          a.dedup,
		PollErrorDelay: cfg.Relay.PollErrorDelay,
		Logger:         a.log,
	})
	a.pool = scheduler.NewPool(a.queue, cfg.Relay.Workers, a.router.Handle, a.log)

	a.janitor, err = cron.NewJanitor(cron.Config{
		Interval:      cfg.Janitor.Interval,
		Retention:     cfg.Relay.Retention,
		RateStateIdle: cfg.Relay.RateStateIdle,
	}, a.identities, a.dedup, a.limiter, a.log)
	if err != nil {
		a.Close()
		return nil, &config.ConfigError{Field: "janitor.interval", Message: err.Error()}
	}

	if cfg.Status.Enabled {
		a.status = NewStatusServer(cfg.Status.Addr(), opts.Version, StatusDeps{
			Identities: a.identities,
			Bans:       a.registry,
			Dedup:      a.dedup,
			Limiter:    a.limiter,
			Pool:       a.pool,
			Janitor:    a.janitor,
		}, a.log)
	}

	return a, nil
}

func (a *App) openBanStore(ctx context.Context) (bans.Store, error) {
	switch a.cfg.Bans.Driver {
	case "sqlite":
		db, err := storage.Open(ctx, a.cfg.Bans.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open ban database: %w", err)
		}
		a.db = db
		return storage.NewBanStore(db), nil

	default:
		path, err := config.ExpandPath(a.cfg.Bans.Path)
		if err != nil {
			return nil, err
		}
		// the watcher needs the directory to exist
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create ban directory: %w", err)
		}
		return bans.NewFileStore(path, a.log), nil
	}
}

// Run starts the workers, the janitor, the optional watcher and status
// server, and the ingestion loop. When ctx is cancelled ingestion stops and
// the queue is drained within relay.shutdown_grace.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if err := a.pool.Start(gctx); err != nil {
		return err
	}

	g.Go(func() error { return a.janitor.Run(gctx) })
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}
	if a.status != nil {
		g.Go(func() error { return a.status.Run(gctx) })
	}
	g.Go(func() error { return a.router.Run(gctx, a.gw) })

	a.log.Info().
		Int64("admin_id", a.cfg.AdminID).
		Int("workers", a.cfg.Relay.Workers).
		Str("bans", a.cfg.Bans.Driver).
		Msg("relay running")

	runErr := g.Wait()

	grace := a.cfg.Relay.ShutdownGrace
	if grace <= 0 {
		grace = defaultShutdownGrace
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	dropped, err := a.pool.Shutdown(shutdownCtx)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		runErr = errors.Join(runErr, err)
	}
	if dropped > 0 {
		a.log.Warn().Int("dropped", dropped).Msg("tasks dropped at shutdown")
	}

	a.log.Info().Msg("relay stopped")
	return runErr
}

// Registry returns the ban registry.
func (a *App) Registry() *bans.Registry { return a.registry }

// Close releases the ban database, if one is open.
func (a *App) Close() error {
	if a.db != nil {
		err := a.db.Close()
		a.db = nil
		return err
	}
	return nil
}
