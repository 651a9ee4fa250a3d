// Package app composes the recorder daemon: configuration, logging,
// persistence, the job registry, the scheduler, the capture executor and the
// HTTP control surface.
package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"aircheck/internal/capture"
	"aircheck/internal/config"
	"aircheck/internal/eventbus"
	"aircheck/internal/httpapi"
	"aircheck/internal/job"
	"aircheck/internal/notifier"
	"aircheck/internal/scheduler"
	"aircheck/internal/settings"
	"aircheck/internal/store"
	logx "aircheck/pkg/logx"
)

type App struct {
	version string

	logs   *logx.Service
	log    logx.Logger
	cfgMgr *config.Manager

	set   *settings.Store
	st    store.Store
	bus   *eventbus.Bus
	reg   *job.Registry
	exec  *capture.Executor
	sched *scheduler.Service
	notif *notifier.Service
	http  *httpapi.Server

	sup *supervisor
}

func New(cfgPath, version string) (*App, error) {
	cfgMgr := config.NewManager(cfgPath)
	cfgMgr.SetValidator(validateConfig)
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(loggingConfig(cfg))
	cfgMgr.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		version: version,
		logs:    logs,
		log:     log,
		cfgMgr:  cfgMgr,
		bus:     eventbus.New(),
	}

	a.set = settings.NewStore(cfg.Settings.Path, log.With(logx.String("comp", "settings")))
	if err := a.set.Init(); err != nil {
		_ = logs.Close()
		return nil, err
	}

	st, err := store.Open(storeConfig(cfg, log), log.With(logx.String("comp", "store")))
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	a.st = st

	a.reg = job.NewRegistry(st, a.bus, log.With(logx.String("comp", "registry")))
	runner := &capture.FFmpegRunner{Log: log.With(logx.String("comp", "ffmpeg"))}
	a.exec = capture.NewExecutor(a.reg, a.set, a.bus, runner, log.With(logx.String("comp", "capture")))
	a.sched = scheduler.New(a.reg, a.set, a.exec.Start, log.With(logx.String("comp", "scheduler")))
	a.notif = a.buildNotifier(cfg)
	a.http = httpapi.NewServer(cfg.HTTP, a.reg, a.sched, a.set, version, log.With(logx.String("comp", "http")))

	return a, nil
}

func (a *App) buildNotifier(cfg *config.Config) *notifier.Service {
	nc := cfg.Notifier
	if nc == nil || !nc.Enabled {
		return notifier.New(notifier.Config{}, nil, a.bus, a.log)
	}
	sender, err := notifier.NewTelegramSender(nc.Token, nc.ChatID, a.log.With(logx.String("comp", "telegram")))
	if err != nil {
		// The recorder must come up even when the chat channel is broken.
		a.log.Warn("notifier disabled: telegram setup failed", logx.Err(err))
		return notifier.New(notifier.Config{}, nil, a.bus, a.log)
	}
	return notifier.New(notifier.Config{
		Enabled:    true,
		MinLevel:   nc.MinLevel,
		RatePerMin: nc.RatePerMin,
	}, sender, a.bus, a.log.With(logx.String("comp", "notifier")))
}

func (a *App) Start(ctx context.Context) error {
	a.sup = newSupervisor(ctx, a.log)
	runCtx := a.sup.Context()

	a.sched.Start(runCtx)

	// Recovery: the persisted schedule is authoritative across restarts.
	loadCtx, cancel := context.WithTimeout(runCtx, 10*time.Second)
	recs, err := a.st.LoadJobs(loadCtx)
	cancel()
	if err != nil {
		a.log.Warn("persisted schedule unreadable; starting empty", logx.Err(err))
		recs = nil
	}
	a.sched.Bootstrap(recs)

	a.notif.Start(runCtx)

	if err := a.http.Start(runCtx); err != nil {
		a.stopStarted(context.Background())
		return err
	}

	// Hot reload: the watch loop self-heals, the fanout applies accepted
	// revisions to the running services.
	a.sup.GoRestart("config.watch", a.cfgMgr.Watch)
	updates := a.cfgMgr.Subscribe(4)
	a.sup.Go("config.fanout", func(ctx context.Context) error {
		defer a.cfgMgr.Unsubscribe(updates)
		for {
			select {
			case <-ctx.Done():
				return nil
			case cfg, ok := <-updates:
				if !ok {
					return nil
				}
				a.applyConfig(cfg)
			}
		}
	})

	a.log.Info("daemon started", logx.String("version", a.version))
	return nil
}

// applyConfig applies the hot-reloadable subset of a new config revision.
// Listen address, store driver and settings path changes need a restart.
func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(loggingConfig(cfg))
	if nc := cfg.Notifier; nc != nil {
		a.notif.Apply(notifier.Config{
			Enabled:    nc.Enabled,
			MinLevel:   nc.MinLevel,
			RatePerMin: nc.RatePerMin,
		})
	} else {
		a.notif.Apply(notifier.Config{})
	}
	a.log.Info("configuration reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	a.stopStarted(ctx)
	var firstErr error
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil {
			firstErr = err
		}
	}
	if err := a.st.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	a.log.Info("daemon stopped")
	_ = a.logs.Close()
	return firstErr
}

func (a *App) stopStarted(ctx context.Context) {
	a.http.Stop(ctx)
	a.notif.Stop(ctx)
	a.sched.Stop(ctx)
}

func loggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func storeConfig(cfg *config.Config, log logx.Logger) store.Config {
	sc := store.Config{
		Driver: cfg.Store.Driver,
		Path:   cfg.Store.Path,
	}
	if raw := strings.TrimSpace(cfg.Store.BusyTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			log.Warn("invalid store busy_timeout ignored", logx.String("value", raw))
		} else {
			sc.BusyTimeout = d
		}
	}
	return sc
}

// validateConfig rejects config revisions the daemon cannot act on. It runs
// for the initial load and for every watched reload.
func validateConfig(_ context.Context, cfg *config.Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Store.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	default:
		return errors.New("config: unknown store driver " + cfg.Store.Driver)
	}
	if nc := cfg.Notifier; nc != nil && nc.Enabled {
		if strings.TrimSpace(nc.Token) == "" {
			return errors.New("config: notifier enabled without token")
		}
		if nc.ChatID == 0 {
			return errors.New("config: notifier enabled without chat_id")
		}
		switch strings.ToLower(strings.TrimSpace(nc.MinLevel)) {
		case "", "all", "errors":
		default:
			return errors.New("config: notifier min_level must be \"all\" or \"errors\"")
		}
	}
	return nil
}
