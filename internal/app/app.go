package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/topup/core/bootstrap"
	"github.com/m3rciful/topup/core/cmd"
	"github.com/m3rciful/topup/core/logger"
	tg "github.com/m3rciful/topup/core/telegram"
	"github.com/m3rciful/topup/internal/bot"
	"github.com/m3rciful/topup/internal/journal"
	"github.com/m3rciful/topup/internal/payment"
	"github.com/m3rciful/topup/internal/web"
)

// App holds the wired components and implements cmd.App.
type App struct {
	cfg    *Config
	infra  *bootstrap.Result
	async  *journal.Async
	rec    journal.Recorder
	web    *web.Server
	bot    *bot.Bot
	botReg *tg.Registry

	registries []*payment.Registry
	ttl        time.Duration
	sweepEvery time.Duration
}

var _ cmd.App = (*App)(nil)

// BootstrapOptions lets tests replace parts of the pipeline.
type BootstrapOptions struct {
	Bootstrap bootstrap.Options
}

// Bootstrap initializes logging and the journal store, then builds the
// surfaces over their own session registries.
func Bootstrap(ctx context.Context, cfg *Config) (*App, error) {
	return BootstrapWith(ctx, cfg, BootstrapOptions{})
}

// BootstrapWith is Bootstrap with overridable infrastructure hooks.
func BootstrapWith(ctx context.Context, cfg *Config, opts BootstrapOptions) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	cat, err := cfg.Catalog()
	if err != nil {
		return nil, fmt.Errorf("app: operators: %w", err)
	}

	bo := opts.Bootstrap
	bo.Config = &cfg.Config
	bo.Database = cfg.Journal
	bo.Migrations = journal.Migrations
	infra, err := bootstrap.Run(ctx, bo)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:        cfg,
		infra:      infra,
		ttl:        time.Duration(cfg.HTTP.SessionTTLSeconds) * time.Second,
		sweepEvery: time.Duration(cfg.HTTP.SweepIntervalSeconds) * time.Second,
	}
	if infra.DB != nil {
		a.async = journal.NewAsync(journal.NewSQLStore(infra.DB), journal.AsyncOptions{})
		a.rec = a.async
	} else {
		a.rec = journal.NewMemory(journal.MaxLimit)
	}
	logger.Info(ctx, logger.CompJournal, "journal.ready",
		slog.String("driver", cfg.Journal.Driver),
		slog.String("target", cfg.Journal.Target()),
	)

	sim := payment.NewRandomSimulator(cfg.Payment.SuccessThreshold)
	defaults := []payment.Option{
		payment.WithSimulator(sim),
		payment.WithCallDelay(cfg.Payment.CallDelay()),
		payment.WithRedirectDelay(cfg.Payment.RedirectDelay()),
	}

	webSessions := payment.NewRegistry(defaults...)
	a.registries = append(a.registries, webSessions)
	a.web = web.New(cat, webSessions, a.rec, web.Options{
		Listen:          cfg.HTTP.Listen,
		SubmitRPS:       cfg.HTTP.SubmitRPS,
		SubmitBurst:     cfg.HTTP.SubmitBurst,
		ShutdownTimeout: time.Duration(cfg.HTTP.ShutdownTimeoutSeconds) * time.Second,
	})

	if cfg.Telegram.Enabled() {
		botSessions := payment.NewRegistry(defaults...)
		a.registries = append(a.registries, botSessions)
		a.bot = bot.New(bot.Options{
			Catalog:  cat,
			Sessions: botSessions,
			Journal:  a.rec,
			AdminID:  cfg.Telegram.AdminID,
		})
		a.botReg = tg.NewRegistry()
		if err := a.bot.Register(a.botReg); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("app: telegram handlers: %w", err)
		}
	}
	return a, nil
}

// Services lists what the runner starts.
func (a *App) Services() []cmd.Service {
	svcs := []cmd.Service{
		{Name: "http", Run: a.web.Run},
		{Name: "janitor", Run: a.runJanitor},
	}
	if a.bot != nil {
		svcs = append(svcs, cmd.Service{Name: "telegram", Run: a.runTelegram})
	}
	return svcs
}

func (a *App) runTelegram(ctx context.Context) error {
	return tg.RunTelegram(ctx, tg.RunOptions{
		Config:      &a.cfg.Config,
		Registry:    a.botReg,
		Middlewares: tg.DefaultMiddlewares(&a.cfg.Config, a.bot.OnLimited()),
		Routes:      a.bot.Routes,
		OnStop:      a.bot.Stop,
	})
}

// runJanitor sweeps idle sessions of every surface until ctx is done.
func (a *App) runJanitor(ctx context.Context) error {
	if a.sweepEvery <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(a.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.sweep()
		}
	}
}

func (a *App) sweep() int {
	n := 0
	for _, r := range a.registries {
		n += r.Sweep(a.ttl)
	}
	return n
}

// Close discards open sessions, drains the journal and closes the database.
func (a *App) Close() error {
	for _, r := range a.registries {
		r.CloseAll()
	}
	if a.async != nil {
		a.async.Close()
		if n := a.async.Dropped(); n > 0 {
			logger.Warn(context.Background(), logger.CompJournal, "journal.dropped", slog.Uint64("count", n))
		}
	}
	return a.infra.Close()
}
