// Package cmd is the process runner: config load, bootstrap, then the app's
// services until a signal arrives.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	coreconfig "github.com/m3rciful/topup/core/config"
	"github.com/m3rciful/topup/core/logger"
)

// ConfigCarrier exposes the embedded core configuration.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// Service is a long-running part of the app. Run returns when ctx is done.
type Service struct {
	Name string
	Run  func(ctx context.Context) error
}

// App is what Bootstrap produces.
type App interface {
	Services() []Service
	Close() error
}

// Options describe how to load configuration, bootstrap the app and run it.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(ctx context.Context, cfg ConfigCarrier) (App, error)

	ShutdownLogger func() error
	// Context replaces the signal context; used by tests.
	Context context.Context
}

// Run loads configuration, bootstraps the app and runs its services. The
// first service to fail stops the others.
func Run(opts Options) error {
	if opts.LoadConfig == nil {
		return errors.New("cmd: LoadConfig is required")
	}
	if opts.Bootstrap == nil {
		return errors.New("cmd: Bootstrap is required")
	}

	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	cfgPath := os.Getenv(env)
	if cfgPath == "" {
		cfgPath = opts.DefaultConfigPath
	}
	if cfgPath == "" {
		return fmt.Errorf("cmd: config path not provided via %s or DefaultConfigPath", env)
	}

	log.Printf("loading config: %s", cfgPath)
	cfg, err := opts.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}
	if cfg.CoreConfig() == nil {
		return errors.New("cmd: loaded config is missing core configuration")
	}

	ctx := opts.Context
	if ctx == nil {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
	}

	startedAt := time.Now()
	app, err := opts.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	services := app.Services()
	names := make([]string, 0, len(services))
	for _, svc := range services {
		names = append(names, svc.Name)
	}
	summary, _ := logger.SummarizeStrings(names, 8)
	logger.Info(ctx, logger.CompApp, "app.ready",
		slog.String("services", summary),
		slog.Duration("startup", logger.Took(startedAt)),
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		g.Go(func() error {
			err := svc.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error(gctx, logger.CompApp, "service.fail",
					slog.String("service", svc.Name),
					slog.String("err", err.Error()),
				)
				return fmt.Errorf("%s: %w", svc.Name, err)
			}
			return nil
		})
	}
	runErr := g.Wait()

	logger.Info(context.Background(), logger.CompApp, "app.shutdown")
	return errors.Join(runErr, app.Close())
}
