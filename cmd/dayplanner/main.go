package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dayplanner/internal/bot"
	"dayplanner/internal/config"
	"dayplanner/internal/notify"
	"dayplanner/internal/observability"
	"dayplanner/internal/repository"
	"dayplanner/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("planner stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}
	store := repository.NewStore(db)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	bus := notify.NewBus()
	bus.Subscribe(notify.LogHandler(logger))
	notifier := notify.NewAsync(bus, 256, logger)
	notifyCtx, stopNotify := context.WithCancel(ctx)
	go notifier.Run(notifyCtx)
	defer func() {
		stopNotify()
		<-notifier.Done()
	}()

	engine := service.NewRolloverEngine()
	tasks := service.NewTaskService(store, notifier,
		service.WithMetrics(metrics),
		service.WithLogger(logger),
		service.WithRolloverEngine(engine),
	)
	users := service.NewUserService(store, engine, cfg.DefaultTimezone)

	var digest *service.DigestService
	if cfg.DigestEnabled() {
		if digest, err = service.NewDigestService(store.Users, tasks, service.SystemClock, cfg.DigestTime); err != nil {
			return err
		}
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.TelegramToken == "" {
		logger.Warn("TELEGRAM_TOKEN is empty, running without the bot")
		<-ctx.Done()
		return nil
	}

	telegramBot, err := bot.New(cfg.TelegramToken, bot.Deps{
		Users:   users,
		Tasks:   tasks,
		Digest:  digest,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	if digest != nil {
		// Users live in different zones, so the sweep runs every hour and
		// picks whoever has reached the digest hour locally.
		scheduler := service.NewSchedulerService(time.UTC)
		if _, err := scheduler.ScheduleHourly(digest.Minute(), func() {
			jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := telegramBot.SendDailyDigests(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("daily digests", "error", err)
			}
		}); err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	logger.Info("daily planner bot started")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
