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

	"github.com/larriantoniy/tg_session_web/internal/adapters/httpapi"
	"github.com/larriantoniy/tg_session_web/internal/adapters/qr"
	"github.com/larriantoniy/tg_session_web/internal/adapters/store"
	"github.com/larriantoniy/tg_session_web/internal/adapters/tg"
	"github.com/larriantoniy/tg_session_web/internal/adapters/ws"
	"github.com/larriantoniy/tg_session_web/internal/config"
	"github.com/larriantoniy/tg_session_web/internal/ports"
	"github.com/larriantoniy/tg_session_web/internal/useCases"
)

const (
	envDev  = "dev"
	envProd = "prod"
)

const shutdownTimeout = 15 * time.Second

func main() {
	path, err := config.FetchConfigPath(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	cfg, err := config.Load(path)
	if err != nil {
		panic(err)
	}

	logger := setupLogger(cfg.Env)
	tg.CheckConnectivity(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	fileStore, err := store.NewFileStore(cfg.SessionsDir, logger)
	if err != nil {
		logger.Error("init session store", "error", err)
		os.Exit(1)
	}
	if cfg.S3.Bucket != "" {
		mirror, err := store.NewS3Mirror(ctx, cfg.S3.Bucket, cfg.S3.Region, cfg.S3.Prefix)
		if err != nil {
			logger.Error("init s3 mirror", "bucket", cfg.S3.Bucket, "error", err)
			os.Exit(1)
		}
		fileStore.WithMirror(mirror)
		logger.Info("s3 mirror enabled", "bucket", cfg.S3.Bucket, "prefix", cfg.S3.Prefix)
	}

	var index ports.CredentialIndex = fileStore
	if cfg.Redis.Addr != "" {
		redisIndex, err := store.NewRedisIndex(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Key)
		if err != nil {
			logger.Error("init redis index", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		defer redisIndex.Close()
		index = redisIndex
		logger.Info("redis index enabled", "addr", cfg.Redis.Addr)
	}

	factory := tg.NewFactory(tg.Options{
		WorkDir:        cfg.TDLib.Dir,
		Verbosity:      cfg.TDLib.Verbosity,
		DeviceModel:    cfg.TDLib.DeviceModel,
		SystemVersion:  cfg.TDLib.SystemVersion,
		AppVersion:     cfg.TDLib.AppVersion,
		LangCode:       cfg.TDLib.LangCode,
		ReleaseTimeout: cfg.TDLib.ReleaseTimeout,
	}, logger)

	runner := useCases.NewRunner(useCases.Deps{
		Clients:        factory,
		Store:          fileStore,
		Index:          index,
		QR:             qr.NewRenderer(0),
		QRTimeout:      cfg.Negotiation.QRTimeout,
		ConnectTimeout: cfg.Negotiation.ConnectTimeout,
	}, logger)

	channel := ws.NewHandler(func(sink ports.EnvelopeSink) ws.Negotiation {
		return runner.Open(sink)
	}, logger, ws.Options{
		InboundRate:  cfg.Transport.InboundRate,
		InboundBurst: cfg.Transport.InboundBurst,
	})

	router, err := httpapi.NewRouter(httpapi.Deps{
		Store:     fileStore,
		Index:     index,
		Channel:   channel,
		Restarter: httpapi.NewRestarter(cfg.Restart.Grace, cancel, logger),
		Active:    runner.Active,
		Countdown: cfg.Negotiation.ClientCountdown,
	}, logger)
	if err != nil {
		logger.Error("init router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server started", "addr", cfg.HTTP.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			_ = runner.Shutdown(context.Background())
			os.Exit(1)
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	// вебсокеты захвачены и не ждутся Shutdown'ом: переговоры гасит runner
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Warn("negotiations did not stop in time", "error", err)
	}

	logger.Info("exit")
}

func setupLogger(env string) *slog.Logger {
	var logger *slog.Logger

	switch env {
	case envDev:
		logger = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		logger = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		logger = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return logger
}
