package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"korty/internal/api"
	"korty/internal/broker"
	"korty/internal/config"
	"korty/internal/database"
	"korty/internal/directory"
	"korty/internal/domain"
	"korty/internal/logging"
	"korty/internal/metrics"
	"korty/internal/notify"
	"korty/internal/provider"
	"korty/internal/realtime"
	"korty/internal/report"
	"korty/internal/repository"
	"korty/internal/secrets"
	"korty/internal/service"
	"korty/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	dir, err := directory.New(&cfg.Directory)
	if err != nil {
		logger.Error().Err(err).Msg("load venue directory")
		return err
	}

	box, err := secrets.NewBox(cfg.Payments.BoxKey)
	if err != nil {
		logger.Error().Err(err).Msg("init secret box")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub(cfg.Realtime.StreamBuffer, &logger)

	fanout, closeRedis := initFanout(ctx, cfg, hub, &logger)
	if closeRedis != nil {
		defer closeRedis()
	}

	sinks, closeBroker := buildSinks(cfg, dir, fanout, &logger)
	if closeBroker != nil {
		defer closeBroker()
	}

	dispatcher := worker.NewDispatcher(db, sinks, worker.RetryPolicy{}, &logger)
	go dispatcher.Start(ctx)

	gateway := provider.NewClient(cfg.Payments.Providers["wayforpay"], &logger)

	bookings := service.NewBookingService(db, dir, box, gateway, dispatcher, cfg.Server.BaseURL, &logger)
	payments := service.NewPaymentService(db, box, dispatcher, &logger)
	reports := report.NewGenerator(dir, &logger)

	sweeper := worker.NewSweeper(db, payments,
		time.Duration(cfg.Payments.UnpaidDeadlineMinutes)*time.Minute,
		time.Duration(cfg.Payments.SweepIntervalSeconds)*time.Second,
		&logger)
	go sweeper.Start(ctx)

	backup := database.NewBackupRunner(db, cfg.Database.Path, cfg.Backup, &logger)
	go backup.Start(ctx)

	auth := realtime.NewAuthenticator(cfg.Auth.JWTSecret, dir)
	handlers := api.NewHandlers(bookings, payments, reports, hub,
		time.Duration(cfg.Realtime.HeartbeatSeconds)*time.Second, &logger)
	server := api.NewServer(cfg.Server, cfg.RateLimit, auth, handlers, &logger)

	startMetrics(ctx, cfg, &logger)

	return serve(ctx, server, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}
	return db, nil
}

// initFanout wires the realtime delivery path. With redis configured, events
// reach subscribers on every replica; without it they fan out in process
// only. A failed redis connection degrades to the in-process path.
func initFanout(ctx context.Context, cfg *config.Config, hub *realtime.Hub, logger *zerolog.Logger) (domain.EventFanout, func()) {
	memory := repository.NewMemoryFanout(hub)
	if cfg.Redis.Address == "" {
		return memory, nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return memory, nil
	}
	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")

	redisFanout := repository.NewRedisFanout(client, cfg.Redis.Channel, logger)
	go redisFanout.Listen(ctx, hub.Publish)

	return repository.NewFailoverFanout(redisFanout, memory, logger), func() { _ = client.Close() }
}

// buildSinks assembles the outbox delivery targets. The realtime fanout is
// always present; the broker and telegram sinks attach only when configured,
// and an unreachable one is logged and skipped rather than failing startup.
func buildSinks(cfg *config.Config, dir *directory.Registry, fanout domain.EventFanout, logger *zerolog.Logger) ([]worker.Sink, func()) {
	sinks := []worker.Sink{{Name: "realtime", Fanout: fanout}}

	var closeBroker func()
	if cfg.AMQP.URL != "" {
		pub, err := broker.NewPublisher(cfg.AMQP, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("amqp connection failed, continuing without broker")
		} else {
			sinks = append(sinks, worker.Sink{Name: "broker", Fanout: pub})
			closeBroker = func() { _ = pub.Close() }
		}
	}

	if cfg.Telegram.BotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		} else {
			bot.Debug = cfg.Telegram.Debug
			sinks = append(sinks, worker.Sink{Name: "telegram", Fanout: notify.NewTelegramSink(bot, dir, logger)})
			logger.Info().Str("bot", bot.Self.UserName).Msg("telegram notifications enabled")
		}
	}

	return sinks, closeBroker
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func serve(ctx context.Context, server *api.Server, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("port", cfg.Server.Port).Msg("booking API started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}

	logger.Info().Msg("booking API stopped")
	return nil
}
