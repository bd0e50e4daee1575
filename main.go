// main.go - Entry point
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	logger := NewLogger("info")
	cfg, err := Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = NewLogger(cfg.Logging.Level)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := NewMetrics(registry)

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable")
	}
	cancelPing()

	transport, tokens, closeTransport, err := newTransport(cfg, redisClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create channel transport")
	}
	defer closeTransport()

	sessionService := NewSessionService(cfg.Wait.Waiter, cfg.Wait.Retention, transport.NewChannel, realClock{}, metrics, logger)
	notificationService := NewNotificationService(transport, redisClient, metrics, logger)
	taskHandlers := NewTaskHandlers(notificationService, sessionService, realClock{}, logger)

	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	worker, err := startWorker(redisOpt, taskHandlers, cfg.Worker, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start worker")
	}

	handlers := NewHandlers(sessionService, asynqClient, tokens, cfg.Auth.WebhookSecret, logger)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = httpErrorHandler(logger)
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	setupRoutes(e, handlers, registry, cfg.Auth.JWTSecret)

	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Str("transport", cfg.Channel.Transport).Msg("starting http server")
		if err := e.Start(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	sessionService.Shutdown()
	worker.Shutdown()
}

// newTransport builds the configured channel transport. tokens is nil when
// the transport cannot issue browser tokens.
func newTransport(cfg *Config, redisClient *redis.Client, logger zerolog.Logger) (Transport, TokenGranter, func(), error) {
	switch cfg.Channel.Transport {
	case TransportPubNub:
		pn, err := NewPubNubTransport(&cfg.PubNub, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return pn, pn, pn.Close, nil
	case TransportLocal:
		return NewLocalHub(logger), nil, func() {}, nil
	default:
		return NewRedisTransport(redisClient, cfg.Channel.ConnectTimeout, logger), nil, func() {}, nil
	}
}
