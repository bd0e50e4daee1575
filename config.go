package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	TransportPubNub = "pubnub"
	TransportRedis  = "redis"
	TransportLocal  = "local"
)

// Config holds all configuration for the payment wait service
type Config struct {
	HTTP    HTTPConfig
	Logging LoggingConfig
	Redis   RedisConfig
	Channel ChannelConfig
	PubNub  PubNubConfig
	Wait    WaitConfig
	Auth    AuthConfig
	Worker  WorkerConfig
}

type HTTPConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type LoggingConfig struct {
	Level string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ChannelConfig selects the real-time transport for transaction channels
type ChannelConfig struct {
	Transport      string
	ConnectTimeout time.Duration
}

type WaitConfig struct {
	Waiter    WaiterConfig
	Retention time.Duration
}

type AuthConfig struct {
	JWTSecret     string
	WebhookSecret string
}

type WorkerConfig struct {
	Concurrency int
	SweepSpec   string
	InstanceID  string
}

// InstanceQueue is the asynq queue only this process consumes.
func (w WorkerConfig) InstanceQueue() string {
	return "paywait-" + w.InstanceID
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxReconnects, err := strconv.Atoi(getEnv("CHANNEL_MAX_RECONNECTS", strconv.Itoa(DefaultMaxReconnects)))
	if err != nil {
		return nil, fmt.Errorf("invalid CHANNEL_MAX_RECONNECTS: %w", err)
	}

	concurrency, err := strconv.Atoi(getEnv("WORKER_CONCURRENCY", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_CONCURRENCY: %w", err)
	}

	shutdownTimeout, err := getDuration("HTTP_SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	connectTimeout, err := getDuration("CHANNEL_CONNECT_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	deadline, err := getDuration("PAYMENT_WAIT_DEADLINE", "5m")
	if err != nil {
		return nil, err
	}
	displayDelay, err := getDuration("PAYMENT_DISPLAY_DELAY", "2s")
	if err != nil {
		return nil, err
	}
	retention, err := getDuration("SESSION_RETENTION", "10m")
	if err != nil {
		return nil, err
	}

	hostname, _ := os.Hostname()

	cfg := &Config{
		HTTP: HTTPConfig{
			Addr:            getEnv("HTTP_ADDR", ":8081"),
			ShutdownTimeout: shutdownTimeout,
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Channel: ChannelConfig{
			Transport:      strings.ToLower(getEnv("CHANNEL_TRANSPORT", TransportRedis)),
			ConnectTimeout: connectTimeout,
		},
		PubNub: PubNubConfig{
			PublishKey:       getEnv("PN_PUBLISH_KEY", ""),
			SubscribeKey:     getEnv("PN_SUBSCRIBE_KEY", ""),
			SecretKey:        getEnv("PN_SECRET_KEY", ""),
			UserID:           getEnv("PN_USER_ID", "rogu-paywait"),
			SubscriberUserID: getEnv("PN_SUB_USER_ID", "rogu-web"),
			ConnectTimeout:   connectTimeout,
		},
		Wait: WaitConfig{
			Waiter: WaiterConfig{
				Deadline:      deadline,
				DisplayDelay:  displayDelay,
				MaxReconnects: maxReconnects,
			},
			Retention: retention,
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", ""),
			WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
		},
		Worker: WorkerConfig{
			Concurrency: concurrency,
			SweepSpec:   getEnv("SESSION_SWEEP_SPEC", "@every 1m"),
			InstanceID:  getEnv("INSTANCE_ID", hostname),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Channel.Transport {
	case TransportPubNub:
		if c.PubNub.SubscribeKey == "" || c.PubNub.PublishKey == "" {
			return fmt.Errorf("PN_PUBLISH_KEY and PN_SUBSCRIBE_KEY are required for the pubnub transport")
		}
	case TransportRedis, TransportLocal:
	default:
		return fmt.Errorf("unknown CHANNEL_TRANSPORT %q", c.Channel.Transport)
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.Wait.Waiter.Deadline <= 0 {
		return fmt.Errorf("PAYMENT_WAIT_DEADLINE must be positive")
	}
	if c.Wait.Waiter.DisplayDelay <= 0 {
		return fmt.Errorf("PAYMENT_DISPLAY_DELAY must be positive")
	}
	if c.Wait.Waiter.MaxReconnects < 0 {
		return fmt.Errorf("CHANNEL_MAX_RECONNECTS must not be negative")
	}
	if c.Wait.Retention < c.Wait.Waiter.Deadline {
		return fmt.Errorf("SESSION_RETENTION must not be shorter than PAYMENT_WAIT_DEADLINE")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	if c.Worker.InstanceID == "" {
		return fmt.Errorf("INSTANCE_ID is required")
	}

	return nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
