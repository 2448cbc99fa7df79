package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	defaultAppName        = "LastWill"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultAccessTTL      = 15 * time.Minute
	defaultChallengeTTL   = 5 * time.Minute
	defaultRelayInterval  = time.Second
	defaultEventStream    = "lastwill:events"
	defaultKafkaTopic     = "lastwill.events"
	devJWTSecret          = "dev-only-secret"

	SinkLog   = "log"
	SinkRedis = "redis"
	SinkKafka = "kafka"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	DBMaxConns        int32
	DBMaxConnLifetime time.Duration

	// AdminAddress owns the escrow, registry, factory and bank.
	AdminAddress   common.Address
	JWTSecret      string
	AccessTokenTTL time.Duration
	ChallengeTTL   time.Duration

	EventSink     string
	EventStream   string
	KafkaBrokers  []string
	KafkaTopic    string
	RelayInterval time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:     getEnv("APP_NAME", defaultAppName),
		AppEnv:      getEnv("APP_ENV", defaultAppEnv),
		Port:        getEnv("PORT", defaultPort),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		EventSink:   strings.ToLower(getEnv("EVENT_SINK", SinkLog)),
		EventStream: getEnv("EVENT_STREAM", defaultEventStream),
		KafkaTopic:  getEnv("KAFKA_TOPIC", defaultKafkaTopic),
	}

	var err error
	if cfg.ShutdownPeriod, err = duration("SHUTDOWN_TIMEOUT_SECONDS", "SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = duration("IDEMPOTENCY_TTL_SECONDS", "IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTL, err = duration("", "ACCESS_TOKEN_TTL", defaultAccessTTL); err != nil {
		return Config{}, err
	}
	if cfg.ChallengeTTL, err = duration("", "CHALLENGE_TTL", defaultChallengeTTL); err != nil {
		return Config{}, err
	}
	if cfg.RelayInterval, err = duration("", "RELAY_INTERVAL", defaultRelayInterval); err != nil {
		return Config{}, err
	}

	if cfg.DBMaxConnLifetime, err = duration("", "DB_MAX_CONN_LIFETIME", 0); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid DB_MAX_CONNS %q", v)
		}
		cfg.DBMaxConns = int32(n)
	}

	admin := os.Getenv("ADMIN_ADDRESS")
	if !common.IsHexAddress(admin) {
		return Config{}, fmt.Errorf("ADMIN_ADDRESS must be a hex address")
	}
	cfg.AdminAddress = common.HexToAddress(admin)
	if cfg.AdminAddress == (common.Address{}) {
		return Config{}, fmt.Errorf("ADMIN_ADDRESS must not be the zero address")
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	switch cfg.EventSink {
	case SinkLog:
	case SinkRedis:
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("EVENT_SINK=redis requires REDIS_URL")
		}
	case SinkKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return Config{}, fmt.Errorf("EVENT_SINK=kafka requires KAFKA_BROKERS")
		}
	default:
		return Config{}, fmt.Errorf("invalid EVENT_SINK %q", cfg.EventSink)
	}

	if cfg.IsDev() {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = devJWTSecret
		}
		return cfg, nil
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}

	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}

	return cfg, nil
}

// IsDev reports whether the process runs in a development environment,
// where Postgres and Redis are optional.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// duration reads a whole number of seconds from secondsKey or, failing
// that, a Go duration from durationKey.
func duration(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
