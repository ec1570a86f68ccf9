package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load starts from Defaults, merges the TOML file at path when path is not
// empty, loads .env if present and applies HFTSIM_* overrides. The result is
// not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Engine.Symbol, "HFTSIM_SYMBOL")
	setUint64(&cfg.Engine.FirstOrderID, "HFTSIM_FIRST_ORDER_ID")
	setBool(&cfg.Engine.Strict, "HFTSIM_STRICT")
	setBool(&cfg.Engine.SeedDemo, "HFTSIM_SEED_DEMO")

	setInt64(&cfg.Latency.MinMicros, "HFTSIM_LATENCY_MIN_MICROS")
	setInt64(&cfg.Latency.MaxMicros, "HFTSIM_LATENCY_MAX_MICROS")
	setUint64(&cfg.Latency.Seed, "HFTSIM_LATENCY_SEED")

	setStr(&cfg.Ingest.MarketAddr, "HFTSIM_MARKET_ADDR")
	setStr(&cfg.Ingest.SignalAddr, "HFTSIM_SIGNAL_ADDR")
	setInt(&cfg.Ingest.SignalWorkers, "HFTSIM_SIGNAL_WORKERS")
	setStr(&cfg.Ingest.MarketWebSocketURL, "HFTSIM_MARKET_WS_URL")
	setStr(&cfg.Ingest.MarketWSSubscribe, "HFTSIM_MARKET_WS_SUBSCRIBE")
	setStr(&cfg.Ingest.RedisAddr, "HFTSIM_REDIS_ADDR")
	setStr(&cfg.Ingest.RedisPassword, "HFTSIM_REDIS_PASSWORD")
	setInt(&cfg.Ingest.RedisDB, "HFTSIM_REDIS_DB")
	setStr(&cfg.Ingest.RedisChannel, "HFTSIM_REDIS_CHANNEL")

	setStr(&cfg.HTTP.Addr, "HFTSIM_HTTP_ADDR")
	setStr(&cfg.HTTP.JWTSecret, "JWT_SECRET")
	setStr(&cfg.HTTP.JWTSecret, "HFTSIM_JWT_SECRET")
	setStringSlice(&cfg.HTTP.CORSOrigins, "HFTSIM_CORS_ORIGINS")
	setInt64(&cfg.HTTP.BookPublishMillis, "HFTSIM_BOOK_PUBLISH_MILLIS")

	setStringSlice(&cfg.Kafka.Brokers, "HFTSIM_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "HFTSIM_KAFKA_TOPIC")

	setStr(&cfg.Log.Level, "HFTSIM_LOG_LEVEL")
	setStr(&cfg.Log.File, "HFTSIM_LOG_FILE")
}

// Each helper only mutates the target when the variable is set and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
