// Package config holds the simulator's runtime settings. Values come from
// built-in defaults, an optional TOML file and HFTSIM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Yusufzhafir/hftsim/internal/ingest"
	"github.com/Yusufzhafir/hftsim/internal/latency"
	"github.com/Yusufzhafir/hftsim/internal/publish"
	"github.com/Yusufzhafir/hftsim/internal/usecase/order"
)

type Config struct {
	Engine  EngineConfig  `toml:"engine"`
	Latency LatencyConfig `toml:"latency"`
	Ingest  IngestConfig  `toml:"ingest"`
	HTTP    HTTPConfig    `toml:"http"`
	Kafka   KafkaConfig   `toml:"kafka"`
	Log     LogConfig     `toml:"log"`
}

type EngineConfig struct {
	Symbol       string `toml:"symbol"`
	FirstOrderID uint64 `toml:"first_order_id"`
	// Strict panics on a corrupted book instead of dropping the bad entry.
	Strict bool `toml:"strict"`
	// SeedDemo rests the two reference orders at startup.
	SeedDemo bool `toml:"seed_demo"`
}

type LatencyConfig struct {
	MinMicros int64  `toml:"min_micros"`
	MaxMicros int64  `toml:"max_micros"`
	Seed      uint64 `toml:"seed"` // 0 seeds from entropy
}

func (l LatencyConfig) Min() time.Duration { return time.Duration(l.MinMicros) * time.Microsecond }
func (l LatencyConfig) Max() time.Duration { return time.Duration(l.MaxMicros) * time.Microsecond }

type IngestConfig struct {
	MarketAddr    string `toml:"market_addr"`
	SignalAddr    string `toml:"signal_addr"`
	SignalWorkers int    `toml:"signal_workers"`

	// Optional upstream sources, disabled when empty.
	MarketWebSocketURL string `toml:"market_ws_url"`
	MarketWSSubscribe  string `toml:"market_ws_subscribe"`
	RedisAddr          string `toml:"redis_addr"`
	RedisPassword      string `toml:"redis_password"`
	RedisDB            int    `toml:"redis_db"`
	RedisChannel       string `toml:"redis_channel"`
}

type HTTPConfig struct {
	Addr        string   `toml:"addr"`
	JWTSecret   string   `toml:"jwt_secret"` // empty leaves mutating routes open
	CORSOrigins []string `toml:"cors_origins"`
	// BookPublishMillis throttles depth pushes to websocket clients. Zero pushes after every trade.
	BookPublishMillis int64 `toml:"book_publish_millis"`
}

type KafkaConfig struct {
	Brokers []string `toml:"brokers"` // empty disables the trade export
	Topic   string   `toml:"topic"`
}

type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			Symbol:       "AAPL",
			FirstOrderID: order.DefaultFirstOrderID,
		},
		Latency: LatencyConfig{
			MinMicros: latency.DefaultMin.Microseconds(),
			MaxMicros: latency.DefaultMax.Microseconds(),
		},
		Ingest: IngestConfig{
			MarketAddr:    ingest.DefaultMarketAddr,
			SignalAddr:    ingest.DefaultSignalAddr,
			SignalWorkers: 1,
			RedisChannel:  "hftsim.signals",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Kafka: KafkaConfig{
			Topic: publish.DefaultTopic,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Engine.Symbol) == "" {
		errs = append(errs, "engine: symbol must not be empty")
	}
	if c.Engine.FirstOrderID == 0 {
		errs = append(errs, "engine: first_order_id must be positive")
	}
	if c.Latency.MinMicros < 0 || c.Latency.MaxMicros < 0 {
		errs = append(errs, "latency: bounds must not be negative")
	}
	if c.Latency.MinMicros > c.Latency.MaxMicros {
		errs = append(errs, fmt.Sprintf("latency: min_micros %d exceeds max_micros %d", c.Latency.MinMicros, c.Latency.MaxMicros))
	}
	if c.Ingest.MarketAddr == "" && c.Ingest.MarketWebSocketURL == "" {
		errs = append(errs, "ingest: no market data source configured")
	}
	if c.Ingest.SignalAddr == "" && c.Ingest.RedisAddr == "" {
		errs = append(errs, "ingest: no signal source configured")
	}
	if c.Ingest.SignalWorkers < 1 {
		errs = append(errs, "ingest: signal_workers must be at least 1")
	}
	if c.Ingest.RedisAddr != "" && c.Ingest.RedisChannel == "" {
		errs = append(errs, "ingest: redis_channel is required when redis_addr is set")
	}
	if c.HTTP.BookPublishMillis < 0 {
		errs = append(errs, "http: book_publish_millis must not be negative")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, "kafka: topic is required when brokers are set")
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log: unknown level %q (valid: debug, info, warn, error)", c.Log.Level))
	}

	if len(errs) > 0 {
		return errors.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}
