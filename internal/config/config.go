// Package config defines the top-level configuration for the fill monitor
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Public Hyperliquid endpoints.
const (
	MainnetAPIURL = "https://api.hyperliquid.xyz"
	MainnetWSURL  = "wss://api.hyperliquid.xyz/ws"
	TestnetAPIURL = "https://api.hyperliquid-testnet.xyz"
	TestnetWSURL  = "wss://api.hyperliquid-testnet.xyz/ws"
)

// Config is the root configuration structure. Fields are populated from a TOML
// or YAML file and then optionally overridden by HYPEJK_* environment
// variables.
type Config struct {
	Monitor     MonitorConfig     `toml:"monitor" yaml:"monitor"`
	Hyperliquid HyperliquidConfig `toml:"hyperliquid" yaml:"hyperliquid"`
	Feishu      FeishuConfig      `toml:"feishu" yaml:"feishu"`
	Notify      NotifyConfig      `toml:"notify" yaml:"notify"`
	Pipeline    PipelineConfig    `toml:"pipeline" yaml:"pipeline"`
	Redis       RedisConfig       `toml:"redis" yaml:"redis"`
	Postgres    PostgresConfig    `toml:"postgres" yaml:"postgres"`
	S3          S3Config          `toml:"s3" yaml:"s3"`
	Server      ServerConfig      `toml:"server" yaml:"server"`
	Backfill    BackfillConfig    `toml:"backfill" yaml:"backfill"`
	Mode        string            `toml:"mode" yaml:"mode"`
	LogLevel    string            `toml:"log_level" yaml:"log_level"`
	LogFile     string            `toml:"log_file" yaml:"log_file"`
}

// MonitorConfig lists the accounts to watch.
type MonitorConfig struct {
	Addresses []string `toml:"addresses" yaml:"addresses"`
}

// HyperliquidConfig holds API endpoints. ReconnectDelay is in seconds.
type HyperliquidConfig struct {
	APIURL         string `toml:"api_url" yaml:"api_url"`
	WSURL          string `toml:"ws_url" yaml:"ws_url"`
	ReconnectDelay int    `toml:"reconnect_delay" yaml:"reconnect_delay"`
}

// ReconnectInterval returns ReconnectDelay as a duration.
func (h HyperliquidConfig) ReconnectInterval() time.Duration {
	return time.Duration(h.ReconnectDelay) * time.Second
}

// FeishuConfig holds the bot webhook. An empty URL disables the channel.
type FeishuConfig struct {
	WebhookURL string `toml:"webhook_url" yaml:"webhook_url"`
}

// NotifyConfig holds the other notification channel credentials and the kind
// filter applied to every chat channel.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token" yaml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id" yaml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url" yaml:"discord_webhook_url"`
	Events            []string `toml:"events" yaml:"events"`
}

// PipelineConfig tunes the event pipeline.
type PipelineConfig struct {
	QueueSize     int      `toml:"queue_size" yaml:"queue_size"`
	SendTimeout   duration `toml:"send_timeout" yaml:"send_timeout"`
	ShutdownGrace duration `toml:"shutdown_grace" yaml:"shutdown_grace"`
}

// RedisConfig holds Redis connection parameters for the pub/sub sink.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled" yaml:"enabled"`
	Addr       string `toml:"addr" yaml:"addr"`
	Password   string `toml:"password" yaml:"password"`
	DB         int    `toml:"db" yaml:"db"`
	PoolSize   int    `toml:"pool_size" yaml:"pool_size"`
	MaxRetries int    `toml:"max_retries" yaml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled" yaml:"tls_enabled"`
}

// PostgresConfig holds connection parameters for the transition journal.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled" yaml:"enabled"`
	DSN           string `toml:"dsn" yaml:"dsn"`
	Host          string `toml:"host" yaml:"host"`
	Port          int    `toml:"port" yaml:"port"`
	Database      string `toml:"database" yaml:"database"`
	User          string `toml:"user" yaml:"user"`
	Password      string `toml:"password" yaml:"password"`
	SSLMode       string `toml:"ssl_mode" yaml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns" yaml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns" yaml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations" yaml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters for the archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled" yaml:"enabled"`
	Endpoint       string `toml:"endpoint" yaml:"endpoint"`
	Region         string `toml:"region" yaml:"region"`
	Bucket         string `toml:"bucket" yaml:"bucket"`
	Prefix         string `toml:"prefix" yaml:"prefix"`
	AccessKey      string `toml:"access_key" yaml:"access_key"`
	SecretKey      string `toml:"secret_key" yaml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl" yaml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style" yaml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Port    int    `toml:"port" yaml:"port"`
	APIKey  string `toml:"api_key" yaml:"api_key"`
}

// BackfillConfig selects the history window replayed in backfill mode. Start
// and End accept RFC 3339 timestamps or plain dates (UTC). An empty End means
// now.
type BackfillConfig struct {
	Start  string `toml:"start" yaml:"start"`
	End    string `toml:"end" yaml:"end"`
	Notify bool   `toml:"notify" yaml:"notify"`
}

// Window parses Start and End.
func (b BackfillConfig) Window(now time.Time) (start, end time.Time, err error) {
	start, err = parseTime(b.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("backfill: start: %w", err)
	}
	end = now.UTC()
	if strings.TrimSpace(b.End) != "" {
		end, err = parseTime(b.End)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("backfill: end: %w", err)
		}
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("backfill: end %s is not after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return start, end, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("must not be empty")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", s)
	}
	return t, nil
}

// duration is a wrapper around time.Duration that supports TOML and YAML
// string decoding (e.g. "10s", "1m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML accepts "10s"-style strings.
func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Hyperliquid: HyperliquidConfig{
			APIURL:         MainnetAPIURL,
			WSURL:          MainnetWSURL,
			ReconnectDelay: 5,
		},
		Pipeline: PipelineConfig{
			QueueSize:     64,
			SendTimeout:   duration{10 * time.Second},
			ShutdownGrace: duration{15 * time.Second},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "hypejk-transitions",
			Prefix:         "transitions",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled: false,
			Port:    8000,
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor":  true,
	"backfill": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// normalize lowercases and trims addresses, drops blanks and duplicates, and
// points the WebSocket at testnet when the API URL does.
func (c *Config) normalize() {
	seen := make(map[string]bool, len(c.Monitor.Addresses))
	addrs := make([]string, 0, len(c.Monitor.Addresses))
	for _, a := range c.Monitor.Addresses {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		addrs = append(addrs, a)
	}
	c.Monitor.Addresses = addrs

	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))

	if strings.Contains(c.Hyperliquid.APIURL, "testnet") && c.Hyperliquid.WSURL == MainnetWSURL {
		c.Hyperliquid.WSURL = TestnetWSURL
	}
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, backfill)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Monitor
	if len(c.Monitor.Addresses) == 0 {
		errs = append(errs, "monitor: at least one address is required")
	}
	for _, a := range c.Monitor.Addresses {
		if !common.IsHexAddress(a) {
			errs = append(errs, fmt.Sprintf("monitor: %q is not a hex address", a))
		}
	}

	// Hyperliquid
	if c.Hyperliquid.APIURL == "" {
		errs = append(errs, "hyperliquid: api_url must not be empty")
	}
	if c.Hyperliquid.WSURL == "" {
		errs = append(errs, "hyperliquid: ws_url must not be empty")
	}
	if c.Hyperliquid.ReconnectDelay <= 0 {
		errs = append(errs, "hyperliquid: reconnect_delay must be > 0")
	}

	// Telegram token and chat ID go together.
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	// Pipeline
	if c.Pipeline.QueueSize < 1 {
		errs = append(errs, "pipeline: queue_size must be >= 1")
	}
	if c.Pipeline.SendTimeout.Duration <= 0 {
		errs = append(errs, "pipeline: send_timeout must be > 0")
	}
	if c.Pipeline.ShutdownGrace.Duration <= 0 {
		errs = append(errs, "pipeline: shutdown_grace must be > 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Backfill
	if c.Mode == "backfill" {
		if _, _, err := c.Backfill.Window(time.Now()); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
