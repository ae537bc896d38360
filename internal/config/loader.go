package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads the configuration file at path, merges it on top of the
// built-in defaults, applies HYPEJK_* environment variable overrides, and
// returns the final Config. Files ending in .yaml or .yml are decoded as YAML,
// anything else as TOML. An empty path skips the file and relies on defaults
// and the environment. The returned Config has NOT been validated; the caller
// should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	cfg.normalize()

	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: decode %s: %w", path, err)
		}
	default:
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	return nil
}

// applyEnvOverrides reads well-known HYPEJK_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the config file.
func applyEnvOverrides(cfg *Config) {
	// ── Monitor ──
	setStringSlice(&cfg.Monitor.Addresses, "HYPEJK_MONITOR_ADDRESSES")

	// ── Hyperliquid ──
	setStr(&cfg.Hyperliquid.APIURL, "HYPEJK_HYPERLIQUID_API_URL")
	setStr(&cfg.Hyperliquid.WSURL, "HYPEJK_HYPERLIQUID_WS_URL")
	setInt(&cfg.Hyperliquid.ReconnectDelay, "HYPEJK_HYPERLIQUID_RECONNECT_DELAY")

	// ── Feishu ──
	setStr(&cfg.Feishu.WebhookURL, "HYPEJK_FEISHU_WEBHOOK_URL")
	setStr(&cfg.Feishu.WebhookURL, "FEISHU_WEBHOOK_URL") // compatibility alias

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HYPEJK_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HYPEJK_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HYPEJK_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HYPEJK_NOTIFY_EVENTS")

	// ── Pipeline ──
	setInt(&cfg.Pipeline.QueueSize, "HYPEJK_PIPELINE_QUEUE_SIZE")
	setDuration(&cfg.Pipeline.SendTimeout, "HYPEJK_PIPELINE_SEND_TIMEOUT")
	setDuration(&cfg.Pipeline.ShutdownGrace, "HYPEJK_PIPELINE_SHUTDOWN_GRACE")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "HYPEJK_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "HYPEJK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HYPEJK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HYPEJK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HYPEJK_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HYPEJK_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HYPEJK_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "HYPEJK_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "HYPEJK_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "HYPEJK_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "HYPEJK_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "HYPEJK_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "HYPEJK_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "HYPEJK_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "HYPEJK_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "HYPEJK_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "HYPEJK_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "HYPEJK_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "HYPEJK_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "HYPEJK_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "HYPEJK_S3_REGION")
	setStr(&cfg.S3.Bucket, "HYPEJK_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "HYPEJK_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "HYPEJK_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "HYPEJK_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "HYPEJK_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "HYPEJK_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "HYPEJK_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "HYPEJK_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "HYPEJK_SERVER_API_KEY")

	// ── Backfill ──
	setStr(&cfg.Backfill.Start, "HYPEJK_BACKFILL_START")
	setStr(&cfg.Backfill.End, "HYPEJK_BACKFILL_END")
	setBool(&cfg.Backfill.Notify, "HYPEJK_BACKFILL_NOTIFY")

	// ── Top-level ──
	setStr(&cfg.Mode, "HYPEJK_MODE")
	setStr(&cfg.LogLevel, "HYPEJK_LOG_LEVEL")
	setStr(&cfg.LogFile, "HYPEJK_LOG_FILE")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
