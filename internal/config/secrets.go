package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Webhook URLs embed their own credentials.
	redact(&out.Feishu.WebhookURL)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Notify.TelegramToken)

	redact(&out.Redis.Password)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Server.APIKey)

	// Copy slices so callers cannot mutate cfg through the redacted
	// copy.
	if cfg.Monitor.Addresses != nil {
		out.Monitor.Addresses = make([]string, len(cfg.Monitor.Addresses))
		copy(out.Monitor.Addresses, cfg.Monitor.Addresses)
	}
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
