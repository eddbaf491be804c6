// Package config provides the configuration schema and loader for the
// Voxhound soundboard bot.
package config

// LogLevel controls log verbosity for the Voxhound process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Voxhound.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Discord    DiscordConfig    `yaml:"discord"`
	Database   DatabaseConfig   `yaml:"database"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Sounds     SoundsConfig     `yaml:"sounds"`
}

// ServerConfig holds network and logging settings for the metrics and
// health endpoints.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// DiscordConfig holds the bot's gateway credentials.
type DiscordConfig struct {
	// Token is the bot token. Required.
	Token string `yaml:"token"`

	// GuildID optionally scopes slash command registration to one guild,
	// which propagates instantly. Empty registers commands globally.
	GuildID string `yaml:"guild_id"`
}

// DatabaseConfig holds the sound catalog store connection settings.
type DatabaseConfig struct {
	// PostgresDSN is the connection string for the sound catalog database.
	// Empty falls back to an in-memory store that loses data on restart.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// RecognizerConfig holds per-language acoustic model paths. At least one
// language must be configured; languages without a model never get
// recognizer slots.
type RecognizerConfig struct {
	// Models maps a language name (english, turkish, dutch) to the Vosk
	// model directory for that language.
	Models map[string]string `yaml:"models"`
}

// SoundsConfig holds clip storage settings.
type SoundsConfig struct {
	// ClipDir is the directory sound clips are stored in as WAV files.
	ClipDir string `yaml:"clip_dir"`

	// MaxUploadBytes caps the attachment size accepted by the sound add
	// command. Defaults to 2 MiB when zero.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// DefaultMaxUploadBytes is the attachment size cap applied when
// sounds.max_upload_bytes is unset.
const DefaultMaxUploadBytes = 2 * 1024 * 1024
