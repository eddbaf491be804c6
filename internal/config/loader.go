package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/voxhound/voxhound/pkg/recognizer"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Discord
	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required"))
	}

	// Database
	if cfg.Database.PostgresDSN == "" {
		slog.Warn("database.postgres_dsn is empty; the sound catalog will use an in-memory store and lose data on restart")
	}

	// Recognizer models
	if len(cfg.Recognizer.Models) == 0 {
		errs = append(errs, errors.New("recognizer.models must configure at least one language"))
	}
	for name, path := range cfg.Recognizer.Models {
		if _, err := recognizer.ParseLanguage(name); err != nil {
			errs = append(errs, fmt.Errorf("recognizer.models: %w", err))
		}
		if path == "" {
			errs = append(errs, fmt.Errorf("recognizer.models.%s: model path is required", name))
		}
	}

	// Sounds
	if cfg.Sounds.ClipDir == "" {
		errs = append(errs, errors.New("sounds.clip_dir is required"))
	}
	if cfg.Sounds.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("sounds.max_upload_bytes %d must not be negative", cfg.Sounds.MaxUploadBytes))
	}

	return errors.Join(errs...)
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Sounds.MaxUploadBytes == 0 {
		cfg.Sounds.MaxUploadBytes = DefaultMaxUploadBytes
	}
}

// ModelPaths converts the configured model map to typed languages.
// Call after [Validate]; unknown language names are skipped here.
func (c *Config) ModelPaths() map[recognizer.Language]string {
	paths := make(map[recognizer.Language]string, len(c.Recognizer.Models))
	for name, path := range c.Recognizer.Models {
		lang, err := recognizer.ParseLanguage(name)
		if err != nil {
			continue
		}
		paths[lang] = path
	}
	return paths
}
