package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Auth     AuthConfig     `koanf:"auth"`
	Audit    AuditConfig    `koanf:"audit"`
	Files    FilesConfig    `koanf:"files"`
}

type ServerConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MigrationsPath string `koanf:"migrations_path"`
	MaxConns       int    `koanf:"max_conns"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type AuthConfig struct {
	JWT JWTConfig `koanf:"jwt"`
}

type JWTConfig struct {
	SigningKey         string `koanf:"signingkey"`
	Issuer             string `koanf:"issuer"`
	AccessExpiryMins   int    `koanf:"accessexpirymins"`
	RefreshExpiryHours int    `koanf:"refreshexpiryhours"`
	RefreshGraceMins   int    `koanf:"refreshgracemins"`
}

type AuditConfig struct {
	BufferSize      int `koanf:"buffer_size"`
	BatchSize       int `koanf:"batch_size"`
	FlushIntervalMS int `koanf:"flush_interval_ms"`
}

type FilesConfig struct {
	MaxExpiryMins     int `koanf:"max_expiry_mins"`
	DefaultExpiryMins int `koanf:"default_expiry_mins"`
	SweepIntervalMins int `koanf:"sweep_interval_mins"`
}

func Load(configPaths ...string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	_ = k.Load(confmap.Provider(map[string]any{
		"server.port":                 8080,
		"server.host":                 "0.0.0.0",
		"database.max_conns":          25,
		"database.migrations_path":    "migrations",
		"log.level":                   "info",
		"log.format":                  "json",
		"auth.jwt.issuer":             "andino",
		"auth.jwt.accessexpirymins":   60,
		"auth.jwt.refreshexpiryhours": 168,
		"auth.jwt.refreshgracemins":   5,
		"audit.buffer_size":           4096,
		"audit.batch_size":            100,
		"audit.flush_interval_ms":     500,
		"files.max_expiry_mins":       1440,
		"files.default_expiry_mins":   1440,
		"files.sweep_interval_mins":   15,
	}, "."), nil)

	// YAML file (optional)
	for _, path := range configPaths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// Config file is optional, skip if not found
			continue
		}
	}

	// Environment variables override everything
	// ANDINO_SERVER_PORT -> server.port
	_ = k.Load(env.Provider("ANDINO_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "ANDINO_")),
			"_", ".",
		)
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
