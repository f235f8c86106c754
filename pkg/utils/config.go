package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DBPath     string     `yaml:"db_path"`
	HTTPAddr   string     `yaml:"http_addr"`
	EventsAddr string     `yaml:"events_addr"` // TCP line feed of catalog events
	GRPCAddr   string     `yaml:"grpc_addr"`
	Auth       AuthConfig `yaml:"auth"`
	Log        LogConfig  `yaml:"log"`
}

type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"`
	JWTIssuer   string        `yaml:"jwt_issuer"`
	JWTDuration time.Duration `yaml:"jwt_duration"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
}

func defaults() Config {
	return Config{
		HTTPAddr:   ":8080",
		EventsAddr: ":7070",
		GRPCAddr:   ":9090",
		Auth: AuthConfig{
			// dev default (change for production)
			JWTSecret:   "dev-secret-change-me",
			JWTIssuer:   "servicehub",
			JWTDuration: 24 * time.Hour,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads the optional YAML file at path, then applies
// SERVICEHUB_* environment overrides. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.DBPath, "SERVICEHUB_DB_PATH")
	setString(&cfg.HTTPAddr, "SERVICEHUB_HTTP_ADDR")
	setString(&cfg.EventsAddr, "SERVICEHUB_EVENTS_ADDR")
	setString(&cfg.GRPCAddr, "SERVICEHUB_GRPC_ADDR")
	setString(&cfg.Auth.JWTSecret, "SERVICEHUB_JWT_SECRET")
	setString(&cfg.Auth.JWTIssuer, "SERVICEHUB_JWT_ISSUER")
	setString(&cfg.Log.Level, "SERVICEHUB_LOG_LEVEL")
	setString(&cfg.Log.Format, "SERVICEHUB_LOG_FORMAT")

	// hours; a bad value keeps whatever was configured before
	if ttl := os.Getenv("SERVICEHUB_JWT_TTL_HOURS"); ttl != "" {
		if h, err := strconv.Atoi(ttl); err == nil && h > 0 {
			cfg.Auth.JWTDuration = time.Duration(h) * time.Hour
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
