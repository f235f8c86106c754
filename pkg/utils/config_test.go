package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "servicehub", cfg.Auth.JWTIssuer)
	assert.Equal(t, 24*time.Hour, cfg.Auth.JWTDuration)
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servicehub.yaml")
	body := []byte(`
db_path: /tmp/catalog.db
http_addr: ":9999"
auth:
  jwt_secret: from-file
  jwt_duration: 2h
log:
  level: debug
  format: json
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	t.Setenv("SERVICEHUB_JWT_SECRET", "from-env")
	t.Setenv("SERVICEHUB_JWT_TTL_HOURS", "5")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/catalog.db", cfg.DBPath)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, ":7070", cfg.EventsAddr, "unset keys keep defaults")
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 5*time.Hour, cfg.Auth.JWTDuration)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LogConfig{Level: "warn", Format: "json"})

	logger.Info("hidden")
	logger.Warn("shown", "language", "en")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"language":"en"`)
}
