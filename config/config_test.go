package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
  port: 5432
  user: desk
  password: secret
  name: desk
  ssl_mode: disable
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "host=localhost port=5432 user=desk password=secret dbname=desk sslmode=disable", cfg.Database.DSN())
	assert.Equal(t, time.Hour, cfg.Booking.GraceWindow())
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Lookahead())
	assert.Equal(t, 15*time.Minute, cfg.Booking.EndingSoon())
	assert.Equal(t, "ru", cfg.Booking.FallbackLocale)
	assert.Equal(t, "kafka", cfg.Events.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.TaskRetention())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
booking:
  grace_window_minutes: 30
kafka:
  brokers: ["kafka:9092"]
`)
	t.Setenv("DESK_BOOKING_GRACE_WINDOW_MINUTES", "45")
	t.Setenv("DESK_EVENTS_DRIVER", "nats")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Minute, cfg.Booking.GraceWindow())
	assert.Equal(t, "nats", cfg.Events.Driver)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Kafka.Brokers)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}
