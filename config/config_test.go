package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  dispatched_topic: "orders.dispatched"
  status_observed_topic: "orders.shipment-status"
redis:
  host: "localhost"
  port: 6379
shipwatch:
  http_addr: ":8083"
  usps_user_id: "123USERID456"
  domestic_country: "US"
  logging_enabled: true
  followup_delay_seconds: 60
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "orders.dispatched", cfg.Kafka.DispatchedTopic)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8083", cfg.Shipwatch.HTTPAddr)
	require.Equal(t, "123USERID456", cfg.Shipwatch.USPSUserID)
	require.Equal(t, 60, cfg.Shipwatch.FollowupDelaySeconds)
}

func TestMarkStaleOverseasComplete_DefaultsOn(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
shipwatch:
  usps_user_id: "u"
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.True(t, cfg.Shipwatch.MarkStaleOverseasCompleteEnabled())

	require.NoError(t, os.WriteFile(p, []byte(`
shipwatch:
  usps_user_id: "u"
  mark_stale_overseas_complete: false
`), 0o600))

	cfg, err = LoadConfig(p)
	require.NoError(t, err)
	require.False(t, cfg.Shipwatch.MarkStaleOverseasCompleteEnabled())
}
