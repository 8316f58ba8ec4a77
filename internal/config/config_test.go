package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	orig := os.Args
	t.Cleanup(func() { os.Args = orig })
	os.Args = append([]string{"finsync"}, args...)
}

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	assert.Equal(t, "finsync.db", cfg.LocalDSN)
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
	assert.Equal(t, time.Second, cfg.BackoffMin)
	assert.Equal(t, 30*time.Second, cfg.BackoffMax)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Zero(t, cfg.TombstoneRetention)
	assert.Equal(t, "us-east-1", cfg.S3Region)
}

func TestLoadConfig_NoOverrides(t *testing.T) {
	withArgs(t)
	cfg := LoadConfig()

	want := &Config{}
	want.LoadDefaults()
	assert.Equal(t, want, cfg)
}

func TestLoadConfig_JsonFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"local_dsn": "/var/lib/finsync/finsync.db",
		"remote_dsn": "postgres://app:app@db:5432/finsync",
		"secret_key": "prod-secret",
		"device_name": "laptop",
		"sync_interval": "1m",
		"backoff_min": "2s",
		"backoff_max": "45s",
		"max_retries": 3,
		"tombstone_retention": "720h",
		"s3_root_user": "svc",
		"s3_root_password": "pw",
		"s3_bucket": "receipts-prod",
		"s3_region": "eu-west-1",
		"s3_base_endpoint": "https://s3.example.com/"
	}`), 0o600))
	withArgs(t, "-config", path)

	cfg := LoadConfig()

	assert.Equal(t, "/var/lib/finsync/finsync.db", cfg.LocalDSN)
	assert.Equal(t, "postgres://app:app@db:5432/finsync", cfg.RemoteDSN)
	assert.Equal(t, "prod-secret", cfg.SecretKey)
	assert.Equal(t, "laptop", cfg.DeviceName)
	assert.Equal(t, time.Minute, cfg.SyncInterval)
	assert.Equal(t, 2*time.Second, cfg.BackoffMin)
	assert.Equal(t, 45*time.Second, cfg.BackoffMax)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 720*time.Hour, cfg.TombstoneRetention)
	assert.Equal(t, "receipts-prod", cfg.S3Bucket)
	assert.Equal(t, "eu-west-1", cfg.S3Region)
}

func TestLoadConfig_Flags(t *testing.T) {
	withArgs(t, "-l", "other.db", "-d", "postgres://x", "-i", "60", "-k", "7", "-n", "phone")

	cfg := LoadConfig()

	assert.Equal(t, "other.db", cfg.LocalDSN)
	assert.Equal(t, "postgres://x", cfg.RemoteDSN)
	assert.Equal(t, time.Minute, cfg.SyncInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.TombstoneRetention)
	assert.Equal(t, "phone", cfg.DeviceName)
	// untouched fields keep their defaults
	assert.Equal(t, "secretKey", cfg.SecretKey)
}

func TestLoadConfig_FlagsOverrideJson(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"local_dsn": "from-json.db",
		"remote_dsn": "postgres://json",
		"secret_key": "json-secret",
		"device_name": "json-device",
		"sync_interval": "1m",
		"backoff_min": "1s",
		"backoff_max": "30s",
		"max_retries": 5,
		"tombstone_retention": 0,
		"s3_root_user": "admin",
		"s3_root_password": "secretpassword",
		"s3_bucket": "receipts",
		"s3_region": "us-east-1",
		"s3_base_endpoint": "http://127.0.0.1:9000/"
	}`), 0o600))
	withArgs(t, "-config", path, "-l", "from-flag.db")

	cfg := LoadConfig()

	assert.Equal(t, "from-flag.db", cfg.LocalDSN)
	assert.Equal(t, "postgres://json", cfg.RemoteDSN)
}
