package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/mkorchagin/finsync/internal/flagx"
	"github.com/mkorchagin/finsync/internal/timex"
)

// JsonConfig is the intermediate DTO used only for reading JSON configuration
// files. Interval fields use timex.Duration, which parses both string values
// such as "30s" and integer nanoseconds. After unmarshalling, its fields are
// copied into the runtime Config struct which uses time.Duration.
type JsonConfig struct {
	LocalDSN           string         `json:"local_dsn"`
	RemoteDSN          string         `json:"remote_dsn"`
	SecretKey          string         `json:"secret_key"`
	DeviceName         string         `json:"device_name"`
	SyncInterval       timex.Duration `json:"sync_interval"`
	BackoffMin         timex.Duration `json:"backoff_min"`
	BackoffMax         timex.Duration `json:"backoff_max"`
	MaxRetries         int            `json:"max_retries"`
	TombstoneRetention timex.Duration `json:"tombstone_retention"`
	S3RootUser         string         `json:"s3_root_user"`
	S3RootPassword     string         `json:"s3_root_password"`
	S3Bucket           string         `json:"s3_bucket"`
	S3Region           string         `json:"s3_region"`
	S3BaseEndpoint     string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config command-line
// flags; if neither is set, no JSON file is loaded. An unreadable file or
// invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.LocalDSN = c.LocalDSN
	config.RemoteDSN = c.RemoteDSN
	config.SecretKey = c.SecretKey
	config.DeviceName = c.DeviceName
	config.SyncInterval = time.Duration(c.SyncInterval.Duration)
	config.BackoffMin = time.Duration(c.BackoffMin.Duration)
	config.BackoffMax = time.Duration(c.BackoffMax.Duration)
	config.MaxRetries = c.MaxRetries
	config.TombstoneRetention = time.Duration(c.TombstoneRetention.Duration)
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
}
