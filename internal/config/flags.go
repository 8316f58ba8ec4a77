package config

import (
	"flag"
	"os"
	"time"

	"github.com/mkorchagin/finsync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-l string   local SQLite database path
//	-d string   PostgreSQL DSN of the remote document store
//	-s string   JWT HMAC secret key
//	-n string   device name recorded on tombstones
//	-i int      sync interval, seconds
//	-k int      tombstone retention, days (0 disables purging)
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-l", "-d", "-s", "-n", "-i", "-k", "-u", "-p", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.LocalDSN, "l", config.LocalDSN, "local database path")
	fs.StringVar(&config.RemoteDSN, "d", config.RemoteDSN, "remote database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.DeviceName, "n", config.DeviceName, "device name")

	syncInterval := fs.Int("i", int(config.SyncInterval.Seconds()), "sync interval (in seconds)")
	retention := fs.Int("k", int(config.TombstoneRetention.Hours()/24), "tombstone retention (in days)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SyncInterval = time.Duration(*syncInterval) * time.Second
	config.TombstoneRetention = time.Duration(*retention) * 24 * time.Hour
}
