// Package config handles configuration for the vault server, including
// defaults, .env and environment overlay, JSON overlay, and command-line
// flags.
package config

import "time"

// Config holds runtime settings for the vault server.
//
// Fields:
//   - HTTPAddr / GRPCAddr: bind addresses for the file API and the maintenance service.
//   - VaultRoot / UploadsDir: vault tree and chunked-upload staging directory.
//   - APIKey: shared secret granting unscoped access; empty disables it.
//   - EnableAuth: require a bearer token on every path, not only account and org paths.
//   - UserStorage / UserStorageLabel: per-account byte limit (0 disables) and its display form.
//   - KeepFilesDays: retention window for the expired-file sweep (0 disables).
//   - DatabaseDSN: PostgreSQL DSN for the activity journal; empty disables the journal.
//   - S3*: archive bucket that receives files before retention removes them.
//   - KDF / KDFSalt: folder-key derivation scheme.
type Config struct {
	HTTPAddr   string
	GRPCAddr   string
	VaultRoot  string
	UploadsDir string
	APIKey     string

	ConverterURL     string
	ConverterTimeout time.Duration

	EnableAuth      bool
	AuthProvider    string
	SessionURL      string
	JWTSecret       string
	OIDCIssuer      string
	OIDCClientID    string
	AuthIdleTimeout time.Duration

	UploadAbandonAfter time.Duration
	KeepFilesDays      int
	UIMessage          string
	UserStorage        int64
	UserStorageLabel   string

	DatabaseDSN      string
	JournalRetention time.Duration

	S3Bucket       string
	S3Prefix       string
	S3Region       string
	S3BaseEndpoint string
	S3RootUser     string
	S3RootPassword string

	KDF     string
	KDFSalt string

	LogLevel string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8080"
	c.GRPCAddr = "127.0.0.1:50051"
	c.VaultRoot = "/vault"
	c.UploadsDir = "/tmp/vault-uploads"
	c.ConverterURL = "http://vault-converter:3000"
	c.ConverterTimeout = 2 * time.Minute
	c.AuthProvider = "session"
	c.SessionURL = "https://api.nanome.ai/user/session"
	c.AuthIdleTimeout = 1 * time.Hour
	c.UploadAbandonAfter = 10 * time.Minute
	c.JournalRetention = 90 * 24 * time.Hour
	c.S3Region = "us-east-1"
	c.KDF = "sha256"
	c.LogLevel = "info"
}

// KeepFiles is the retention window as a duration; zero means files are kept.
func (c *Config) KeepFiles() time.Duration {
	return time.Duration(c.KeepFilesDays) * 24 * time.Hour
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from .env and the environment, an optional JSON file and finally
// command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

// LoadEnv applies defaults and the .env/environment overlay only. Tools
// that share the server's environment but own their command line use it.
func LoadEnv() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	return cfg
}
