package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophvault/internal/flagx"
	"github.com/dmitrijs2005/gophvault/internal/timex"
)

// JsonConfig is the on-disk shape of the optional JSON config file.
// Durations accept "10m" style strings or integer nanoseconds. Pointer and
// zero values mean "not set" and leave the current Config value alone.
type JsonConfig struct {
	HTTPAddr           string         `json:"http_addr"`
	GRPCAddr           string         `json:"grpc_addr"`
	VaultRoot          string         `json:"vault_root"`
	UploadsDir         string         `json:"uploads_dir"`
	APIKey             string         `json:"api_key"`
	ConverterURL       string         `json:"converter_url"`
	ConverterTimeout   timex.Duration `json:"converter_timeout"`
	EnableAuth         *bool          `json:"enable_auth"`
	AuthProvider       string         `json:"auth_provider"`
	SessionURL         string         `json:"session_url"`
	JWTSecret          string         `json:"jwt_secret"`
	OIDCIssuer         string         `json:"oidc_issuer"`
	OIDCClientID       string         `json:"oidc_client_id"`
	AuthIdleTimeout    timex.Duration `json:"auth_idle_timeout"`
	UploadAbandonAfter timex.Duration `json:"upload_abandon_after"`
	KeepFilesDays      *int           `json:"keep_files_days"`
	UIMessage          string         `json:"ui_message"`
	UserStorage        string         `json:"user_storage"`
	DatabaseDSN        string         `json:"database_dsn"`
	JournalRetention   timex.Duration `json:"journal_retention"`
	S3Bucket           string         `json:"s3_bucket"`
	S3Prefix           string         `json:"s3_prefix"`
	S3Region           string         `json:"s3_region"`
	S3BaseEndpoint     string         `json:"s3_base_endpoint"`
	S3RootUser         string         `json:"s3_root_user"`
	S3RootPassword     string         `json:"s3_root_password"`
	KDF                string         `json:"kdf"`
	KDFSalt            string         `json:"kdf_salt"`
	LogLevel           string         `json:"log_level"`
}

// parseJson loads the file named by -c or -config and overlays it on
// config. No flag means no file. An unreadable file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.VaultRoot, c.VaultRoot)
	setString(&config.UploadsDir, c.UploadsDir)
	setString(&config.APIKey, c.APIKey)
	setString(&config.ConverterURL, c.ConverterURL)
	setString(&config.AuthProvider, c.AuthProvider)
	setString(&config.SessionURL, c.SessionURL)
	setString(&config.JWTSecret, c.JWTSecret)
	setString(&config.OIDCIssuer, c.OIDCIssuer)
	setString(&config.OIDCClientID, c.OIDCClientID)
	setString(&config.UIMessage, c.UIMessage)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Prefix, c.S3Prefix)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.KDF, c.KDF)
	setString(&config.KDFSalt, c.KDFSalt)
	setString(&config.LogLevel, c.LogLevel)

	if c.ConverterTimeout.Duration > 0 {
		config.ConverterTimeout = c.ConverterTimeout.Duration
	}
	if c.AuthIdleTimeout.Duration > 0 {
		config.AuthIdleTimeout = c.AuthIdleTimeout.Duration
	}
	if c.UploadAbandonAfter.Duration > 0 {
		config.UploadAbandonAfter = c.UploadAbandonAfter.Duration
	}
	if c.JournalRetention.Duration > 0 {
		config.JournalRetention = c.JournalRetention.Duration
	}
	if c.EnableAuth != nil {
		config.EnableAuth = *c.EnableAuth
	}
	if c.KeepFilesDays != nil {
		config.KeepFilesDays = *c.KeepFilesDays
	}
	if c.UserStorage != "" {
		setUserStorage(config, c.UserStorage)
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
