package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/gophvault/internal/server/vault"
)

// envFile is loaded before the environment is read. Variables already set
// in the process environment win over the file.
var envFile = ".env"

// parseEnv overlays Config with environment variables.
//
// A missing .env file is not an error; an unreadable one, a malformed
// USER_STORAGE or KEEP_FILES_DAYS panics like the other loaders.
func parseEnv(config *Config) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	strs := map[string]*string{
		"HTTP_ADDR":        &config.HTTPAddr,
		"GRPC_ADDR":        &config.GRPCAddr,
		"VAULT_ROOT":       &config.VaultRoot,
		"UPLOADS_DIR":      &config.UploadsDir,
		"API_KEY":          &config.APIKey,
		"CONVERTER_URL":    &config.ConverterURL,
		"UI_MESSAGE":       &config.UIMessage,
		"AUTH_PROVIDER":    &config.AuthProvider,
		"SESSION_URL":      &config.SessionURL,
		"JWT_SECRET":       &config.JWTSecret,
		"OIDC_ISSUER":      &config.OIDCIssuer,
		"OIDC_CLIENT_ID":   &config.OIDCClientID,
		"DATABASE_DSN":     &config.DatabaseDSN,
		"S3_BUCKET":        &config.S3Bucket,
		"S3_PREFIX":        &config.S3Prefix,
		"S3_REGION":        &config.S3Region,
		"S3_BASE_ENDPOINT": &config.S3BaseEndpoint,
		"S3_ROOT_USER":     &config.S3RootUser,
		"S3_ROOT_PASSWORD": &config.S3RootPassword,
		"VAULT_KDF":        &config.KDF,
		"VAULT_KDF_SALT":   &config.KDFSalt,
		"LOG_LEVEL":        &config.LogLevel,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("ENABLE_AUTH"); ok {
		config.EnableAuth = parseBool(v)
	}

	if v, ok := os.LookupEnv("KEEP_FILES_DAYS"); ok && v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			panic(err)
		}
		config.KeepFilesDays = days
	}

	if v, ok := os.LookupEnv("USER_STORAGE"); ok {
		setUserStorage(config, v)
	}
}

// parseBool accepts the usual strconv forms plus "yes" and "on".
func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "on":
		return true
	}
	b, _ := strconv.ParseBool(strings.TrimSpace(v))
	return b
}

func setUserStorage(config *Config, v string) {
	n, err := vault.ParseSize(v)
	if err != nil {
		panic(err)
	}
	config.UserStorage = n
	config.UserStorageLabel = ""
	if n > 0 {
		config.UserStorageLabel = strings.TrimSpace(v)
	}
}
