package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/gophvault/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-w string   HTTP bind address (e.g., ":8080")
//	-a string   gRPC maintenance bind address (e.g., "127.0.0.1:50051")
//	-r string   vault root directory
//	-u string   upload staging directory
//	-k string   API key
//	-v string   converter base URL
//	-q string   per-account storage limit (e.g., "10GB")
//	-d string   PostgreSQL DSN for the journal
//	-p string   auth provider: session, jwt or oidc
//	-s string   JWT HMAC secret
//	-b string   S3 archive bucket
//	-e string   S3 base endpoint
//	-g string   S3 region
//	-l string   log level
//	-enable-auth  require a token on every path
//
// Only the flags listed here are parsed; os.Args is filtered with
// flagx.FilterArgs first so other components can share the command line.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:],
		[]string{"-w", "-a", "-r", "-u", "-k", "-v", "-q", "-d", "-p", "-s", "-b", "-e", "-g", "-l", "-enable-auth"},
		"-enable-auth")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "w", config.HTTPAddr, "HTTP address and port")
	fs.StringVar(&config.GRPCAddr, "a", config.GRPCAddr, "gRPC maintenance address and port")
	fs.StringVar(&config.VaultRoot, "r", config.VaultRoot, "vault root directory")
	fs.StringVar(&config.UploadsDir, "u", config.UploadsDir, "upload staging directory")
	fs.StringVar(&config.APIKey, "k", config.APIKey, "API key")
	fs.StringVar(&config.ConverterURL, "v", config.ConverterURL, "converter base URL")
	userStorage := fs.String("q", "", "per-account storage limit")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.AuthProvider, "p", config.AuthProvider, "auth provider")
	fs.StringVar(&config.JWTSecret, "s", config.JWTSecret, "JWT secret")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 archive bucket")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.BoolVar(&config.EnableAuth, "enable-auth", config.EnableAuth, "require a token on every path")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if *userStorage != "" {
		setUserStorage(config, *userStorage)
	}
}
