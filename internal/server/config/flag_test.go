package config

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{"cmd",
				"-w", ":9000", "-a", "127.0.0.1:9090", "-r", "/srv/vault", "-u", "/srv/uploads",
				"-k", "key", "-v", "http://conv", "-q", "1GB", "-d", "db", "-p", "jwt", "-s", "secret",
				"-b", "bucket", "-e", "http://endpoint", "-g", "us-west-1", "-l", "debug", "-enable-auth",
			},
			expected: &Config{
				HTTPAddr:         ":9000",
				GRPCAddr:         "127.0.0.1:9090",
				VaultRoot:        "/srv/vault",
				UploadsDir:       "/srv/uploads",
				APIKey:           "key",
				ConverterURL:     "http://conv",
				UserStorage:      1 << 30,
				UserStorageLabel: "1GB",
				DatabaseDSN:      "db",
				AuthProvider:     "jwt",
				JWTSecret:        "secret",
				S3Bucket:         "bucket",
				S3BaseEndpoint:   "http://endpoint",
				S3Region:         "us-west-1",
				LogLevel:         "debug",
				EnableAuth:       true,
			},
		},
		{
			name: "bool flag does not swallow the next flag",
			args: []string{"cmd", "-enable-auth", "-r", "/srv/vault"},
			expected: &Config{
				VaultRoot:  "/srv/vault",
				EnableAuth: true,
			},
		},
		{
			name: "foreign flags are ignored",
			args: []string{"cmd", "-c", "cfg.json", "-x", "1", "-r", "/srv/vault"},
			expected: &Config{
				VaultRoot: "/srv/vault",
			},
		},
		{
			name:        "bad size",
			args:        []string{"cmd", "-q", "huge"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			config := &Config{}

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config) })
				return
			}
			require.NotPanics(t, func() { parseFlags(config) })
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
