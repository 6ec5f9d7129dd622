package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoadConfig_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServicePort)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxFileSize)
	assert.Equal(t, time.Hour, cfg.PresignTTL)
	assert.Equal(t, DefaultAllowedContentTypes, cfg.AllowedContentTypes)
	assert.Equal(t, "minio", cfg.BlobBackend)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.True(t, cfg.AuditAsync)
	assert.True(t, cfg.AllowUnverifiedBearer)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 1.0, cfg.TraceSampleRatio)
	assert.False(t, cfg.TrustForwardedFor)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MAX_FILE_SIZE_BYTES", "2048")
	t.Setenv("ALLOWED_CONTENT_TYPES", "text/plain, application/pdf ,")
	t.Setenv("BLOB_BACKEND", "S3")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("AUDIT_ASYNC", "false")
	t.Setenv("PRESIGN_TTL", "15m")
	t.Setenv("TRUST_FORWARDED_FOR", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, int64(2048), cfg.MaxFileSize)
	assert.Equal(t, []string{"text/plain", "application/pdf"}, cfg.AllowedContentTypes)
	assert.Equal(t, "s3", cfg.BlobBackend)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.False(t, cfg.AuditAsync)
	assert.Equal(t, 15*time.Minute, cfg.PresignTTL)
	assert.True(t, cfg.TrustForwardedFor)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"log level":   {"LOG_LEVEL", "verbose"},
		"log format":  {"LOG_FORMAT", "xml"},
		"backend":     {"BLOB_BACKEND", "gcs"},
		"max size":    {"MAX_FILE_SIZE_BYTES", "-1"},
		"presign ttl": {"PRESIGN_TTL", "0s"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv(kv[0], kv[1])
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestGetDSN(t *testing.T) {
	cfg := &Config{TiDBUser: "u", TiDBPassword: "p", TiDBHost: "db", TiDBPort: "4000", TiDBDatabase: "files"}
	assert.Equal(t, "u:p@tcp(db:4000)/files?charset=utf8mb4&parseTime=True&loc=UTC", cfg.GetDSN())
}
