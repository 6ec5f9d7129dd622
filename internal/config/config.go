package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// DefaultAllowedContentTypes is the upload allow-list used when
// ALLOWED_CONTENT_TYPES is not set.
var DefaultAllowedContentTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/plain",
	"application/json",
}

// Config holds all application configuration
type Config struct {
	// Service configuration
	ServiceName     string
	ServicePort     string
	LogLevel        slog.Level
	LogFormat       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Transfer rules
	MaxFileSize         int64
	AllowedContentTypes []string
	PresignTTL          time.Duration

	// Blob backend: "minio" or "s3"
	BlobBackend string

	// MinIO configuration
	MinIOEndpoint   string
	MinIOAccessKey  string
	MinIOSecretKey  string
	MinIOBucketName string
	MinIOUseSSL     bool

	// S3 configuration
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	// TiDB configuration
	TiDBHost     string
	TiDBPort     string
	TiDBUser     string
	TiDBPassword string
	TiDBDatabase string
	AutoMigrate  bool

	// Redis configuration
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Audit dispatch
	AuditAsync        bool
	AuditWriteTimeout time.Duration

	// Identity
	JWTSecret             string
	JWKSURL               string
	PrincipalHeader       string
	AllowUnverifiedBearer bool

	// TrustForwardedFor takes the audit client address from X-Forwarded-For.
	// Enable only behind a proxy that overwrites the header.
	TrustForwardedFor bool

	// Jaeger configuration
	TracingEnabled   bool
	JaegerEndpoint   string
	TraceSampleRatio float64
}

// LoadConfig loads configuration from an optional .env file and environment
// variables with sensible defaults
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	level, err := parseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	config := &Config{
		// Service defaults
		ServiceName:     getEnv("SERVICE_NAME", "filebroker"),
		ServicePort:     getEnv("SERVICE_PORT", "8080"),
		LogLevel:        level,
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		ReadTimeout:     getEnvAsDuration("HTTP_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:    getEnvAsDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		// Transfer defaults
		MaxFileSize:         getEnvAsInt64("MAX_FILE_SIZE_BYTES", 10*1024*1024),
		AllowedContentTypes: getEnvAsList("ALLOWED_CONTENT_TYPES", DefaultAllowedContentTypes),
		PresignTTL:          getEnvAsDuration("PRESIGN_TTL", time.Hour),

		BlobBackend: strings.ToLower(getEnv("BLOB_BACKEND", "minio")),

		// MinIO defaults
		MinIOEndpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinIOSecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinIOBucketName: getEnv("MINIO_BUCKET_NAME", "filebroker"),
		MinIOUseSSL:     getEnvAsBool("MINIO_USE_SSL", false),

		// S3 defaults
		S3Bucket:       getEnv("S3_BUCKET", "filebroker"),
		S3Region:       getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("S3_SECRET_KEY", ""),
		S3UsePathStyle: getEnvAsBool("S3_USE_PATH_STYLE", false),

		// TiDB defaults
		TiDBHost:     getEnv("TIDB_HOST", "localhost"),
		TiDBPort:     getEnv("TIDB_PORT", "4000"),
		TiDBUser:     getEnv("TIDB_USER", "root"),
		TiDBPassword: getEnv("TIDB_PASSWORD", ""),
		TiDBDatabase: getEnv("TIDB_DATABASE", "filebroker"),
		AutoMigrate:  getEnvAsBool("AUTO_MIGRATE", true),

		// Redis defaults
		RedisEnabled:  getEnvAsBool("REDIS_ENABLED", true),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		CacheTTL:      getEnvAsDuration("CACHE_TTL", 5*time.Minute),

		AuditAsync:        getEnvAsBool("AUDIT_ASYNC", true),
		AuditWriteTimeout: getEnvAsDuration("AUDIT_WRITE_TIMEOUT", 5*time.Second),

		JWTSecret:             getEnv("JWT_SECRET", ""),
		JWKSURL:               getEnv("JWKS_URL", ""),
		PrincipalHeader:       getEnv("PRINCIPAL_HEADER", ""),
		AllowUnverifiedBearer: getEnvAsBool("ALLOW_UNVERIFIED_BEARER", true),
		TrustForwardedFor:     getEnvAsBool("TRUST_FORWARDED_FOR", false),

		// Jaeger defaults
		TracingEnabled:   getEnvAsBool("TRACING_ENABLED", true),
		JaegerEndpoint:   getEnv("JAEGER_ENDPOINT", "localhost:4318"),
		TraceSampleRatio: getEnvAsFloat("TRACE_SAMPLE_RATIO", 1.0),
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT: invalid format %q, allowed: json, text", c.LogFormat)
	}
	if c.BlobBackend != "minio" && c.BlobBackend != "s3" {
		return fmt.Errorf("BLOB_BACKEND: invalid backend %q, allowed: minio, s3", c.BlobBackend)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE_BYTES: must be > 0")
	}
	if len(c.AllowedContentTypes) == 0 {
		return fmt.Errorf("ALLOWED_CONTENT_TYPES: must not be empty")
	}
	if c.PresignTTL <= 0 {
		return fmt.Errorf("PRESIGN_TTL: must be > 0")
	}
	return nil
}

// GetDSN returns the TiDB connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.TiDBUser,
		c.TiDBPassword,
		c.TiDBHost,
		c.TiDBPort,
		c.TiDBDatabase,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// SetupLogger builds the process logger and installs it as the slog default.
func SetupLogger(c *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}

	var handler slog.Handler
	if c.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("service", c.ServiceName)
	slog.SetDefault(logger)
	return logger
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid level %q, allowed: debug, info, warn, error", level)
	}
}
