package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maneesh/filebroker/internal/audit"
	"github.com/maneesh/filebroker/internal/config"
	"github.com/maneesh/filebroker/internal/handlers"
	"github.com/maneesh/filebroker/internal/identity"
	"github.com/maneesh/filebroker/internal/lifecycle"
	"github.com/maneesh/filebroker/internal/metadata"
	"github.com/maneesh/filebroker/internal/storage"
	"github.com/maneesh/filebroker/internal/tracing"
	"github.com/maneesh/filebroker/internal/transfer"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := config.SetupLogger(cfg)
	logger.Info("starting filebroker", "port", cfg.ServicePort, "version", config.Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry tracing
	if cfg.TracingEnabled {
		shutdownTracer, err := tracing.InitTracer(ctx, tracing.Options{
			ServiceName:    cfg.ServiceName,
			ServiceVersion: config.Version,
			Endpoint:       cfg.JaegerEndpoint,
			SampleRatio:    cfg.TraceSampleRatio,
		}, logger)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(ctx); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}

	// Initialize TiDB client
	tidbClient, err := storage.NewTiDBClient(ctx, cfg.GetDSN())
	if err != nil {
		return fmt.Errorf("connect tidb: %w", err)
	}
	defer tidbClient.Close()
	logger.Info("tidb connected", "host", cfg.TiDBHost, "database", cfg.TiDBDatabase)

	if cfg.AutoMigrate {
		if err := storage.Migrate(ctx, tidbClient.DB()); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("schema migrations applied")
	}

	// Redis is an optional read-through cache
	var cache metadata.Cache
	if cfg.RedisEnabled {
		redisClient, err := storage.NewRedisClient(ctx, cfg.GetRedisAddr(), cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
		if err != nil {
			logger.Warn("redis unavailable, metadata cache disabled", "addr", cfg.GetRedisAddr(), "error", err)
		} else {
			defer redisClient.Close()
			cache = redisClient
			logger.Info("redis connected", "addr", cfg.GetRedisAddr())
		}
	}

	blobs, err := newBlobStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	verifier, err := newVerifier(ctx, cfg, logger)
	if err != nil {
		return err
	}

	files := metadata.NewStore(tidbClient, cache, metadata.Options{
		MaxFileSize:         cfg.MaxFileSize,
		AllowedContentTypes: cfg.AllowedContentTypes,
	}, logger)
	ledger := audit.NewLedger(tidbClient, logger)
	dispatcher := audit.NewDispatcher(ledger, audit.DispatcherOptions{
		Async:   cfg.AuditAsync,
		Timeout: cfg.AuditWriteTimeout,
	}, logger)

	service := lifecycle.NewService(lifecycle.Deps{
		Resolver: identity.NewResolver(identity.DefaultSources(cfg.AllowUnverifiedBearer)...),
		Files:    files,
		Ledger:   ledger,
		Recorder: dispatcher,
		Issuer:   transfer.NewIssuer(files, blobs, dispatcher, cfg.PresignTTL, logger),
		Blobs:    blobs,
	}, logger)

	router := handlers.NewRouter(service, handlers.RouterOptions{
		ServiceName:       cfg.ServiceName,
		Version:           config.Version,
		DB:                tidbClient,
		Verifier:          verifier,
		PrincipalHeader:   cfg.PrincipalHeader,
		TrustForwardedFor: cfg.TrustForwardedFor,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.ServicePort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Error("audit dispatcher did not drain", "error", err)
	}

	logger.Info("server exited")
	return nil
}

func newBlobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (transfer.BlobStore, error) {
	switch cfg.BlobBackend {
	case "s3":
		client, err := storage.NewS3Client(ctx, storage.S3Options{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 client: %w", err)
		}
		logger.Info("blob store ready", "backend", "s3", "bucket", cfg.S3Bucket, "region", cfg.S3Region)
		return client, nil
	default:
		client, err := storage.NewMinioClient(ctx,
			cfg.MinIOEndpoint,
			cfg.MinIOAccessKey,
			cfg.MinIOSecretKey,
			cfg.MinIOBucketName,
			cfg.MinIOUseSSL,
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("init minio client: %w", err)
		}
		logger.Info("blob store ready", "backend", "minio", "bucket", cfg.MinIOBucketName)
		return client, nil
	}
}

func newVerifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*identity.Verifier, error) {
	switch {
	case cfg.JWKSURL != "":
		v, err := identity.NewJWKSVerifier(ctx, cfg.JWKSURL, logger)
		if err != nil {
			return nil, fmt.Errorf("init jwks verifier: %w", err)
		}
		return v, nil
	case cfg.JWTSecret != "":
		return identity.NewHMACVerifier([]byte(cfg.JWTSecret), logger), nil
	default:
		return nil, nil
	}
}
