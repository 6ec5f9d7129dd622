package storage

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("filebroker-storage")

// MinioClient issues presigned URLs against a MinIO bucket with tracing
type MinioClient struct {
	client     *minio.Client
	bucketName string
}

// NewMinioClient initializes a new MinIO client and makes sure the bucket exists.
func NewMinioClient(ctx context.Context, endpoint, accessKey, secretKey, bucketName string, useSSL bool, logger *slog.Logger) (*MinioClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		logger.Info("creating bucket", "bucket", bucketName)
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinioClient{client: client, bucketName: bucketName}, nil
}

// PresignPut returns a PUT URL bound to the key, content type and length.
func (mc *MinioClient) PresignPut(ctx context.Context, key, contentType string, contentLength int64, ttl time.Duration) (string, error) {
	ctx, span := tracer.Start(ctx, "minio.presign_put",
		trace.WithAttributes(
			attribute.String("object_key", key),
			attribute.Int64("content_length", contentLength),
		),
	)
	defer span.End()

	headers := http.Header{}
	headers.Set("Content-Type", contentType)
	headers.Set("Content-Length", strconv.FormatInt(contentLength, 10))

	u, err := mc.client.PresignHeader(ctx, http.MethodPut, mc.bucketName, key, ttl, nil, headers)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to presign upload: %w", err)
	}
	return u.String(), nil
}

// PresignGet returns a GET URL that downloads the object as filename.
func (mc *MinioClient) PresignGet(ctx context.Context, key, filename string, ttl time.Duration) (string, error) {
	ctx, span := tracer.Start(ctx, "minio.presign_get",
		trace.WithAttributes(
			attribute.String("object_key", key),
		),
	)
	defer span.End()

	params := url.Values{}
	params.Set("response-content-disposition", attachmentDisposition(filename))

	u, err := mc.client.PresignedGetObject(ctx, mc.bucketName, key, ttl, params)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to presign download: %w", err)
	}
	return u.String(), nil
}

// Delete removes an object from MinIO
func (mc *MinioClient) Delete(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "minio.delete_object",
		trace.WithAttributes(
			attribute.String("object_key", key),
		),
	)
	defer span.End()

	if err := mc.client.RemoveObject(ctx, mc.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// attachmentDisposition formats an attachment header for filename. Plain
// ASCII names are quoted as is; others use the RFC 2231 extended form.
func attachmentDisposition(filename string) string {
	if quotable(filename) {
		return `attachment; filename="` + filename + `"`
	}
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}

func quotable(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c > 0x7e || c == '"' || c == '\\' {
			return false
		}
	}
	return true
}
