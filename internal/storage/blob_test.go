package storage

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachmentDisposition(t *testing.T) {
	assert.Equal(t, `attachment; filename="doc.pdf"`, attachmentDisposition("doc.pdf"))
	assert.Equal(t, `attachment; filename="my report (1).pdf"`, attachmentDisposition("my report (1).pdf"))
	assert.Equal(t, `attachment; filename*=utf-8''r%C3%A9sum%C3%A9.pdf`, attachmentDisposition("résumé.pdf"))
}

func TestFileKey_OwnerScoped(t *testing.T) {
	assert.Equal(t, "file:2:u1:f1", fileKey("u1", "f1"))
	// "a:b" + "c" and "a" + "b:c" must not collide.
	assert.NotEqual(t, fileKey("a:b", "c"), fileKey("a", "b:c"))
}

func newTestMinio(t *testing.T) *MinioClient {
	t.Helper()
	client, err := minio.New("localhost:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Region: "us-east-1",
	})
	require.NoError(t, err)
	return &MinioClient{client: client, bucketName: "filebroker"}
}

func TestMinioPresignPut(t *testing.T) {
	mc := newTestMinio(t)

	raw, err := mc.PresignPut(context.Background(), "owners/u1/uploads/f1-doc.pdf", "application/pdf", 5000, time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/filebroker/owners/u1/uploads/f1-doc.pdf", u.Path)
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
	assert.Contains(t, u.Query().Get("X-Amz-SignedHeaders"), "content-type")
}

func TestMinioPresignGet(t *testing.T) {
	mc := newTestMinio(t)

	raw, err := mc.PresignGet(context.Background(), "owners/u1/uploads/f1-doc.pdf", "doc.pdf", time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, `attachment; filename="doc.pdf"`, u.Query().Get("response-content-disposition"))
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
}

func TestS3Presign(t *testing.T) {
	sc, err := NewS3Client(context.Background(), S3Options{
		Bucket:       "filebroker",
		Region:       "us-east-1",
		Endpoint:     "http://127.0.0.1:9000",
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		UsePathStyle: true,
	})
	require.NoError(t, err)

	put, err := sc.PresignPut(context.Background(), "owners/u1/uploads/f1-a.txt", "text/plain", 10, time.Hour)
	require.NoError(t, err)
	pu, err := url.Parse(put)
	require.NoError(t, err)
	assert.Equal(t, "/filebroker/owners/u1/uploads/f1-a.txt", pu.Path)
	assert.Equal(t, "3600", pu.Query().Get("X-Amz-Expires"))

	get, err := sc.PresignGet(context.Background(), "owners/u1/uploads/f1-a.txt", "a.txt", 15*time.Minute)
	require.NoError(t, err)
	gu, err := url.Parse(get)
	require.NoError(t, err)
	assert.Equal(t, `attachment; filename="a.txt"`, gu.Query().Get("response-content-disposition"))
	assert.Equal(t, "900", gu.Query().Get("X-Amz-Expires"))
}
