package storagetest

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/maneesh/filebroker/internal/models"
)

// PutCall records a PresignPut request.
type PutCall struct {
	Key           string
	ContentType   string
	ContentLength int64
	TTL           time.Duration
}

// GetCall records a PresignGet request.
type GetCall struct {
	Key      string
	Filename string
	TTL      time.Duration
}

// BlobStore is a blob store that signs nothing and remembers every call.
type BlobStore struct {
	mu      sync.Mutex
	Puts    []PutCall
	Gets    []GetCall
	Deleted []string

	PutErr    error
	GetErr    error
	DeleteErr error
}

func (b *BlobStore) PresignPut(_ context.Context, key, contentType string, contentLength int64, ttl time.Duration) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.PutErr != nil {
		return "", b.PutErr
	}
	b.Puts = append(b.Puts, PutCall{Key: key, ContentType: contentType, ContentLength: contentLength, TTL: ttl})
	return fmt.Sprintf("https://blob.test/%s?op=put&expires=%d", url.PathEscape(key), int(ttl.Seconds())), nil
}

func (b *BlobStore) PresignGet(_ context.Context, key, filename string, ttl time.Duration) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.GetErr != nil {
		return "", b.GetErr
	}
	b.Gets = append(b.Gets, GetCall{Key: key, Filename: filename, TTL: ttl})
	return fmt.Sprintf("https://blob.test/%s?op=get&expires=%d", url.PathEscape(key), int(ttl.Seconds())), nil
}

func (b *BlobStore) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.DeleteErr != nil {
		return b.DeleteErr
	}
	b.Deleted = append(b.Deleted, key)
	return nil
}

// Cache is an in-memory metadata cache keyed by owner and file.
type Cache struct {
	mu      sync.Mutex
	entries map[[2]string]models.FileRecord

	GetErr        error
	SetErr        error
	InvalidateErr error
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[[2]string]models.FileRecord)}
}

func (c *Cache) GetFileMetadata(_ context.Context, ownerID, fileID string) (*models.FileRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.GetErr != nil {
		return nil, c.GetErr
	}
	f, ok := c.entries[[2]string{ownerID, fileID}]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (c *Cache) SetFileMetadata(_ context.Context, f *models.FileRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SetErr != nil {
		return c.SetErr
	}
	c.entries[[2]string{f.OwnerID, f.FileID}] = *f
	return nil
}

func (c *Cache) InvalidateFileMetadata(_ context.Context, ownerID, fileID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.InvalidateErr != nil {
		return c.InvalidateErr
	}
	delete(c.entries, [2]string{ownerID, fileID})
	return nil
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
