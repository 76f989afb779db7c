// Package storage archives uploaded chart images.
//
// LocalStorage writes under a directory on disk and is meant for
// development. R2Storage talks to Cloudflare R2 through the S3 API.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Storage is an object store keyed by slash-separated paths.
type Storage interface {
	// Put stores data at key. ErrKeyExists is returned when the key is
	// taken and opts.Overwrite is false.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get returns the object body, which the caller must close.
	// ErrNotFound is returned for a missing key.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete is idempotent.
	Delete(ctx context.Context, key string) error

	// URL returns a public URL, or a presigned one valid for expires.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)

	Exists(ctx context.Context, key string) (bool, error)
}

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType is detected from the key when empty.
	ContentType string

	// MaxSize rejects bodies larger than this many bytes. Zero disables the check.
	MaxSize int64

	Overwrite bool
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
}

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory, e.g. "./storage".
	BasePath string

	// BaseURL is the prefix used by URL, e.g. "http://localhost:8080/files".
	BaseURL string
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// PublicURL is the bucket's custom domain. Presigned URLs are used
	// when it is empty.
	PublicURL string

	// Region defaults to "auto".
	Region string

	// Endpoint overrides the account endpoint. Used by tests.
	Endpoint string
}

const (
	ProviderLocal = "local"
	ProviderR2    = "r2"
	ProviderNone  = "none"
)

// ChartKey returns a fresh key for a user's chart image.
// Format: charts/{userID}/{uuid}.png
func ChartKey(userID uuid.UUID) string {
	return fmt.Sprintf("%s%s.png", ChartPrefix(userID), uuid.New())
}

// ChartPrefix returns the key prefix that holds every chart owned by userID.
func ChartPrefix(userID uuid.UUID) string {
	return "charts/" + userID.String() + "/"
}
