package firmstore

import (
	"context"
)

// Backend is the blob storage abstraction backing a single shard.
// A shard's documents are JSON blobs; all document semantics live in Shard,
// so a Backend only needs flat key/value operations plus prefix listing.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all keys with the given prefix, in lexicographic order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Health check
	Ping(ctx context.Context) error

	// Resource cleanup
	Close() error
}

// BackendConfig describes one shard's storage backend
type BackendConfig struct {
	Type   string // "filesystem", "s3", "gcs"
	Bucket string // S3/GCS bucket or base directory

	// S3 only
	Region   string
	Endpoint string // custom endpoint for S3-compatible stores (MinIO etc.)

	// GCS only
	ProjectID       string
	CredentialsFile string // service account JSON (optional, ADC if empty)
}

// Validate checks if the BackendConfig is valid
func (c BackendConfig) Validate() error {
	if c.Type == "" {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "Type",
			"reason": "backend type is required",
		})
	}
	if c.Bucket == "" {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "Bucket",
			"reason": "bucket/base path is required",
		})
	}

	switch c.Type {
	case "s3":
		if c.Region == "" && c.Endpoint == "" {
			return WithContext(ErrInvalidConfig, map[string]interface{}{
				"field":  "Region/Endpoint",
				"reason": "s3 backend requires either Region or Endpoint",
			})
		}
	case "filesystem", "gcs":
		// No additional validation needed
	default:
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "Type",
			"value":  c.Type,
			"reason": "unknown backend type",
		})
	}

	return nil
}
