package firmstore

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
)

// File permissions for the filesystem backend
const (
	DefaultFilePermissions = 0644
	DefaultDirPermissions  = 0755
)

// Environment variables read by the builders below. Configuration comes
// from the environment (12-factor style); nothing here reads config files.
const (
	EnvShards        = "FIRMSTORE_SHARDS"
	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"
	EnvGeminiAPIKey  = "GEMINI_API_KEY"
)

// ParseShardSpecs parses the FIRMSTORE_SHARDS format: a comma-separated
// list of "type:location" entries, primary shard first.
//
//	fs:/var/data/primary,s3:firmware-archive,gcs:firmware-legacy
//
// S3 entries read AWS_REGION / AWS_ENDPOINT_URL_S3 for region and custom
// endpoint; GCS entries read GOOGLE_APPLICATION_CREDENTIALS implicitly via
// the client library.
func ParseShardSpecs(spec string) ([]BackendConfig, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  EnvShards,
			"reason": "at least one shard is required",
		})
	}

	var configs []BackendConfig
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		kind, location, ok := strings.Cut(entry, ":")
		if !ok || location == "" {
			return nil, WithContext(ErrInvalidConfig, map[string]interface{}{
				"entry":  entry,
				"reason": "shard entries take the form type:location",
			})
		}

		var cfg BackendConfig
		switch kind {
		case "fs", "filesystem":
			cfg = BackendConfig{Type: "filesystem", Bucket: location}
		case "s3":
			cfg = BackendConfig{
				Type:     "s3",
				Bucket:   location,
				Region:   os.Getenv("AWS_REGION"),
				Endpoint: os.Getenv("AWS_ENDPOINT_URL_S3"),
			}
		case "gcs":
			cfg = BackendConfig{
				Type:            "gcs",
				Bucket:          location,
				CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
			}
		default:
			return nil, WithContext(ErrInvalidConfig, map[string]interface{}{
				"entry":  entry,
				"reason": "unknown shard type " + kind,
			})
		}

		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// NewBackend constructs the backend described by cfg
func NewBackend(ctx context.Context, cfg BackendConfig) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "filesystem":
		return NewFilesystemBackend(cfg.Bucket), nil

	case "s3":
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = &cfg.Endpoint
				o.UsePathStyle = true // S3-compatible stores want path-style addressing
			}
		})
		return NewS3Backend(client, cfg.Bucket), nil

	case "gcs":
		return NewGCSBackend(ctx, cfg)

	default:
		return nil, WithContext(ErrInvalidConfig, map[string]interface{}{
			"field": "Type", "value": cfg.Type,
		})
	}
}

// RedisOptions builds Redis connection options from the environment.
// Returns nil when REDIS_ADDR is unset, meaning the deployment runs without
// Redis: no secondary indexes (queries scan), no analytics, no KV store.
func RedisOptions() *redis.Options {
	addr := os.Getenv(EnvRedisAddr)
	if addr == "" {
		return nil
	}

	db := 0
	if raw := os.Getenv(EnvRedisDB); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			db = parsed
		}
	}

	return &redis.Options{
		Addr:     addr,
		Password: os.Getenv(EnvRedisPassword),
		DB:       db,
	}
}

// OpenShardSet builds the shard set from backend configs, attaching a
// catalog-indexed FieldIndex per shard when a Redis client is provided.
// Shard names are "shard0", "shard1", ... in config order.
func OpenShardSet(ctx context.Context, configs []BackendConfig, rdb *redis.Client, logger Logger, metrics Metrics) (*ShardSet, error) {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}

	shards := make([]*Shard, 0, len(configs))
	for i, cfg := range configs {
		backend, err := NewBackend(ctx, cfg)
		if err != nil {
			for _, s := range shards {
				s.Backend().Close()
			}
			return nil, err
		}

		name := fmt.Sprintf("shard%d", i)
		shard := NewShardWithObservability(name, backend, logger, metrics)
		if rdb != nil {
			idx := NewFieldIndex(rdb, "idx:"+name)
			RegisterCatalogIndexes(idx)
			shard.SetIndex(idx)
		}
		shards = append(shards, shard)
	}

	set, err := NewShardSet(shards...)
	if err != nil {
		return nil, err
	}
	set.SetObservability(logger, metrics)
	return set, nil
}

// OpenFromEnv wires the whole store from environment variables: shard set,
// optional Redis-backed indexes, analytics and KV store.
func OpenFromEnv(ctx context.Context, logger Logger, metrics Metrics) (*ShardSet, *redis.Client, error) {
	configs, err := ParseShardSpecs(os.Getenv(EnvShards))
	if err != nil {
		return nil, nil, err
	}

	var rdb *redis.Client
	if opts := RedisOptions(); opts != nil {
		rdb = redis.NewClient(opts)
	}

	set, err := OpenShardSet(ctx, configs, rdb, logger, metrics)
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, nil, err
	}
	return set, rdb, nil
}
