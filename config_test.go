package firmstore

import (
	"context"
	"errors"
	"testing"
)

func TestParseShardSpecs(t *testing.T) {
	t.Run("filesystem shards", func(t *testing.T) {
		configs, err := ParseShardSpecs("fs:/var/data/primary,fs:/var/data/legacy")
		if err != nil {
			t.Fatalf("ParseShardSpecs failed: %v", err)
		}
		if len(configs) != 2 {
			t.Fatalf("expected 2 configs, got %d", len(configs))
		}
		if configs[0].Type != "filesystem" || configs[0].Bucket != "/var/data/primary" {
			t.Errorf("unexpected primary config: %+v", configs[0])
		}
	})

	t.Run("s3 reads region from env", func(t *testing.T) {
		t.Setenv("AWS_REGION", "eu-west-1")
		configs, err := ParseShardSpecs("s3:firmware-archive")
		if err != nil {
			t.Fatalf("ParseShardSpecs failed: %v", err)
		}
		if configs[0].Type != "s3" || configs[0].Region != "eu-west-1" {
			t.Errorf("unexpected config: %+v", configs[0])
		}
	})

	t.Run("mixed backends preserve order", func(t *testing.T) {
		t.Setenv("AWS_REGION", "eu-west-1")
		configs, err := ParseShardSpecs("fs:/data/a, s3:bucket-b ,gcs:bucket-c")
		if err != nil {
			t.Fatalf("ParseShardSpecs failed: %v", err)
		}
		types := []string{configs[0].Type, configs[1].Type, configs[2].Type}
		if types[0] != "filesystem" || types[1] != "s3" || types[2] != "gcs" {
			t.Errorf("order not preserved: %v", types)
		}
	})

	t.Run("empty spec", func(t *testing.T) {
		if _, err := ParseShardSpecs(""); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := ParseShardSpecs("ftp:host"); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("missing location", func(t *testing.T) {
		if _, err := ParseShardSpecs("fs:"); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("s3 without region or endpoint", func(t *testing.T) {
		t.Setenv("AWS_REGION", "")
		t.Setenv("AWS_ENDPOINT_URL_S3", "")
		if _, err := ParseShardSpecs("s3:bucket"); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestBackendConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     BackendConfig
		wantErr bool
	}{
		{"valid filesystem", BackendConfig{Type: "filesystem", Bucket: "/data"}, false},
		{"valid s3 with region", BackendConfig{Type: "s3", Bucket: "b", Region: "us-east-1"}, false},
		{"valid s3 with endpoint", BackendConfig{Type: "s3", Bucket: "b", Endpoint: "http://localhost:9000"}, false},
		{"valid gcs", BackendConfig{Type: "gcs", Bucket: "b"}, false},
		{"missing type", BackendConfig{Bucket: "b"}, true},
		{"missing bucket", BackendConfig{Type: "s3", Region: "us-east-1"}, true},
		{"s3 without region", BackendConfig{Type: "s3", Bucket: "b"}, true},
		{"unknown type", BackendConfig{Type: "ftp", Bucket: "b"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRedisOptions(t *testing.T) {
	t.Run("unset means no redis", func(t *testing.T) {
		t.Setenv(EnvRedisAddr, "")
		if opts := RedisOptions(); opts != nil {
			t.Errorf("expected nil options, got %+v", opts)
		}
	})

	t.Run("reads addr password and db", func(t *testing.T) {
		t.Setenv(EnvRedisAddr, "localhost:6379")
		t.Setenv(EnvRedisPassword, "secret")
		t.Setenv(EnvRedisDB, "3")

		opts := RedisOptions()
		if opts == nil {
			t.Fatal("expected options")
		}
		if opts.Addr != "localhost:6379" || opts.Password != "secret" || opts.DB != 3 {
			t.Errorf("unexpected options: %+v", opts)
		}
	})
}

func TestOpenShardSet_FilesystemShards(t *testing.T) {
	ctx := context.Background()

	configs := []BackendConfig{
		{Type: "filesystem", Bucket: t.TempDir()},
		{Type: "filesystem", Bucket: t.TempDir()},
	}
	ss, err := OpenShardSet(ctx, configs, nil, nil, nil)
	if err != nil {
		t.Fatalf("OpenShardSet failed: %v", err)
	}
	defer ss.Close()

	if ss.Len() != 2 {
		t.Fatalf("expected 2 shards, got %d", ss.Len())
	}
	if ss.Primary().Name() != "shard0" {
		t.Errorf("unexpected primary %q", ss.Primary().Name())
	}
	if err := ss.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
