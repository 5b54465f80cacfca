package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/animus-labs/runledger/internal/platform/env"
)

type Config struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Region       string
	UseSSL       bool
	BucketGraphs string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("RUNLEDGER_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:     env.String("RUNLEDGER_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:    env.String("RUNLEDGER_MINIO_ACCESS_KEY", "runledger"),
		SecretKey:    env.String("RUNLEDGER_MINIO_SECRET_KEY", "runledgerminio"),
		Region:       env.String("RUNLEDGER_MINIO_REGION", "us-east-1"),
		UseSSL:       useSSL,
		BucketGraphs: env.String("RUNLEDGER_MINIO_BUCKET_GRAPHS", "graphs"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketGraphs) == "" {
		return errors.New("graphs bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}

func NewMinIOClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	return minio.New(cfg.Endpoint, opts)
}

// EnsureBucket creates the graphs bucket when missing.
func EnsureBucket(ctx context.Context, client *minio.Client, cfg Config) error {
	exists, err := client.BucketExists(ctx, cfg.BucketGraphs)
	if err != nil {
		return fmt.Errorf("graphs bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, cfg.BucketGraphs, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
		return fmt.Errorf("make graphs bucket: %w", err)
	}
	return nil
}

// CheckBucket reports an error unless the graphs bucket is reachable.
func CheckBucket(ctx context.Context, client *minio.Client, cfg Config) error {
	exists, err := client.BucketExists(ctx, cfg.BucketGraphs)
	if err != nil {
		return fmt.Errorf("graphs bucket exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("graphs bucket %s missing", cfg.BucketGraphs)
	}
	return nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
