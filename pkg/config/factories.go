package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/cipherfs/internal/logger"
	"github.com/marmos91/cipherfs/internal/ratelimiter"
	"github.com/marmos91/cipherfs/pkg/files"
	"github.com/marmos91/cipherfs/pkg/filetable"
	"github.com/marmos91/cipherfs/pkg/metrics"
	"github.com/marmos91/cipherfs/pkg/rootfs"
	"github.com/marmos91/cipherfs/pkg/store"
	storeBadger "github.com/marmos91/cipherfs/pkg/store/badger"
	storeFs "github.com/marmos91/cipherfs/pkg/store/fs"
	storeMemory "github.com/marmos91/cipherfs/pkg/store/memory"
	storeS3 "github.com/marmos91/cipherfs/pkg/store/s3"
	"github.com/mitchellh/mapstructure"
)

// CreateStore creates a blob store based on configuration.
//
// This factory function uses the Type field to determine which store implementation
// to create, then decodes the type-specific configuration from the corresponding
// map and passes it to the store's constructor.
//
// Supported types:
//   - "memory": Uses pkg/store/memory (ephemeral, for testing)
//   - "filesystem": Uses pkg/store/fs (one file per blob)
//   - "badger": Uses pkg/store/badger (BadgerDB, persistent)
//   - "s3": Uses pkg/store/s3 (Amazon S3 or compatible storage)
//
// The returned store is instrumented when metrics are enabled and throttled
// when rate limiting is enabled.
func CreateStore(ctx context.Context, cfg *StoreConfig) (store.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		s   store.Store
		err error
	)
	switch cfg.Type {
	case "memory":
		s = storeMemory.NewMemoryStore()
	case "filesystem":
		s, err = createFilesystemStore(ctx, cfg.Filesystem)
	case "badger":
		s, err = createBadgerStore(ctx, cfg.Badger)
	case "s3":
		s, err = createS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown store type: %q (supported: memory, filesystem, badger, s3)", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	s = metrics.InstrumentStore(s, cfg.Type)

	if cfg.RateLimit.Enabled {
		limiter := ratelimiter.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		s = ratelimiter.WrapStore(s, limiter)
		logger.Info("Store rate limiting enabled",
			"requests_per_second", limiter.Limit(),
			"burst", limiter.Burst())
	}

	return s, nil
}

// createFilesystemStore creates a filesystem-based blob store.
func createFilesystemStore(ctx context.Context, options map[string]any) (store.Store, error) {
	var storeCfg storeFs.FSStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem store config: %w", err)
	}

	if storeCfg.Path == "" {
		return nil, fmt.Errorf("filesystem store: path is required")
	}

	s, err := storeFs.NewFSStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem store: %w", err)
	}

	logger.Info("Filesystem store initialized", logger.KeyPath, storeCfg.Path)
	return s, nil
}

// createBadgerStore creates a BadgerDB-based blob store.
func createBadgerStore(ctx context.Context, options map[string]any) (store.Store, error) {
	var storeCfg storeBadger.BadgerStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger store config: %w", err)
	}

	if storeCfg.DBPath == "" && !storeCfg.InMemory {
		return nil, fmt.Errorf("badger store: db_path is required")
	}

	s, err := storeBadger.NewBadgerStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger store: %w", err)
	}

	logger.Info("BadgerDB store initialized", logger.KeyPath, storeCfg.DBPath, "in_memory", storeCfg.InMemory)
	return s, nil
}

// S3Options are the options of the "s3" store type.
type S3Options struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries"`
	SkipBucketCheck bool   `mapstructure:"skip_bucket_check"`
}

// createS3Store creates an S3-based blob store.
func createS3Store(ctx context.Context, options map[string]any) (store.Store, error) {
	var storeCfg S3Options
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 store config: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 store: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 store: region is required")
	}

	client, err := newS3Client(ctx, storeCfg)
	if err != nil {
		return nil, err
	}

	s, err := storeS3.NewS3Store(ctx, storeS3.S3StoreConfig{
		Client:          client,
		Bucket:          storeCfg.Bucket,
		KeyPrefix:       storeCfg.KeyPrefix,
		SkipBucketCheck: storeCfg.SkipBucketCheck,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 store: %w", err)
	}

	logger.Info("S3 store initialized",
		logger.KeyBucket, storeCfg.Bucket,
		"region", storeCfg.Region,
		"prefix", storeCfg.KeyPrefix)

	return s, nil
}

// newS3Client builds an S3 client from the store options.
func newS3Client(ctx context.Context, storeCfg S3Options) (*s3.Client, error) {
	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(storeCfg.Region),
	}

	// Static credentials if provided, otherwise the default credential chain
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	// Blobs are small and numerous; retry transient failures harder than the
	// AWS default of 3 attempts
	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Custom endpoints (MinIO, Localstack) need path-style addressing
		if storeCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(storeCfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// MasterKey returns the master key configured in cfg: the hex key, or the
// key derived from passphrase and salt with scrypt.
func MasterKey(cfg *KeyConfig) (files.Key, error) {
	switch {
	case cfg.Hex != "" && cfg.Passphrase != "":
		return files.Key{}, fmt.Errorf("key: hex and passphrase are mutually exclusive")
	case cfg.Hex != "":
		return files.ParseKey(cfg.Hex)
	case cfg.Passphrase != "":
		return files.DeriveKey([]byte(cfg.Passphrase), []byte(cfg.Salt))
	default:
		return files.Key{}, fmt.Errorf("key: no master key configured (set key.hex or key.passphrase and key.salt)")
	}
}

// TableOptions converts the file table section into filetable options.
// Metrics and ErrorSink are left for the caller.
func TableOptions(cfg *FileTableConfig) filetable.Options {
	opts := filetable.DefaultOptions()
	opts.Version = cfg.Version
	opts.BlockSize = cfg.BlockSize
	opts.IVSize = cfg.IVSize
	opts.MaxClosed = cfg.MaxClosed
	opts.EjectBatch = cfg.EjectBatch
	opts.BlockCache = cfg.BlockCache
	opts.FinalizeConcurrency = cfg.FinalizeConcurrency

	if cfg.ReadOnly {
		opts.Flags |= filetable.FlagReadOnly
	}
	if cfg.NoAuthentication {
		opts.Flags |= filetable.FlagNoAuthentication
	}
	if cfg.StoreTime {
		opts.Flags |= filetable.FlagStoreTime
	}
	return opts
}

// CreateRootService returns the statfs provider for cfg, or nil when no
// root path is configured.
func CreateRootService(cfg *RootConfig) (filetable.RootService, error) {
	if cfg.Path == "" {
		return nil, nil
	}
	svc, err := rootfs.New(cfg.Path)
	if err != nil {
		return nil, err
	}
	return svc, nil
}
