package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/yungbote/curriculum-engine/internal/config"
	"github.com/yungbote/curriculum-engine/internal/data/artifacts"
	"github.com/yungbote/curriculum-engine/internal/platform/gcp"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
)

var newBucketService = gcp.NewBucketService

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidMode         StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorMissingBucket       StorageProviderBootstrapErrorCode = "missing_bucket"
	StorageProviderBootstrapErrorMissingEmulatorHost StorageProviderBootstrapErrorCode = "missing_emulator_host"
	StorageProviderBootstrapErrorInvalidEmulatorHost StorageProviderBootstrapErrorCode = "invalid_emulator_host"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code         StorageProviderBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf(
		"object storage bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// wireStore opens the configured artifact store. The returned close func is
// never nil.
func wireStore(ctx context.Context, log *logger.Logger, cfg config.Config) (artifacts.Store, func() error, error) {
	noop := func() error { return nil }
	backend := strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	log.Info("Selecting artifact store", "backend", backend)
	switch backend {
	case "", "fs":
		st, err := artifacts.NewFSStore(log, cfg.Run.OutputDir)
		return st, noop, err
	case "memory":
		return artifacts.NewMemoryStore(), noop, nil
	case "badger":
		dir := cfg.Storage.BadgerPath
		if dir == "" {
			dir = filepath.Join(cfg.Run.OutputDir, ".badger")
		}
		st, err := artifacts.OpenBadgerStore(log, dir)
		if err != nil {
			return nil, noop, err
		}
		return st, st.Close, nil
	case "gcs":
		bucket, err := resolveBucketService(ctx, log, cfg.Storage)
		if err != nil {
			return nil, noop, err
		}
		return artifacts.NewGCSStore(log, bucket), bucket.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}

func resolveBucketService(ctx context.Context, log *logger.Logger, cfg config.StorageConfig) (gcp.BucketService, error) {
	storageCfg, err := gcp.ResolveObjectStorageConfig(cfg.Bucket, cfg.Prefix, cfg.ObjectStorageMode, cfg.EmulatorHost)
	if err != nil {
		classified := classifyStorageProviderBootstrapError(storageCfg, err)
		log.Error(
			"Object storage provider selection failed",
			"mode", storageCfg.Mode,
			"compatibility_fallback", storageCfg.CompatibilityFallback,
			"emulator_host", storageCfg.EmulatorHost,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}

	log.Info(
		"Selecting object storage provider",
		"mode", storageCfg.Mode,
		"compatibility_fallback", storageCfg.CompatibilityFallback,
		"emulator_host", storageCfg.EmulatorHost,
		"bucket", storageCfg.Bucket,
	)

	bucket, err := newBucketService(ctx, log, storageCfg)
	if err != nil {
		classified := classifyStorageProviderBootstrapError(storageCfg, err)
		log.Error(
			"Object storage provider bootstrap failed",
			"mode", storageCfg.Mode,
			"emulator_host", storageCfg.EmulatorHost,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}
	return bucket, nil
}

func classifyStorageProviderBootstrapError(storageCfg gcp.ObjectStorageConfig, err error) error {
	code := StorageProviderBootstrapErrorConnectFailed
	var cfgErr *gcp.ObjectStorageConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case gcp.ObjectStorageConfigErrorInvalidMode:
			code = StorageProviderBootstrapErrorInvalidMode
		case gcp.ObjectStorageConfigErrorMissingBucket:
			code = StorageProviderBootstrapErrorMissingBucket
		case gcp.ObjectStorageConfigErrorMissingEmulatorHost:
			code = StorageProviderBootstrapErrorMissingEmulatorHost
		case gcp.ObjectStorageConfigErrorInvalidEmulatorHost:
			code = StorageProviderBootstrapErrorInvalidEmulatorHost
		}
	}
	mode := string(storageCfg.Mode)
	if cfgErr != nil && cfgErr.Mode != "" {
		mode = cfgErr.Mode
	}
	return &StorageProviderBootstrapError{
		Code:         code,
		Mode:         mode,
		EmulatorHost: storageCfg.EmulatorHost,
		Cause:        err,
	}
}

func storageProviderBootstrapErrorCode(err error) StorageProviderBootstrapErrorCode {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		if bootstrapErr.Code != "" {
			return bootstrapErr.Code
		}
	}
	return StorageProviderBootstrapErrorConnectFailed
}
