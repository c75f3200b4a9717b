package app

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/curriculum-engine/internal/config"
	"github.com/yungbote/curriculum-engine/internal/platform/gcp"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
)

type testBucketService struct{}

func (testBucketService) Upload(context.Context, string, []byte) error { return nil }
func (testBucketService) Download(context.Context, string) ([]byte, error) {
	return nil, gcp.ErrObjectNotFound
}
func (testBucketService) Exists(context.Context, string) (bool, error)      { return false, nil }
func (testBucketService) ListKeys(context.Context, string) ([]string, error) { return nil, nil }
func (testBucketService) Close() error                                       { return nil }

func TestClassifyStorageProviderBootstrapError(t *testing.T) {
	cases := []struct {
		src  error
		want StorageProviderBootstrapErrorCode
	}{
		{&gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorInvalidMode, Mode: "bad-mode"}, StorageProviderBootstrapErrorInvalidMode},
		{&gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorMissingBucket}, StorageProviderBootstrapErrorMissingBucket},
		{&gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorMissingEmulatorHost}, StorageProviderBootstrapErrorMissingEmulatorHost},
		{&gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorInvalidEmulatorHost, EmulatorHost: "fake-gcs:4443"}, StorageProviderBootstrapErrorInvalidEmulatorHost},
		{errors.New("dial tcp: connection refused"), StorageProviderBootstrapErrorConnectFailed},
	}
	for _, tc := range cases {
		err := classifyStorageProviderBootstrapError(gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeGCS}, tc.src)
		var got *StorageProviderBootstrapError
		if !errors.As(err, &got) {
			t.Fatalf("expected StorageProviderBootstrapError, got=%T", err)
		}
		if got.Code != tc.want {
			t.Fatalf("code: want=%q got=%q", tc.want, got.Code)
		}
		if !errors.Is(err, tc.src) {
			t.Fatalf("cause not wrapped for %q", tc.want)
		}
	}
}

func TestResolveBucketServiceInvalidMode(t *testing.T) {
	_, err := resolveBucketService(context.Background(), logger.Nop(), config.StorageConfig{
		Bucket:            "curriculum",
		ObjectStorageMode: "invalid",
	})
	var got *StorageProviderBootstrapError
	if !errors.As(err, &got) || got.Code != StorageProviderBootstrapErrorInvalidMode {
		t.Fatalf("expected invalid_mode, got %v", err)
	}
}

func TestResolveBucketServiceEmulatorMode(t *testing.T) {
	orig := newBucketService
	t.Cleanup(func() { newBucketService = orig })

	var captured gcp.ObjectStorageConfig
	expected := testBucketService{}
	newBucketService = func(_ context.Context, _ *logger.Logger, cfg gcp.ObjectStorageConfig) (gcp.BucketService, error) {
		captured = cfg
		return expected, nil
	}

	got, err := resolveBucketService(context.Background(), logger.Nop(), config.StorageConfig{
		Bucket:            "curriculum",
		Prefix:            "/latin/",
		ObjectStorageMode: string(gcp.ObjectStorageModeGCSEmulator),
		EmulatorHost:      "http://fake-gcs:4443",
	})
	if err != nil {
		t.Fatalf("resolveBucketService: %v", err)
	}
	if got != expected {
		t.Fatalf("bucket: expected stub bucket instance")
	}
	if captured.Mode != gcp.ObjectStorageModeGCSEmulator || captured.Prefix != "latin" {
		t.Fatalf("captured config: %+v", captured)
	}
}

func TestResolveBucketServiceConnectFailure(t *testing.T) {
	orig := newBucketService
	t.Cleanup(func() { newBucketService = orig })
	newBucketService = func(context.Context, *logger.Logger, gcp.ObjectStorageConfig) (gcp.BucketService, error) {
		return nil, errors.New("dial tcp: connection refused")
	}

	_, err := resolveBucketService(context.Background(), logger.Nop(), config.StorageConfig{Bucket: "curriculum"})
	var got *StorageProviderBootstrapError
	if !errors.As(err, &got) || got.Code != StorageProviderBootstrapErrorConnectFailed {
		t.Fatalf("expected connect_failed, got %v", err)
	}
}

func TestWireStoreMemoryAndFS(t *testing.T) {
	cfg := config.Default()
	cfg.Run.OutputDir = t.TempDir()
	for _, backend := range []string{"memory", "fs"} {
		cfg.Storage.Backend = backend
		st, closeFn, err := wireStore(context.Background(), logger.Nop(), cfg)
		if err != nil || st == nil {
			t.Fatalf("%s: %v", backend, err)
		}
		if err := closeFn(); err != nil {
			t.Fatalf("%s close: %v", backend, err)
		}
	}
	cfg.Storage.Backend = "tape"
	if _, _, err := wireStore(context.Background(), logger.Nop(), cfg); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
}
