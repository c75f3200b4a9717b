package gcp

import (
	"errors"
	"testing"
)

func TestResolveObjectStorageConfigDefaultGCS(t *testing.T) {
	cfg, err := ResolveObjectStorageConfig("curriculum", "/runs/", "", "")
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfig: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCS {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeGCS, cfg.Mode)
	}
	if cfg.Prefix != "runs" {
		t.Fatalf("prefix: want=%q got=%q", "runs", cfg.Prefix)
	}
	if cfg.CompatibilityFallback {
		t.Fatalf("compatibility fallback: want=false got=true")
	}
}

func TestResolveObjectStorageConfigExplicitGCSIgnoresEmulatorHost(t *testing.T) {
	cfg, err := ResolveObjectStorageConfig("curriculum", "", "GCS", "http://fake-gcs:4443")
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfig: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCS {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeGCS, cfg.Mode)
	}
}

func TestResolveObjectStorageConfigCompatibilityFallback(t *testing.T) {
	cfg, err := ResolveObjectStorageConfig("curriculum", "", "", "http://fake-gcs:4443/")
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfig: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCSEmulator {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeGCSEmulator, cfg.Mode)
	}
	if !cfg.CompatibilityFallback {
		t.Fatalf("compatibility fallback: want=true got=false")
	}
	if cfg.EmulatorHost != "http://fake-gcs:4443" {
		t.Fatalf("emulator host: got=%q", cfg.EmulatorHost)
	}
}

func TestResolveObjectStorageConfigErrors(t *testing.T) {
	cases := []struct {
		name   string
		bucket string
		mode   string
		host   string
		code   ObjectStorageConfigErrorCode
	}{
		{name: "invalid mode", bucket: "b", mode: "s3", code: ObjectStorageConfigErrorInvalidMode},
		{name: "missing bucket", bucket: "", mode: "gcs", code: ObjectStorageConfigErrorMissingBucket},
		{name: "missing emulator host", bucket: "b", mode: "gcs_emulator", code: ObjectStorageConfigErrorMissingEmulatorHost},
		{name: "relative emulator host", bucket: "b", mode: "gcs_emulator", host: "fake-gcs:4443", code: ObjectStorageConfigErrorInvalidEmulatorHost},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ResolveObjectStorageConfig(tc.bucket, "", tc.mode, tc.host)
			var cfgErr *ObjectStorageConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ObjectStorageConfigError, got %v", err)
			}
			if cfgErr.Code != tc.code {
				t.Fatalf("code: want=%q got=%q", tc.code, cfgErr.Code)
			}
		})
	}
}

func TestContentTypeForKey(t *testing.T) {
	if got := contentTypeForKey("Week01/Day1/04_role_context.json"); got != "application/json" {
		t.Fatalf("json: got %q", got)
	}
	if got := contentTypeForKey("Week01/Day1/02_summary.md"); got != "text/markdown; charset=utf-8" {
		t.Fatalf("md: got %q", got)
	}
	if got := contentTypeForKey("Week01/Day1/unknown.bin"); got != "" {
		t.Fatalf("bin: got %q", got)
	}
}
