package artifacts

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/platform/gcp"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
)

type gcsStore struct {
	bucket gcp.BucketService
	log    *logger.Logger
}

func NewGCSStore(log *logger.Logger, bucket gcp.BucketService) Store {
	return &gcsStore{bucket: bucket, log: log.With("service", "GCSArtifactStore")}
}

func (s *gcsStore) Get(ctx context.Context, key curriculum.ArtifactKey) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	raw, err := s.bucket.Download(ctx, key.Path())
	if errors.Is(err, gcp.ErrObjectNotFound) {
		return nil, notFound(key)
	}
	return raw, err
}

func (s *gcsStore) Put(ctx context.Context, key curriculum.ArtifactKey, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.bucket.Upload(ctx, key.Path(), data)
}

func (s *gcsStore) Exists(ctx context.Context, key curriculum.ArtifactKey) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	return s.bucket.Exists(ctx, key.Path())
}

func (s *gcsStore) List(ctx context.Context, unit int) ([]curriculum.ArtifactKey, error) {
	names, err := s.bucket.ListKeys(ctx, curriculum.UnitDir(unit)+"/")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", curriculum.UnitDir(unit), err)
	}
	out := make([]curriculum.ArtifactKey, 0, len(names))
	for _, name := range names {
		key, perr := curriculum.ParseKeyPath(name)
		if perr != nil {
			s.log.Debug("Skipping foreign object", "object", name)
			continue
		}
		out = append(out, key)
	}
	sortKeys(out)
	return out, nil
}
