package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
)

// fsStore lays artifacts out as WeekNN/internal_documents/... and WeekNN/DayD/... under root.
type fsStore struct {
	root string
	log  *logger.Logger
}

func NewFSStore(log *logger.Logger, root string) (Store, error) {
	if root == "" {
		return nil, fmt.Errorf("fs store: root required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("fs store: create root: %w", err)
	}
	return &fsStore{root: root, log: log.With("service", "FSArtifactStore")}, nil
}

func (s *fsStore) path(key curriculum.ArtifactKey) string {
	return filepath.Join(s.root, filepath.FromSlash(key.Path()))
}

func (s *fsStore) Get(ctx context.Context, key curriculum.ArtifactKey) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(key)
	}
	return raw, err
}

// Put writes through a temp file and rename so readers never see partial content.
func (s *fsStore) Put(ctx context.Context, key curriculum.ArtifactKey, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", key.Path(), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", key.Path(), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", key.Path(), err)
	}
	return nil
}

func (s *fsStore) Exists(ctx context.Context, key curriculum.ArtifactKey) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *fsStore) List(ctx context.Context, unit int) ([]curriculum.ArtifactKey, error) {
	unitRoot := filepath.Join(s.root, curriculum.UnitDir(unit))
	out := []curriculum.ArtifactKey{}
	err := filepath.WalkDir(unitRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || filepath.Base(p)[0] == '.' {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key, perr := curriculum.ParseKeyPath(filepath.ToSlash(rel))
		if perr != nil {
			s.log.Debug("Skipping foreign file in artifact tree", "path", rel)
			return nil
		}
		out = append(out, key)
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	sortKeys(out)
	return out, nil
}
