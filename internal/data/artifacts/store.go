package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	apperr "github.com/yungbote/curriculum-engine/internal/pkg/errors"
)

// Store persists generated documents keyed by (unit, sub-unit, artifact name).
type Store interface {
	Get(ctx context.Context, key curriculum.ArtifactKey) ([]byte, error)
	Put(ctx context.Context, key curriculum.ArtifactKey, data []byte) error
	Exists(ctx context.Context, key curriculum.ArtifactKey) (bool, error)
	// List returns every key stored for unit, sorted by path.
	List(ctx context.Context, unit int) ([]curriculum.ArtifactKey, error)
}

const RejectedPrefix = "_rejected/"

// RejectedKey addresses an audit copy of a rejected generation attempt.
func RejectedKey(key curriculum.ArtifactKey, attempt int) curriculum.ArtifactKey {
	name := strings.ReplaceAll(key.Name, "/", "__")
	return curriculum.ArtifactKey{
		Unit:    key.Unit,
		SubUnit: key.SubUnit,
		Name:    fmt.Sprintf("%s%s.attempt%d", RejectedPrefix, name, attempt),
	}
}

func IsRejected(key curriculum.ArtifactKey) bool {
	return strings.HasPrefix(key.Name, RejectedPrefix)
}

func notFound(key curriculum.ArtifactKey) error {
	return fmt.Errorf("artifact %s: %w", key.Path(), apperr.ErrNotFound)
}

func IsNotFound(err error) bool { return errors.Is(err, apperr.ErrNotFound) }

func validateKey(key curriculum.ArtifactKey) error {
	if key.Unit <= 0 {
		return fmt.Errorf("artifact key: unit must be positive: %w", apperr.ErrInvalidArgument)
	}
	if key.SubUnit < 0 || key.SubUnit > curriculum.SubUnitsPerUnit {
		return fmt.Errorf("artifact key: sub-unit %d out of range: %w", key.SubUnit, apperr.ErrInvalidArgument)
	}
	name := strings.TrimSpace(key.Name)
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "..") {
		return fmt.Errorf("artifact key: bad name %q: %w", key.Name, apperr.ErrInvalidArgument)
	}
	return nil
}

func sortKeys(keys []curriculum.ArtifactKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Path() < keys[j].Path() })
}

// PutJSON marshals v with indentation and stores it.
func PutJSON(ctx context.Context, s Store, key curriculum.ArtifactKey, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key.Path(), err)
	}
	return s.Put(ctx, key, raw)
}

// GetJSON loads and unmarshals a stored document.
func GetJSON(ctx context.Context, s Store, key curriculum.ArtifactKey, out any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", key.Path(), err)
	}
	return nil
}
