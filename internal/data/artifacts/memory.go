package artifacts

import (
	"context"
	"sync"

	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
)

type memoryStore struct {
	mu   sync.RWMutex
	data map[curriculum.ArtifactKey][]byte
}

func NewMemoryStore() Store {
	return &memoryStore{data: map[curriculum.ArtifactKey][]byte{}}
}

func (m *memoryStore) Get(ctx context.Context, key curriculum.ArtifactKey) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, notFound(key)
	}
	return append([]byte(nil), v...), nil
}

func (m *memoryStore) Put(ctx context.Context, key curriculum.ArtifactKey, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *memoryStore) Exists(ctx context.Context, key curriculum.ArtifactKey) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *memoryStore) List(ctx context.Context, unit int) ([]curriculum.ArtifactKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []curriculum.ArtifactKey{}
	for k := range m.data {
		if k.Unit == unit {
			out = append(out, k)
		}
	}
	sortKeys(out)
	return out, nil
}
