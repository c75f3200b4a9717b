package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	log := logger.Nop()

	fsStore, err := NewFSStore(log, t.TempDir())
	require.NoError(t, err)

	bs, err := OpenBadgerStore(log, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"fs":     fsStore,
		"badger": bs,
	}
}

func TestStoreConformance(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			spec := curriculum.UnitKey(3, curriculum.DocUnitSpec)
			summary := curriculum.SubUnitKey(3, 2, curriculum.ArtSummary)
			quiz := curriculum.SubUnitKey(3, 4, curriculum.ArtQuiz)
			other := curriculum.UnitKey(4, curriculum.DocUnitSpec)

			_, err := s.Get(ctx, spec)
			require.True(t, IsNotFound(err), "expected not found, got %v", err)

			ok, err := s.Exists(ctx, spec)
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, s.Put(ctx, spec, []byte(`{"metadata":{"week":3}}`)))
			require.NoError(t, s.Put(ctx, summary, []byte("first")))
			require.NoError(t, s.Put(ctx, summary, []byte("second")))
			require.NoError(t, s.Put(ctx, quiz, []byte("[]")))
			require.NoError(t, s.Put(ctx, other, []byte("{}")))

			got, err := s.Get(ctx, summary)
			require.NoError(t, err)
			require.Equal(t, "second", string(got))

			ok, err = s.Exists(ctx, spec)
			require.NoError(t, err)
			require.True(t, ok)

			keys, err := s.List(ctx, 3)
			require.NoError(t, err)
			require.Equal(t, []curriculum.ArtifactKey{summary, quiz, spec}, keys)

			empty, err := s.List(ctx, 9)
			require.NoError(t, err)
			require.Empty(t, empty)
		})
	}
}

func TestStoreRejectsBadKeys(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.Error(t, s.Put(ctx, curriculum.ArtifactKey{Unit: 0, Name: "x"}, nil))
			require.Error(t, s.Put(ctx, curriculum.ArtifactKey{Unit: 1, SubUnit: 5, Name: "x"}, nil))
			require.Error(t, s.Put(ctx, curriculum.ArtifactKey{Unit: 1, Name: "../escape"}, nil))
			require.Error(t, s.Put(ctx, curriculum.ArtifactKey{Unit: 1, Name: " "}, nil))
		})
	}
}

func TestRejectedKey(t *testing.T) {
	key := RejectedKey(curriculum.SubUnitKey(2, 4, curriculum.ArtQuiz), 3)
	require.True(t, IsRejected(key))
	require.Equal(t, 4, key.SubUnit)
	require.Equal(t, "_rejected/assessment__quiz.json.attempt3", key.Name)
	require.False(t, IsRejected(curriculum.SubUnitKey(2, 4, curriculum.ArtQuiz)))
}

func TestFSStoreLayoutAndForeignFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewFSStore(logger.Nop(), root)
	require.NoError(t, err)

	key := curriculum.SubUnitKey(1, 1, curriculum.ArtClassName)
	require.NoError(t, s.Put(ctx, key, []byte("Week 1 Day 1: Latin Foundations")))
	_, err = os.Stat(filepath.Join(root, "Week01", "Day1", "01_class_name.txt"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "Week01", "notes.txt"), []byte("x"), 0o644))
	keys, err := s.List(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []curriculum.ArtifactKey{key}, keys)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	key := curriculum.UnitKey(5, curriculum.DocGenerationLog)
	require.NoError(t, PutJSON(ctx, s, key, map[string]any{"week": 5}))

	var out map[string]any
	require.NoError(t, GetJSON(ctx, s, key, &out))
	require.Equal(t, float64(5), out["week"])
}
