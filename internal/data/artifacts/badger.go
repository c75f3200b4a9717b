package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/yungbote/curriculum-engine/internal/domain/curriculum"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
)

const badgerKeyPrefix = "artifact/"

// BadgerStore keeps artifacts in an embedded badger database. An empty path opens it in memory.
type BadgerStore struct {
	db  *badger.DB
	log *logger.Logger
}

// badgerLogger routes badger's internal logging into the service logger.
type badgerLogger struct {
	log *logger.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func OpenBadgerStore(log *logger.Logger, dir string) (*BadgerStore, error) {
	storeLog := log.With("service", "BadgerArtifactStore")
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create badger dir %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(badgerLogger{log: storeLog})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerStore{db: db, log: storeLog}, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func badgerKey(key curriculum.ArtifactKey) []byte {
	return []byte(badgerKeyPrefix + key.Path())
}

func (s *BadgerStore) Get(ctx context.Context, key curriculum.ArtifactKey) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound(key)
	}
	return out, err
}

func (s *BadgerStore) Put(ctx context.Context, key curriculum.ArtifactKey, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(key), append([]byte(nil), data...))
	})
}

func (s *BadgerStore) Exists(ctx context.Context, key curriculum.ArtifactKey) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerKey(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *BadgerStore) List(ctx context.Context, unit int) ([]curriculum.ArtifactKey, error) {
	prefix := []byte(badgerKeyPrefix + curriculum.UnitDir(unit) + "/")
	out := []curriculum.ArtifactKey{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			p := string(it.Item().Key())[len(badgerKeyPrefix):]
			key, err := curriculum.ParseKeyPath(p)
			if err != nil {
				s.log.Debug("Skipping unparseable badger key", "key", p)
				continue
			}
			out = append(out, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortKeys(out)
	return out, nil
}
