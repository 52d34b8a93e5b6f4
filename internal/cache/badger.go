package cache

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/healthconnect/feed-engine/pkg/logger"
)

// Badger is the embedded on-device store. It is the default backend: feed
// snapshots must survive process restarts without any external service.
type Badger struct {
	db *badger.DB
}

type BadgerOpts struct {
	// Path is the directory for the database files. Ignored when InMemory
	// is set.
	Path     string
	InMemory bool
	Logger   logger.Logger
}

func NewBadger(opts BadgerOpts) (*Badger, error) {
	badgerOpts := badger.DefaultOptions(opts.Path).
		WithInMemory(opts.InMemory).
		WithLogger(nil)
	if !opts.InMemory {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}
	return &Badger{db: db}, nil
}

var _ Store = (*Badger)(nil)

func (b *Badger) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (b *Badger) Set(_ context.Context, key string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (b *Badger) Delete(_ context.Context, key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (b *Badger) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}
