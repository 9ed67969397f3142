// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const badgerPrefix = "hist:"

// BadgerStore keeps history in a Badger KV store:
// key = "hist:<history key>", value = JSON Entry.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a store in dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions(dir))
}

// OpenBadgerInMemory opens a store without disk persistence.
func OpenBadgerInMemory() (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true))
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger history: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func (s *BadgerStore) Seen(ctx context.Context, keys ...string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		for _, k := range keys {
			_, err := txn.Get([]byte(badgerPrefix + k))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			found = true
			return nil
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("history lookup: %w", err)
	}
	return found, nil
}

func (s *BadgerStore) Record(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	keys := e.Keys()
	if len(keys) == 0 {
		return ErrNoKeys
	}
	buf, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Set([]byte(badgerPrefix+k), buf); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns the entry stored under key.
func (s *BadgerStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	var out Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return out, true, nil
}
