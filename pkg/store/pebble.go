package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"relayq/pkg/faults"
	"relayq/pkg/logger"
)

// Store wraps a Pebble database with the narrow get/set/delete/list
// contract every other component goes through. The stored records ARE the
// source of truth; no component keeps a competing in-memory copy.
type Store struct {
	db       *pebble.DB
	path     string
	maxBytes uint64
}

// Open opens (or creates) a Pebble database at the given path. maxBytes
// bounds the on-disk footprint; 0 disables the quota check.
func Open(path string, maxBytes uint64) (*Store, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("pebble_opened", "path", path)
	return &Store{db: db, path: path, maxBytes: maxBytes}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	logger.Info("pebble_closed", "path", s.path)
	return nil
}

// Ready reports whether the store is opened and usable.
func (s *Store) Ready() bool {
	return s != nil && s.db != nil
}

// Path returns the directory the database lives in.
func (s *Store) Path() string { return s.path }

// Get returns the raw value for key. The second return is false when the
// key is absent.
func (s *Store) Get(key string) ([]byte, bool, error) {
	if s.db == nil {
		return nil, false, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		logger.Error("get_key_failed", "key", key, "error", err)
		return nil, false, err
	}
	out := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	return out, true, nil
}

// Set fully overwrites the value at key. Writes are synced so a crash
// immediately after Set never loses an acknowledged checkpoint. Fails
// with faults.ErrQuotaExceeded when the database is over budget.
func (s *Store) Set(key string, value []byte) error {
	if s.db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if err := s.checkQuota(); err != nil {
		logger.Error("set_key_quota", "key", key, "error", err)
		return err
	}
	if err := s.db.Set([]byte(key), value, pebble.Sync); err != nil {
		logger.Error("set_key_failed", "key", key, "error", err)
		return err
	}
	logger.Debug("set_key_ok", "key", key, "len", len(value))
	return nil
}

// Delete removes the value at key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	if s.db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		logger.Error("delete_key_failed", "key", key, "error", err)
		return err
	}
	logger.Debug("delete_key_ok", "key", key)
	return nil
}

// ListKeys returns all keys starting with prefix. Callers must not depend
// on the returned order.
func (s *Store) ListKeys(prefix string) ([]string, error) {
	if s.db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	pfx := []byte(prefix)
	var out []string
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		k := append([]byte(nil), iter.Key()...)
		out = append(out, string(k))
	}
	return out, iter.Error()
}

// GetJSON unmarshals the value at key into v. The second return is false
// when the key is absent.
func (s *Store) GetJSON(key string, v any) (bool, error) {
	b, ok, err := s.Get(key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return true, fmt.Errorf("invalid record at %s: %w", key, err)
	}
	return true, nil
}

// SetJSON marshals v and fully overwrites the value at key.
func (s *Store) SetJSON(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record for %s: %w", key, err)
	}
	return s.Set(key, b)
}

// DiskUsage returns the database's current on-disk footprint in bytes.
func (s *Store) DiskUsage() uint64 {
	if s.db == nil {
		return 0
	}
	m := s.db.Metrics()
	if m == nil {
		return 0
	}
	return m.DiskSpaceUsage()
}

func (s *Store) checkQuota() error {
	if s.maxBytes == 0 {
		return nil
	}
	if used := s.DiskUsage(); used >= s.maxBytes {
		return fmt.Errorf("%w: %d of %d bytes used", faults.ErrQuotaExceeded, used, s.maxBytes)
	}
	return nil
}
