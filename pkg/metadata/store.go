// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/zapingest/pkg/logger"
	"github.com/LeeDigitalWorks/zapingest/pkg/storage"
	"github.com/LeeDigitalWorks/zapingest/pkg/types"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// Store is the durable video metadata index. The whole map lives in memory and
// every mutation rewrites the backing JSON file while the write lock is held,
// so the file always matches the last successful mutation.
//
// A Store holds an exclusive lock on <path>.lock until Close. A second Open of
// the same path, in this process or another, fails with ErrLocked.
type Store struct {
	path string
	lock *flock.Flock
	now  func() time.Time

	mu      sync.RWMutex
	records map[string]types.Attributes
	closed  bool
}

// Open loads the store from path. A missing file yields an empty store. A file
// that cannot be parsed is moved aside to <path>.corrupt-<unix> and the store
// starts empty.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("metadata: path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("metadata: create directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("metadata: lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	s := &Store{
		path:    path,
		lock:    lock,
		now:     time.Now,
		records: make(map[string]types.Attributes),
	}
	if err := s.load(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	logger.Info().
		Str("path", path).
		Int("records", len(s.records)).
		Msg("metadata: store opened")
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("metadata: read %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var records map[string]types.Attributes
	if err := json.Unmarshal(data, &records); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
		if rerr := os.Rename(s.path, aside); rerr != nil {
			return fmt.Errorf("metadata: %s is unreadable (%v) and could not be moved aside: %w", s.path, err, rerr)
		}
		logger.Error().
			Err(err).
			Str("path", s.path).
			Str("moved_to", aside).
			Msg("metadata: corrupt metadata file moved aside, starting empty")
		return nil
	}

	for id, attrs := range records {
		if attrs == nil {
			attrs = types.Attributes{}
		}
		s.records[id] = attrs
	}
	return nil
}

// Close releases the store lock. Records stay readable; Upsert and Delete
// return ErrClosed afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.lock.Unlock(); err != nil {
		return fmt.Errorf("metadata: unlock %s: %w", s.lock.Path(), err)
	}
	return nil
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// GenerateID returns a fresh random identifier.
func (s *Store) GenerateID() string {
	return uuid.NewString()
}

// Upsert inserts or replaces the record for id. A timestamp attribute is added
// when absent. On a write failure the previous in-memory state is restored and
// a *PersistenceError is returned.
func (s *Store) Upsert(id string, attrs types.Attributes) error {
	if id == "" {
		return ErrEmptyID
	}

	rec := attrs.Clone()
	if !rec.Has(types.AttrTimestamp) {
		rec.Set(types.AttrTimestamp, types.Int(s.now().Unix()))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	prev, existed := s.records[id]
	s.records[id] = rec
	if err := s.persistLocked(); err != nil {
		if existed {
			s.records[id] = prev
		} else {
			delete(s.records, id)
		}
		return err
	}
	return nil
}

// Get returns a copy of the record for id.
func (s *Store) Get(id string) (types.Attributes, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// GetAll returns a deep copy of every record.
func (s *Store) GetAll() map[string]types.Attributes {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]types.Attributes, len(s.records))
	for id, rec := range s.records {
		out[id] = rec.Clone()
	}
	return out
}

// Delete removes the record for id. It reports whether a record existed.
func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	prev, ok := s.records[id]
	if !ok {
		return false, nil
	}
	delete(s.records, id)
	if err := s.persistLocked(); err != nil {
		s.records[id] = prev
		return false, err
	}
	return true, nil
}

// IsDuplicate reports whether any record carries hash as its hash attribute.
// Hashes compare without regard to letter case.
func (s *Store) IsDuplicate(hash string) bool {
	if hash == "" {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if v, ok := rec[types.AttrHash]; ok && strings.EqualFold(v.String(), hash) {
			return true
		}
	}
	return false
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// persistLocked rewrites the file. Callers hold s.mu for writing.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "encode", Path: s.path, Err: err}
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return &PersistenceError{Op: "create", Path: tmp, Err: err}
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return &PersistenceError{Op: "write", Path: tmp, Err: err}
	}
	if err := storage.Fdatasync(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return &PersistenceError{Op: "sync", Path: tmp, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &PersistenceError{Op: "close", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return &PersistenceError{Op: "rename", Path: s.path, Err: err}
	}
	return nil
}
