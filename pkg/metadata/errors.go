// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyID = errors.New("metadata: empty video id")
	// ErrLocked is returned by Open when another Store holds the file.
	ErrLocked  = errors.New("metadata: store is in use by another process")
	ErrClosed  = errors.New("metadata: store closed")
)

// PersistenceError reports that the metadata file could not be written. The
// in-memory state is rolled back before it is returned, so callers can treat
// the mutation as not having happened.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("metadata: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
