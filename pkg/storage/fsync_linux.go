// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package storage

import (
	"os"

	"golang.org/x/sys/unix"
)

// Fdatasync flushes file data, and only the metadata needed to read it back,
// to disk.
func Fdatasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}

// fadviseDontNeed drops the page cache for a fully written payload that will
// not be read again by this process.
func fadviseDontNeed(f *os.File) error {
	return unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_DONTNEED)
}
