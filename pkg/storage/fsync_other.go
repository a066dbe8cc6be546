// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package storage

import "os"

// Fdatasync falls back to a full Sync outside Linux.
func Fdatasync(f *os.File) error {
	return f.Sync()
}

func fadviseDontNeed(f *os.File) error {
	return nil
}
