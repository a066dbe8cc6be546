// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux || darwin || freebsd

package storage

import "golang.org/x/sys/unix"

// diskUsage reports total and available bytes of the filesystem holding path.
// Available is what an unprivileged writer can use, not the raw free count.
func diskUsage(path string) (total, avail uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	bsize := uint64(st.Bsize)
	return uint64(st.Blocks) * bsize, uint64(st.Bavail) * bsize, nil
}
