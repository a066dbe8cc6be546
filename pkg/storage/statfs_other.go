// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux && !darwin && !freebsd

package storage

import "errors"

func diskUsage(path string) (total, avail uint64, err error) {
	return 0, 0, errors.New("disk usage not supported on this platform")
}
