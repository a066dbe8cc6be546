// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolIndex(t *testing.T) {
	tests := map[int]int{
		1:         0,
		1 << 10:   0,
		1<<10 + 1: 1,
		3072:      2,
		64 << 10:  6,
		1 << 20:   10,
		1<<20 + 1: -1,
	}
	for size, want := range tests {
		assert.Equal(t, want, poolIndex(size), "size %d", size)
	}
}

func TestGetBuffer(t *testing.T) {
	buf := GetBuffer(64 << 10)
	assert.Len(t, buf, 64<<10)
	assert.Equal(t, 64<<10, cap(buf))
	PutBuffer(buf)

	sniff := GetBufferCap(3072)
	assert.Empty(t, sniff)
	assert.Equal(t, 4096, cap(sniff))
	PutBuffer(sniff)

	big := GetBuffer(2 << 20)
	assert.Len(t, big, 2<<20)
	PutBuffer(big)

	// foreign capacities are ignored
	PutBuffer(make([]byte, 1000))
}
