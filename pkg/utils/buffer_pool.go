// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"math/bits"
	"sync"
)

// Buffer pool size classes (powers of 2)
// Index 0 = 1KB, Index 1 = 2KB, ..., Index 10 = 1MB
const (
	minPoolSize   = 1 << 10 // 1KB minimum
	maxPoolSize   = 1 << 20 // 1MB maximum
	numPoolLevels = 11
)

var bufferPools [numPoolLevels]sync.Pool

func init() {
	for i := range bufferPools {
		size := minPoolSize << i
		bufferPools[i] = sync.Pool{
			New: func() any {
				buf := make([]byte, size)
				return &buf
			},
		}
	}
}

// poolIndex returns the pool index for a given size.
// Returns -1 if size is larger than maxPoolSize.
func poolIndex(size int) int {
	if size <= minPoolSize {
		return 0
	}
	if size > maxPoolSize {
		return -1
	}
	// smallest power of 2 >= size, as an index above minPoolSize
	idx := bits.Len(uint(size-1)) - 10
	if idx < 0 {
		return 0
	}
	if idx >= numPoolLevels {
		return -1
	}
	return idx
}

// GetBuffer returns a byte slice of the requested length. Its capacity is
// rounded up to a power of 2. Return it with PutBuffer.
func GetBuffer(size int) []byte {
	idx := poolIndex(size)
	if idx < 0 {
		return make([]byte, size)
	}
	bufPtr := bufferPools[idx].Get().(*[]byte)
	return (*bufPtr)[:size]
}

// GetBufferCap returns an empty slice with at least the requested capacity,
// for appending.
func GetBufferCap(capacity int) []byte {
	idx := poolIndex(capacity)
	if idx < 0 {
		return make([]byte, 0, capacity)
	}
	bufPtr := bufferPools[idx].Get().(*[]byte)
	return (*bufPtr)[:0]
}

// PutBuffer returns a buffer obtained from GetBuffer or GetBufferCap.
// Buffers of any other capacity are dropped.
//
// WARNING: Do not use the buffer after calling PutBuffer.
func PutBuffer(buf []byte) {
	c := cap(buf)
	idx := poolIndex(c)
	if idx < 0 {
		return
	}
	if c != minPoolSize<<idx {
		return // not from our pool
	}
	buf = buf[:c]
	bufferPools[idx].Put(&buf)
}
