// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"context"
	"sync"

	"github.com/LeeDigitalWorks/zapingest/pkg/types"
)

// Compile-time interface verification
var _ Queue = (*BoundedQueue)(nil)

// BoundedQueue is a fixed-capacity FIFO backed by a buffered channel. It is
// safe for any number of producers and consumers.
type BoundedQueue struct {
	items chan *types.Upload

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewBoundedQueue creates a queue holding at most capacity uploads.
func NewBoundedQueue(capacity int) (*BoundedQueue, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &BoundedQueue{
		items: make(chan *types.Upload, capacity),
		done:  make(chan struct{}),
	}, nil
}

func (q *BoundedQueue) TryEnqueue(u *types.Upload) bool {
	// The read lock keeps Close from racing with the send, so a closed queue
	// never gains items.
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		UploadsRejectedTotal.WithLabelValues(rejectClosed).Inc()
		return false
	}

	select {
	case q.items <- u:
		UploadsEnqueuedTotal.Inc()
		QueueDepth.Set(float64(len(q.items)))
		return true
	default:
		UploadsRejectedTotal.WithLabelValues(rejectFull).Inc()
		return false
	}
}

func (q *BoundedQueue) Dequeue(ctx context.Context) (*types.Upload, error) {
	select {
	case <-q.done:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	select {
	case u := <-q.items:
		QueueDepth.Set(float64(len(q.items)))
		return u, nil
	case <-q.done:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *BoundedQueue) Len() int {
	return len(q.items)
}

func (q *BoundedQueue) Cap() int {
	return cap(q.items)
}

func (q *BoundedQueue) IsFull() bool {
	return len(q.items) >= cap(q.items)
}

// Close is idempotent.
func (q *BoundedQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}

func (q *BoundedQueue) Drain() []*types.Upload {
	var out []*types.Upload
	for {
		select {
		case u := <-q.items:
			out = append(out, u)
		default:
			QueueDepth.Set(float64(len(q.items)))
			return out
		}
	}
}
