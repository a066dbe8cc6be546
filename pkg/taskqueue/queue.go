// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"context"
	"errors"

	"github.com/LeeDigitalWorks/zapingest/pkg/types"
)

// Common errors
var (
	ErrQueueClosed     = errors.New("upload queue is closed")
	ErrInvalidCapacity = errors.New("queue capacity must be at least 1")
	ErrStopTimeout     = errors.New("workers did not stop before timeout")
)

// Queue is the admission queue between ingestion handlers and commit workers.
// Producers never block: when the queue is full the upload is rejected.
type Queue interface {
	// TryEnqueue adds u if there is room. It returns false when the queue is
	// at capacity or closed and never blocks.
	TryEnqueue(u *types.Upload) bool

	// Dequeue blocks until an upload is available, ctx is cancelled
	// (returns ctx.Err()) or the queue is closed (returns ErrQueueClosed).
	Dequeue(ctx context.Context) (*types.Upload, error)

	// Len is a snapshot of the number of pending uploads.
	Len() int

	// Cap is the fixed capacity.
	Cap() int

	// IsFull reports whether Len has reached Cap. The result may be stale by
	// the time the caller acts on it.
	IsFull() bool

	// Close rejects further enqueues and wakes blocked consumers.
	Close() error

	// Drain removes and returns every pending upload.
	Drain() []*types.Upload
}

// Handler commits a single dequeued upload.
type Handler interface {
	Handle(ctx context.Context, u *types.Upload) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, u *types.Upload) error

func (f HandlerFunc) Handle(ctx context.Context, u *types.Upload) error {
	return f(ctx, u)
}
