// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue_test

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LeeDigitalWorks/zapingest/pkg/taskqueue"
	"github.com/LeeDigitalWorks/zapingest/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upload(id string) *types.Upload {
	return &types.Upload{ID: id, Attributes: types.Attributes{}}
}

func newQueue(t *testing.T, capacity int) *taskqueue.BoundedQueue {
	t.Helper()
	q, err := taskqueue.NewBoundedQueue(capacity)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestBoundedQueue_InvalidCapacity(t *testing.T) {
	t.Parallel()

	for _, c := range []int{0, -1} {
		_, err := taskqueue.NewBoundedQueue(c)
		assert.ErrorIs(t, err, taskqueue.ErrInvalidCapacity)
	}
}

func TestBoundedQueue_RejectsWhenFull(t *testing.T) {
	t.Parallel()

	const capacity = 5
	q := newQueue(t, capacity)

	for i := 0; i < capacity; i++ {
		require.True(t, q.TryEnqueue(upload(strconv.Itoa(i))))
	}
	assert.True(t, q.IsFull())
	assert.Equal(t, capacity, q.Len())
	assert.Equal(t, capacity, q.Cap())

	for i := 0; i < 3; i++ {
		assert.False(t, q.TryEnqueue(upload("overflow")))
	}
	assert.Equal(t, capacity, q.Len())

	u, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0", u.ID)

	assert.False(t, q.IsFull())
	assert.True(t, q.TryEnqueue(upload("late")))
	assert.False(t, q.TryEnqueue(upload("overflow")))
}

func TestBoundedQueue_CapacityOne(t *testing.T) {
	t.Parallel()

	q := newQueue(t, 1)

	assert.True(t, q.TryEnqueue(upload("a")))
	assert.False(t, q.TryEnqueue(upload("b")))

	u, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", u.ID)

	assert.True(t, q.TryEnqueue(upload("c")))
}

func TestBoundedQueue_DequeueBlocksUntilCancelled(t *testing.T) {
	t.Parallel()

	q := newQueue(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	u, err := q.Dequeue(ctx)
	assert.Nil(t, u)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBoundedQueue_DequeueWakesOnEnqueue(t *testing.T) {
	t.Parallel()

	q := newQueue(t, 2)
	got := make(chan *types.Upload, 1)
	go func() {
		u, _ := q.Dequeue(context.Background())
		got <- u
	}()

	time.Sleep(10 * time.Millisecond)
	require.True(t, q.TryEnqueue(upload("x")))

	select {
	case u := <-got:
		assert.Equal(t, "x", u.ID)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not wake up")
	}
}

func TestBoundedQueue_Close(t *testing.T) {
	t.Parallel()

	q := newQueue(t, 4)
	require.True(t, q.TryEnqueue(upload("a")))
	require.True(t, q.TryEnqueue(upload("b")))

	blocked := make(chan error, 1)
	empty := newQueue(t, 1)
	go func() {
		_, err := empty.Dequeue(context.Background())
		blocked <- err
	}()

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	require.NoError(t, empty.Close())

	assert.False(t, q.TryEnqueue(upload("c")))

	_, err := q.Dequeue(context.Background())
	assert.ErrorIs(t, err, taskqueue.ErrQueueClosed)

	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, taskqueue.ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("close did not wake blocked consumer")
	}

	abandoned := q.Drain()
	require.Len(t, abandoned, 2)
	assert.Equal(t, "a", abandoned[0].ID)
	assert.Equal(t, "b", abandoned[1].ID)
	assert.Zero(t, q.Len())
}

// Each consumer must observe items in enqueue order.
func TestBoundedQueue_FIFO_SingleProducerMultiConsumer(t *testing.T) {
	t.Parallel()

	const (
		total     = 200
		consumers = 4
	)
	q := newQueue(t, total)
	for i := 0; i < total; i++ {
		require.True(t, q.TryEnqueue(upload(strconv.Itoa(i))))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen = make(map[int]bool)
		wg   sync.WaitGroup
	)
	for c := 0; c < consumers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := -1
			for {
				mu.Lock()
				done := len(seen) == total
				mu.Unlock()
				if done || q.Len() == 0 {
					return
				}
				dctx, dcancel := context.WithTimeout(ctx, 20*time.Millisecond)
				u, err := q.Dequeue(dctx)
				dcancel()
				if err != nil {
					return
				}
				n, _ := strconv.Atoi(u.ID)
				assert.Greater(t, n, last, "consumer saw items out of order")
				last = n
				mu.Lock()
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
}

// Items from one producer must come out in that producer's order.
func TestBoundedQueue_FIFO_MultiProducerSingleConsumer(t *testing.T) {
	t.Parallel()

	const (
		producers = 4
		perProd   = 50
	)
	q := newQueue(t, producers*perProd)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProd; i++ {
				assert.True(t, q.TryEnqueue(upload(strconv.Itoa(p)+"-"+strconv.Itoa(i))))
			}
		}(p)
	}
	wg.Wait()

	last := make(map[string]int)
	for i := 0; i < producers*perProd; i++ {
		u, err := q.Dequeue(context.Background())
		require.NoError(t, err)

		prod, rest, found := strings.Cut(u.ID, "-")
		require.True(t, found)
		seq, _ := strconv.Atoi(rest)
		prev, ok := last[prod]
		if ok {
			assert.Greater(t, seq, prev)
		}
		last[prod] = seq
	}
	assert.Len(t, last, producers)
	assert.Zero(t, q.Len())
}

func TestBoundedQueue_ConcurrentEnqueueNeverExceedsCapacity(t *testing.T) {
	t.Parallel()

	const capacity = 10
	q := newQueue(t, capacity)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if q.TryEnqueue(upload("u")) {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, capacity, accepted)
	assert.Equal(t, capacity, q.Len())
}
