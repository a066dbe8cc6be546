// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"context"
	"testing"
	"testing/synctest"
	"time"

	"github.com/LeeDigitalWorks/zapingest/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWorker_StopTimeout_Synctest checks that Stop gives up after the
// configured timeout while a commit is still running.
func TestWorker_StopTimeout_Synctest(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		q, err := NewBoundedQueue(2)
		require.NoError(t, err)

		release := make(chan struct{})
		w := NewWorker(WorkerConfig{
			Queue: q,
			Handler: HandlerFunc(func(ctx context.Context, u *types.Upload) error {
				<-release
				return nil
			}),
			Concurrency: 1,
			StopTimeout: 3 * time.Second,
		})

		require.True(t, q.TryEnqueue(&types.Upload{ID: "slow"}))
		w.Start(context.Background())
		synctest.Wait()

		start := time.Now()
		err = w.Stop()
		assert.ErrorIs(t, err, ErrStopTimeout)
		assert.Equal(t, 3*time.Second, time.Since(start))
		assert.Equal(t, 1, w.Active())

		// A second Stop reports the same outcome without waiting again.
		assert.ErrorIs(t, w.Stop(), ErrStopTimeout)

		close(release)
		synctest.Wait()
		assert.Zero(t, w.Active())
	})
}

// TestWorker_Start_Synctest checks that Start launches exactly Concurrency
// goroutines and ignores repeated calls.
func TestWorker_Start_Synctest(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		q, err := NewBoundedQueue(1)
		require.NoError(t, err)

		w := NewWorker(WorkerConfig{
			Queue:       q,
			Handler:     HandlerFunc(func(context.Context, *types.Upload) error { return nil }),
			Concurrency: 3,
		})
		w.Start(context.Background())
		w.Start(context.Background())
		synctest.Wait()

		assert.Equal(t, 3, w.Active())

		require.NoError(t, w.Stop())
		assert.Zero(t, w.Active())
	})
}
