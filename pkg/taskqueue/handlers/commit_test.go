// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/LeeDigitalWorks/zapingest/pkg/events"
	"github.com/LeeDigitalWorks/zapingest/pkg/metadata"
	"github.com/LeeDigitalWorks/zapingest/pkg/storage"
	"github.com/LeeDigitalWorks/zapingest/pkg/taskqueue"
	"github.com/LeeDigitalWorks/zapingest/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Name() string { return "mock" }

func (m *mockPublisher) Publish(ctx context.Context, ev events.Event) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *mockPublisher) Close() error { return nil }

type fixture struct {
	storage *storage.Manager
	store   *metadata.Store
	pub     *mockPublisher
	handler *CommitHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	root := t.TempDir()
	sm, err := storage.NewManager(storage.Config{Root: root})
	require.NoError(t, err)
	store, err := metadata.Open(filepath.Join(root, "metadata.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	pub := &mockPublisher{}
	h := NewCommitHandler(CommitConfig{Storage: sm, Records: store, Publisher: pub})
	h.now = func() time.Time { return time.Unix(1700000000, 0) }

	return &fixture{storage: sm, store: store, pub: pub, handler: h}
}

// stage writes a temp payload and returns its descriptor.
func (f *fixture) stage(t *testing.T, id, content string) *types.Upload {
	t.Helper()

	tmp, err := f.storage.CreateTemp(id)
	require.NoError(t, err)
	_, err = tmp.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	return &types.Upload{
		ID:        id,
		TempPath:  f.storage.TempPath(id),
		FinalPath: f.storage.VideoPath(id, ".mp4"),
		Attributes: types.Attributes{
			types.AttrFilename: types.String(id + ".mp4"),
			types.AttrHash:     types.String("hash-" + id),
			types.AttrSize:     types.Int(int64(len(content))),
		},
		ReceivedAt: time.Now(),
	}
}

// assertConsistent checks that a record exists exactly when its file does.
func (f *fixture) assertConsistent(t *testing.T, u *types.Upload) {
	t.Helper()

	_, hasRecord := f.store.Get(u.ID)
	info, err := os.Stat(u.FinalPath)
	hasFile := err == nil && info.Mode().IsRegular()
	assert.Equal(t, hasRecord, hasFile, "record and file must exist together")
	assert.NoFileExists(t, u.TempPath)
}

func TestCommit_Success(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.pub.On("Publish", mock.Anything, mock.MatchedBy(func(ev events.Event) bool {
		return ev.Type == events.TypeVideoCommitted && ev.VideoID == "v1"
	})).Return(nil)

	u := f.stage(t, "v1", "payload")
	require.NoError(t, f.handler.Handle(context.Background(), u))

	got, err := os.ReadFile(u.FinalPath)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	rec, ok := f.store.Get("v1")
	require.True(t, ok)
	status, _ := rec.GetString(types.AttrStatus)
	assert.Equal(t, types.StatusProcessed, status)
	path, _ := rec.GetString(types.AttrFilePath)
	assert.Equal(t, u.FinalPath, path)
	vid, _ := rec.GetString(types.AttrVideoID)
	assert.Equal(t, "v1", vid)
	ts, _ := rec.GetInt(types.AttrProcessedTimestamp)
	assert.Equal(t, int64(1700000000), ts)
	assert.True(t, rec.Has(types.AttrTimestamp))

	assert.False(t, u.Attributes.Has(types.AttrStatus), "descriptor attributes are not mutated")
	assert.True(t, f.store.IsDuplicate("hash-v1"))
	f.assertConsistent(t, u)
	f.pub.AssertExpectations(t)
}

func TestCommit_RelocationFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	u := f.stage(t, "v1", "payload")
	require.NoError(t, os.MkdirAll(filepath.Join(u.FinalPath, "occupied"), 0755))

	err := f.handler.Handle(context.Background(), u)

	var cerr *CommitError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, StageRelocate, cerr.Stage)
	_, ok := f.store.Get("v1")
	assert.False(t, ok)
	assert.NoFileExists(t, u.TempPath)
	assert.Zero(t, f.store.Len())
	f.pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestCommit_PersistFailureRemovesFile(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	u := f.stage(t, "v1", "payload")
	require.NoError(t, os.Mkdir(f.store.Path()+".tmp", 0755))

	err := f.handler.Handle(context.Background(), u)

	var cerr *CommitError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, StagePersist, cerr.Stage)
	var perr *metadata.PersistenceError
	assert.ErrorAs(t, err, &perr)

	assert.NoFileExists(t, u.FinalPath)
	f.assertConsistent(t, u)
	f.pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestCommit_PublishFailureDoesNotFailCommit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	u := f.stage(t, "v1", "payload")
	require.NoError(t, f.handler.Handle(context.Background(), u))
	f.assertConsistent(t, u)
}

func TestCommit_OverwritesExistingFinalFile(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	u := f.stage(t, "v1", "new")
	require.NoError(t, os.WriteFile(u.FinalPath, []byte("stale"), 0644))

	require.NoError(t, f.handler.Handle(context.Background(), u))
	got, err := os.ReadFile(u.FinalPath)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

// A relocation failure for one item must not stop the pool from committing
// the others.
func TestCommit_FailureIsolatedInWorkerPool(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	q, err := taskqueue.NewBoundedQueue(10)
	require.NoError(t, err)
	defer q.Close()

	good1 := f.stage(t, "good1", "a")
	bad := f.stage(t, "bad", "b")
	good2 := f.stage(t, "good2", "c")
	require.NoError(t, os.MkdirAll(filepath.Join(bad.FinalPath, "occupied"), 0755))

	for _, u := range []*types.Upload{good1, bad, good2} {
		require.True(t, q.TryEnqueue(u))
	}

	w := taskqueue.NewWorker(taskqueue.WorkerConfig{
		Queue:       q,
		Handler:     f.handler,
		Concurrency: 1,
		StopTimeout: 5 * time.Second,
	})
	w.Start(context.Background())

	require.Eventually(t, func() bool {
		return q.Len() == 0 && f.store.Len() == 2
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop())

	for _, u := range []*types.Upload{good1, bad, good2} {
		f.assertConsistent(t, u)
	}
	_, ok := f.store.Get("bad")
	assert.False(t, ok)
}
