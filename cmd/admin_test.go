// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/LeeDigitalWorks/zapingest/pkg/debug"
	"github.com/LeeDigitalWorks/zapingest/pkg/events"
	"github.com/LeeDigitalWorks/zapingest/pkg/metadata"
	"github.com/LeeDigitalWorks/zapingest/pkg/storage"
	"github.com/LeeDigitalWorks/zapingest/pkg/taskqueue"
	"github.com/LeeDigitalWorks/zapingest/pkg/types"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mock.Mock
}

func (p *recordingPublisher) Name() string { return "recording" }

func (p *recordingPublisher) Publish(ctx context.Context, ev events.Event) error {
	return p.Called(ev.Type, ev.VideoID).Error(0)
}

func (p *recordingPublisher) Close() error { return nil }

type adminFixture struct {
	server  *httptest.Server
	store   *metadata.Store
	storage *storage.Manager
	queue   *taskqueue.BoundedQueue
	pub     *recordingPublisher
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()

	root := t.TempDir()
	sm, err := storage.NewManager(storage.Config{Root: root})
	require.NoError(t, err)
	store, err := metadata.Open(filepath.Join(root, "metadata.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	q, err := taskqueue.NewBoundedQueue(3)
	require.NoError(t, err)

	pub := &recordingPublisher{}
	api := &adminAPI{
		queue:     q,
		storage:   sm,
		records:   store,
		janitor:   storage.NewJanitor(storage.JanitorConfig{Manager: sm}),
		publisher: pub,
	}
	api.register()

	srv := httptest.NewServer(debug.GetMux())
	t.Cleanup(srv.Close)

	return &adminFixture{server: srv, store: store, storage: sm, queue: q, pub: pub}
}

// commit writes a video file and its record the way the commit handler does.
func (f *adminFixture) commit(t *testing.T, id string) string {
	t.Helper()
	path := f.storage.VideoPath(id, ".mp4")
	require.NoError(t, os.WriteFile(path, []byte("video "+id), 0o644))
	require.NoError(t, f.store.Upsert(id, types.Attributes{
		types.AttrFilename: types.String(id + ".mp4"),
		types.AttrFilePath: types.String(path),
		types.AttrStatus:   types.String(types.StatusProcessed),
	}))
	return path
}

func (f *adminFixture) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAdmin_Queue(t *testing.T) {
	f := newAdminFixture(t)
	require.True(t, f.queue.TryEnqueue(&types.Upload{ID: "a"}))

	resp := f.do(t, http.MethodGet, "/admin/queue")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status queueStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, queueStatus{Depth: 1, Capacity: 3}, status)
}

func TestAdmin_Videos(t *testing.T) {
	f := newAdminFixture(t)
	f.commit(t, "b")
	f.commit(t, "a")

	resp := f.do(t, http.MethodGet, "/admin/videos")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []videoEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	resp = f.do(t, http.MethodGet, "/admin/videos/a")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entry videoEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entry))
	assert.Equal(t, "a.mp4", entry.Attributes[types.AttrFilename].String())

	resp = f.do(t, http.MethodGet, "/admin/videos/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdmin_DeleteVideo(t *testing.T) {
	f := newAdminFixture(t)
	path := f.commit(t, "doomed")
	f.pub.On("Publish", events.TypeVideoDeleted, "doomed").Return(nil).Once()

	resp := f.do(t, http.MethodDelete, "/admin/videos/doomed")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, ok := f.store.Get("doomed")
	assert.False(t, ok)
	assert.NoFileExists(t, path)
	f.pub.AssertExpectations(t)

	resp = f.do(t, http.MethodDelete, "/admin/videos/doomed")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdmin_Sweep(t *testing.T) {
	f := newAdminFixture(t)

	resp := f.do(t, http.MethodPost, "/admin/sweep")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 0, body["removed"])

	resp = f.do(t, http.MethodGet, "/admin/sweep")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestParseAttrs(t *testing.T) {
	attrs, err := parseAttrs([]string{"camera=cam-1", "fps=30", "ratio=1.5", "public=true", "note=a=b"})
	require.NoError(t, err)

	assert.Equal(t, types.KindString, attrs["camera"].Kind())
	assert.Equal(t, types.KindInt, attrs["fps"].Kind())
	assert.Equal(t, types.KindFloat, attrs["ratio"].Kind())
	assert.Equal(t, types.KindBool, attrs["public"].Kind())
	assert.Equal(t, "a=b", attrs["note"].String())

	_, err = parseAttrs([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseAttrs([]string{"=x"})
	assert.Error(t, err)
}

func TestOpenVideoStore_FailsWhileStoreIsInUse(t *testing.T) {
	root := t.TempDir()
	held, err := metadata.Open(filepath.Join(root, "metadata.json"))
	require.NoError(t, err)

	c := &cobra.Command{Use: "test"}
	c.Flags().String("storage_path", "", "")
	c.Flags().String("metadata_file", "", "")
	require.NoError(t, c.Flags().Set("storage_path", root))

	_, _, err = openVideoStore(c)
	require.ErrorIs(t, err, metadata.ErrLocked)

	require.NoError(t, held.Close())
	store, storagePath, err := openVideoStore(c)
	require.NoError(t, err)
	assert.Equal(t, root, storagePath)
	assert.Equal(t, filepath.Join(root, "metadata.json"), store.Path())
	require.NoError(t, store.Close())
}
