// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{Root: t.TempDir()})
	require.NoError(t, err)
	return m
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestNewManager_CreatesLayout(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "uploads")
	m, err := NewManager(Config{Root: root})
	require.NoError(t, err)

	assert.DirExists(t, root)
	assert.Equal(t, filepath.Join(root, ".incoming"), m.TempDir())
	assert.DirExists(t, m.TempDir())

	_, err = NewManager(Config{})
	assert.Error(t, err)
}

func TestManager_VideoPath(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)

	assert.Equal(t, filepath.Join(m.Root(), "abc.mkv"), m.VideoPath("abc", ".mkv"))
	assert.Equal(t, filepath.Join(m.Root(), "abc.mp4"), m.VideoPath("abc", ""))
	assert.Equal(t, filepath.Join(m.Root(), "abc.mp4"), m.VideoPath("abc", "./../x"))
	assert.Equal(t, filepath.Join(m.TempDir(), "temp_abc"), m.TempPath("abc"))
}

func TestExtensionOf(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"clip.mp4":                 ".mp4",
		"dir/holiday.MOV":          ".MOV",
		`C:\videos\a.webm`:         ".webm",
		"noext":                    "",
		"weird.ex t":               "",
		"archive.tar.gz":           ".gz",
		"too.averyveryverylongext": "",
	}
	for in, want := range tests {
		assert.Equal(t, want, ExtensionOf(in), in)
	}
}

func TestManager_CreateTempIsExclusive(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)

	f, err := m.CreateTemp("id1")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = m.CreateTemp("id1")
	assert.ErrorIs(t, err, os.ErrExist)

	_, err = m.CreateTemp("../escape")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestManager_MoveReplacesDestination(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	src := m.TempPath("v1")
	dst := m.VideoPath("v1", ".mp4")
	writeFile(t, src, "new")
	writeFile(t, dst, "old")

	require.NoError(t, m.Move(src, dst))

	assert.NoFileExists(t, src)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestManager_MoveFailsOntoNonEmptyDirectory(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	src := m.TempPath("v1")
	dst := m.VideoPath("v1", ".mp4")
	writeFile(t, src, "payload")
	require.NoError(t, os.MkdirAll(filepath.Join(dst, "blocker"), 0755))

	assert.Error(t, m.Move(src, dst))
	assert.FileExists(t, src)
}

func TestCopyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeFile(t, src, "bytes")

	require.NoError(t, copyFile(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "bytes", string(got))
	assert.NoFileExists(t, dst+".partial")
}

func TestManager_DeleteVideo(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	inside := m.VideoPath("v1", ".mp4")
	writeFile(t, inside, "x")

	outsideDir := t.TempDir()
	outside := filepath.Join(outsideDir, "other.mp4")
	writeFile(t, outside, "x")

	assert.True(t, m.DeleteVideo(inside))
	assert.NoFileExists(t, inside)
	assert.False(t, m.DeleteVideo(inside), "already gone")

	assert.False(t, m.DeleteVideo(outside))
	assert.FileExists(t, outside)

	assert.False(t, m.DeleteVideo(m.Root()))
	assert.False(t, m.DeleteVideo(m.TempDir()), "directories are never deleted")
}

func TestManager_DiscardTemp(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	p := m.TempPath("gone")
	writeFile(t, p, "x")

	m.DiscardTemp(p)
	assert.NoFileExists(t, p)

	// Missing files and empty paths are ignored.
	m.DiscardTemp(p)
	m.DiscardTemp("")
}

func TestManager_SweepTempFiles(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	old := time.Now().Add(-2 * time.Hour)

	stale := m.TempPath("stale")
	fresh := m.TempPath("fresh")
	legacy := filepath.Join(m.Root(), "temp_legacy")
	video := m.VideoPath("keep", ".mp4")
	for _, p := range []string{stale, fresh, legacy, video} {
		writeFile(t, p, "x")
	}
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(legacy, old, old))
	require.NoError(t, os.Chtimes(video, old, old))

	removed := m.SweepTempFiles(time.Hour)

	assert.Equal(t, 2, removed)
	assert.NoFileExists(t, stale)
	assert.NoFileExists(t, legacy)
	assert.FileExists(t, fresh)
	assert.FileExists(t, video)

	assert.Zero(t, m.SweepTempFiles(time.Hour))
}

func TestManager_Info(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	info := m.Info()
	if info.TotalBytes == 0 {
		t.Skip("statfs not available")
	}

	assert.Equal(t, m.Root(), info.Path)
	assert.Equal(t, info.TotalBytes, info.UsedBytes+info.FreeBytes)
	assert.False(t, info.Low, "no threshold configured")

	huge, err := ParseMinFreeSpace("1000PiB")
	require.NoError(t, err)
	low, err := NewManager(Config{Root: m.Root(), MinFreeSpace: huge})
	require.NoError(t, err)
	assert.True(t, low.Info().Low)
	assert.True(t, low.IsLow())
}

func TestParseMinFreeSpace(t *testing.T) {
	t.Parallel()

	fs, err := ParseMinFreeSpace("5")
	require.NoError(t, err)
	assert.Equal(t, AsPercent, fs.Type)
	assert.InDelta(t, 5.0, fs.Percent, 0.001)

	fs, err = ParseMinFreeSpace("2.5%")
	require.NoError(t, err)
	assert.InDelta(t, 2.5, fs.Percent, 0.001)

	fs, err = ParseMinFreeSpace("10GiB")
	require.NoError(t, err)
	assert.Equal(t, AsBytes, fs.Type)
	assert.Equal(t, uint64(10<<30), fs.Bytes)

	fs, err = ParseMinFreeSpace("")
	require.NoError(t, err)
	assert.Nil(t, fs)

	for _, bad := range []string{"101", "-1", "50B", "lots"} {
		_, err := ParseMinFreeSpace(bad)
		assert.Error(t, err, bad)
	}

	low, _ := (&FreeSpace{Type: AsPercent, Percent: 10}).IsLow(0, 5)
	assert.True(t, low)
	low, _ = (&FreeSpace{Type: AsBytes, Bytes: 1 << 20}).IsLow(2<<20, 1)
	assert.False(t, low)
}
