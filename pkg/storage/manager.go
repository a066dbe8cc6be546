// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/LeeDigitalWorks/zapingest/pkg/logger"
)

const (
	// TempPrefix marks in-progress payload files.
	TempPrefix = "temp_"

	DefaultExtension = ".mp4"
	defaultTempDir   = ".incoming"
	maxExtensionLen  = 16
)

var (
	ErrOutsideRoot = errors.New("storage: path is outside the storage root")
	ErrInvalidID   = errors.New("storage: invalid video id")
)

// Config configures the storage manager.
type Config struct {
	// Root is the durable storage directory.
	Root string
	// TempDir holds in-progress uploads. Defaults to <Root>/.incoming so that
	// commits are same-filesystem renames.
	TempDir string
	// DefaultExtension is used when the producer filename has none.
	DefaultExtension string
	// MinFreeSpace marks storage as low when free space drops below it.
	MinFreeSpace *FreeSpace
}

// Manager owns the on-disk layout: temp files for in-flight uploads and the
// final <id><ext> files.
type Manager struct {
	root       string
	tempDir    string
	defaultExt string
	minFree    *FreeSpace
}

// NewManager creates the root and temp directories and checks they are
// writable.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Root == "" {
		return nil, errors.New("storage: root path required")
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(root, defaultTempDir)
	}
	if tempDir, err = filepath.Abs(tempDir); err != nil {
		return nil, fmt.Errorf("storage: resolve temp dir: %w", err)
	}
	ext := cfg.DefaultExtension
	if !validExtension(ext) {
		ext = DefaultExtension
	}

	for _, dir := range []string{root, tempDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("storage: create %s: %w", dir, err)
		}
		if err := checkWritable(dir); err != nil {
			return nil, err
		}
	}

	m := &Manager{
		root:       root,
		tempDir:    tempDir,
		defaultExt: ext,
		minFree:    cfg.MinFreeSpace,
	}

	logger.Info().
		Str("root", root).
		Str("temp_dir", tempDir).
		Msg("storage: manager initialized")
	return m, nil
}

func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("storage: %s is not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func (m *Manager) Root() string { return m.root }

func (m *Manager) TempDir() string { return m.tempDir }

// VideoPath returns <root>/<id><ext>. An empty or unsafe extension is replaced
// with the default one.
func (m *Manager) VideoPath(id, ext string) string {
	if !validExtension(ext) {
		ext = m.defaultExt
	}
	return filepath.Join(m.root, id+ext)
}

// TempPath returns the in-progress location for id.
func (m *Manager) TempPath(id string) string {
	return filepath.Join(m.tempDir, TempPrefix+id)
}

// CreateTemp creates the temp file for id. It fails if the file exists.
func (m *Manager) CreateTemp(id string) (*os.File, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return os.OpenFile(m.TempPath(id), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
}

// Move relocates src to dst, replacing dst if it exists. Across filesystems
// it falls back to copy, sync and remove.
func (m *Manager) Move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}

	logger.Debug().Str("src", src).Str("dst", dst).Msg("storage: cross-device move, copying")
	if err := copyFile(src, dst); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn().Err(err).Str("path", src).Msg("storage: failed to remove source after copy")
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".partial"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy: %w", err)
	}
	if err := Fdatasync(out); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync: %w", err)
	}
	_ = fadviseDontNeed(out)
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// DeleteVideo removes a committed file. Only regular files inside the storage
// root are touched. It reports whether a file was removed.
func (m *Manager) DeleteVideo(path string) bool {
	if err := m.checkInRoot(path); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("storage: refusing to delete")
		return false
	}

	info, err := os.Lstat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Err(err).Str("path", path).Msg("storage: stat before delete failed")
		}
		return false
	}
	if !info.Mode().IsRegular() {
		logger.Warn().Str("path", path).Msg("storage: refusing to delete non-regular file")
		return false
	}

	if err := os.Remove(path); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("storage: delete failed")
		return false
	}
	return true
}

// DiscardTemp removes an in-progress file. Failures are logged; a missing
// file is not an error.
func (m *Manager) DiscardTemp(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn().Err(err).Str("path", path).Msg("storage: failed to discard temp file")
	}
}

func (m *Manager) checkInRoot(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(m.root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ErrOutsideRoot
	}
	return nil
}

// ExtensionOf returns the extension of a producer supplied filename if it is
// safe to use on disk, or "".
func ExtensionOf(filename string) string {
	ext := filepath.Ext(filepath.Base(strings.ReplaceAll(filename, "\\", "/")))
	if !validExtension(ext) {
		return ""
	}
	return ext
}

func validExtension(ext string) bool {
	if len(ext) < 2 || len(ext) > maxExtensionLen || ext[0] != '.' {
		return false
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}
