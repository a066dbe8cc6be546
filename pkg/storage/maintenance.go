// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/zapingest/pkg/logger"
)

// Info is a snapshot of capacity for the filesystem holding the root.
type Info struct {
	Path        string  `json:"path"`
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
	Low         bool    `json:"low"`
	Threshold   string  `json:"threshold,omitempty"`
}

// Info reports disk capacity. On failure it logs and returns the zero value.
func (m *Manager) Info() Info {
	total, avail, err := diskUsage(m.root)
	if err != nil {
		logger.Warn().Err(err).Str("path", m.root).Msg("storage: statfs failed")
		return Info{}
	}

	info := Info{
		Path:       m.root,
		TotalBytes: total,
		FreeBytes:  avail,
	}
	if avail <= total {
		info.UsedBytes = total - avail
	}
	if total > 0 {
		info.UsedPercent = float64(info.UsedBytes) / float64(total) * 100
	}
	if m.minFree != nil {
		info.Threshold = m.minFree.String()
		info.Low, _ = m.minFree.IsLow(avail, 100-info.UsedPercent)
	}

	StorageBytes.WithLabelValues("total").Set(float64(info.TotalBytes))
	StorageBytes.WithLabelValues("used").Set(float64(info.UsedBytes))
	StorageBytes.WithLabelValues("free").Set(float64(info.FreeBytes))
	return info
}

// IsLow reports whether free space is under the configured minimum. It is
// false when no minimum is configured or capacity cannot be read.
func (m *Manager) IsLow() bool {
	info := m.Info()
	return info.Low
}

// SweepTempFiles deletes temp_* files whose modification time is older than
// olderThan, from the temp dir and the root. Files younger than that may
// belong to uploads still in flight and are kept. Errors are logged; the
// number of removed files is returned.
func (m *Manager) SweepTempFiles(olderThan time.Duration) int {
	SweepRunsTotal.Inc()

	cutoff := time.Now().Add(-olderThan)
	dirs := []string{m.tempDir}
	if m.tempDir != m.root {
		dirs = append(dirs, m.root)
	}

	removed := 0
	for _, dir := range dirs {
		removed += sweepDir(dir, cutoff)
	}

	if removed > 0 {
		TempFilesSweptTotal.Add(float64(removed))
		logger.Info().Int("removed", removed).Dur("grace_period", olderThan).Msg("storage: swept orphaned temp files")
	}
	return removed
}

func sweepDir(dir string, cutoff time.Time) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Err(err).Str("dir", dir).Msg("storage: temp sweep failed to list directory")
		}
		return 0
	}

	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasPrefix(e.Name(), TempPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logger.Warn().Err(err).Str("path", path).Msg("storage: failed to remove temp file")
			}
			continue
		}
		removed++
	}
	return removed
}
