// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

type FreeSpaceType int

const (
	AsPercent FreeSpaceType = iota
	AsBytes
)

// FreeSpace is the minimum free space below which storage is reported low.
// It is either a percentage of the filesystem ("5", "2.5%") or an absolute
// size ("10GiB", "500MB").
type FreeSpace struct {
	Type    FreeSpaceType
	Bytes   uint64
	Percent float64
	Raw     string
}

// IsLow reports whether the given free space is below the threshold, with a
// human readable explanation for logs.
func (s FreeSpace) IsLow(freeBytes uint64, freePercent float64) (bool, string) {
	switch s.Type {
	case AsPercent:
		return freePercent < s.Percent, fmt.Sprintf("free %.2f%%, threshold %.2f%%", freePercent, s.Percent)
	case AsBytes:
		return freeBytes < s.Bytes, fmt.Sprintf("free %s, threshold %s", humanize.IBytes(freeBytes), humanize.IBytes(s.Bytes))
	}
	return false, ""
}

func (s FreeSpace) String() string {
	switch s.Type {
	case AsPercent:
		return fmt.Sprintf("%.2f%%", s.Percent)
	default:
		return s.Raw
	}
}

// ParseMinFreeSpace parses a percent or humanized byte threshold. An empty
// string disables the check.
func ParseMinFreeSpace(s string) (*FreeSpace, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	if percent, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64); err == nil {
		if percent < 0 || percent > 100 {
			return nil, fmt.Errorf("invalid percent value: %s", s)
		}
		return &FreeSpace{Type: AsPercent, Percent: percent, Raw: s}, nil
	}

	if bytes, err := humanize.ParseBytes(s); err == nil {
		if bytes <= 100 {
			return nil, fmt.Errorf("invalid byte value: %s", s)
		}
		return &FreeSpace{Type: AsBytes, Bytes: bytes, Raw: s}, nil
	}

	return nil, errors.New("invalid min free space format")
}
