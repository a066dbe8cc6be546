// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderTable(t *testing.T) {
	t.Parallel()

	out := renderTable(
		[]string{"ID", "Filename", "Size"},
		[][]string{
			{"a1", "clip.mp4", "1.0 MiB"},
			{"b2"},
		},
		2,
	)

	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 6)
	assert.Contains(t, lines[1], "ID")
	assert.Contains(t, lines[1], "Filename")
	assert.Contains(t, lines[3], "clip.mp4")
	assert.Contains(t, lines[3], "1.0 MiB")
	assert.Contains(t, lines[4], "b2")
}

func TestRenderTable_NoHeaders(t *testing.T) {
	t.Parallel()
	assert.Empty(t, renderTable(nil, [][]string{{"x"}}))
}
