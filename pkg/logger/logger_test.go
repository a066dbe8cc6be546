// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure_RejectsUnknownValues(t *testing.T) {
	assert.Error(t, Configure("loud", FormatJSON))
	assert.Error(t, Configure("", Format("xml")))
}

func TestCtx_FallsBackToGlobal(t *testing.T) {
	assert.Equal(t, &globalLogger, Ctx(context.Background()))
	//nolint:staticcheck // nil context is accepted on purpose
	assert.Equal(t, &globalLogger, Ctx(nil))

	l := zerolog.Nop()
	ctx := WithLogger(context.Background(), &l)
	assert.Equal(t, &l, Ctx(ctx))
}

func TestSetOutput_KeepsLevel(t *testing.T) {
	prev := globalLogger
	t.Cleanup(func() {
		globalLogger = prev
	})

	var buf bytes.Buffer
	require.NoError(t, Configure("warn", FormatJSON))
	SetOutput(&buf)

	Info().Msg("hidden")
	Warn().Str("video_id", "v1").Msg("storage: low space")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"video_id":"v1"`)
}
