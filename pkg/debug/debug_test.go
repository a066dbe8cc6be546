// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package debug

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyEndpoint(t *testing.T) {
	SetNotReady()
	t.Cleanup(func() {
		SetNotReady()
		RemoveReadyCheck("disk")
	})

	mux := GetMux()
	get := func() int {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusServiceUnavailable, get())

	SetReady()
	assert.Equal(t, http.StatusOK, get())

	diskOK := false
	AddReadyCheck("disk", func() bool { return diskOK })
	assert.Equal(t, http.StatusServiceUnavailable, get())

	diskOK = true
	assert.Equal(t, http.StatusOK, get())
}

func TestRegisterHandlerFunc(t *testing.T) {
	RegisterHandlerFunc("GET /admin/ping", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]int{"pong": 1})
	})

	rec := httptest.NewRecorder()
	GetMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/ping", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"pong":1}`, rec.Body.String())
}
