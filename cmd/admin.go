// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/LeeDigitalWorks/zapingest/pkg/debug"
	"github.com/LeeDigitalWorks/zapingest/pkg/events"
	"github.com/LeeDigitalWorks/zapingest/pkg/logger"
	"github.com/LeeDigitalWorks/zapingest/pkg/storage"
	"github.com/LeeDigitalWorks/zapingest/pkg/taskqueue"
	"github.com/LeeDigitalWorks/zapingest/pkg/types"
)

var errVideoNotFound = errors.New("video not found")

// videoRecords is the part of the metadata store used by admin operations.
type videoRecords interface {
	Get(id string) (types.Attributes, bool)
	GetAll() map[string]types.Attributes
	Delete(id string) (bool, error)
}

// adminAPI serves the /admin endpoints on the debug mux.
type adminAPI struct {
	queue     taskqueue.Queue
	worker    *taskqueue.Worker
	storage   *storage.Manager
	records   videoRecords
	janitor   *storage.Janitor
	publisher events.Publisher
}

type queueStatus struct {
	Depth         int  `json:"depth"`
	Capacity      int  `json:"capacity"`
	Full          bool `json:"full"`
	ActiveCommits int  `json:"active_commits"`
}

type videoEntry struct {
	ID         string           `json:"id"`
	Attributes types.Attributes `json:"attributes"`
}

func (a *adminAPI) register() {
	debug.RegisterHandlerFunc("GET /admin/queue", a.handleQueue)
	debug.RegisterHandlerFunc("GET /admin/storage", a.handleStorage)
	debug.RegisterHandlerFunc("POST /admin/sweep", a.handleSweep)
	debug.RegisterHandlerFunc("GET /admin/videos", a.handleListVideos)
	debug.RegisterHandlerFunc("GET /admin/videos/{id}", a.handleGetVideo)
	debug.RegisterHandlerFunc("DELETE /admin/videos/{id}", a.handleDeleteVideo)
}

func (a *adminAPI) handleQueue(w http.ResponseWriter, r *http.Request) {
	status := queueStatus{
		Depth:    a.queue.Len(),
		Capacity: a.queue.Cap(),
		Full:     a.queue.IsFull(),
	}
	if a.worker != nil {
		status.ActiveCommits = a.worker.Active()
	}
	debug.WriteJSON(w, http.StatusOK, status)
}

func (a *adminAPI) handleStorage(w http.ResponseWriter, r *http.Request) {
	debug.WriteJSON(w, http.StatusOK, a.storage.Info())
}

func (a *adminAPI) handleSweep(w http.ResponseWriter, r *http.Request) {
	removed := a.janitor.RunOnce()
	logger.Info().Int("removed", removed).Msg("admin: temp sweep")
	debug.WriteJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (a *adminAPI) handleListVideos(w http.ResponseWriter, r *http.Request) {
	debug.WriteJSON(w, http.StatusOK, sortedVideos(a.records.GetAll()))
}

func (a *adminAPI) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, ok := a.records.Get(id)
	if !ok {
		debug.WriteError(w, http.StatusNotFound, errVideoNotFound.Error())
		return
	}
	debug.WriteJSON(w, http.StatusOK, videoEntry{ID: id, Attributes: rec})
}

func (a *adminAPI) handleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := deleteVideo(r.Context(), a.records, a.storage, a.publisher, id)
	switch {
	case errors.Is(err, errVideoNotFound):
		debug.WriteError(w, http.StatusNotFound, err.Error())
	case err != nil:
		debug.WriteError(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// deleteVideo removes the record and then the file it points to, and
// announces the deletion.
func deleteVideo(ctx context.Context, records videoRecords, sm *storage.Manager, pub events.Publisher, id string) error {
	rec, ok := records.Get(id)
	if !ok {
		return errVideoNotFound
	}
	deleted, err := records.Delete(id)
	if err != nil {
		return err
	}
	if !deleted {
		return errVideoNotFound
	}

	if path, ok := rec.GetString(types.AttrFilePath); ok && !sm.DeleteVideo(path) {
		logger.Warn().Str("video_id", id).Str("path", path).Msg("admin: record deleted but file could not be removed")
	}

	if pub != nil {
		ctx, cancel := context.WithTimeout(ctx, events.DefaultTimeout)
		defer cancel()
		if err := pub.Publish(ctx, events.FromRecord(events.TypeVideoDeleted, id, rec)); err != nil {
			logger.Warn().Err(err).Str("video_id", id).Msg("admin: failed to publish deletion")
		}
	}

	logger.Info().Str("video_id", id).Msg("admin: video deleted")
	return nil
}

func sortedVideos(all map[string]types.Attributes) []videoEntry {
	out := make([]videoEntry, 0, len(all))
	for id, rec := range all {
		out = append(out, videoEntry{ID: id, Attributes: rec})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
