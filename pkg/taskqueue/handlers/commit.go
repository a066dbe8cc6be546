// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/zapingest/pkg/events"
	"github.com/LeeDigitalWorks/zapingest/pkg/logger"
	"github.com/LeeDigitalWorks/zapingest/pkg/taskqueue"
	"github.com/LeeDigitalWorks/zapingest/pkg/types"
)

// Compile-time interface verification
var _ taskqueue.Handler = (*CommitHandler)(nil)

// Relocator moves finished payloads into durable storage.
type Relocator interface {
	Move(src, dst string) error
	DiscardTemp(path string)
	DeleteVideo(path string) bool
}

// RecordStore persists metadata records.
type RecordStore interface {
	Upsert(id string, attrs types.Attributes) error
}

// CommitError reports an upload that could not be committed. Stage is
// "relocate" or "persist".
type CommitError struct {
	VideoID string
	Stage   string
	Err     error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit %s: %s: %v", e.VideoID, e.Stage, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

const (
	StageRelocate = "relocate"
	StagePersist  = "persist"
)

// CommitHandler moves an upload to its final path and records its metadata.
// After it returns, either both the file and the record exist or neither
// does.
type CommitHandler struct {
	storage        Relocator
	records        RecordStore
	publisher      events.Publisher
	publishTimeout time.Duration
	now            func() time.Time
}

// CommitConfig configures the commit handler.
type CommitConfig struct {
	Storage   Relocator
	Records   RecordStore
	Publisher events.Publisher // nil means no events
	// PublishTimeout bounds event delivery after a commit (default 2s).
	PublishTimeout time.Duration
}

// NewCommitHandler creates a new commit handler.
func NewCommitHandler(cfg CommitConfig) *CommitHandler {
	if cfg.Publisher == nil {
		cfg.Publisher = events.NoopPublisher{}
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = events.DefaultTimeout
	}
	return &CommitHandler{
		storage:        cfg.Storage,
		records:        cfg.Records,
		publisher:      cfg.Publisher,
		publishTimeout: cfg.PublishTimeout,
		now:            time.Now,
	}
}

// Handle commits u. It never retries.
func (h *CommitHandler) Handle(ctx context.Context, u *types.Upload) error {
	if err := h.storage.Move(u.TempPath, u.FinalPath); err != nil {
		h.storage.DiscardTemp(u.TempPath)
		logger.Error().
			Err(err).
			Str("video_id", u.ID).
			Str("temp_path", u.TempPath).
			Str("final_path", u.FinalPath).
			Msg("commit: relocation failed, temp file discarded")
		return &CommitError{VideoID: u.ID, Stage: StageRelocate, Err: err}
	}

	rec := u.Attributes.Clone()
	rec.Merge(types.Attributes{
		types.AttrStatus:             types.String(types.StatusProcessed),
		types.AttrProcessedTimestamp: types.Int(h.now().Unix()),
		types.AttrVideoID:            types.String(u.ID),
		types.AttrFilePath:           types.String(u.FinalPath),
	})

	if err := h.records.Upsert(u.ID, rec); err != nil {
		// No record means no file.
		removed := h.storage.DeleteVideo(u.FinalPath)
		logger.Error().
			Err(err).
			Str("video_id", u.ID).
			Str("final_path", u.FinalPath).
			Bool("file_removed", removed).
			Msg("commit: metadata write failed")
		return &CommitError{VideoID: u.ID, Stage: StagePersist, Err: err}
	}

	logger.Info().
		Str("video_id", u.ID).
		Str("filename", u.Filename()).
		Str("file_path", u.FinalPath).
		Msg("commit: video stored")

	h.publish(ctx, events.FromRecord(events.TypeVideoCommitted, u.ID, rec))
	return nil
}

func (h *CommitHandler) publish(ctx context.Context, ev events.Event) {
	ctx, cancel := context.WithTimeout(ctx, h.publishTimeout)
	defer cancel()

	if err := h.publisher.Publish(ctx, ev); err != nil {
		logger.Warn().
			Err(err).
			Bool("timeout", errors.Is(err, context.DeadlineExceeded)).
			Str("video_id", ev.VideoID).
			Str("publisher", h.publisher.Name()).
			Msg("commit: event delivery failed")
	}
}
