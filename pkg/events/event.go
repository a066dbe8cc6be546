// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"github.com/LeeDigitalWorks/zapingest/pkg/types"
)

// Event types
const (
	TypeVideoCommitted = "video.committed"
	TypeVideoDeleted   = "video.deleted"
)

// Event describes a change to the set of stored videos.
type Event struct {
	Type        string           `json:"type"`
	VideoID     string           `json:"video_id"`
	FilePath    string           `json:"file_path,omitempty"`
	Filename    string           `json:"filename,omitempty"`
	Hash        string           `json:"hash,omitempty"`
	Size        int64            `json:"size,omitempty"`
	ProcessedAt int64            `json:"processed_at,omitempty"`
	Attributes  types.Attributes `json:"attributes,omitempty"`
}

// FromRecord builds an event of the given type from a metadata record.
func FromRecord(eventType, id string, rec types.Attributes) Event {
	ev := Event{
		Type:       eventType,
		VideoID:    id,
		Attributes: rec.Clone(),
	}
	ev.FilePath, _ = rec.GetString(types.AttrFilePath)
	ev.Filename, _ = rec.GetString(types.AttrFilename)
	if h, ok := rec[types.AttrHash]; ok {
		ev.Hash = h.String()
	}
	if n, ok := rec.GetInt(types.AttrReceivedBytes); ok {
		ev.Size = n
	} else if n, ok := rec.GetInt(types.AttrSize); ok {
		ev.Size = n
	}
	ev.ProcessedAt, _ = rec.GetInt(types.AttrProcessedTimestamp)
	return ev
}
