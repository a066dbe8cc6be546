// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "time"

// Upload describes a fully received payload waiting to be committed. It is
// created by the ingestion handler, owned by the queue while pending and by a
// single worker once dequeued.
type Upload struct {
	ID         string
	TempPath   string
	FinalPath  string
	Attributes Attributes
	ReceivedAt time.Time
	ClientAddr string
}

// Filename returns the producer supplied filename, if any.
func (u *Upload) Filename() string {
	s, _ := u.Attributes.GetString(AttrFilename)
	return s
}

// Hash returns the hash attribute rendered as text.
func (u *Upload) Hash() string {
	v, ok := u.Attributes[AttrHash]
	if !ok {
		return ""
	}
	return v.String()
}
