// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

// Well-known attribute keys. Producers may send any other scalar key and it is
// stored verbatim.
const (
	AttrFilename           = "filename"
	AttrSize               = "size"
	AttrHash               = "hash"
	AttrTimestamp          = "timestamp"
	AttrClientAddress      = "client_address"
	AttrReceivedAt         = "received_at"
	AttrReceivedBytes      = "received_bytes"
	AttrMD5                = "md5"
	AttrSHA256             = "sha256"
	AttrContentType        = "content_type"
	AttrStatus             = "status"
	AttrProcessedTimestamp = "processed_timestamp"
	AttrVideoID            = "video_id"
	AttrFilePath           = "file_path"
)

// StatusProcessed is written to the status attribute by a successful commit.
const StatusProcessed = "processed"

// Attributes is the flat scalar map attached to an upload and persisted as its
// metadata record.
type Attributes map[string]Value

// Clone returns a shallow copy. Values are immutable so this is a full copy.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return Attributes{}
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Merge copies every entry of other into a, overwriting existing keys.
func (a Attributes) Merge(other Attributes) {
	for k, v := range other {
		a[k] = v
	}
}

func (a Attributes) Set(key string, v Value) {
	a[key] = v
}

// Has reports whether key is present.
func (a Attributes) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// GetString returns the value under key if it holds a string.
func (a Attributes) GetString(key string) (string, bool) {
	v, ok := a[key]
	if !ok {
		return "", false
	}
	return v.Str()
}

// GetInt returns the value under key if it holds an integer (or an integral
// float).
func (a Attributes) GetInt(key string) (int64, bool) {
	v, ok := a[key]
	if !ok {
		return 0, false
	}
	return v.Int64()
}

// Equal reports whether both maps hold the same keys with equal values.
func (a Attributes) Equal(b Attributes) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		o, ok := b[k]
		if !ok || !v.Equal(o) {
			return false
		}
	}
	return true
}
