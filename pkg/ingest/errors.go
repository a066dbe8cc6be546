// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"errors"
	"fmt"
)

var (
	ErrShutdownTimeout = errors.New("ingest: handlers still running at shutdown timeout")
	ErrServerClosed    = errors.New("ingest: server closed")
)

// ProtocolError is a malformed or out-of-contract request. Nothing is written
// to storage.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// AdmissionError is a well-formed upload rejected under load or as a
// duplicate. Code is the response code sent to the producer.
type AdmissionError struct {
	Code string
}

func (e *AdmissionError) Error() string {
	return "upload rejected: " + e.Code
}

// TransferError is a payload that did not arrive intact. The temp file has
// been discarded.
type TransferError struct {
	Expected int64 // -1 when the producer did not declare a size
	Received int64
	Err      error
}

func (e *TransferError) Error() string {
	if e.Expected >= 0 {
		return fmt.Sprintf("transfer failed after %d of %d bytes: %v", e.Received, e.Expected, e.Err)
	}
	return fmt.Sprintf("transfer failed after %d bytes: %v", e.Received, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

var (
	errShortPayload = errors.New("payload shorter than declared size")
	errEmptyPayload = errors.New("empty payload")
	errHashMismatch = errors.New("payload md5 does not match declared hash")
	errTooLarge     = errors.New("payload exceeds maximum upload size")
)

// RejectedError is returned by Client when the server answers with an error
// response.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("upload rejected (%s): %s", e.Code, e.Message)
}
