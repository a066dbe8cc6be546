// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/LeeDigitalWorks/zapingest/pkg/types"
)

// Wire format
//
//	client -> [uint32 big-endian header length][JSON object of scalar attributes]
//	server -> {"status":"ok","code":"ready",...}\n
//	client -> payload (exactly "size" bytes, or until half-close when size is absent)
//	server -> {"status":"ok","code":"accepted",...}\n
//
// Any rejection is a single {"status":"error",...}\n line followed by close.

// PrefixSize is the length of the header length prefix.
const PrefixSize = 4

// DefaultMaxHeaderSize bounds the header JSON.
const DefaultMaxHeaderSize = 64 << 10

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Response codes
const (
	CodeReady          = "ready"
	CodeAccepted       = "accepted"
	CodeQueueFull      = "queue_full"
	CodeDuplicate      = "duplicate"
	CodeProtocolError  = "protocol_error"
	CodeTransferFailed = "transfer_failed"
)

// Response is a server reply line.
type Response struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	VideoID string `json:"video_id,omitempty"`
}

// OK reports whether the response is not a rejection.
func (r Response) OK() bool {
	return r.Status == StatusOK
}

// WriteHeader writes the length-prefixed header.
func WriteHeader(w io.Writer, attrs types.Attributes) error {
	body, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	if uint64(len(body)) > math.MaxUint32 {
		return errors.New("header too large")
	}

	buf := make([]byte, PrefixSize+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[PrefixSize:], body)
	_, err = w.Write(buf)
	return err
}

// ReadHeader reads a length-prefixed header of at most maxSize bytes. Every
// failure is a *ProtocolError.
func ReadHeader(r io.Reader, maxSize int) (types.Attributes, error) {
	var prefix [PrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, &ProtocolError{Reason: "read length prefix", Err: err}
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n == 0 {
		return nil, &ProtocolError{Reason: "empty header"}
	}
	if maxSize > 0 && uint64(n) > uint64(maxSize) {
		return nil, &ProtocolError{Reason: fmt.Sprintf("header length %d exceeds limit %d", n, maxSize)}
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, &ProtocolError{Reason: "read header", Err: err}
	}
	return decodeHeader(body)
}

func decodeHeader(body []byte) (types.Attributes, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &ProtocolError{Reason: "header is not a JSON object"}
	}

	var attrs types.Attributes
	if err := json.Unmarshal(trimmed, &attrs); err != nil {
		return nil, &ProtocolError{Reason: "decode header", Err: err}
	}
	if attrs == nil {
		attrs = types.Attributes{}
	}
	return attrs, nil
}

// WriteResponse writes resp as a single newline-terminated JSON line.
func WriteResponse(w io.Writer, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// ReadResponse reads one response line.
func ReadResponse(r *bufio.Reader) (Response, error) {
	line, err := r.ReadBytes('\n')
	if err != nil && (len(line) == 0 || !errors.Is(err, io.EOF)) {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(line), &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
