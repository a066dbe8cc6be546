// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/zapingest/pkg/logger"
	"github.com/LeeDigitalWorks/zapingest/pkg/storage"
	"github.com/LeeDigitalWorks/zapingest/pkg/types"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

// Connection states, used as the "state" log field.
const (
	stateReadHeader     = "read_header"
	stateReadMetadata   = "read_metadata"
	stateAdmissionCheck = "admission_check"
	stateStreamPayload  = "stream_payload"
	stateEnqueue        = "enqueue"
	stateRespond        = "respond"
	stateClosed         = "closed"
)

// sniffLimit matches the default read limit of mimetype.
const sniffLimit = 3072

const (
	msgReady     = "Ready to receive video"
	msgAccepted  = "Upload complete"
	msgQueueFull = "Server busy, try again later"
	msgDuplicate = "Video already uploaded"
)

// session is the state of one producer connection.
type session struct {
	srv    *Server
	conn   net.Conn
	client string
	state  string
	log    zerolog.Logger

	tempPath string
}

// handle runs one connection from header to final response. The handler
// never writes metadata; it only owns its temp file until the upload is
// enqueued.
func (s *Server) handle(c net.Conn) {
	start := time.Now()
	client := c.RemoteAddr().String()
	sess := &session{
		srv:    s,
		conn:   c,
		client: client,
		state:  stateReadHeader,
		log:    logger.With().Str("client", client).Logger(),
	}

	outcome := sess.run()
	sess.state = stateClosed
	sess.log.Debug().Str("state", sess.state).Str("outcome", outcome).Dur("elapsed", time.Since(start)).Msg("ingest: connection closed")

	UploadsTotal.WithLabelValues(outcome).Inc()
	UploadDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func (h *session) run() string {
	cfg := h.srv.cfg

	_ = h.conn.SetReadDeadline(time.Now().Add(cfg.HeaderTimeout))
	attrs, err := ReadHeader(h.conn, cfg.MaxHeaderSize)
	if err != nil {
		return h.reject(CodeProtocolError, err)
	}

	h.state = stateReadMetadata
	req, err := h.parseHeader(attrs)
	if err != nil {
		return h.reject(CodeProtocolError, err)
	}

	h.state = stateAdmissionCheck
	if h.srv.queue.IsFull() {
		return h.reject(CodeQueueFull, &AdmissionError{Code: CodeQueueFull})
	}
	if req.hash != "" && h.srv.catalog.IsDuplicate(req.hash) {
		return h.reject(CodeDuplicate, &AdmissionError{Code: CodeDuplicate})
	}

	id := h.srv.catalog.GenerateID()
	h.log = h.log.With().Str("video_id", id).Str("filename", req.filename).Logger()

	f, err := h.srv.storage.CreateTemp(id)
	if err != nil {
		return h.reject(CodeTransferFailed, &TransferError{Expected: req.size, Err: fmt.Errorf("create temp file: %w", err)})
	}
	h.tempPath = f.Name()

	if err := h.respond(Response{Status: StatusOK, Code: CodeReady, Message: msgReady, VideoID: id}); err != nil {
		f.Close()
		return h.fail(CodeTransferFailed, &TransferError{Expected: req.size, Err: fmt.Errorf("send ready: %w", err)})
	}

	h.state = stateStreamPayload
	_ = h.conn.SetReadDeadline(time.Time{})
	result, err := h.stream(f, req.size)
	if err != nil {
		return h.fail(CodeTransferFailed, err)
	}

	md5Hex := hex.EncodeToString(result.md5)
	switch {
	case req.hash == "":
		attrs.Set(types.AttrHash, types.String(md5Hex))
		if h.srv.catalog.IsDuplicate(md5Hex) {
			return h.fail(CodeDuplicate, &AdmissionError{Code: CodeDuplicate})
		}
	case cfg.VerifyHash && isMD5Hex(req.hash) && req.hash != md5Hex:
		return h.fail(CodeTransferFailed, &TransferError{Expected: req.size, Received: result.n, Err: errHashMismatch})
	}

	receivedAt := time.Now()
	attrs.Set(types.AttrClientAddress, types.String(h.client))
	attrs.Set(types.AttrReceivedAt, types.Int(receivedAt.Unix()))
	attrs.Set(types.AttrReceivedBytes, types.Int(result.n))
	attrs.Set(types.AttrMD5, types.String(md5Hex))
	attrs.Set(types.AttrSHA256, types.String(hex.EncodeToString(result.sha256)))
	attrs.Set(types.AttrContentType, types.String(result.contentType))

	h.state = stateEnqueue
	upload := &types.Upload{
		ID:         id,
		TempPath:   h.tempPath,
		FinalPath:  h.srv.storage.VideoPath(id, storage.ExtensionOf(req.filename)),
		Attributes: attrs,
		ReceivedAt: receivedAt,
		ClientAddr: h.client,
	}
	if !h.srv.queue.TryEnqueue(upload) {
		return h.fail(CodeQueueFull, &AdmissionError{Code: CodeQueueFull})
	}
	h.tempPath = ""

	h.state = stateRespond
	if err := h.respond(Response{Status: StatusOK, Code: CodeAccepted, Message: msgAccepted, VideoID: id}); err != nil {
		// The upload is already queued and will be committed.
		h.log.Debug().Err(err).Msg("ingest: failed to send accepted response")
	}
	h.log.Info().
		Int64("bytes", result.n).
		Str("content_type", result.contentType).
		Msg("ingest: upload accepted")
	return CodeAccepted
}

type uploadRequest struct {
	filename string
	size     int64 // -1 when absent
	hash     string
}

func (h *session) parseHeader(attrs types.Attributes) (uploadRequest, error) {
	req := uploadRequest{size: -1}

	filename, ok := attrs.GetString(types.AttrFilename)
	if !ok || filename == "" {
		return req, &ProtocolError{Reason: "missing filename"}
	}
	req.filename = filename

	if attrs.Has(types.AttrSize) {
		size, ok := attrs.GetInt(types.AttrSize)
		if !ok || size < 0 {
			return req, &ProtocolError{Reason: fmt.Sprintf("invalid size %q", attrs[types.AttrSize].String())}
		}
		if limit := h.srv.cfg.MaxUploadSize; limit > 0 && size > limit {
			return req, &ProtocolError{Reason: fmt.Sprintf("size %d exceeds maximum upload size %d", size, limit), Err: errTooLarge}
		}
		req.size = size
	}

	if attrs.Has(types.AttrHash) {
		hash, ok := attrs.GetString(types.AttrHash)
		if !ok {
			return req, &ProtocolError{Reason: "hash must be a string"}
		}
		if isMD5Hex(hash) {
			hash = strings.ToLower(hash)
			attrs.Set(types.AttrHash, types.String(hash))
		}
		req.hash = hash
	}
	return req, nil
}

type streamResult struct {
	n           int64
	md5         []byte
	sha256      []byte
	contentType string
}

// stream copies the payload into f and closes it. With a declared size the
// read is exact and a short read fails. Without one the payload ends at
// half-close or after StreamIdleTimeout without data.
func (h *session) stream(f *os.File, size int64) (streamResult, error) {
	cfg := h.srv.cfg
	sizeKnown := size >= 0

	src := &idleConn{Conn: h.conn, timeout: cfg.ReadTimeout}
	if !sizeKnown {
		src.timeout = cfg.StreamIdleTimeout
	}

	var r io.Reader = src
	switch {
	case sizeKnown:
		r = io.LimitReader(src, size)
	case cfg.MaxUploadSize > 0:
		r = io.LimitReader(src, cfg.MaxUploadSize+1)
	}

	sink := newPayloadSink(f, sniffLimit)
	defer sink.release()

	n, copyErr := copyPayload(sink, r)
	UploadBytesTotal.Add(float64(n))

	syncErr := storage.Fdatasync(f)
	closeErr := f.Close()

	fail := func(err error) (streamResult, error) {
		return streamResult{n: n}, &TransferError{Expected: size, Received: n, Err: err}
	}

	if sizeKnown {
		if copyErr != nil {
			return fail(copyErr)
		}
		if n < size {
			return fail(errShortPayload)
		}
	} else {
		if copyErr != nil && !(isTimeout(copyErr) && n > 0) {
			return fail(copyErr)
		}
		if n == 0 {
			return fail(errEmptyPayload)
		}
		if cfg.MaxUploadSize > 0 && n > cfg.MaxUploadSize {
			return fail(errTooLarge)
		}
	}
	if err := errors.Join(syncErr, closeErr); err != nil {
		return fail(err)
	}

	return streamResult{
		n:           n,
		md5:         sink.md5.Sum(nil),
		sha256:      sink.sha256.Sum(nil),
		contentType: mimetype.Detect(sink.sniff).String(),
	}, nil
}

// respond writes one response line under the read timeout.
func (h *session) respond(resp Response) error {
	_ = h.conn.SetWriteDeadline(time.Now().Add(h.srv.cfg.ReadTimeout))
	return WriteResponse(h.conn, resp)
}

// fail discards the temp file and rejects the upload.
func (h *session) fail(code string, err error) string {
	if h.tempPath != "" {
		h.srv.storage.DiscardTemp(h.tempPath)
		h.tempPath = ""
	}
	return h.reject(code, err)
}

// reject sends an error response and logs the terminal state. The response
// is best effort: the producer may already be gone.
func (h *session) reject(code string, err error) string {
	message := err.Error()
	switch code {
	case CodeQueueFull:
		message = msgQueueFull
	case CodeDuplicate:
		message = msgDuplicate
	}
	if werr := h.respond(Response{Status: StatusError, Code: code, Message: message}); werr != nil {
		h.log.Debug().Err(werr).Msg("ingest: failed to send error response")
	}

	var ev *zerolog.Event
	var admission *AdmissionError
	if errors.As(err, &admission) {
		ev = h.log.Info()
	} else {
		ev = h.log.Warn()
	}
	ev.Err(err).Str("state", h.state).Str("code", code).Msg("ingest: upload rejected")

	if h.state == stateStreamPayload {
		lingerClose(h.conn)
	}
	return code
}

func isMD5Hex(s string) bool {
	if len(s) != 32 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
