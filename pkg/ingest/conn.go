// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"crypto/md5"
	"errors"
	"hash"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/zapingest/pkg/utils"

	"github.com/minio/sha256-simd"
)

// idleConn wraps a net.Conn and pushes the read deadline forward before
// every Read. A transfer fails only when the producer stalls for longer than
// the timeout.
type idleConn struct {
	net.Conn
	timeout time.Duration
}

func (c *idleConn) Read(b []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

const copyBufferSize = 64 << 10

var (
	md5Pool = sync.Pool{
		New: func() any {
			return md5.New()
		},
	}
	sha256Pool = sync.Pool{
		New: func() any {
			return sha256.New()
		},
	}
)

// payloadSink receives streamed payload bytes: the temp file, both digests
// and the content sniffing prefix.
type payloadSink struct {
	file   io.Writer
	md5    hash.Hash
	sha256 hash.Hash
	sniff  []byte
	limit  int
}

func newPayloadSink(file io.Writer, sniffLimit int) *payloadSink {
	return &payloadSink{
		file:   file,
		md5:    md5Pool.Get().(hash.Hash),
		sha256: sha256Pool.Get().(hash.Hash),
		sniff:  utils.GetBufferCap(sniffLimit),
		limit:  sniffLimit,
	}
}

func (s *payloadSink) Write(p []byte) (int, error) {
	n, err := s.file.Write(p)
	if n > 0 {
		s.md5.Write(p[:n])
		s.sha256.Write(p[:n])
		if room := s.limit - len(s.sniff); room > 0 {
			s.sniff = append(s.sniff, p[:min(room, n)]...)
		}
	}
	return n, err
}

// release returns the hashers and the sniff buffer to their pools. The sink
// must not be used afterwards.
func (s *payloadSink) release() {
	utils.PutBuffer(s.sniff)
	s.sniff = nil
	s.md5.Reset()
	md5Pool.Put(s.md5)
	s.sha256.Reset()
	sha256Pool.Put(s.sha256)
	s.md5, s.sha256 = nil, nil
}

// copyPayload streams src into dst through a pooled buffer.
func copyPayload(dst io.Writer, src io.Reader) (int64, error) {
	buf := utils.GetBuffer(copyBufferSize)
	defer utils.PutBuffer(buf)
	return io.CopyBuffer(dst, src, buf)
}

const (
	lingerTimeout = 500 * time.Millisecond
	lingerLimit   = 1 << 20
)

// lingerClose half-closes c and discards input until the peer closes or
// lingerTimeout passes. Closing a socket with unread input sends a reset,
// and the peer may then lose the response it has not read yet.
func lingerClose(c net.Conn) {
	if cw, ok := c.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
	_ = c.SetReadDeadline(time.Now().Add(lingerTimeout))
	_, _ = io.Copy(io.Discard, io.LimitReader(c, lingerLimit))
	c.Close()
}
