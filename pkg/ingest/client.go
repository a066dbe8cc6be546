// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/LeeDigitalWorks/zapingest/pkg/types"
)

// Client is a producer. The zero value dials without timeouts.
type Client struct {
	Addr        string
	DialTimeout time.Duration
	// Timeout bounds each read or write. Zero means no timeout.
	Timeout time.Duration
}

// Upload sends one upload and returns the video id assigned by the server.
// When size is negative no size is declared and the payload ends with a
// half-close. Server rejections are returned as *RejectedError.
func (c *Client) Upload(ctx context.Context, attrs types.Attributes, payload io.Reader, size int64) (string, error) {
	header := attrs.Clone()
	if size >= 0 {
		header.Set(types.AttrSize, types.Int(size))
	}

	d := net.Dialer{Timeout: c.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", c.Addr, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	c.extend(conn)
	if err := WriteHeader(conn, header); err != nil {
		return "", c.ctxErr(ctx, fmt.Errorf("write header: %w", err))
	}

	br := bufio.NewReader(conn)
	ready, err := ReadResponse(br)
	if err != nil {
		return "", c.ctxErr(ctx, err)
	}
	if !ready.OK() {
		return "", &RejectedError{Code: ready.Code, Message: ready.Message}
	}

	if err := c.sendPayload(conn, payload, size); err != nil {
		// The server may have answered before giving up on the payload.
		if resp, rerr := ReadResponse(br); rerr == nil && !resp.OK() {
			return "", &RejectedError{Code: resp.Code, Message: resp.Message}
		}
		return "", c.ctxErr(ctx, err)
	}

	c.extend(conn)
	final, err := ReadResponse(br)
	if err != nil {
		return "", c.ctxErr(ctx, err)
	}
	if !final.OK() {
		return "", &RejectedError{Code: final.Code, Message: final.Message}
	}
	if final.VideoID == "" {
		final.VideoID = ready.VideoID
	}
	return final.VideoID, nil
}

func (c *Client) sendPayload(conn net.Conn, payload io.Reader, size int64) error {
	w := &deadlineWriter{conn: conn, timeout: c.Timeout}
	if size >= 0 {
		n, err := io.Copy(w, io.LimitReader(payload, size))
		if err != nil {
			return fmt.Errorf("send payload: %w", err)
		}
		if n < size {
			return fmt.Errorf("send payload: %w: %d of %d bytes", io.ErrUnexpectedEOF, n, size)
		}
		return nil
	}

	if _, err := io.Copy(w, payload); err != nil {
		return fmt.Errorf("send payload: %w", err)
	}
	hc, ok := conn.(interface{ CloseWrite() error })
	if !ok {
		return errors.New("connection does not support half-close")
	}
	return hc.CloseWrite()
}

// UploadFile uploads the file at path with its size and md5 declared. extra
// attributes are sent as well; filename defaults to the base name of path.
func (c *Client) UploadFile(ctx context.Context, path string, extra types.Attributes) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", err
	}
	if !fi.Mode().IsRegular() {
		return "", fmt.Errorf("%s: not a regular file", path)
	}

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	attrs := extra.Clone()
	if !attrs.Has(types.AttrFilename) {
		attrs.Set(types.AttrFilename, types.String(filepath.Base(path)))
	}
	if !attrs.Has(types.AttrHash) {
		attrs.Set(types.AttrHash, types.String(hex.EncodeToString(h.Sum(nil))))
	}
	return c.Upload(ctx, attrs, f, fi.Size())
}

func (c *Client) extend(conn net.Conn) {
	if c.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.Timeout))
	}
}

func (c *Client) ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (w *deadlineWriter) Write(p []byte) (int, error) {
	if w.timeout > 0 {
		if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
			return 0, err
		}
	}
	return w.conn.Write(p)
}
