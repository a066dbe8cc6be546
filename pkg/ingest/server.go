// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/zapingest/pkg/logger"
	"github.com/LeeDigitalWorks/zapingest/pkg/types"

	"golang.org/x/time/rate"
)

// Admission is the producer side of the upload queue.
type Admission interface {
	TryEnqueue(u *types.Upload) bool
	IsFull() bool
}

// Catalog answers duplicate checks and allocates ids. Handlers never write
// metadata.
type Catalog interface {
	// IsDuplicate only sees committed records. An upload that is still
	// streaming or waiting in the queue does not count, so two uploads of the
	// same bytes arriving before the first commit are both accepted.
	IsDuplicate(hash string) bool
	GenerateID() string
}

// TempStore owns temp and final paths.
type TempStore interface {
	CreateTemp(id string) (*os.File, error)
	TempPath(id string) string
	VideoPath(id, ext string) string
	DiscardTemp(path string)
}

// Config configures the ingestion server.
type Config struct {
	Addr string

	// HeaderTimeout bounds reading the length prefix and header.
	HeaderTimeout time.Duration
	// ReadTimeout is the idle timeout for payload reads and response writes
	// once a size has been declared.
	ReadTimeout time.Duration
	// StreamIdleTimeout ends a payload without a declared size when the
	// producer sends nothing for this long.
	StreamIdleTimeout time.Duration

	MaxHeaderSize int
	// MaxUploadSize rejects larger payloads. Zero means no limit.
	MaxUploadSize int64
	// MaxConnections caps concurrently handled connections. Zero means no
	// limit.
	MaxConnections int
	// AcceptRate limits new connections per second. Zero means no limit.
	AcceptRate  float64
	AcceptBurst int

	// VerifyHash checks a declared 32 hex digit hash against the payload md5.
	VerifyHash bool
}

// DefaultConfig returns the default server settings.
func DefaultConfig() Config {
	return Config{
		Addr:              "0.0.0.0:9000",
		HeaderTimeout:     10 * time.Second,
		ReadTimeout:       30 * time.Second,
		StreamIdleTimeout: 2 * time.Second,
		MaxHeaderSize:     DefaultMaxHeaderSize,
		AcceptBurst:       16,
		VerifyHash:        true,
	}
}

// Server accepts producer connections and runs one handler goroutine per
// connection.
type Server struct {
	cfg     Config
	queue   Admission
	catalog Catalog
	storage TempStore

	limiter *rate.Limiter
	slots   chan struct{}

	mu       sync.Mutex
	ln       net.Listener
	conns    map[net.Conn]struct{}
	shutdown bool

	wg sync.WaitGroup
}

// NewServer creates a server. Call Listen (optional) and Serve to run it.
func NewServer(cfg Config, queue Admission, catalog Catalog, storage TempStore) *Server {
	def := DefaultConfig()
	if cfg.HeaderTimeout <= 0 {
		cfg.HeaderTimeout = def.HeaderTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.StreamIdleTimeout <= 0 {
		cfg.StreamIdleTimeout = def.StreamIdleTimeout
	}
	if cfg.MaxHeaderSize <= 0 {
		cfg.MaxHeaderSize = def.MaxHeaderSize
	}

	s := &Server{
		cfg:     cfg,
		queue:   queue,
		catalog: catalog,
		storage: storage,
		conns:   make(map[net.Conn]struct{}),
	}
	if cfg.AcceptRate > 0 {
		burst := cfg.AcceptBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.AcceptRate), burst)
	}
	if cfg.MaxConnections > 0 {
		s.slots = make(chan struct{}, cfg.MaxConnections)
	}
	return s
}

// Listen binds the configured address. Use ":0" or "127.0.0.1:0" for an
// ephemeral port and read it back with Addr.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return ErrServerClosed
	}
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve runs the accept loop until ctx is cancelled or Shutdown is called.
// Cancelling ctx closes the listener; in-flight handlers keep running until
// Shutdown.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	logger.Info().Str("addr", ln.Addr().String()).Msg("ingest: listening")

	var backoff time.Duration
	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || s.isShutdown() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = min(max(backoff*2, 5*time.Millisecond), time.Second)
				logger.Warn().Err(err).Dur("retry_in", backoff).Msg("ingest: accept error")
				time.Sleep(backoff)
				continue
			}
			return err
		}
		backoff = 0
		ConnectionsTotal.Inc()

		if !s.track(c) {
			c.Close()
			return nil
		}

		if s.slots != nil {
			select {
			case s.slots <- struct{}{}:
			default:
				go s.refuse(c)
				continue
			}
		}

		go s.serveConn(c)
	}
}

func (s *Server) serveConn(c net.Conn) {
	defer s.wg.Done()
	defer s.untrack(c)
	if s.slots != nil {
		defer func() { <-s.slots }()
	}

	ConnectionsActive.Inc()
	defer ConnectionsActive.Dec()

	s.handle(c)
}

// refuse answers a connection over the MaxConnections limit.
func (s *Server) refuse(c net.Conn) {
	defer s.wg.Done()
	defer s.untrack(c)

	_ = c.SetWriteDeadline(time.Now().Add(time.Second))
	_ = WriteResponse(c, Response{Status: StatusError, Code: CodeQueueFull, Message: "Server busy, too many connections"})
	UploadsTotal.WithLabelValues(CodeQueueFull).Inc()
	logger.Debug().Str("client", c.RemoteAddr().String()).Msg("ingest: connection limit reached")
	lingerClose(c)
}

// track registers c and counts its handler in s.wg. Both happen under s.mu so
// Shutdown never waits on a group that can still grow.
func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c net.Conn) {
	c.Close()
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// Shutdown stops accepting connections and waits up to grace for in-flight
// handlers. Handlers still running after grace have their connections closed,
// which makes them discard their temp files, and ErrShutdownTimeout is
// returned.
func (s *Server) Shutdown(grace time.Duration) error {
	s.mu.Lock()
	s.shutdown = true
	if s.ln != nil {
		s.ln.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		logger.Info().Msg("ingest: all handlers finished")
		return nil
	case <-timer.C:
	}

	s.mu.Lock()
	abandoned := len(s.conns)
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	logger.Warn().
		Int("connections", abandoned).
		Dur("grace", grace).
		Msg("ingest: handlers still running at shutdown, connections closed")
	return ErrShutdownTimeout
}
