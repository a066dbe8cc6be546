// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/LeeDigitalWorks/zapingest/pkg/debug"
	"github.com/LeeDigitalWorks/zapingest/pkg/events"
	"github.com/LeeDigitalWorks/zapingest/pkg/ingest"
	"github.com/LeeDigitalWorks/zapingest/pkg/logger"
	"github.com/LeeDigitalWorks/zapingest/pkg/metadata"
	"github.com/LeeDigitalWorks/zapingest/pkg/storage"
	"github.com/LeeDigitalWorks/zapingest/pkg/taskqueue"
	"github.com/LeeDigitalWorks/zapingest/pkg/taskqueue/handlers"
	"github.com/LeeDigitalWorks/zapingest/pkg/utils"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type ServerOpts struct {
	DebugAddr string

	Workers         int
	QueueCapacity   int
	ShutdownTimeout time.Duration

	StoragePath  string
	TempDir      string
	MetadataFile string
	MinFreeSpace *storage.FreeSpace

	SweepInterval    time.Duration
	SweepGracePeriod time.Duration

	Ingest ingest.Config
	Events events.Config
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the ingestion server",
	Long: `Start a ZapIngest server that:
- accepts producer uploads on the ingest socket
- rejects uploads when the commit queue is full
- commits accepted files and their metadata with a pool of workers
- serves metrics, health and admin endpoints on the debug address`,
	Run: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	def := ingest.DefaultConfig()

	f := serverCmd.Flags()
	f.IntP("workers", "c", 4, "Number of commit workers")
	f.IntP("queue_capacity", "q", 100, "Maximum number of uploads waiting to be committed")
	f.StringP("storage_path", "p", "./uploads", "Directory where committed videos are stored")
	f.String("bind_addr", def.Addr, "Ingest socket address")
	f.String("debug_addr", "127.0.0.1:9010", "Debug HTTP address for metrics, health and admin endpoints")
	f.String("metadata_file", "", "Metadata JSON file (default <storage_path>/metadata.json)")
	f.String("temp_dir", "", "Directory for in-progress uploads (default <storage_path>/.incoming)")
	f.Duration("shutdown_timeout", 5*time.Second, "Grace period for in-flight uploads and commits at shutdown")

	f.Duration("header_timeout", def.HeaderTimeout, "Deadline for reading the upload header")
	f.Duration("read_timeout", def.ReadTimeout, "Idle timeout while streaming a sized payload")
	f.Duration("stream_idle_timeout", def.StreamIdleTimeout, "Silence that ends a payload sent without a size")
	f.String("max_header_size", humanize.IBytes(uint64(def.MaxHeaderSize)), "Maximum header size")
	f.String("max_upload_size", "0", "Maximum payload size, 0 for no limit (e.g. 4GiB)")
	f.Int("max_connections", 0, "Maximum concurrent producer connections, 0 for no limit")
	f.Float64("accept_rate", 0, "Maximum new connections per second, 0 for no limit")
	f.Int("accept_burst", def.AcceptBurst, "Burst size for accept_rate")
	f.Bool("verify_hash", def.VerifyHash, "Verify a declared md5 hash against the payload")

	f.Duration("sweep_interval", storage.DefaultSweepInterval, "Interval between orphaned temp file sweeps")
	f.Duration("sweep_grace_period", storage.DefaultGracePeriod, "Minimum age of a temp file before it is swept")
	f.String("min_free_space", "5", "Free space below which storage is reported low (percent or size, e.g. 10GiB)")

	viper.BindPFlags(f)
}

func runServer(cmd *cobra.Command, args []string) {
	utils.LoadConfiguration("zapingest", false)
	opts, err := loadServerOpts(cmd)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	debug.SetNotReady()

	sm, err := storage.NewManager(storage.Config{
		Root:         opts.StoragePath,
		TempDir:      opts.TempDir,
		MinFreeSpace: opts.MinFreeSpace,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	store, err := metadata.Open(opts.MetadataFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open metadata store")
	}
	logger.Info().Str("path", store.Path()).Int("records", store.Len()).Msg("metadata store loaded")

	publisher, err := events.New(opts.Events)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize event publishers")
	}

	queue, err := taskqueue.NewBoundedQueue(opts.QueueCapacity)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create upload queue")
	}

	worker := taskqueue.NewWorker(taskqueue.WorkerConfig{
		ID:    "commit",
		Queue: queue,
		Handler: handlers.NewCommitHandler(handlers.CommitConfig{
			Storage:        sm,
			Records:        store,
			Publisher:      publisher,
			PublishTimeout: opts.Events.Timeout,
		}),
		Concurrency: opts.Workers,
		StopTimeout: opts.ShutdownTimeout,
	})

	janitor := storage.NewJanitor(storage.JanitorConfig{
		Manager:     sm,
		Interval:    opts.SweepInterval,
		GracePeriod: opts.SweepGracePeriod,
	})

	srv := ingest.NewServer(opts.Ingest, queue, store, sm)
	if err := srv.Listen(); err != nil {
		logger.Fatal().Err(err).Str("addr", opts.Ingest.Addr).Msg("failed to bind ingest socket")
	}

	admin := &adminAPI{
		queue:     queue,
		worker:    worker,
		storage:   sm,
		records:   store,
		janitor:   janitor,
		publisher: publisher,
	}
	admin.register()
	debug.AddReadyCheck("storage", func() bool { return !sm.IsLow() })
	debugServer := startHTTPServer(debug.GetMux(), opts.DebugAddr)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	worker.Start(ctx)
	janitor.Start()
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ctx)
	}()

	logger.Info().
		Str("ingest_addr", srv.Addr().String()).
		Str("storage_path", sm.Root()).
		Int("workers", opts.Workers).
		Int("queue_capacity", opts.QueueCapacity).
		Str("publisher", publisher.Name()).
		Msg("zapingest server started")

	debug.SetReady()
	select {
	case sig := <-shutdownSignal():
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("ingest server stopped unexpectedly")
		}
	}
	debug.SetNotReady()

	cancel()
	if err := srv.Shutdown(opts.ShutdownTimeout); err != nil {
		logger.Warn().Err(err).Msg("ingest handlers abandoned, temp files will be swept")
	}
	if err := worker.Stop(); err != nil {
		logger.Warn().Err(err).Msg("commit workers did not stop in time")
	}

	queue.Close()
	abandoned := queue.Drain()
	for _, u := range abandoned {
		sm.DiscardTemp(u.TempPath)
	}
	if len(abandoned) > 0 {
		logger.Warn().Int("uploads", len(abandoned)).Msg("discarded queued uploads that were never committed")
	}

	janitor.Stop()
	if err := store.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to release metadata store")
	}
	if err := publisher.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close event publishers")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	debugServer.Shutdown(shutdownCtx)

	logger.Info().Msg("zapingest server stopped")
}

func loadServerOpts(cmd *cobra.Command) (ServerOpts, error) {
	f := NewFlagLoader(cmd)

	storagePath := utils.ResolvePath(f.String("storage_path"))
	metadataFile := f.String("metadata_file")
	if metadataFile == "" {
		metadataFile = filepath.Join(storagePath, "metadata.json")
	}
	tempDir := f.String("temp_dir")
	if tempDir != "" {
		tempDir = utils.ResolvePath(tempDir)
	}

	minFree, err := storage.ParseMinFreeSpace(f.String("min_free_space"))
	if err != nil {
		return ServerOpts{}, fmt.Errorf("--min_free_space: %w", err)
	}

	maxHeader, err := f.Bytes("max_header_size")
	if err != nil {
		return ServerOpts{}, err
	}
	if maxHeader > math.MaxUint32 {
		return ServerOpts{}, fmt.Errorf("--max_header_size: %s exceeds the 4 byte length prefix", humanize.IBytes(maxHeader))
	}
	maxUpload, err := f.Bytes("max_upload_size")
	if err != nil {
		return ServerOpts{}, err
	}
	if maxUpload > math.MaxInt64 {
		return ServerOpts{}, fmt.Errorf("--max_upload_size: %s is too large", humanize.IBytes(maxUpload))
	}

	opts := ServerOpts{
		DebugAddr:        f.String("debug_addr"),
		Workers:          f.Int("workers"),
		QueueCapacity:    f.Int("queue_capacity"),
		ShutdownTimeout:  f.Duration("shutdown_timeout"),
		StoragePath:      storagePath,
		TempDir:          tempDir,
		MetadataFile:     utils.ResolvePath(metadataFile),
		MinFreeSpace:     minFree,
		SweepInterval:    f.Duration("sweep_interval"),
		SweepGracePeriod: f.Duration("sweep_grace_period"),
		Ingest: ingest.Config{
			Addr:              f.String("bind_addr"),
			HeaderTimeout:     f.Duration("header_timeout"),
			ReadTimeout:       f.Duration("read_timeout"),
			StreamIdleTimeout: f.Duration("stream_idle_timeout"),
			MaxHeaderSize:     int(maxHeader),
			MaxUploadSize:     int64(maxUpload),
			MaxConnections:    f.Int("max_connections"),
			AcceptRate:        f.Float64("accept_rate"),
			AcceptBurst:       f.Int("accept_burst"),
			VerifyHash:        f.Bool("verify_hash"),
		},
		Events: events.DefaultConfig(),
	}

	if opts.Workers <= 0 {
		return opts, fmt.Errorf("--workers must be positive, got %d", opts.Workers)
	}
	if opts.QueueCapacity <= 0 {
		return opts, fmt.Errorf("--queue_capacity must be positive, got %d", opts.QueueCapacity)
	}
	if opts.ShutdownTimeout <= 0 {
		return opts, fmt.Errorf("--shutdown_timeout must be positive, got %s", opts.ShutdownTimeout)
	}

	if viper.IsSet("events") {
		if err := viper.UnmarshalKey("events", &opts.Events); err != nil {
			return opts, fmt.Errorf("events config: %w", err)
		}
	}
	return opts, nil
}
