// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/LeeDigitalWorks/zapingest/pkg/ingest"
	"github.com/LeeDigitalWorks/zapingest/pkg/logger"
	"github.com/LeeDigitalWorks/zapingest/pkg/types"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload files to an ingestion server",
	Long: `Upload one or more files to a running zapingest server. Each file is sent
with its size and md5 declared. Extra attributes can be attached with --attr.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	f := uploadCmd.Flags()
	f.String("addr", "127.0.0.1:9000", "Ingestion server address")
	f.Int("parallel", 4, "Number of concurrent uploads")
	f.Duration("dial_timeout", 5*time.Second, "Connection timeout")
	f.Duration("timeout", 30*time.Second, "Per read/write timeout")
	f.StringArray("attr", nil, "Extra attribute key=value (repeatable). Integers, floats and booleans keep their type")
}

func runUpload(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	addr, _ := f.GetString("addr")
	parallel, _ := f.GetInt("parallel")
	dialTimeout, _ := f.GetDuration("dial_timeout")
	timeout, _ := f.GetDuration("timeout")
	rawAttrs, _ := f.GetStringArray("attr")

	extra, err := parseAttrs(rawAttrs)
	if err != nil {
		return err
	}

	client := &ingest.Client{Addr: addr, DialTimeout: dialTimeout, Timeout: timeout}

	var failed atomic.Int32
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(parallel, 1))
	for _, path := range args {
		g.Go(func() error {
			start := time.Now()
			id, err := client.UploadFile(ctx, path, extra)
			if err != nil {
				failed.Add(1)
				var rejected *ingest.RejectedError
				if errors.As(err, &rejected) {
					logger.Warn().Str("file", path).Str("code", rejected.Code).Msg(rejected.Message)
				} else {
					logger.Error().Err(err).Str("file", path).Msg("upload failed")
				}
				return nil
			}
			logger.Info().Str("file", path).Str("video_id", id).Dur("elapsed", time.Since(start)).Msg("uploaded")
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, path)
			return nil
		})
	}
	_ = g.Wait()

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d uploads failed", n, len(args))
	}
	return nil
}

// parseAttrs turns key=value pairs into attributes, keeping integers, floats
// and booleans typed.
func parseAttrs(pairs []string) (types.Attributes, error) {
	attrs := types.Attributes{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("--attr %q: expected key=value", pair)
		}
		attrs.Set(key, parseScalar(value))
	}
	return attrs, nil
}

func parseScalar(s string) types.Value {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return types.Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return types.Float(f)
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return types.Bool(b)
	}
	return types.String(s)
}
