// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/LeeDigitalWorks/zapingest/pkg/storage"
	"github.com/LeeDigitalWorks/zapingest/pkg/utils"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Inspect and maintain the storage directory",
}

var storageInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show capacity of the storage filesystem",
	Args:  cobra.NoArgs,
	RunE:  runStorageInfo,
}

var storageSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove orphaned temp files",
	Args:  cobra.NoArgs,
	RunE:  runStorageSweep,
}

func init() {
	rootCmd.AddCommand(storageCmd)
	storageCmd.AddCommand(storageInfoCmd, storageSweepCmd)

	pf := storageCmd.PersistentFlags()
	pf.StringP("storage_path", "p", "./uploads", "Directory where committed videos are stored")
	pf.String("temp_dir", "", "Directory for in-progress uploads (default <storage_path>/.incoming)")
	pf.String("min_free_space", "5", "Free space below which storage is reported low (percent or size)")

	storageSweepCmd.Flags().Duration("grace_period", storage.DefaultGracePeriod, "Minimum age of a temp file before it is removed")
}

func openStorage(cmd *cobra.Command) (*storage.Manager, error) {
	utils.LoadConfiguration("zapingest", false)

	minFree, err := storage.ParseMinFreeSpace(stringFlagOrConfig(cmd, "min_free_space"))
	if err != nil {
		return nil, fmt.Errorf("--min_free_space: %w", err)
	}
	tempDir := stringFlagOrConfig(cmd, "temp_dir")
	if tempDir != "" {
		tempDir = utils.ResolvePath(tempDir)
	}
	return storage.NewManager(storage.Config{
		Root:         utils.ResolvePath(stringFlagOrConfig(cmd, "storage_path")),
		TempDir:      tempDir,
		MinFreeSpace: minFree,
	})
}

func runStorageInfo(cmd *cobra.Command, args []string) error {
	sm, err := openStorage(cmd)
	if err != nil {
		return err
	}

	info := sm.Info()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Path:      %s\n", info.Path)
	fmt.Fprintf(out, "Temp dir:  %s\n", sm.TempDir())
	fmt.Fprintf(out, "Total:     %s\n", humanize.IBytes(info.TotalBytes))
	fmt.Fprintf(out, "Used:      %s (%.1f%%)\n", humanize.IBytes(info.UsedBytes), info.UsedPercent)
	fmt.Fprintf(out, "Free:      %s\n", humanize.IBytes(info.FreeBytes))
	if info.Threshold != "" {
		fmt.Fprintf(out, "Threshold: %s (low: %t)\n", info.Threshold, info.Low)
	}
	return nil
}

func runStorageSweep(cmd *cobra.Command, args []string) error {
	sm, err := openStorage(cmd)
	if err != nil {
		return err
	}
	grace, _ := cmd.Flags().GetDuration("grace_period")

	removed := sm.SweepTempFiles(grace)
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d temp files\n", removed)
	return nil
}
