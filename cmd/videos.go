// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/LeeDigitalWorks/zapingest/pkg/events"
	"github.com/LeeDigitalWorks/zapingest/pkg/metadata"
	"github.com/LeeDigitalWorks/zapingest/pkg/storage"
	"github.com/LeeDigitalWorks/zapingest/pkg/types"
	"github.com/LeeDigitalWorks/zapingest/pkg/utils"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var videosCmd = &cobra.Command{
	Use:   "videos",
	Short: "Inspect and manage committed videos",
	Long: `Offline administration of the metadata store. These commands lock the store
and fail while a server is using it; use the /admin/videos endpoints instead.`,
}

var videosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List committed videos",
	Args:  cobra.NoArgs,
	RunE:  runVideosList,
}

var videosGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print the metadata record of a video",
	Args:  cobra.ExactArgs(1),
	RunE:  runVideosGet,
}

var videosDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a video and its metadata record",
	Args:  cobra.ExactArgs(1),
	RunE:  runVideosDelete,
}

func init() {
	rootCmd.AddCommand(videosCmd)
	videosCmd.AddCommand(videosListCmd, videosGetCmd, videosDeleteCmd)

	pf := videosCmd.PersistentFlags()
	pf.StringP("storage_path", "p", "./uploads", "Directory where committed videos are stored")
	pf.String("metadata_file", "", "Metadata JSON file (default <storage_path>/metadata.json)")

	videosListCmd.Flags().Bool("json", false, "Print records as JSON")
}

func openVideoStore(cmd *cobra.Command) (*metadata.Store, string, error) {
	utils.LoadConfiguration("zapingest", false)

	storagePath := utils.ResolvePath(stringFlagOrConfig(cmd, "storage_path"))
	metadataFile := stringFlagOrConfig(cmd, "metadata_file")
	if metadataFile == "" {
		metadataFile = filepath.Join(storagePath, "metadata.json")
	}

	store, err := metadata.Open(utils.ResolvePath(metadataFile))
	if errors.Is(err, metadata.ErrLocked) {
		return nil, "", fmt.Errorf("%w (stop the server or use the /admin/videos endpoints)", err)
	}
	if err != nil {
		return nil, "", err
	}
	return store, storagePath, nil
}

// stringFlagOrConfig reads a flag that is not bound to viper, falling back to
// the config file when the flag was not set.
func stringFlagOrConfig(cmd *cobra.Command, name string) string {
	val, _ := cmd.Flags().GetString(name)
	if !cmd.Flags().Changed(name) && viper.IsSet(name) {
		return viper.GetString(name)
	}
	return val
}

func runVideosList(cmd *cobra.Command, args []string) error {
	store, _, err := openVideoStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()
	videos := sortedVideos(store.GetAll())

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(videos)
	}

	rows := make([][]string, 0, len(videos))
	for _, v := range videos {
		filename, _ := v.Attributes.GetString(types.AttrFilename)
		size := "-"
		if n, ok := v.Attributes.GetInt(types.AttrReceivedBytes); ok {
			size = humanize.IBytes(uint64(n))
		}
		processed := "-"
		if ts, ok := v.Attributes.GetInt(types.AttrProcessedTimestamp); ok {
			processed = humanize.Time(time.Unix(ts, 0))
		}
		rows = append(rows, []string{v.ID, filename, size, processed})
	}
	if len(rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no videos")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Filename", "Size", "Processed"}, rows, 2))
	return nil
}

func runVideosGet(cmd *cobra.Command, args []string) error {
	store, _, err := openVideoStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()
	rec, ok := store.Get(args[0])
	if !ok {
		return fmt.Errorf("%s: %w", args[0], errVideoNotFound)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(videoEntry{ID: args[0], Attributes: rec})
}

func runVideosDelete(cmd *cobra.Command, args []string) error {
	store, storagePath, err := openVideoStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()
	sm, err := storage.NewManager(storage.Config{Root: storagePath})
	if err != nil {
		return err
	}

	if err := deleteVideo(cmd.Context(), store, sm, events.NoopPublisher{}, args[0]); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}
