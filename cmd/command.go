// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"

	"github.com/LeeDigitalWorks/zapingest/pkg/logger"
	"github.com/LeeDigitalWorks/zapingest/pkg/utils"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "zapingest",
	Short: "ZapIngest - media upload ingestion service",
	Long: `ZapIngest receives media files pushed by producers over a raw TCP socket,
admits or rejects them under load, and commits accepted files to local storage
together with a JSON metadata record.`,
	PersistentPreRunE: configureLogging,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&utils.ConfigurationFileDirectory, "config_dir", ".", "Directory for configuration files")
	pf.String("log_level", "info", "Log level (debug, info, warn, error, fatal)")
	pf.String("log_format", string(logger.FormatJSON), "Log format (json, console)")

	viper.BindPFlag("log_level", pf.Lookup("log_level"))
	viper.BindPFlag("log_format", pf.Lookup("log_format"))
}

func configureLogging(cmd *cobra.Command, args []string) error {
	f := NewFlagLoader(cmd)
	level := f.String("log_level")
	if !cmd.Flags().Changed("log_level") && os.Getenv("LOG_LEVEL") != "" {
		// LOG_LEVEL was already applied when the logger was created.
		level = ""
	}
	return logger.Configure(level, logger.Format(f.String("log_format")))
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
