// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/LeeDigitalWorks/zapingest/cmd"

	"github.com/getsentry/sentry-go"
)

func main() {
	// The DSN is read from SENTRY_DSN; without it the client is disabled.
	err := sentry.Init(sentry.ClientOptions{
		Release:          "zapingest@" + cmd.Version,
		SampleRate:       0.1,
		EnableTracing:    true,
		TracesSampleRate: 0.1,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sentry.Init: %v", err)
	}
	// Flush buffered events before the program terminates.
	defer sentry.Flush(2 * time.Second)
	defer sentry.Recover()

	cmd.Execute()
}
