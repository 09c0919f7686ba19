// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command astvalidate validates Java sources against rule repositories and
// persists the findings as markers.
//
// Usage:
//
//	astvalidate init
//	astvalidate validate [paths...] [--json] [--fail-on-error]
//	astvalidate markers list|clear [paths...]
//	astvalidate rules list
//	astvalidate watch [root] [--metrics-addr :9464]
//
// Exit codes: 0 on success, 1 when --fail-on-error is set and error
// markers exist, 2 on any other failure.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	// PersistentPostRunE is skipped when the command fails.
	if terr := teardown(nil, nil); terr != nil && err == nil {
		err = terr
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errErrorMarkers):
		return 1
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 2
	}
}
