// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

// Command relayctl inspects and maintains a MediaRelay data directory.
package main

import (
	"fmt"
	"os"

	"github.com/tomtom215/mediarelay/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
