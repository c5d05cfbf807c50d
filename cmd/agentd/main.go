// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command agentd is the thin CLI adapter spec.md §6 names: "CLI/IPC:
// entirely out of scope (thin adapter). The core exposes in-process
// methods only." Every subcommand here does nothing but parse flags,
// construct the internal/ packages directly in-process, and print their
// results — no RPC, no daemon, no remote orchestrator server (unlike
// cmd/aleutian's cmd_chat.go, which is an HTTP client to one).
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
