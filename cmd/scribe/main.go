// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command scribe is the operator CLI for the AleutianScribe document
// transform service.
//
// It submits transform requests, works the human review queue, verifies
// the audit trail, and can run the gateway itself in the foreground.
// Machine-readable output for scripting is available on every command
// via --personality machine.
package main

import (
	"os"
)

func main() {
	// Execute the root command. Cobra handles parsing the arguments.
	// Nothing prints before dispatch so machine-mode stdout stays clean.
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
