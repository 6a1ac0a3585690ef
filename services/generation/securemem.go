// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generation

import (
	"log/slog"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

// minMlockLimitKB is the minimum mlock limit required for storing API
// keys in locked memory. Keys are small; a few pages suffice.
const minMlockLimitKB = 64

var (
	secureMemOnce       sync.Once
	mlockSufficient     bool
	currentMlockLimitKB int64
)

// initSecureMemory performs one-time memguard initialization and checks
// the mlock resource limit. Called automatically on first key storage.
func initSecureMemory() {
	secureMemOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, currentMlockLimitKB = checkMlockLimit()
		if mlockSufficient {
			slog.Info("Secure key memory initialized",
				"mlock_limit_kb", currentMlockLimitKB,
				"required_kb", minMlockLimitKB,
			)
		} else {
			slog.Error("mlock limit insufficient for secure key storage",
				"current_limit_kb", currentMlockLimitKB,
				"required_kb", minMlockLimitKB,
				"help", "raise RLIMIT_MEMLOCK or set SCRIBE_INSECURE_MEMORY=true",
			)
		}
	})
}

// checkMlockLimit queries the kernel for the mlock resource limit.
//
// Outputs:
//   - bool: True if the limit is sufficient (>= minMlockLimitKB).
//   - int64: Current limit in kilobytes (-1 if unlimited).
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("Could not determine mlock limit", "error", err)
		return true, -1
	}

	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}

	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= minMlockLimitKB, limitKB
}

// MlockAvailable reports whether locked memory is available for API keys.
//
// Outputs:
//   - bool: True if secure key storage is available.
//   - int64: Current mlock limit in KB (-1 if unlimited).
func MlockAvailable() (bool, int64) {
	initSecureMemory()
	return mlockSufficient, currentMlockLimitKB
}

// PurgeSecrets wipes all memguard-allocated memory.
//
// Call during graceful shutdown. After this, existing enclaves are
// invalid.
func PurgeSecrets() {
	memguard.Purge()
	slog.Info("Purged secure key memory")
}
