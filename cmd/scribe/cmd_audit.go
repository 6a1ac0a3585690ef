// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianScribe/pkg/ux"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/audit"
)

// runAuditVerify re-checks the hash chain of an audit log file.
//
// # Description
//
//	Walks the JSONL file named in args[0], recomputing every HMAC
//	signature and prev_hash link with the key the log was written under.
//	Any break means entries were deleted, reordered, or edited after the
//	fact. The key comes from --key or SCRIBE_AUDIT_KEY; without the
//	right key every signature fails, so a key source is required.
//
// # Inputs
//
//   - cmd: The Cobra command context
//   - args: args[0] is the log file path
//
// # Outputs
//
//   - None. Exits 1 when the chain fails verification.
func runAuditVerify(cmd *cobra.Command, args []string) {
	path := args[0]

	key, err := resolveAuditKey()
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	var intact bool
	var problems []string
	err = ux.WithSpinner(fmt.Sprintf("Verifying %s", path), func() error {
		var verifyErr error
		intact, problems, verifyErr = audit.Verify(path, key)
		return verifyErr
	})
	if err != nil {
		ux.Error(fmt.Sprintf("Could not read the audit log: %v", err))
		os.Exit(1)
	}

	if intact {
		ux.Success(fmt.Sprintf("Audit chain intact: %s", path))
		return
	}

	ux.Error(fmt.Sprintf("Audit chain FAILED verification, %d problem(s):", len(problems)))
	for _, problem := range problems {
		ux.Info(problem)
	}
	os.Exit(1)
}

// resolveAuditKey returns the HMAC key from the flag or the environment.
func resolveAuditKey() ([]byte, error) {
	hexKey := auditKeyHex
	if hexKey == "" {
		hexKey = os.Getenv(audit.AuditKeyEnvVar)
	}
	if hexKey == "" {
		return nil, fmt.Errorf("no HMAC key given. Pass --key or set %s", audit.AuditKeyEnvVar)
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("the audit key is not valid hex: %w", err)
	}
	return key, nil
}
