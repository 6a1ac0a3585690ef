// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// file paths, object-store keys, or database lookups. Using these validators
// prevents injection attacks (path traversal, query injection).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxDocumentIDLength bounds identifier size. Long ids are either abuse or a
// client bug; either way they are rejected before touching any store.
const MaxDocumentIDLength = 256

// docIDPattern matches valid document identifiers.
// Allows: letters, digits, and the separators / . - _ between them.
// Identifiers are relative paths into a document root ("guides/setup",
// "api/auth-v2.md"). Leading separators and empty segments are rejected
// separately so the error messages stay specific.
var docIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9/._\-]*$`)

// ValidateDocumentID validates a document identifier before it is used as a
// file path or store key.
//
// Valid identifiers:
//   - 1-256 characters
//   - letters, digits, slashes, dots, hyphens, underscores
//   - no leading slash or dot, no empty path segments, no ".." segments
//
// Returns an error describing the first violation found.
//
// Example:
//
//	if err := validation.ValidateDocumentID(id); err != nil {
//	    return nil, fmt.Errorf("invalid document id: %w", err)
//	}
//	// Safe to join onto the document root
func ValidateDocumentID(id string) error {
	if id == "" {
		return fmt.Errorf("document id cannot be empty")
	}

	if len(id) > MaxDocumentIDLength {
		return fmt.Errorf("document id exceeds %d characters", MaxDocumentIDLength)
	}

	if !docIDPattern.MatchString(id) {
		return fmt.Errorf("invalid document id format: %q (letters, digits, '/', '.', '-', '_' only, must not start with a separator)", id)
	}

	for _, segment := range strings.Split(id, "/") {
		if segment == "" {
			return fmt.Errorf("document id %q contains an empty path segment", id)
		}
		if segment == "." || segment == ".." {
			return fmt.Errorf("document id %q contains a relative path segment", id)
		}
	}

	return nil
}

// ValidateDocumentIDs validates multiple identifiers.
// Returns an error listing all invalid ids if any fail validation.
func ValidateDocumentIDs(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateDocumentID(id); err != nil {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid document ids: %v", invalid)
	}
	return nil
}

// NormalizeDocumentID trims whitespace and a leading "./" and validates the
// result. Returns the cleaned id if valid, or an error if invalid.
//
// Use this at API boundaries where ids arrive from humans:
//
//	safeID, err := validation.NormalizeDocumentID(userInput)
//	if err != nil {
//	    return err
//	}
//	// safeID is cleaned and validated
func NormalizeDocumentID(id string) (string, error) {
	normalized := strings.TrimSpace(id)
	normalized = strings.TrimPrefix(normalized, "./")
	if err := ValidateDocumentID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
