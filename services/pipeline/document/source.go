// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package document

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound reports that a source has no document under the requested ID.
//
// Sources wrap this sentinel so callers can test with errors.Is regardless
// of which backend produced the miss.
var ErrNotFound = errors.New("document not found")

// FrontmatterError reports that a document loaded but its frontmatter could
// not be trusted. Sources do not return it; the assembler constructs it when
// its options promote a parse diagnostic to a hard failure.
type FrontmatterError struct {
	// DocumentID is the document whose frontmatter failed.
	DocumentID string
	// Err is the underlying parse problem.
	Err error
}

func (e *FrontmatterError) Error() string {
	return fmt.Sprintf("invalid frontmatter in document %q: %v", e.DocumentID, e.Err)
}

func (e *FrontmatterError) Unwrap() error {
	return e.Err
}

// Source loads documents by ID from some backend.
//
// # Description
//
// A Source resolves a document ID to parsed content. Implementations parse
// frontmatter through Parse and attach the resulting diagnostics; they never
// reject a document for content problems. A miss is reported by wrapping
// ErrNotFound.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Load fetches and parses the document stored under id.
	//
	// Returns an error wrapping ErrNotFound when the backend has no such
	// document, or a transport error when the backend could not answer.
	Load(ctx context.Context, id string) (*Document, Diagnostics, error)
}
