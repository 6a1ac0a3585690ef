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
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/AleutianScribe/pkg/validation"
)

// FSSource loads documents from a directory tree.
//
// # Description
//
// Document IDs map to paths relative to the source root. An ID without an
// extension also resolves against the same path with ".md" appended, so
// "guides/setup" finds "guides/setup.md". IDs are validated before any
// filesystem access; traversal segments never reach the OS.
//
// # Thread Safety
//
// Safe for concurrent use. Every Load reads the file fresh.
type FSSource struct {
	root string
}

// NewFSSource creates a source rooted at dir.
//
// Inputs:
//   - dir: Directory holding the documents. Must exist.
//
// Outputs:
//   - *FSSource: The source, rooted at the absolute form of dir.
//   - error: Non-nil when dir does not exist or is not a directory.
func NewFSSource(dir string) (*FSSource, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve document root %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat document root %q: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("document root %q is not a directory", abs)
	}
	return &FSSource{root: abs}, nil
}

// Root returns the absolute directory this source reads from.
func (s *FSSource) Root() string {
	return s.root
}

// Load reads and parses the document stored under id.
//
// Description:
//
//	Validates the ID, resolves it under the root, and falls back to the
//	".md" variant when the exact path is absent and the ID carries no
//	extension. Context cancellation is honored before the read.
//
// Inputs:
//   - ctx: Checked for cancellation; file reads themselves are local.
//   - id: Document identifier, validated against the ID grammar.
//
// Outputs:
//   - *Document: Parsed document on success.
//   - Diagnostics: Frontmatter diagnostics from parsing.
//   - error: Wraps ErrNotFound on a miss, or reports the IO failure.
func (s *FSSource) Load(ctx context.Context, id string) (*Document, Diagnostics, error) {
	if err := ctx.Err(); err != nil {
		return nil, Diagnostics{}, err
	}

	normalized, err := validation.NormalizeDocumentID(id)
	if err != nil {
		return nil, Diagnostics{}, fmt.Errorf("document %q: %w: %v", id, ErrNotFound, err)
	}

	raw, err := s.read(normalized)
	if err != nil {
		return nil, Diagnostics{}, err
	}

	doc, diag := Parse(normalized, raw)
	return doc, diag, nil
}

// read returns the file bytes for a validated ID, trying the ".md" variant
// for extensionless IDs.
func (s *FSSource) read(id string) ([]byte, error) {
	candidates := []string{id}
	if filepath.Ext(id) == "" {
		candidates = append(candidates, id+".md")
	}

	for _, candidate := range candidates {
		path := filepath.Join(s.root, filepath.FromSlash(candidate))
		if !strings.HasPrefix(path, s.root+string(os.PathSeparator)) {
			continue
		}
		raw, err := os.ReadFile(path)
		if err == nil {
			return raw, nil
		}
		if !isMissing(err) {
			return nil, fmt.Errorf("read document %q: %w", id, err)
		}
	}

	return nil, fmt.Errorf("document %q: %w", id, ErrNotFound)
}

// isMissing reports whether err means the path does not exist, either as a
// file or because a parent segment is a regular file.
func isMissing(err error) bool {
	if os.IsNotExist(err) {
		return true
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		// Joining through a regular file yields ENOTDIR, which is still a
		// miss from the caller's point of view.
		return strings.Contains(pathErr.Err.Error(), "not a directory")
	}
	return false
}
