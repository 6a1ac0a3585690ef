// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package document defines the document model consumed by the transformation
// pipeline and the sources that load it.
//
// # Description
//
// A document is a text body preceded by an optional YAML frontmatter block.
// The pipeline reads exactly two frontmatter fields, sensitivity and
// relatedDocumentIds, and passes everything else through opaquely. Sources
// load documents fresh on every request; the caching decorator in cache.go
// is an optional optimization, never required for correctness.
package document

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianScribe/services/pipeline/sensitivity"
	"gopkg.in/yaml.v3"
)

// Document is a single document as the pipeline sees it.
//
// Description:
//
//	Identity is the stable ID the document was loaded under. The pipeline
//	never mutates a Document; sources hand out fresh copies per load.
//
// Thread Safety: Treat as immutable after load.
type Document struct {
	// ID is the stable identifier the document was requested by.
	ID string

	// Sensitivity is the document's classification. Defaults to
	// sensitivity.DefaultLevel when the frontmatter omits it.
	Sensitivity sensitivity.Level

	// Body is the document text with the frontmatter block removed.
	Body string

	// RelatedDocumentIDs lists author-declared context documents in
	// declaration order. Never inferred; an empty list means the author
	// declared nothing.
	RelatedDocumentIDs []string

	// Meta carries every frontmatter field this core does not interpret
	// (title, tags, owner, anything else), unchanged.
	Meta map[string]any
}

// Diagnostics reports what defensive frontmatter parsing had to tolerate.
//
// Parsing itself never fails; the assembler decides whether a diagnostic is
// a warning or a hard error based on its own options.
type Diagnostics struct {
	// MalformedFrontmatter is the decode error when the frontmatter block
	// could not be parsed as YAML. The document falls back to defaults.
	MalformedFrontmatter error

	// SensitivityDeclared is true when the frontmatter carried a
	// sensitivity field at all. A missing field is not a diagnostic;
	// the default level applies silently.
	SensitivityDeclared bool

	// UnknownSensitivity holds the raw field value when sensitivity was
	// declared but named no known level. The default level applies.
	UnknownSensitivity string
}

// Clean reports whether parsing completed without anything to tolerate.
func (d Diagnostics) Clean() bool {
	return d.MalformedFrontmatter == nil && d.UnknownSensitivity == ""
}

// frontmatter is the decode target for the YAML block. Only two fields are
// interpreted; the inline map soaks up the rest for opaque pass-through.
type frontmatter struct {
	Sensitivity        string         `yaml:"sensitivity"`
	RelatedDocumentIDs []string       `yaml:"relatedDocumentIds"`
	Meta               map[string]any `yaml:",inline"`
}

const frontmatterDelimiter = "---"

// Parse splits raw document content into frontmatter and body.
//
// Description:
//
//	Recognizes a YAML frontmatter block delimited by "---" lines at the
//	very start of the content. Content without a block is all body.
//	Parsing is defensive: malformed YAML, an unterminated block, or an
//	unknown sensitivity name are reported through Diagnostics while the
//	document falls back to safe defaults. Parse never returns an error.
//
// Inputs:
//   - id: The identifier the content was loaded under.
//   - raw: The raw file or object contents.
//
// Outputs:
//   - *Document: The parsed document, always non-nil.
//   - Diagnostics: What had to be tolerated, if anything.
//
// Thread Safety: Pure function, safe for concurrent use.
func Parse(id string, raw []byte) (*Document, Diagnostics) {
	doc := &Document{
		ID:          id,
		Sensitivity: sensitivity.DefaultLevel,
	}
	var diag Diagnostics

	content := string(raw)
	block, body, hasBlock := splitFrontmatter(content)
	if !hasBlock {
		if block != "" {
			// Opening delimiter without a closing one. Treat the whole
			// content as body and flag it; guessing where the block was
			// meant to end would misfile author text as metadata.
			diag.MalformedFrontmatter = fmt.Errorf("unterminated frontmatter block in %q", id)
			doc.Body = content
			return doc, diag
		}
		doc.Body = content
		return doc, diag
	}
	doc.Body = body

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		diag.MalformedFrontmatter = fmt.Errorf("decode frontmatter of %q: %w", id, err)
		return doc, diag
	}

	doc.RelatedDocumentIDs = fm.RelatedDocumentIDs
	if len(fm.Meta) > 0 {
		doc.Meta = fm.Meta
	}

	if fm.Sensitivity != "" {
		diag.SensitivityDeclared = true
		level, ok := sensitivity.ParseLevel(fm.Sensitivity)
		if !ok {
			diag.UnknownSensitivity = fm.Sensitivity
			return doc, diag
		}
		doc.Sensitivity = level
	}

	return doc, diag
}

// splitFrontmatter separates the leading YAML block from the body.
//
// Returns (block, body, true) when a complete delimited block exists.
// Returns ("", content, false) when the content has no block at all, and
// (content, "", false) when an opening delimiter is never closed.
func splitFrontmatter(content string) (string, string, bool) {
	rest, found := strings.CutPrefix(content, frontmatterDelimiter+"\n")
	if !found {
		rest, found = strings.CutPrefix(content, frontmatterDelimiter+"\r\n")
	}
	if !found {
		return "", content, false
	}

	// Scan for a line that is exactly the closing delimiter.
	offset := 0
	for offset <= len(rest) {
		lineEnd := strings.IndexByte(rest[offset:], '\n')
		var line string
		if lineEnd < 0 {
			line = rest[offset:]
			lineEnd = len(rest) - offset
		} else {
			line = rest[offset : offset+lineEnd]
		}
		if strings.TrimRight(line, "\r") == frontmatterDelimiter {
			block := rest[:offset]
			body := ""
			if next := offset + lineEnd + 1; next <= len(rest) {
				body = rest[next:]
			}
			return block, body, true
		}
		offset += lineEnd + 1
	}

	return content, "", false
}
