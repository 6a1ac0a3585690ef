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
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianScribe/pkg/ux"
	"github.com/AleutianAI/AleutianScribe/pkg/validation"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/document"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/sensitivity"
)

// ===== DOCS COMMAND FLAGS =====

var (
	docsDir  string // root directory holding the source documents
	docsJSON bool   // JSON output for scripting
)

// init registers the docs flags. The directory default folds in the same
// environment variable the gateway reads, so a CLI next to a gateway
// inspects the same tree the gateway serves.
func init() {
	dirDefault := envString("SCRIBE_DOCUMENT_DIR", "./documents")
	docsListCmd.Flags().StringVar(&docsDir, "documents", dirDefault,
		"Root directory holding the source documents")
	docsShowCmd.Flags().StringVar(&docsDir, "documents", dirDefault,
		"Root directory holding the source documents")
	docsShowCmd.Flags().BoolVar(&docsJSON, "json", false, "Output as JSON for scripting")
}

// runDocsList prints every markdown document under the document directory.
//
// # Description
//
//	Walks the directory tree, parses each document's frontmatter, and
//	prints one row per file: id, sensitivity, declared reference count,
//	and the first problem that would surface during a transform. Files
//	whose derived id fails validation are flagged; the pipeline can
//	never load them.
//
// # Inputs
//
//   - cmd: The Cobra command context
//   - args: unused
//
// # Outputs
//
//   - None. Exits non-zero if the directory cannot be read.
func runDocsList(cmd *cobra.Command, args []string) {
	entries, err := collectDocuments(docsDir)
	if err != nil {
		ux.Error(fmt.Sprintf("Could not scan %s: %v", docsDir, err))
		os.Exit(1)
	}
	if len(entries) == 0 {
		ux.Info(fmt.Sprintf("No documents under %s", docsDir))
		return
	}

	ux.Title(fmt.Sprintf("Documents under %s", docsDir))
	for _, entry := range entries {
		ux.DocLine(entry.ID, entry.Sensitivity.String(), entry.Related, entry.Problem)
	}
}

// runDocsShow prints one document's classification and reference preflight.
//
// # Description
//
//	Loads the document the same way the gateway would and reports how
//	each declared reference would fare at assembly time: accepted,
//	skipped with a warning because it is missing, or rejected for a
//	sensitivity violation or a circular reference. Running this before
//	a transform shows exactly which context will make it into the
//	prompt.
//
// # Inputs
//
//   - cmd: The Cobra command context
//   - args: args[0] is the document id
//
// # Outputs
//
//   - None. Exits non-zero if the document cannot be loaded.
func runDocsShow(cmd *cobra.Command, args []string) {
	src, err := document.NewFSSource(docsDir)
	if err != nil {
		ux.Error(fmt.Sprintf("Could not open the document directory: %v", err))
		os.Exit(1)
	}

	doc, diag, err := src.Load(context.Background(), args[0])
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			ux.Error(fmt.Sprintf("No document %q under %s", args[0], src.Root()))
		} else {
			ux.Error(fmt.Sprintf("Could not load %q: %v", args[0], err))
		}
		os.Exit(1)
	}

	refs := checkReferences(context.Background(), src, doc)

	if docsJSON {
		printJSON(newDocView(doc, diag, refs))
		return
	}

	ux.Title(doc.ID)
	ux.Info(fmt.Sprintf("Sensitivity: %s", doc.Sensitivity))
	ux.Info(fmt.Sprintf("Body: %d bytes", len(doc.Body)))
	if keys := metaKeys(doc.Meta); len(keys) > 0 {
		ux.Info(fmt.Sprintf("Meta: %s", strings.Join(keys, ", ")))
	}
	if diag.MalformedFrontmatter != nil {
		ux.Warning(fmt.Sprintf("Frontmatter did not parse: %v", diag.MalformedFrontmatter))
	}
	if diag.UnknownSensitivity != "" {
		ux.Warning(fmt.Sprintf("Unknown sensitivity %q, the default (%s) applies",
			diag.UnknownSensitivity, sensitivity.DefaultLevel))
	}

	if len(refs) == 0 {
		ux.Muted("No related documents declared.")
		return
	}
	for _, ref := range refs {
		switch ref.Status {
		case refAccept:
			ux.Info(fmt.Sprintf("ref %s (%s)", ref.ID, ref.Sensitivity))
		case refMissing:
			ux.Warning(fmt.Sprintf("ref %s is missing and would be skipped", ref.ID))
		case refReject:
			ux.Warning(fmt.Sprintf("ref %s would be rejected: %s", ref.ID, ref.Note))
		}
	}
}

// docEntry is one row of the listing.
type docEntry struct {
	ID          string
	Sensitivity sensitivity.Level
	Related     int
	Problem     string
}

// collectDocuments walks root and parses every markdown file into a row.
// Rows come back in walk order, which is lexical and stable.
func collectDocuments(root string) ([]docEntry, error) {
	var entries []docEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		id := strings.TrimSuffix(filepath.ToSlash(rel), ".md")

		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		doc, diag := document.Parse(id, raw)
		entry := docEntry{
			ID:          id,
			Sensitivity: doc.Sensitivity,
			Related:     len(doc.RelatedDocumentIDs),
		}
		switch {
		case validation.ValidateDocumentID(id) != nil:
			entry.Problem = "id fails validation, the pipeline cannot load it"
		case diag.MalformedFrontmatter != nil:
			entry.Problem = "malformed frontmatter"
		case diag.UnknownSensitivity != "":
			entry.Problem = fmt.Sprintf("unknown sensitivity %q", diag.UnknownSensitivity)
		}
		entries = append(entries, entry)
		return nil
	})
	return entries, err
}

// Reference preflight statuses. The names track what the assembler would
// do with the candidate, not what the file looks like.
const (
	refAccept  = "accept"
	refMissing = "missing"
	refReject  = "reject"
)

// refView reports how assembly would treat one declared reference.
type refView struct {
	ID          string `json:"id"`
	Sensitivity string `json:"sensitivity,omitempty"`
	Status      string `json:"status"`
	Note        string `json:"note,omitempty"`
}

// checkReferences walks the primary's declared ids in order, first
// occurrence wins, and applies the admission rules each candidate would
// face: sensitivity before cycles, missing documents degrade to a skip.
func checkReferences(ctx context.Context, src document.Source, primary *document.Document) []refView {
	seen := make(map[string]bool, len(primary.RelatedDocumentIDs))
	var refs []refView
	for _, id := range primary.RelatedDocumentIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		if id == primary.ID {
			refs = append(refs, refView{
				ID:          id,
				Sensitivity: primary.Sensitivity.String(),
				Status:      refReject,
				Note:        "circular reference",
			})
			continue
		}

		candidate, _, err := src.Load(ctx, id)
		if err != nil {
			refs = append(refs, refView{ID: id, Status: refMissing})
			continue
		}

		view := refView{ID: id, Sensitivity: candidate.Sensitivity.String()}
		switch {
		case !sensitivity.CanAccessContext(primary.Sensitivity, candidate.Sensitivity):
			view.Status = refReject
			view.Note = fmt.Sprintf("sensitivity violation: %s cannot access %s",
				primary.Sensitivity, candidate.Sensitivity)
		case slices.Contains(candidate.RelatedDocumentIDs, primary.ID):
			view.Status = refReject
			view.Note = "circular reference"
		default:
			view.Status = refAccept
		}
		refs = append(refs, view)
	}
	return refs
}

// docView is the JSON form of the show output.
type docView struct {
	ID          string         `json:"id"`
	Sensitivity string         `json:"sensitivity"`
	BodyBytes   int            `json:"body_bytes"`
	Meta        map[string]any `json:"meta,omitempty"`
	References  []refView      `json:"references,omitempty"`
	Warnings    []string       `json:"warnings,omitempty"`
}

func newDocView(doc *document.Document, diag document.Diagnostics, refs []refView) docView {
	view := docView{
		ID:          doc.ID,
		Sensitivity: doc.Sensitivity.String(),
		BodyBytes:   len(doc.Body),
		Meta:        doc.Meta,
		References:  refs,
	}
	if diag.MalformedFrontmatter != nil {
		view.Warnings = append(view.Warnings,
			fmt.Sprintf("frontmatter did not parse: %v", diag.MalformedFrontmatter))
	}
	if diag.UnknownSensitivity != "" {
		view.Warnings = append(view.Warnings,
			fmt.Sprintf("unknown sensitivity %q, default applied", diag.UnknownSensitivity))
	}
	return view
}

// metaKeys returns the frontmatter pass-through keys in sorted order.
func metaKeys(meta map[string]any) []string {
	if len(meta) == 0 {
		return nil
	}
	keys := make([]string, 0, len(meta))
	for key := range meta {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
