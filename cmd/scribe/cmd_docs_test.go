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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianScribe/services/pipeline/document"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/sensitivity"
)

// mapSource serves raw document content from a map for preflight tests.
type mapSource map[string]string

func (s mapSource) Load(_ context.Context, id string) (*document.Document, document.Diagnostics, error) {
	raw, ok := s[id]
	if !ok {
		return nil, document.Diagnostics{}, fmt.Errorf("map source: %w: %s", document.ErrNotFound, id)
	}
	doc, diag := document.Parse(id, []byte(raw))
	return doc, diag, nil
}

// rawDoc builds document content with the given frontmatter fields.
func rawDoc(level string, related ...string) string {
	var b strings.Builder
	b.WriteString("---\n")
	if level != "" {
		fmt.Fprintf(&b, "sensitivity: %s\n", level)
	}
	if len(related) > 0 {
		b.WriteString("relatedDocumentIds:\n")
		for _, id := range related {
			fmt.Fprintf(&b, "  - %s\n", id)
		}
	}
	b.WriteString("---\nbody text\n")
	return b.String()
}

func writeDoc(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCollectDocuments(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "guide.md", rawDoc("public", "ref-a", "ref-b"))
	writeDoc(t, root, "guides/setup.md", rawDoc("confidential"))
	writeDoc(t, root, "broken.md", "---\nsensitivity: [unclosed\n---\nbody\n")
	writeDoc(t, root, "notes.txt", "not a document")

	entries, err := collectDocuments(root)
	if err != nil {
		t.Fatalf("collectDocuments() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 rows, got %d: %+v", len(entries), entries)
	}

	byID := make(map[string]docEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	guide, ok := byID["guide"]
	if !ok {
		t.Fatal("expected a row for guide")
	}
	if guide.Sensitivity != sensitivity.LevelPublic {
		t.Errorf("guide sensitivity = %v, want public", guide.Sensitivity)
	}
	if guide.Related != 2 {
		t.Errorf("guide related = %d, want 2", guide.Related)
	}
	if guide.Problem != "" {
		t.Errorf("guide should be clean, got problem %q", guide.Problem)
	}

	if nested, ok := byID["guides/setup"]; !ok {
		t.Error("expected the nested file keyed by its slash id")
	} else if nested.Sensitivity != sensitivity.LevelConfidential {
		t.Errorf("nested sensitivity = %v, want confidential", nested.Sensitivity)
	}

	if broken, ok := byID["broken"]; !ok {
		t.Error("expected a row for the malformed file")
	} else if broken.Problem == "" {
		t.Error("malformed frontmatter should surface as a problem")
	}
}

func TestCollectDocuments_InvalidIDFlagged(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "bad name.md", rawDoc("public"))

	entries, err := collectDocuments(root)
	if err != nil {
		t.Fatalf("collectDocuments() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 row, got %d", len(entries))
	}
	if !strings.Contains(entries[0].Problem, "id fails validation") {
		t.Errorf("expected an id validation problem, got %q", entries[0].Problem)
	}
	// Frontmatter still parses so the row shows the real classification.
	if entries[0].Sensitivity != sensitivity.LevelPublic {
		t.Errorf("sensitivity = %v, want public", entries[0].Sensitivity)
	}
}

func TestCollectDocuments_UnknownSensitivityFlagged(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "odd.md", rawDoc("ultraviolet"))

	entries, err := collectDocuments(root)
	if err != nil {
		t.Fatalf("collectDocuments() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 row, got %d", len(entries))
	}
	if !strings.Contains(entries[0].Problem, "ultraviolet") {
		t.Errorf("problem should name the unknown level, got %q", entries[0].Problem)
	}
}

func TestCollectDocuments_MissingRoot(t *testing.T) {
	if _, err := collectDocuments(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected an error for a missing root")
	}
}

func TestCheckReferences_MirrorsAdmissionRules(t *testing.T) {
	src := mapSource{
		"primary": rawDoc("internal", "ok", "secret", "ghost", "loop", "primary", "ok"),
		"ok":      rawDoc("public"),
		"secret":  rawDoc("restricted"),
		"loop":    rawDoc("internal", "primary"),
	}
	primary, _, err := src.Load(context.Background(), "primary")
	if err != nil {
		t.Fatal(err)
	}

	refs := checkReferences(context.Background(), src, primary)

	// Six declared ids, one duplicate, so five rows in declaration order.
	if len(refs) != 5 {
		t.Fatalf("expected 5 rows, got %d: %+v", len(refs), refs)
	}

	want := []struct {
		id     string
		status string
	}{
		{"ok", refAccept},
		{"secret", refReject},
		{"ghost", refMissing},
		{"loop", refReject},
		{"primary", refReject},
	}
	for i, w := range want {
		if refs[i].ID != w.id || refs[i].Status != w.status {
			t.Errorf("row %d = %s/%s, want %s/%s", i, refs[i].ID, refs[i].Status, w.id, w.status)
		}
	}

	if !strings.Contains(refs[1].Note, "sensitivity violation") {
		t.Errorf("sensitivity rejection should say so, got %q", refs[1].Note)
	}
	if refs[3].Note != "circular reference" {
		t.Errorf("back-reference note = %q, want circular reference", refs[3].Note)
	}
	if refs[4].Note != "circular reference" {
		t.Errorf("self-reference note = %q, want circular reference", refs[4].Note)
	}
}

func TestCheckReferences_SensitivityBeatsCycle(t *testing.T) {
	// A candidate that both back-references the primary and outranks it
	// reports the sensitivity violation, matching assembly order.
	src := mapSource{
		"primary": rawDoc("public", "both"),
		"both":    rawDoc("restricted", "primary"),
	}
	primary, _, err := src.Load(context.Background(), "primary")
	if err != nil {
		t.Fatal(err)
	}

	refs := checkReferences(context.Background(), src, primary)
	if len(refs) != 1 {
		t.Fatalf("expected 1 row, got %d", len(refs))
	}
	if !strings.Contains(refs[0].Note, "sensitivity violation") {
		t.Errorf("expected the sensitivity note to win, got %q", refs[0].Note)
	}
}

func TestNewDocView_CarriesWarnings(t *testing.T) {
	doc, diag := document.Parse("odd", []byte(rawDoc("ultraviolet")))

	view := newDocView(doc, diag, nil)

	if view.Sensitivity != sensitivity.DefaultLevel.String() {
		t.Errorf("unknown level should fall back to the default, got %q", view.Sensitivity)
	}
	if len(view.Warnings) != 1 || !strings.Contains(view.Warnings[0], "ultraviolet") {
		t.Errorf("expected one warning naming the unknown level, got %v", view.Warnings)
	}
}

func TestMetaKeys_Sorted(t *testing.T) {
	keys := metaKeys(map[string]any{"owner": "ops", "title": "Plan", "area": "docs"})
	want := []string{"area", "owner", "title"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
	if metaKeys(nil) != nil {
		t.Error("nil meta should yield nil keys")
	}
}
