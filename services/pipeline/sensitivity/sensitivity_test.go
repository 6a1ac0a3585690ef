// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sensitivity

import "testing"

func TestLevelOrdering(t *testing.T) {
	if !(LevelPublic < LevelInternal && LevelInternal < LevelConfidential && LevelConfidential < LevelRestricted) {
		t.Fatal("levels are not totally ordered public < internal < confidential < restricted")
	}
}

func TestCanAccessContext_AllPairs(t *testing.T) {
	levels := []Level{LevelPublic, LevelInternal, LevelConfidential, LevelRestricted}

	for _, primary := range levels {
		for _, context := range levels {
			want := context <= primary
			got := CanAccessContext(primary, context)
			if got != want {
				t.Errorf("CanAccessContext(%s, %s) = %v, want %v", primary, context, got, want)
			}
		}
	}
}

func TestCanAccessContext_RestrictedAcceptsEverything(t *testing.T) {
	for _, context := range []Level{LevelPublic, LevelInternal, LevelConfidential, LevelRestricted} {
		if !CanAccessContext(LevelRestricted, context) {
			t.Errorf("restricted primary rejected %s context", context)
		}
	}
}

func TestCanAccessContext_PublicAcceptsOnlyPublic(t *testing.T) {
	if !CanAccessContext(LevelPublic, LevelPublic) {
		t.Error("public primary rejected public context")
	}
	for _, context := range []Level{LevelInternal, LevelConfidential, LevelRestricted} {
		if CanAccessContext(LevelPublic, context) {
			t.Errorf("public primary accepted %s context", context)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"public", LevelPublic, true},
		{"internal", LevelInternal, true},
		{"confidential", LevelConfidential, true},
		{"restricted", LevelRestricted, true},
		{"  Restricted ", LevelRestricted, true},
		{"CONFIDENTIAL", LevelConfidential, true},
		{"", DefaultLevel, false},
		{"secret", DefaultLevel, false},
		{"level-9", DefaultLevel, false},
	}

	for _, tc := range cases {
		got, ok := ParseLevel(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseLevel(%q) = (%s, %v), want (%s, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestString_RoundTrip(t *testing.T) {
	for _, l := range []Level{LevelPublic, LevelInternal, LevelConfidential, LevelRestricted} {
		parsed, ok := ParseLevel(l.String())
		if !ok || parsed != l {
			t.Errorf("ParseLevel(%q) did not round-trip to %d", l.String(), l)
		}
	}

	if Level(99).String() != "unknown" {
		t.Errorf("out-of-range level String() = %q, want unknown", Level(99).String())
	}
}
