// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sensitivity defines the document classification order used by the
// transformation pipeline.
//
// # Description
//
// Every document carries one of four sensitivity levels forming a total
// order. The single rule enforced everywhere else in the pipeline is that
// information may only flow downward: a primary document may use as context
// any document at its own level or below, never above.
//
// # Thread Safety
//
// All types in this package are immutable value types, safe for concurrent use.
package sensitivity

import "strings"

// Level classifies how sensitive a document's contents are.
//
// Description:
//
//	Level is an ordinal classification. Comparisons with < and <= are
//	meaningful: LevelPublic < LevelInternal < LevelConfidential <
//	LevelRestricted.
//
// Thread Safety:
//
//	Level is an immutable value type, safe for concurrent use.
type Level int

const (
	// LevelPublic marks content that may be shared without restriction.
	LevelPublic Level = iota

	// LevelInternal marks content for company-internal consumption.
	// This is the default when a document declares no level.
	LevelInternal

	// LevelConfidential marks content restricted to a need-to-know group.
	LevelConfidential

	// LevelRestricted marks the most sensitive content. A restricted
	// primary may draw on anything; nothing below restricted may draw
	// on it.
	LevelRestricted
)

// DefaultLevel is applied when a document's frontmatter omits the
// sensitivity field. Absence is common and not itself suspicious, so the
// default is applied silently.
const DefaultLevel = LevelInternal

// String returns the lowercase level name used in frontmatter and logs.
func (l Level) String() string {
	switch l {
	case LevelPublic:
		return "public"
	case LevelInternal:
		return "internal"
	case LevelConfidential:
		return "confidential"
	case LevelRestricted:
		return "restricted"
	default:
		return "unknown"
	}
}

// Valid reports whether l is one of the four defined levels.
func (l Level) Valid() bool {
	return l >= LevelPublic && l <= LevelRestricted
}

// ParseLevel converts a frontmatter string into a Level.
//
// Inputs:
//   - s: The level name. Matching is case-insensitive and tolerates
//     surrounding whitespace.
//
// Outputs:
//   - Level: The parsed level.
//   - bool: False if s names no known level. Callers decide whether an
//     unknown name is a warning or a hard failure; this function never is
//     the one to decide.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "public":
		return LevelPublic, true
	case "internal":
		return LevelInternal, true
	case "confidential":
		return LevelConfidential, true
	case "restricted":
		return LevelRestricted, true
	default:
		return DefaultLevel, false
	}
}

// CanAccessContext reports whether a primary document at level primary may
// include a context document at level context in its generation prompt.
//
// Description:
//
//	The admission rule for the whole pipeline: context is admissible
//	exactly when context <= primary. Restricted primaries therefore accept
//	everything and public primaries accept only public context.
//
// Inputs:
//   - primary: The requesting document's level.
//   - context: The candidate context document's level.
//
// Outputs:
//   - bool: True if the context document may accompany the primary.
//
// Thread Safety: Pure function, safe for concurrent use.
func CanAccessContext(primary, context Level) bool {
	return context <= primary
}
