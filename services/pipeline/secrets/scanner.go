// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package secrets detects and redacts credential material in text.
//
// # Description
//
// The scanner runs a fixed pattern corpus over text in both pipeline
// directions: over documents before they reach a model, and over model
// output before it reaches a caller. Redaction replaces each detected span
// with a typed marker so downstream consumers can see that something was
// removed and what kind of thing it was, without ever seeing the value.
//
// # Thread Safety
//
// A Scanner is safe for concurrent use after construction.
package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Severity indicates how serious a secret exposure is.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// severityOrder maps severity to numeric order (higher = more severe).
var severityOrder = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// AtLeast reports whether s is as severe as threshold or more so.
func (s Severity) AtLeast(threshold Severity) bool {
	return severityOrder[s] >= severityOrder[threshold]
}

// Pattern defines a detector for one kind of secret.
//
// Description:
//
//	A Pattern pairs a regex with metadata and optional false-positive
//	hints. A raw match whose surrounding context matches any hint is
//	discarded.
//
// Thread Safety:
//
//	Safe for concurrent use after Compile.
type Pattern struct {
	// Kind names the secret type (aws_access_key, jwt, private_key, ...).
	Kind string

	// Description explains what this pattern detects.
	Description string

	// Pattern is the regex source.
	Pattern string

	// Severity indicates how serious this exposure is.
	Severity Severity

	// FalsePositiveHints are regexes that, when matched near a hit,
	// mark it as noise.
	FalsePositiveHints []string

	compiledPattern *regexp.Regexp
	compiledHints   []*regexp.Regexp
}

// Compile prepares the pattern and its hints.
func (p *Pattern) Compile() error {
	compiled, err := regexp.Compile(p.Pattern)
	if err != nil {
		return fmt.Errorf("compile pattern %q: %w", p.Kind, err)
	}
	p.compiledPattern = compiled

	p.compiledHints = p.compiledHints[:0]
	for _, hint := range p.FalsePositiveHints {
		compiledHint, err := regexp.Compile(hint)
		if err != nil {
			return fmt.Errorf("compile hint for %q: %w", p.Kind, err)
		}
		p.compiledHints = append(p.compiledHints, compiledHint)
	}
	return nil
}

// match returns all spans in content this pattern fires on, hints applied.
func (p *Pattern) match(content string) []Finding {
	matches := p.compiledPattern.FindAllStringIndex(content, -1)
	if len(matches) == 0 {
		return nil
	}

	var result []Finding
	for _, m := range matches {
		contextStart := max(0, m[0]-50)
		contextEnd := min(len(content), m[1]+50)
		window := content[contextStart:contextEnd]

		isFalsePositive := false
		for _, hint := range p.compiledHints {
			if hint.MatchString(window) {
				isFalsePositive = true
				break
			}
		}
		if isFalsePositive {
			continue
		}

		result = append(result, Finding{
			Kind:     p.Kind,
			Start:    m[0],
			End:      m[1],
			Line:     strings.Count(content[:m[0]], "\n") + 1,
			Severity: p.Severity,
			Masked:   maskValue(content[m[0]:m[1]]),
		})
	}
	return result
}

// Finding is one detected secret. The value itself is never stored; Masked
// keeps only enough to recognize which credential leaked.
type Finding struct {
	Kind     string   `json:"kind"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
	Line     int      `json:"line"`
	Severity Severity `json:"severity"`
	Masked   string   `json:"masked"`
}

// Marker returns the redaction marker written in place of this finding.
func (f Finding) Marker() string {
	return "[REDACTED: " + strings.ToUpper(f.Kind) + "]"
}

// Scanner runs the pattern corpus over text.
type Scanner struct {
	patterns []*Pattern
}

// NewScanner creates a scanner with the default pattern corpus.
func NewScanner() *Scanner {
	scanner, err := NewScannerWithPatterns(defaultPatterns())
	if err != nil {
		// The default corpus is compiled in tests; a failure here is a
		// programming error, not a runtime condition.
		panic(err)
	}
	return scanner
}

// NewScannerWithPatterns creates a scanner from a custom corpus.
func NewScannerWithPatterns(patterns []*Pattern) (*Scanner, error) {
	for _, p := range patterns {
		if err := p.Compile(); err != nil {
			return nil, err
		}
	}
	return &Scanner{patterns: patterns}, nil
}

// Scan returns every finding in text, ordered by position.
//
// Description:
//
//	All patterns run over the full text; results merge into a single
//	list sorted by start offset. Overlapping findings from different
//	patterns are all reported; Redact resolves overlaps, Scan does not.
//
// Inputs:
//   - text: The text to scan. Empty text yields no findings.
//
// Outputs:
//   - []Finding: Findings in text order. Nil when clean.
//
// Thread Safety: Safe for concurrent use.
func (s *Scanner) Scan(text string) []Finding {
	if text == "" {
		return nil
	}

	var findings []Finding
	for _, p := range s.patterns {
		findings = append(findings, p.match(text)...)
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Start != findings[j].Start {
			return findings[i].Start < findings[j].Start
		}
		// Longer span first so Redact swallows the wider match.
		return findings[i].End > findings[j].End
	})
	return findings
}

// Redact replaces every finding with its marker.
//
// Description:
//
//	Findings are applied in text order. A finding that overlaps an
//	already-redacted span is dropped from the output text but still
//	reported, so audit trails see everything the scanner saw.
//
// Inputs:
//   - text: The text to redact.
//
// Outputs:
//   - string: The text with each secret span replaced by its marker.
//   - []Finding: Everything Scan found, including overlaps.
//
// Thread Safety: Safe for concurrent use.
func (s *Scanner) Redact(text string) (string, []Finding) {
	findings := s.Scan(text)
	if len(findings) == 0 {
		return text, nil
	}

	var b strings.Builder
	b.Grow(len(text))
	cursor := 0
	for _, f := range findings {
		if f.Start < cursor {
			continue
		}
		b.WriteString(text[cursor:f.Start])
		b.WriteString(f.Marker())
		cursor = f.End
	}
	b.WriteString(text[cursor:])
	return b.String(), findings
}

// HasBlocking reports whether any finding meets the severity threshold.
func HasBlocking(findings []Finding, threshold Severity) bool {
	for _, f := range findings {
		if f.Severity.AtLeast(threshold) {
			return true
		}
	}
	return false
}

// maskValue masks a secret value for audit trails.
//
// Description:
//
//	For values of 8 bytes or fewer the whole value becomes "****". Longer
//	values keep the first 2 and last 2 characters with asterisks between,
//	enough to recognize which credential leaked without exposing it.
func maskValue(secret string) string {
	if len(secret) == 0 {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	maskLen := max(len(secret)-4, 1)
	return secret[:2] + strings.Repeat("*", maskLen) + secret[len(secret)-2:]
}
