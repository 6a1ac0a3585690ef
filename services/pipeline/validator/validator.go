// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validator classifies residual risk in generated output.
//
// # Description
//
// The validator is the last automated gate before generated content leaves
// the pipeline. It runs four independent checks over the output text: a
// secret scan, a personal-data pattern scan, a refusal-phrase check, and a
// lightweight format shape check. Each check contributes zero or more
// issues; the aggregate decides whether the content is released, queued
// for human review, or withheld entirely.
//
// Validation is pure. It never mutates the output, performs no I/O, and
// leaves the release decision to the caller.
//
// # Thread Safety
//
// An OutputValidator is safe for concurrent use after construction.
package validator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianScribe/services/pipeline/secrets"
)

// IssueKind identifies the category of a validation issue.
type IssueKind string

const (
	// IssueSecretLeakage means the output contains credential material.
	IssueSecretLeakage IssueKind = "SECRET_LEAKAGE"

	// IssuePIILeakage means the output contains personal-data patterns.
	IssuePIILeakage IssueKind = "PII_LEAKAGE"

	// IssueSuspiciousContent means the output contains refusal or
	// meta-instruction phrasing, a sign the model reacted to injected
	// instructions rather than transforming the document.
	IssueSuspiciousContent IssueKind = "SUSPICIOUS_CONTENT"

	// IssueFormatViolation means the output does not match the expected
	// shape for the requested format.
	IssueFormatViolation IssueKind = "FORMAT_VIOLATION"
)

// Format names the output shape a transform request asked for.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat converts a string into a Format.
//
// Inputs:
//   - s: The raw format string, case-insensitive.
//
// Outputs:
//   - Format: The parsed format.
//   - error: Non-nil if s names no known format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatText:
		return FormatText, nil
	case FormatMarkdown:
		return FormatMarkdown, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format: %q", s)
	}
}

// MinOutputLength is the minimum plausible length for transformed output.
// Anything shorter is almost certainly a truncated or degenerate response.
const MinOutputLength = 20

// MaxOutputLength caps how large a single transformed output may be.
const MaxOutputLength = 1 << 20

// Issue is a single problem found in generated output.
type Issue struct {
	Kind     IssueKind        `json:"kind"`
	Severity secrets.Severity `json:"severity"`

	// Detail describes the issue for a human reviewer. It never contains
	// the matched text itself; validation results travel through audit
	// logs, and a leaked value must not leak a second time there.
	Detail string `json:"detail,omitempty"`
}

// String returns a compact form for logs.
func (i Issue) String() string {
	return string(i.Kind) + "(" + string(i.Severity) + ")"
}

// Result aggregates the issues found in one validation pass.
type Result struct {
	// Issues holds every issue found, in check order: secrets first, then
	// personal data, then suspicious content, then format.
	Issues []Issue `json:"issues,omitempty"`

	// Audience is the target audience the output was generated for,
	// carried through for audit trails.
	Audience string `json:"audience,omitempty"`

	// RequiresManualReview is true when any issue is HIGH or CRITICAL.
	RequiresManualReview bool `json:"requires_manual_review"`

	// Blocked is true when any issue is CRITICAL. Blocked content must
	// never reach a requester or the review queue.
	Blocked bool `json:"blocked"`
}

// Summary returns all issues joined for logs, or "clean" if none.
func (r *Result) Summary() string {
	if len(r.Issues) == 0 {
		return "clean"
	}
	parts := make([]string, len(r.Issues))
	for i, issue := range r.Issues {
		parts[i] = issue.String()
	}
	return strings.Join(parts, "; ")
}

// refusalPhrases are lowercase substrings that indicate the model refused
// or commented on its instructions instead of transforming the document.
// Generic error vocabulary ("error:", "failed to") is deliberately absent;
// technical documents discuss errors legitimately.
var refusalPhrases = []string{
	"i cannot comply",
	"i can't comply",
	"i cannot assist with",
	"i'm unable to",
	"i am unable to",
	"i must decline",
	"as an ai",
	"as a language model",
	"as an artificial intelligence",
	"my instructions say",
	"my system prompt",
	"prompt injection",
	"ignore the above instructions",
}

// OutputValidator runs the post-generation checks.
//
// Description:
//
//	The validator owns a compiled secret scanner and the compiled
//	personal-data corpus. Construct it once and share it; construction
//	compiles every regex in the embedded pattern file.
//
// Thread Safety:
//
//	Safe for concurrent use after construction.
type OutputValidator struct {
	scanner *secrets.Scanner
	pii     []PIIPattern
}

// New creates a validator from the embedded personal-data corpus.
//
// Outputs:
//   - *OutputValidator: A ready validator.
//   - error: Non-nil if the embedded corpus is malformed or a regex
//     fails to compile.
func New() (*OutputValidator, error) {
	file, err := loadPIIPatterns()
	if err != nil {
		return nil, err
	}
	return &OutputValidator{
		scanner: secrets.NewScanner(),
		pii:     file.Patterns,
	}, nil
}

// MustNew is New but panics on error. The corpus is embedded at compile
// time, so a failure here is a programming error, not a runtime condition.
func MustNew() *OutputValidator {
	v, err := New()
	if err != nil {
		panic("validator: " + err.Error())
	}
	return v
}

// Validate runs every check over a generated output.
//
// Description:
//
//	The four checks run independently; no check short-circuits another.
//	The derived booleans follow from issue severities alone:
//	RequiresManualReview when any issue is HIGH or worse, Blocked when
//	any issue is CRITICAL.
//
// Inputs:
//   - output: The raw generated text, before redaction. Severity has to
//     reflect what the model actually produced; callers ship the redacted
//     copy separately.
//   - expectedFormat: The shape the request asked for. Unknown formats
//     get the plain-text checks only.
//   - audience: The target audience, recorded on the result for audit.
//
// Outputs:
//   - *Result: The aggregated issues and derived decision booleans.
func (v *OutputValidator) Validate(output string, expectedFormat Format, audience string) *Result {
	result := &Result{Audience: audience}

	result.Issues = append(result.Issues, v.checkSecrets(output)...)
	result.Issues = append(result.Issues, v.checkPII(output)...)
	result.Issues = append(result.Issues, v.checkSuspicious(output)...)
	result.Issues = append(result.Issues, checkFormat(output, expectedFormat)...)

	for _, issue := range result.Issues {
		if issue.Severity.AtLeast(secrets.SeverityHigh) {
			result.RequiresManualReview = true
		}
		if issue.Severity.AtLeast(secrets.SeverityCritical) {
			result.Blocked = true
		}
	}
	return result
}

// checkSecrets maps each secret finding in the output to an issue.
// Severity carries over from the finding: credential-shaped kinds arrive
// CRITICAL and block release, generic token kinds arrive lower and queue
// for review instead.
func (v *OutputValidator) checkSecrets(output string) []Issue {
	findings := v.scanner.Scan(output)
	issues := make([]Issue, 0, len(findings))
	for _, f := range findings {
		issues = append(issues, Issue{
			Kind:     IssueSecretLeakage,
			Severity: f.Severity,
			Detail:   fmt.Sprintf("%s at line %d", f.Kind, f.Line),
		})
	}
	return issues
}

// checkPII raises one issue per personal-data pattern that matched,
// with a match count rather than one issue per occurrence.
func (v *OutputValidator) checkPII(output string) []Issue {
	var issues []Issue
	for i := range v.pii {
		p := &v.pii[i]
		matches := p.matchCount(output)
		if matches == 0 {
			continue
		}
		issues = append(issues, Issue{
			Kind:     IssuePIILeakage,
			Severity: secrets.SeverityHigh,
			Detail:   fmt.Sprintf("%s (%s confidence): %d match(es)", p.Id, p.Confidence, matches),
		})
	}
	return issues
}

// checkSuspicious reports the first refusal phrase found, if any.
func (v *OutputValidator) checkSuspicious(output string) []Issue {
	lower := strings.ToLower(output)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return []Issue{{
				Kind:     IssueSuspiciousContent,
				Severity: secrets.SeverityHigh,
				Detail:   fmt.Sprintf("output contains %q", phrase),
			}}
		}
	}
	return nil
}

// checkFormat verifies the output roughly matches the requested shape.
func checkFormat(output string, expectedFormat Format) []Issue {
	var issues []Issue

	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return []Issue{{
			Kind:     IssueFormatViolation,
			Severity: secrets.SeverityLow,
			Detail:   "output is empty",
		}}
	}
	if len(trimmed) < MinOutputLength {
		issues = append(issues, Issue{
			Kind:     IssueFormatViolation,
			Severity: secrets.SeverityLow,
			Detail:   fmt.Sprintf("output is %d bytes, below minimum %d", len(trimmed), MinOutputLength),
		})
	}
	if len(output) > MaxOutputLength {
		issues = append(issues, Issue{
			Kind:     IssueFormatViolation,
			Severity: secrets.SeverityLow,
			Detail:   fmt.Sprintf("output is %d bytes, above maximum %d", len(output), MaxOutputLength),
		})
	}

	switch expectedFormat {
	case FormatJSON:
		if !json.Valid([]byte(trimmed)) {
			issues = append(issues, Issue{
				Kind:     IssueFormatViolation,
				Severity: secrets.SeverityLow,
				Detail:   "output is not valid JSON",
			})
		}
	case FormatMarkdown:
		if strings.Count(output, "```")%2 != 0 {
			issues = append(issues, Issue{
				Kind:     IssueFormatViolation,
				Severity: secrets.SeverityLow,
				Detail:   "unclosed code fence",
			})
		}
	}
	return issues
}
