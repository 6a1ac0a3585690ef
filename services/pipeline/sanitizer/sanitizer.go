// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sanitizer neutralizes prompt-injection content in document text
// before it reaches a model.
//
// # Description
//
// Sanitization runs three stages in a fixed order: invisible characters are
// removed, injection phrasing is replaced with a visible marker, and
// model-control markup is stripped. The whole pass repeats until the text is
// stable, so stripping can never splice fragments into a new token that a
// single pass would miss. Sanitize is total: any input, including empty or
// binary-ish text, produces a result and never an error.
//
// # Thread Safety
//
// A Sanitizer is safe for concurrent use (stateless, compiled regex).
package sanitizer

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

// InjectionMarker replaces detected injection phrasing. It survives later
// stages untouched and matches none of the phrase patterns itself.
const InjectionMarker = "[REDACTED: PROMPT_INJECTION]"

// maxPasses bounds the fixpoint loop against pathological nesting.
const maxPasses = 10

// injectionPhrases are instruction-override phrasings replaced with
// InjectionMarker wherever they appear.
var injectionPhrases = []string{
	`(?i)ignore\s+(?:all\s+)?previous\s+instructions?`,
	`(?i)disregard\s+(?:the\s+)?(?:above|previous)(?:\s+instructions?)?`,
	`(?i)forget\s+(?:everything|all|what)\s+(?:above|before|you)`,
	`(?i)you\s+are\s+now\s+a`,
	`(?i)from\s+now\s+on\s+you\s+(?:are|will)`,
	`(?i)new\s+system\s+prompt`,
	`(?i)override\s+(?:your\s+)?instructions?`,
	`(?i)important\s*:\s*ignore`,
	`(?i)reveal\s+(?:your\s+)?system\s+prompt`,
}

// controlMarkup covers chat-template tokens and role tags that must never
// flow into a prompt as document content.
var controlMarkup = []string{
	`\[INST\]`,
	`\[/INST\]`,
	`<<SYS>>`,
	`<</SYS>>`,
	`<\|im_start\|>`,
	`<\|im_end\|>`,
	`<\|system\|>`,
	`<\|user\|>`,
	`<\|assistant\|>`,
	`<\|endoftext\|>`,
	`<system>.*?</system>`,
	`<tool_call>.*?</tool_call>`,
	`<execute>.*?</execute>`,
	`<think>.*?</think>`,
}

// invisibleReplacer drops zero-width and BOM characters.
var invisibleReplacer = strings.NewReplacer(
	"​", "", // zero width space
	"‌", "", // zero width non-joiner
	"‍", "", // zero width joiner
	"⁠", "", // word joiner
	"\uFEFF", "", // byte order mark
)

// Config controls sanitization behavior.
type Config struct {
	// PreserveCodeBlocks exempts fenced code blocks from redaction and
	// stripping. Off for prompt input; turned on when rendering for human
	// reviewers, who need to see the original text of what was flagged.
	PreserveCodeBlocks bool

	// PreserveInlineCode exempts `inline code` spans.
	PreserveInlineCode bool
}

// DefaultConfig returns the input-side profile: nothing is preserved, every
// byte that will reach a model gets sanitized.
func DefaultConfig() Config {
	return Config{}
}

// ReviewDisplayConfig returns the profile for human-facing rendering.
func ReviewDisplayConfig() Config {
	return Config{
		PreserveCodeBlocks: true,
		PreserveInlineCode: true,
	}
}

// Result contains the outcome of a sanitization pass.
type Result struct {
	// Content is the sanitized text.
	Content string

	// Modified indicates whether anything changed.
	Modified bool

	// RedactedPhrases counts injection phrases replaced with the marker.
	RedactedPhrases int

	// StrippedMarkup counts control-markup tokens removed.
	StrippedMarkup int

	// RemovedInvisible counts invisible characters dropped.
	RemovedInvisible int
}

// Sanitizer neutralizes injection content with compiled patterns.
type Sanitizer struct {
	config          Config
	phrasePattern   *regexp.Regexp
	markupPattern   *regexp.Regexp
	preservePattern *regexp.Regexp
}

// New creates a sanitizer for the given config.
//
// Description:
//
//	Compiles combined regexes at construction time so each Sanitize call
//	is a scan, not a compile.
//
// Inputs:
//   - config: Sanitization behavior.
//
// Outputs:
//   - *Sanitizer: The configured sanitizer.
func New(config Config) *Sanitizer {
	s := &Sanitizer{config: config}
	s.phrasePattern = regexp.MustCompile("(" + strings.Join(injectionPhrases, "|") + ")")
	s.markupPattern = regexp.MustCompile("(?s)(" + strings.Join(controlMarkup, "|") + ")")
	s.preservePattern = s.buildPreservePattern()
	return s
}

// buildPreservePattern creates the regex for preservation zones.
func (s *Sanitizer) buildPreservePattern() *regexp.Regexp {
	var patterns []string

	if s.config.PreserveCodeBlocks {
		patterns = append(patterns, "```[\\s\\S]*?```")
	}

	if s.config.PreserveInlineCode {
		patterns = append(patterns, "`[^`]+`")
	}

	if len(patterns) == 0 {
		// No preservation, return a pattern that never matches
		return regexp.MustCompile(`^\x00$`)
	}

	combined := "(?s)(" + strings.Join(patterns, "|") + ")"
	return regexp.MustCompile(combined)
}

// Sanitize neutralizes injection content in text.
//
// Description:
//
//	Runs the three stages repeatedly until a pass changes nothing.
//	Output is stable under re-sanitization: Sanitize(Sanitize(x).Content)
//	returns Sanitize(x).Content unchanged.
//
// Inputs:
//   - text: The text to sanitize. Anything goes.
//
// Outputs:
//   - Result: Sanitized content plus what was removed.
//
// Thread Safety: Safe for concurrent use.
func (s *Sanitizer) Sanitize(text string) Result {
	result := Result{Content: text}

	for pass := 0; pass < maxPasses; pass++ {
		before := result.Content
		s.sanitizePass(&result)
		if result.Content == before {
			break
		}
		result.Modified = true
	}

	// Stripping leaves holes; collapse them. Untouched text passes through
	// byte for byte.
	if result.Modified {
		result.Content = cleanupWhitespace(result.Content)
	}

	return result
}

// cleanupWhitespace removes excessive whitespace left by stripping.
func cleanupWhitespace(content string) string {
	content = multipleNewlinesRegex.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

// Package-level compiled regex for whitespace cleanup.
var multipleNewlinesRegex = regexp.MustCompile(`\n{3,}`)

// SanitizeString returns just the sanitized text.
func (s *Sanitizer) SanitizeString(text string) string {
	return s.Sanitize(text).Content
}

// sanitizePass applies one round of all three stages, honoring zones.
func (s *Sanitizer) sanitizePass(result *Result) {
	content := result.Content

	zones := s.preservePattern.FindAllStringIndex(content, -1)
	if len(zones) == 0 {
		result.Content = s.sanitizeSegment(content, result)
		return
	}

	var builder strings.Builder
	builder.Grow(len(content))
	lastEnd := 0
	for _, zone := range zones {
		builder.WriteString(s.sanitizeSegment(content[lastEnd:zone[0]], result))
		builder.WriteString(content[zone[0]:zone[1]])
		lastEnd = zone[1]
	}
	if lastEnd < len(content) {
		builder.WriteString(s.sanitizeSegment(content[lastEnd:], result))
	}
	result.Content = builder.String()
}

// sanitizeSegment runs the fixed stage order over one unpreserved span.
func (s *Sanitizer) sanitizeSegment(segment string, result *Result) string {
	// Stage 1: invisible characters.
	cleaned := invisibleReplacer.Replace(segment)
	if cleaned != segment {
		result.RemovedInvisible += utf8.RuneCountInString(segment) - utf8.RuneCountInString(cleaned)
	}

	// Stage 2: injection phrasing.
	if s.phrasePattern.MatchString(cleaned) {
		result.RedactedPhrases += len(s.phrasePattern.FindAllStringIndex(cleaned, -1))
		cleaned = s.phrasePattern.ReplaceAllString(cleaned, InjectionMarker)
	}

	// Stage 3: control markup.
	if strings.ContainsAny(cleaned, "<[") {
		if matches := s.markupPattern.FindAllStringIndex(cleaned, -1); len(matches) > 0 {
			result.StrippedMarkup += len(matches)
			cleaned = s.markupPattern.ReplaceAllString(cleaned, "")
		}
	}

	return cleaned
}

// ContainsInjection reports whether text would be modified by Sanitize.
//
// Description:
//
//	Quick check for metrics and flagging without building the sanitized
//	text.
//
// Thread Safety: Safe for concurrent use.
func (s *Sanitizer) ContainsInjection(text string) bool {
	if invisibleReplacer.Replace(text) != text {
		return true
	}
	if s.phrasePattern.MatchString(text) {
		return true
	}
	return s.markupPattern.MatchString(text)
}

// Package-level cached sanitizer for QuickSanitize (input profile).
var (
	defaultSanitizer     *Sanitizer
	defaultSanitizerOnce sync.Once
)

func getDefaultSanitizer() *Sanitizer {
	defaultSanitizerOnce.Do(func() {
		defaultSanitizer = New(DefaultConfig())
	})
	return defaultSanitizer
}

// QuickSanitize is a package-level function for one-off sanitization.
//
// Description:
//
//	Uses a cached sanitizer with the input profile for efficient repeated
//	use. For preservation-aware sanitization, construct with New.
//
// Inputs:
//   - text: The text to sanitize.
//
// Outputs:
//   - string: Sanitized text.
//
// Thread Safety: Safe for concurrent use.
func QuickSanitize(text string) string {
	return getDefaultSanitizer().SanitizeString(text)
}
