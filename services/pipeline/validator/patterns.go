// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validator

import (
	_ "embed"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// piiPatternsYAML holds the raw byte content of the 'pii_patterns.yaml' file.
//
// This variable is populated at compile-time using the Go 'embed' directive. Baking the
// corpus into the binary keeps the personal-data rules immutable at runtime; they cannot
// be weakened on the host filesystem without recompiling the application.
//
//go:embed pii_patterns.yaml
var piiPatternsYAML []byte

// ConfidenceLevel grades how reliably a pattern indicates personal data.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// UnmarshalYAML rejects confidence values outside the known set, so a typo
// in the corpus fails construction instead of silently degrading a pattern.
func (c *ConfidenceLevel) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	incoming := ConfidenceLevel(s)
	switch incoming {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		*c = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for Confidence: %q", incoming)
	}
}

// PIIPatternFile is the top-level structure of the embedded corpus.
type PIIPatternFile struct {
	Patterns []PIIPattern `yaml:"patterns"`
}

// PIIPattern is one personal-data detector from the corpus.
type PIIPattern struct {
	Id              string          `yaml:"id"`
	Description     string          `yaml:"description"`
	Regex           string          `yaml:"regex"`
	Confidence      ConfidenceLevel `yaml:"confidence"`
	compiledPattern *regexp.Regexp  `yaml:"-"`
}

// matchCount returns how many times the pattern occurs in text.
func (p *PIIPattern) matchCount(text string) int {
	return len(p.compiledPattern.FindAllStringIndex(text, -1))
}

// CompileRegexes compiles every pattern in the file.
func (f *PIIPatternFile) CompileRegexes() error {
	for i := range f.Patterns {
		pattern := &f.Patterns[i]
		re, err := regexp.Compile(pattern.Regex)
		if err != nil {
			return fmt.Errorf("failed to compile the regex %s: %w", pattern.Regex, err)
		}
		pattern.compiledPattern = re
	}
	return nil
}

// loadPIIPatterns parses and compiles the embedded corpus.
func loadPIIPatterns() (*PIIPatternFile, error) {
	var file PIIPatternFile
	if err := yaml.Unmarshal(piiPatternsYAML, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded pattern file: %w", err)
	}
	if err := file.CompileRegexes(); err != nil {
		return nil, err
	}
	return &file, nil
}
