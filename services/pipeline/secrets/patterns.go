// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package secrets

// PatternVersion is the current version of the pattern corpus.
const PatternVersion = "2026.08.14"

// defaultPatterns returns the default secret detection corpus.
func defaultPatterns() []*Pattern {
	return []*Pattern{
		// Cloud provider keys
		{
			Kind:        "aws_access_key",
			Description: "AWS Access Key ID",
			Pattern:     `(?:A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}`,
			Severity:    SeverityCritical,
			FalsePositiveHints: []string{
				`(?i)example`,
				`(?i)test`,
			},
		},
		{
			Kind:        "aws_secret_key",
			Description: "AWS Secret Access Key assignment",
			Pattern:     `(?i)(?:aws)?[_-]?secret[_-]?(?:access)?[_-]?key\s*[=:]\s*["']([a-zA-Z0-9/+=]{40})["']`,
			Severity:    SeverityCritical,
		},
		{
			Kind:        "gcp_api_key",
			Description: "Google Cloud API Key",
			Pattern:     `AIza[0-9A-Za-z_-]{35}`,
			Severity:    SeverityCritical,
		},

		// Tokens
		{
			Kind:        "jwt",
			Description: "JSON Web Token",
			Pattern:     `\beyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{5,}\b`,
			Severity:    SeverityHigh,
		},
		{
			Kind:        "github_token",
			Description: "GitHub Token",
			Pattern:     `(?:ghp|gho|ghu|ghs|ghr)_[a-zA-Z0-9]{36,}`,
			Severity:    SeverityCritical,
		},
		{
			Kind:        "slack_token",
			Description: "Slack Token",
			Pattern:     `xox[baprs]-[0-9a-zA-Z-]{10,}`,
			Severity:    SeverityHigh,
		},
		{
			Kind:        "stripe_key",
			Description: "Stripe API Key",
			Pattern:     `(?:sk|pk)_(?:live|test)_[0-9a-zA-Z]{24,}`,
			Severity:    SeverityCritical,
			FalsePositiveHints: []string{
				`pk_test_`,
			},
		},

		// Key material
		{
			Kind:        "private_key",
			Description: "PEM private key block",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH )?PRIVATE KEY-----`,
			Severity:    SeverityCritical,
		},
		{
			Kind:        "hex_key",
			Description: "Long hexadecimal key material",
			Pattern:     `\b[0-9a-fA-F]{32,}\b`,
			Severity:    SeverityHigh,
			FalsePositiveHints: []string{
				`(?i)sha(?:1|256|512)?`,
				`(?i)digest`,
				`(?i)checksum`,
				`(?i)commit`,
			},
		},

		// Credentials embedded in URLs and connection strings
		{
			Kind:        "url_credentials",
			Description: "URL with embedded username and password",
			Pattern:     `[a-zA-Z][a-zA-Z0-9+.-]*://[^:/\s"']+:[^@/\s"']+@[^\s"']+`,
			Severity:    SeverityCritical,
		},
		{
			Kind:        "database_url",
			Description: "Database connection string with credentials",
			Pattern:     `(?i)(?:postgres|mysql|mongodb|redis)://[^:]+:[^@]+@[^\s"']+`,
			Severity:    SeverityCritical,
		},

		// Assignments
		{
			Kind:        "api_key",
			Description: "Generic API key assignment",
			Pattern:     `(?i)(?:api[_-]?key|apikey)\s*[=:]\s*["']([a-zA-Z0-9_\-]{20,})["']`,
			Severity:    SeverityCritical,
			FalsePositiveHints: []string{
				`(?i)example`,
				`(?i)placeholder`,
				`(?i)your[_-]?api[_-]?key`,
				`(?i)xxx+`,
			},
		},
		{
			Kind:        "password",
			Description: "Hardcoded password assignment",
			Pattern:     `(?i)(?:password|passwd|pwd)\s*[=:]\s*["']([^"']{8,})["']`,
			Severity:    SeverityCritical,
			FalsePositiveHints: []string{
				`(?i)password\s*[=:]\s*["'](?:password|test|example|changeme|xxx)["']`,
				`(?i)os\.(?:Getenv|environ)`,
			},
		},
		{
			Kind:        "generic_secret",
			Description: "Generic secret assignment",
			Pattern:     `(?i)(?:secret|token|credential)\s*[=:]\s*["']([a-zA-Z0-9_\-]{20,})["']`,
			Severity:    SeverityHigh,
			FalsePositiveHints: []string{
				`(?i)example`,
				`(?i)placeholder`,
				`(?i)your[_-]?`,
				`(?i)xxx+`,
			},
		},
	}
}
