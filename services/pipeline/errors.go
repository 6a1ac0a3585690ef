// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianScribe/services/pipeline/secrets"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/validator"
)

// Downstream collaborators named in UnavailableError.Component.
const (
	componentGeneration  = "generation service"
	componentReviewQueue = "review queue"
)

// UnavailableError reports that a transform could not finish because a
// downstream collaborator was down or overloaded. The message carries no
// downstream detail; the full cause goes to the log and the audit trail
// instead.
type UnavailableError struct {
	// Component names the collaborator that failed.
	Component string

	// Attempts is how many calls ran before giving up. Zero when the
	// circuit breaker rejected the call outright.
	Attempts int

	// CircuitOpen is true when the breaker refused to admit the call.
	CircuitOpen bool
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	if e.CircuitOpen {
		return fmt.Sprintf("%s unavailable: circuit open", e.Component)
	}
	if e.Attempts > 0 {
		return fmt.Sprintf("%s unavailable after %d attempt(s)", e.Component, e.Attempts)
	}
	return fmt.Sprintf("%s unavailable", e.Component)
}

// Retryable marks the condition as transient so callers that retry whole
// transforms classify it correctly.
func (e *UnavailableError) Retryable() bool { return true }

// IsUnavailable checks whether an error is an UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// SecurityBlockedError reports that generated output was withheld after
// validation found a critical security issue. The output itself is never
// attached; issue details are value-free.
type SecurityBlockedError struct {
	Issues []validator.Issue
}

// Error implements the error interface.
func (e *SecurityBlockedError) Error() string {
	blocking := 0
	for _, issue := range e.Issues {
		if issue.Severity.AtLeast(secrets.SeverityCritical) {
			blocking++
		}
	}
	return fmt.Sprintf("output withheld: %d critical security issue(s)", blocking)
}

// IsSecurityBlocked checks whether an error is a SecurityBlockedError.
func IsSecurityBlocked(err error) bool {
	var sbe *SecurityBlockedError
	return errors.As(err, &sbe)
}

// GetSecurityIssues extracts the validation issues from a
// SecurityBlockedError, or returns nil for any other error.
func GetSecurityIssues(err error) []validator.Issue {
	var sbe *SecurityBlockedError
	if errors.As(err, &sbe) {
		return sbe.Issues
	}
	return nil
}
