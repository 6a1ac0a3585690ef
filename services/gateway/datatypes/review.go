// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// decisionValidate is the validator instance for review datatypes.
var decisionValidate = validator.New()

// DecisionRequest represents a reviewer's verdict on a queued item.
//
// # Description
//
// Body for POST /v1/reviews/:id/decision. The reviewer identity is taken
// from the authenticated request, never from the body, so a client cannot
// attribute a decision to someone else.
//
// # Validation
//
//   - Decision: required, "approve" or "reject"
//   - Reason: optional free text, at most 1024 characters
type DecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Reason   string `json:"reason" validate:"omitempty,max=1024"`
}

// Validate validates the DecisionRequest fields.
func (r *DecisionRequest) Validate() error {
	return decisionValidate.Struct(r)
}

// Approve reports whether the decision releases the content.
func (r *DecisionRequest) Approve() bool {
	return r.Decision == "approve"
}
