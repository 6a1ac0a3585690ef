// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"context"
	"log/slog"
)

// SlogRecorder writes events to a structured logger.
//
// # Description
//
// The lightest real recorder: events land in the application log stream
// with a fixed message and one attribute per event field. Suitable when
// the log pipeline itself is the system of record.
type SlogRecorder struct {
	logger *slog.Logger
}

// NewSlogRecorder creates a recorder on the given logger.
// A nil logger falls back to slog.Default().
func NewSlogRecorder(logger *slog.Logger) *SlogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogRecorder{logger: logger}
}

// Record logs the event at Info level.
func (r *SlogRecorder) Record(ctx context.Context, event Event) error {
	event.normalize()
	r.logger.InfoContext(ctx, "Audit event",
		"event_id", event.ID,
		"kind", string(event.Kind),
		"timestamp", event.Timestamp,
		"actor_id", event.ActorID,
		"subject_id", event.SubjectID,
		"outcome", event.Outcome,
		"details", event.Details,
	)
	return nil
}

var _ Recorder = (*SlogRecorder)(nil)
