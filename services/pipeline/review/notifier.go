// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package review

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Notification announces that an item entered the queue.
//
// It carries identifiers and counts only, never the flagged content.
type Notification struct {
	ItemID     string    `json:"item_id"`
	Status     Status    `json:"status"`
	IssueCount int       `json:"issue_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Notifier delivers queue notifications to reviewers.
//
// Implementations must treat delivery as best-effort: the queue logs a
// failed Notify and moves on, it never fails the flagging operation.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// SlogNotifier logs notifications through slog.
type SlogNotifier struct {
	logger *slog.Logger
}

// NewSlogNotifier creates a notifier writing to the given logger.
// A nil logger falls back to slog.Default().
func NewSlogNotifier(logger *slog.Logger) *SlogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogNotifier{logger: logger}
}

// Notify logs the notification at info level.
func (n *SlogNotifier) Notify(ctx context.Context, notification Notification) error {
	n.logger.InfoContext(ctx, "Review item pending",
		"item_id", notification.ItemID,
		"issue_count", notification.IssueCount,
	)
	return nil
}

var _ Notifier = (*SlogNotifier)(nil)

// Notifiers fans one notification out to several notifiers.
//
// Every notifier runs; errors are joined rather than short-circuiting,
// so one dead channel cannot silence the others.
type Notifiers []Notifier

// Notify delivers to each notifier in order.
func (ns Notifiers) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range ns {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Notifier = (Notifiers)(nil)
