// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package review holds generated output that tripped the validator until
// a human decides its fate.
//
// # Description
//
// Flagged content enters the queue as a PENDING item persisted to
// BadgerDB. A reviewer approves or rejects it exactly once. Approved
// content becomes retrievable through a dedicated release path; rejected
// content is cleared from the store at decision time. No read path other
// than the reviewer's ever returns the content of an undecided or
// rejected item.
//
// # Thread Safety
//
// The queue serializes work per item through Badger transactions.
// Conflicting decisions on the same item are retried and the loser
// observes the winner's decision. Different items proceed concurrently.
package review

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianScribe/services/pipeline/audit"
)

// Status is the lifecycle state of a review item.
type Status string

const (
	// StatusPending means the item awaits a reviewer decision.
	StatusPending Status = "PENDING"

	// StatusApproved means a reviewer released the content.
	StatusApproved Status = "APPROVED"

	// StatusRejected means a reviewer discarded the content.
	StatusRejected Status = "REJECTED"
)

var (
	// ErrItemNotFound is returned when no item exists for an id.
	ErrItemNotFound = errors.New("review item not found")

	// ErrAlreadyDecided is returned when deciding an item twice.
	ErrAlreadyDecided = errors.New("review item already decided")

	// ErrStillPending is returned when releasing an undecided item.
	ErrStillPending = errors.New("review item is still pending")

	// ErrRejected is returned when releasing a rejected item.
	ErrRejected = errors.New("review item was rejected")
)

// ItemIssue is one validation finding attached to a flagged item.
//
// Detail never contains the matched text itself, only a description.
type ItemIssue struct {
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Detail   string `json:"detail,omitempty"`
}

// Item is one entry in the review queue.
type Item struct {
	ID          string      `json:"id"`
	Status      Status      `json:"status"`
	Content     string      `json:"content,omitempty"`
	ContentHash string      `json:"content_hash"`
	Issues      []ItemIssue `json:"issues,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	DecidedAt   *time.Time  `json:"decided_at,omitempty"`
	Reviewer    string      `json:"reviewer,omitempty"`
	Reason      string      `json:"reason,omitempty"`
}

const itemKeyPrefix = "review/item/"

func itemKey(id string) []byte {
	return []byte(itemKeyPrefix + id)
}

// Queue is the persistent review queue.
//
// # Thread Safety
//
// Safe for concurrent use.
type Queue struct {
	store    *store
	notifier Notifier
	recorder audit.Recorder
}

// NewQueue opens a review queue backed by BadgerDB.
//
// Inputs:
//   - cfg: Store configuration. Use InMemoryStoreConfig for tests.
//   - notifier: Receives a notification when an item becomes PENDING.
//     nil disables notifications.
//   - recorder: Audit sink for flag and decide events. nil disables
//     audit recording.
//
// Outputs:
//   - *Queue: The opened queue. Caller must Close when done.
//   - error: Non-nil if the store cannot be opened.
func NewQueue(cfg StoreConfig, notifier Notifier, recorder audit.Recorder) (*Queue, error) {
	s, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	return &Queue{
		store:    s,
		notifier: notifier,
		recorder: recorder,
	}, nil
}

// Close releases the underlying store.
func (q *Queue) Close() error {
	return q.store.close()
}

// FlagForReview creates a PENDING item holding the given content.
//
// Description:
//
//	Persists the item, notifies the review channel, and returns the new
//	item id. Notification failure is logged and never propagated; the
//	item is already durable by the time the notifier runs.
//
// Inputs:
//   - ctx: Cancellation.
//   - content: The withheld output. Stored verbatim until decided.
//   - issues: The validation findings that caused the flag.
//
// Outputs:
//   - string: The new item id.
//   - error: Non-nil only if persistence fails.
func (q *Queue) FlagForReview(ctx context.Context, content string, issues []ItemIssue) (string, error) {
	sum := sha256.Sum256([]byte(content))
	item := Item{
		ID:          uuid.NewString(),
		Status:      StatusPending,
		Content:     content,
		ContentHash: hex.EncodeToString(sum[:]),
		Issues:      issues,
		CreatedAt:   time.Now().UTC(),
	}

	raw, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("failed to encode review item: %w", err)
	}

	err = q.store.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(itemKey(item.ID), raw)
	})
	if err != nil {
		return "", fmt.Errorf("failed to persist review item: %w", err)
	}

	if q.notifier != nil {
		notification := Notification{
			ItemID:     item.ID,
			Status:     StatusPending,
			IssueCount: len(item.Issues),
			CreatedAt:  item.CreatedAt,
		}
		if err := q.notifier.Notify(ctx, notification); err != nil {
			slog.WarnContext(ctx, "Review notification failed",
				"item_id", item.ID, "error", err)
		}
	}

	audit.Emit(ctx, q.recorder, audit.Event{
		Kind:      audit.EventReviewFlagged,
		SubjectID: item.ID,
		Outcome:   audit.OutcomeQueued,
		Details: map[string]any{
			"issue_count":  len(item.Issues),
			"content_hash": item.ContentHash,
		},
	})

	return item.ID, nil
}

// Decide resolves a PENDING item. It is the only mutator of status.
//
// Description:
//
//	Approval makes the content retrievable through Approved. Rejection
//	clears the stored content in the same transaction that records the
//	decision, so the plaintext of a rejected item never outlives it.
//	Deciding an already-decided item fails with ErrAlreadyDecided.
//
// Inputs:
//   - ctx: Cancellation.
//   - id: Item id returned by FlagForReview.
//   - approve: true approves, false rejects.
//   - reviewer: Identity recorded with the decision.
//   - reason: Free-form decision note.
//
// Outputs:
//   - error: ErrItemNotFound, ErrAlreadyDecided, or a storage error.
func (q *Queue) Decide(ctx context.Context, id string, approve bool, reviewer, reason string) error {
	err := q.store.update(ctx, func(txn *badger.Txn) error {
		item, err := readItem(txn, id)
		if err != nil {
			return err
		}
		if item.Status != StatusPending {
			return fmt.Errorf("%w: %s is %s", ErrAlreadyDecided, id, item.Status)
		}

		now := time.Now().UTC()
		item.DecidedAt = &now
		item.Reviewer = reviewer
		item.Reason = reason
		if approve {
			item.Status = StatusApproved
		} else {
			item.Status = StatusRejected
			item.Content = ""
		}

		raw, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to encode review item: %w", err)
		}
		return txn.Set(itemKey(id), raw)
	})
	if err != nil {
		return err
	}

	outcome := "rejected"
	if approve {
		outcome = "approved"
	}
	audit.Emit(ctx, q.recorder, audit.Event{
		Kind:      audit.EventReviewDecided,
		ActorID:   reviewer,
		SubjectID: id,
		Outcome:   outcome,
		Details:   map[string]any{"reason": reason},
	})

	return nil
}

// Get returns an item with its content withheld unless APPROVED.
func (q *Queue) Get(ctx context.Context, id string) (*Item, error) {
	item, err := q.getStored(ctx, id)
	if err != nil {
		return nil, err
	}
	redactUnlessApproved(item)
	return item, nil
}

// GetForReview returns an item with its content intact.
//
// This is the reviewer's read path: a decision requires seeing the
// content. Rejected items were cleared at decision time, so even this
// path cannot resurrect them.
func (q *Queue) GetForReview(ctx context.Context, id string) (*Item, error) {
	return q.getStored(ctx, id)
}

// Approved releases the content of an approved item.
//
// Outputs:
//   - string: The content, only when the item is APPROVED.
//   - error: ErrItemNotFound, ErrStillPending, or ErrRejected otherwise.
func (q *Queue) Approved(ctx context.Context, id string) (string, error) {
	item, err := q.getStored(ctx, id)
	if err != nil {
		return "", err
	}

	switch item.Status {
	case StatusApproved:
		return item.Content, nil
	case StatusPending:
		return "", fmt.Errorf("%w: %s", ErrStillPending, id)
	default:
		return "", fmt.Errorf("%w: %s", ErrRejected, id)
	}
}

// List returns items filtered by status, oldest first.
//
// Passing an empty status returns every item. Content is withheld
// unless the item is APPROVED.
func (q *Queue) List(ctx context.Context, status Status) ([]Item, error) {
	var items []Item

	err := q.store.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(itemKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var item Item
				if err := json.Unmarshal(val, &item); err != nil {
					return fmt.Errorf("failed to decode review item: %w", err)
				}
				if status != "" && item.Status != status {
					return nil
				}
				redactUnlessApproved(&item)
				items = append(items, item)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	return items, nil
}

// getStored loads an item as persisted.
func (q *Queue) getStored(ctx context.Context, id string) (*Item, error) {
	var item *Item
	err := q.store.view(ctx, func(txn *badger.Txn) error {
		found, err := readItem(txn, id)
		if err != nil {
			return err
		}
		item = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// readItem loads and decodes an item inside a transaction.
func readItem(txn *badger.Txn, id string) (*Item, error) {
	entry, err := txn.Get(itemKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read review item: %w", err)
	}

	var item Item
	err = entry.Value(func(val []byte) error {
		return json.Unmarshal(val, &item)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode review item: %w", err)
	}
	return &item, nil
}

func redactUnlessApproved(item *Item) {
	if item.Status != StatusApproved {
		item.Content = ""
	}
}
