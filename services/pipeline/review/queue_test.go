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
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianScribe/services/pipeline/audit"
)

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu  sync.Mutex
	got []Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, notification)
	return nil
}

func (n *recordingNotifier) notifications() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.got...)
}

// failingNotifier always fails delivery.
type failingNotifier struct{}

func (failingNotifier) Notify(ctx context.Context, n Notification) error {
	return errors.New("channel down")
}

// captureRecorder collects audit events for assertions.
type captureRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *captureRecorder) Record(ctx context.Context, event audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *captureRecorder) recorded() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event(nil), r.events...)
}

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := NewQueue(InMemoryStoreConfig(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

var testIssues = []ItemIssue{
	{Kind: "PII_LEAKAGE", Severity: "HIGH", Detail: "EMAIL_ADDRESS (high confidence): 1 match(es)"},
}

// TestQueue_FlagForReview verifies item creation and the PENDING read view.
func TestQueue_FlagForReview(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.FlagForReview(ctx, "the withheld output", testIssues)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err, "item id should be a uuid")

	item, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, item.Status)
	assert.Empty(t, item.Content, "pending content must not leave the store")
	assert.NotEmpty(t, item.ContentHash)
	assert.Equal(t, testIssues, item.Issues)
	assert.False(t, item.CreatedAt.IsZero())
	assert.Nil(t, item.DecidedAt)
}

// TestQueue_GetForReview verifies the reviewer path sees the content.
func TestQueue_GetForReview(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.FlagForReview(ctx, "the withheld output", testIssues)
	require.NoError(t, err)

	item, err := q.GetForReview(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "the withheld output", item.Content)
}

// TestQueue_ApproveReleasesContent verifies the approval release path.
func TestQueue_ApproveReleasesContent(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.FlagForReview(ctx, "the withheld output", testIssues)
	require.NoError(t, err)

	// Undecided items cannot be released.
	_, err = q.Approved(ctx, id)
	assert.ErrorIs(t, err, ErrStillPending)

	err = q.Decide(ctx, id, true, "alice", "verified with the doc owner")
	require.NoError(t, err)

	content, err := q.Approved(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "the withheld output", content)

	item, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, item.Status)
	assert.Equal(t, "the withheld output", item.Content)
	assert.Equal(t, "alice", item.Reviewer)
	require.NotNil(t, item.DecidedAt)
}

// TestQueue_RejectClearsContent verifies rejected content is gone from the store.
func TestQueue_RejectClearsContent(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.FlagForReview(ctx, "the withheld output", testIssues)
	require.NoError(t, err)

	err = q.Decide(ctx, id, false, "alice", "contains a personal address")
	require.NoError(t, err)

	_, err = q.Approved(ctx, id)
	assert.ErrorIs(t, err, ErrRejected)

	// Even the reviewer path cannot resurrect rejected content.
	item, err := q.GetForReview(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, item.Status)
	assert.Empty(t, item.Content)
	assert.Equal(t, "contains a personal address", item.Reason)
}

// TestQueue_DecideTwiceFails verifies a decision is final.
func TestQueue_DecideTwiceFails(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.FlagForReview(ctx, "the withheld output", testIssues)
	require.NoError(t, err)

	require.NoError(t, q.Decide(ctx, id, false, "alice", ""))

	err = q.Decide(ctx, id, true, "bob", "trying to flip it")
	assert.ErrorIs(t, err, ErrAlreadyDecided)

	// The original decision stands.
	item, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, item.Status)
	assert.Equal(t, "alice", item.Reviewer)
}

// TestQueue_UnknownItem verifies missing-item errors across read paths.
func TestQueue_UnknownItem(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Get(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = q.Approved(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrItemNotFound)

	err = q.Decide(ctx, "no-such-id", true, "alice", "")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

// TestQueue_List verifies filtering, ordering, and redaction.
func TestQueue_List(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	first, err := q.FlagForReview(ctx, "first", testIssues)
	require.NoError(t, err)
	second, err := q.FlagForReview(ctx, "second", testIssues)
	require.NoError(t, err)
	third, err := q.FlagForReview(ctx, "third", testIssues)
	require.NoError(t, err)

	require.NoError(t, q.Decide(ctx, second, true, "alice", ""))

	pending, err := q.List(ctx, StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	pendingIDs := []string{pending[0].ID, pending[1].ID}
	assert.ElementsMatch(t, []string{first, third}, pendingIDs)
	for _, item := range pending {
		assert.Empty(t, item.Content)
	}

	all, err := q.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CreatedAt.Before(all[i-1].CreatedAt),
			"items should be oldest first")
	}

	approved, err := q.List(ctx, StatusApproved)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, second, approved[0].ID)
	assert.Equal(t, "second", approved[0].Content)
}

// TestQueue_NotifierReceivesPendingEvent verifies the notification side effect.
func TestQueue_NotifierReceivesPendingEvent(t *testing.T) {
	notifier := &recordingNotifier{}
	q, err := NewQueue(InMemoryStoreConfig(), notifier, nil)
	require.NoError(t, err)
	defer q.Close()

	id, err := q.FlagForReview(context.Background(), "the withheld output", testIssues)
	require.NoError(t, err)

	got := notifier.notifications()
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ItemID)
	assert.Equal(t, StatusPending, got[0].Status)
	assert.Equal(t, 1, got[0].IssueCount)
}

// TestQueue_NotifierFailureDoesNotPropagate verifies flagging survives a dead channel.
func TestQueue_NotifierFailureDoesNotPropagate(t *testing.T) {
	q, err := NewQueue(InMemoryStoreConfig(), failingNotifier{}, nil)
	require.NoError(t, err)
	defer q.Close()

	ctx := context.Background()
	id, err := q.FlagForReview(ctx, "the withheld output", testIssues)
	require.NoError(t, err)

	// The item is durable regardless of the notifier.
	item, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, item.Status)
}

// TestQueue_AuditEvents verifies flag and decide audit emissions.
func TestQueue_AuditEvents(t *testing.T) {
	recorder := &captureRecorder{}
	q, err := NewQueue(InMemoryStoreConfig(), nil, recorder)
	require.NoError(t, err)
	defer q.Close()

	ctx := context.Background()
	id, err := q.FlagForReview(ctx, "the withheld output", testIssues)
	require.NoError(t, err)
	require.NoError(t, q.Decide(ctx, id, true, "alice", "fine"))

	events := recorder.recorded()
	require.Len(t, events, 2)

	flagged := events[0]
	assert.Equal(t, audit.EventReviewFlagged, flagged.Kind)
	assert.Equal(t, id, flagged.SubjectID)
	assert.Equal(t, audit.OutcomeQueued, flagged.Outcome)
	assert.Equal(t, 1, flagged.Details["issue_count"])
	assert.NotContains(t, flagged.Details, "content",
		"audit events must never carry the flagged content")

	decided := events[1]
	assert.Equal(t, audit.EventReviewDecided, decided.Kind)
	assert.Equal(t, "alice", decided.ActorID)
	assert.Equal(t, id, decided.SubjectID)
	assert.Equal(t, "approved", decided.Outcome)
}

// TestQueue_ConcurrentDecides verifies exactly one decision wins.
func TestQueue_ConcurrentDecides(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.FlagForReview(ctx, "the withheld output", testIssues)
	require.NoError(t, err)

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs <- q.Decide(ctx, id, n%2 == 0, "reviewer", "")
		}(i)
	}
	wg.Wait()
	close(errs)

	var wins int
	for err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyDecided)
		}
	}
	assert.Equal(t, 1, wins, "exactly one decision should win")

	item, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.NotEqual(t, StatusPending, item.Status)
}

// TestQueue_PersistsAcrossReopen verifies items survive a restart.
func TestQueue_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultStoreConfig()
	cfg.Path = dir

	q, err := NewQueue(cfg, nil, nil)
	require.NoError(t, err)

	id, err := q.FlagForReview(context.Background(), "the withheld output", testIssues)
	require.NoError(t, err)
	require.NoError(t, q.Close())

	q2, err := NewQueue(cfg, nil, nil)
	require.NoError(t, err)
	defer q2.Close()

	item, err := q2.GetForReview(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, item.Status)
	assert.Equal(t, "the withheld output", item.Content)
}

// TestQueue_RequiresPath verifies persistent mode demands a path.
func TestQueue_RequiresPath(t *testing.T) {
	_, err := NewQueue(StoreConfig{InMemory: false}, nil, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

// TestNotifiers_Fanout verifies every notifier runs and errors are joined.
func TestNotifiers_Fanout(t *testing.T) {
	recording := &recordingNotifier{}
	fanout := Notifiers{failingNotifier{}, recording, nil}

	err := fanout.Notify(context.Background(), Notification{ItemID: "abc"})
	assert.Error(t, err, "the failing notifier's error should surface")
	require.Len(t, recording.notifications(), 1,
		"later notifiers should still run")
}
