// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file implements the interactive review queue browser using
// bubbletea. Reviewers can walk the queue, inspect quarantined content,
// and approve or reject items without leaving the terminal. A websocket
// subscription to the gateway keeps the listing live while the browser
// is open.
//
// # Thread Safety
//
// The model is single-threaded inside the bubbletea event loop. The
// websocket reader runs on its own goroutine and only communicates
// through Program.Send.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianScribe/pkg/ux"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/review"
)

// =============================================================================
// View Mode
// =============================================================================

// queueViewMode determines what the browser is showing.
type queueViewMode int

const (
	// viewQueue shows the item listing.
	viewQueue queueViewMode = iota

	// viewItem shows one item with its quarantined content.
	viewItem

	// viewReason collects the reason text for a pending decision.
	viewReason
)

// =============================================================================
// Messages
// =============================================================================

// queueLoadedMsg carries a fresh snapshot of all three status lists.
type queueLoadedMsg struct {
	lists map[review.Status][]review.Item
	err   error
}

// itemLoadedMsg carries one fully loaded item.
type itemLoadedMsg struct {
	item *review.Item
	err  error
}

// decidedMsg reports the outcome of an approve or reject call.
type decidedMsg struct {
	item     *review.Item
	decision string
	err      error
}

// queueEventMsg is a live gateway notification about queue activity.
type queueEventMsg struct {
	note review.Notification
}

// streamDownMsg reports that the live subscription is unavailable.
type streamDownMsg struct {
	err error
}

// =============================================================================
// Model
// =============================================================================

// reviewModel is the bubbletea model for the review queue browser.
type reviewModel struct {
	client *gatewayClient

	// Queue snapshot, one list per status
	lists  map[review.Status][]review.Item
	filter review.Status
	cursor int

	// Detail state
	current *review.Item

	// Pending decision while the reason is typed
	pendingDecision string
	pendingItemID   string
	reasonInput     textinput.Model

	viewMode queueViewMode
	viewport viewport.Model

	width  int
	height int

	ready      bool
	statusLine string
	quitting   bool
}

// newReviewModel creates a browser model backed by the given client.
func newReviewModel(client *gatewayClient) reviewModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 1024
	ti.Width = 80

	return reviewModel{
		client:      client,
		lists:       make(map[review.Status][]review.Item),
		filter:      review.StatusPending,
		reasonInput: ti,
		viewMode:    viewQueue,
	}
}

// Init implements tea.Model.
func (m reviewModel) Init() tea.Cmd {
	return m.loadQueueCmd()
}

// Update implements tea.Model.
func (m reviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 3
		footerHeight := 3
		viewportHeight := m.height - headerHeight - footerHeight

		if !m.ready {
			m.viewport = viewport.New(m.width, viewportHeight)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = viewportHeight
		}
		m.updateViewportContent()

	case tea.KeyMsg:
		// The reason prompt owns the keyboard while it is open
		if m.viewMode == viewReason {
			return m.handleReasonInput(msg)
		}

		switch msg.String() {
		case "q", "Q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "esc":
			if m.viewMode == viewItem {
				m.viewMode = viewQueue
				m.current = nil
			}

		case "j", "down":
			if m.viewMode == viewQueue {
				return m.moveCursor(1)
			}
			m.viewport.LineDown(1)

		case "k", "up":
			if m.viewMode == viewQueue {
				return m.moveCursor(-1)
			}
			m.viewport.LineUp(1)

		case "ctrl+d":
			m.viewport.HalfViewDown()

		case "ctrl+u":
			m.viewport.HalfViewUp()

		case "enter":
			if m.viewMode == viewQueue {
				return m.openSelected()
			}

		case "tab":
			if m.viewMode == viewQueue {
				m.cycleFilter()
			}

		case "r":
			m.statusLine = "Refreshing..."
			return m, m.loadQueueCmd()

		case "y", "Y":
			return m.startDecision("approve")

		case "n", "N":
			return m.startDecision("reject")
		}

	case queueLoadedMsg:
		if msg.err != nil {
			m.statusLine = fmt.Sprintf("Load failed: %v", msg.err)
			return m, nil
		}
		m.lists = msg.lists
		m.clampCursor()
		m.statusLine = fmt.Sprintf("Updated %s", time.Now().Format("15:04:05"))
		m.updateViewportContent()

	case itemLoadedMsg:
		if msg.err != nil {
			m.statusLine = fmt.Sprintf("Could not open the item: %v", msg.err)
			return m, nil
		}
		m.current = msg.item
		m.viewMode = viewItem
		m.viewport.GotoTop()
		m.updateViewportContent()

	case decidedMsg:
		if msg.err != nil {
			m.statusLine = fmt.Sprintf("Decision failed: %v", msg.err)
		} else {
			m.statusLine = fmt.Sprintf("Recorded %s for %s", msg.decision, msg.item.ID)
		}
		m.viewMode = viewQueue
		m.current = nil
		return m, m.loadQueueCmd()

	case queueEventMsg:
		m.statusLine = fmt.Sprintf("Queue activity: %s is %s",
			msg.note.ItemID, strings.ToLower(string(msg.note.Status)))
		return m, m.loadQueueCmd()

	case streamDownMsg:
		m.statusLine = "Live updates unavailable, refresh with r"
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m reviewModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Connecting to the gateway...\n"
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch m.viewMode {
	case viewQueue:
		b.WriteString(m.renderQueue())
	case viewReason:
		b.WriteString(m.renderReason())
	default:
		b.WriteString(m.viewport.View())
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

// =============================================================================
// Navigation and Actions
// =============================================================================

func (m *reviewModel) moveCursor(delta int) (reviewModel, tea.Cmd) {
	items := m.lists[m.filter]
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= len(items) {
		m.cursor = len(items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	return *m, nil
}

func (m *reviewModel) clampCursor() {
	items := m.lists[m.filter]
	if m.cursor >= len(items) {
		m.cursor = len(items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *reviewModel) cycleFilter() {
	switch m.filter {
	case review.StatusPending:
		m.filter = review.StatusApproved
	case review.StatusApproved:
		m.filter = review.StatusRejected
	default:
		m.filter = review.StatusPending
	}
	m.cursor = 0
}

// openSelected loads the item under the cursor for inspection.
func (m *reviewModel) openSelected() (reviewModel, tea.Cmd) {
	items := m.lists[m.filter]
	if len(items) == 0 || m.cursor >= len(items) {
		return *m, nil
	}
	return *m, m.loadItemCmd(items[m.cursor].ID)
}

// startDecision opens the reason prompt for the item in focus. Only
// pending items can be decided.
func (m *reviewModel) startDecision(decision string) (reviewModel, tea.Cmd) {
	target := m.focusedItem()
	if target == nil {
		return *m, nil
	}
	if target.Status != review.StatusPending {
		m.statusLine = "That item was already decided"
		return *m, nil
	}

	m.pendingDecision = decision
	m.pendingItemID = target.ID
	m.reasonInput.SetValue("")
	m.reasonInput.Focus()
	m.viewMode = viewReason
	return *m, textinput.Blink
}

// focusedItem returns the item a decision would apply to: the open
// detail item, or the one under the queue cursor.
func (m *reviewModel) focusedItem() *review.Item {
	if m.viewMode == viewItem && m.current != nil {
		return m.current
	}
	items := m.lists[m.filter]
	if len(items) == 0 || m.cursor >= len(items) {
		return nil
	}
	return &items[m.cursor]
}

// handleReasonInput runs the keyboard while the reason prompt is open.
func (m reviewModel) handleReasonInput(msg tea.KeyMsg) (reviewModel, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		decision := m.pendingDecision
		itemID := m.pendingItemID
		reason := strings.TrimSpace(m.reasonInput.Value())
		m.pendingDecision = ""
		m.pendingItemID = ""
		m.reasonInput.Blur()
		m.viewMode = viewQueue
		m.statusLine = fmt.Sprintf("Recording %s for %s...", decision, itemID)
		return m, m.decideCmd(itemID, decision, reason)

	case tea.KeyEsc, tea.KeyCtrlC:
		m.pendingDecision = ""
		m.pendingItemID = ""
		m.reasonInput.Blur()
		if m.current != nil {
			m.viewMode = viewItem
		} else {
			m.viewMode = viewQueue
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.reasonInput, cmd = m.reasonInput.Update(msg)
	return m, cmd
}

// =============================================================================
// Commands
// =============================================================================

// loadQueueCmd snapshots all three status lists in one round trip set.
func (m reviewModel) loadQueueCmd() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		lists := make(map[review.Status][]review.Item, 3)
		for _, status := range []review.Status{
			review.StatusPending, review.StatusApproved, review.StatusRejected,
		} {
			items, err := client.ListReviews(context.Background(), strings.ToLower(string(status)))
			if err != nil {
				return queueLoadedMsg{err: err}
			}
			lists[status] = items
		}
		return queueLoadedMsg{lists: lists}
	}
}

func (m reviewModel) loadItemCmd(id string) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		item, err := client.GetReview(context.Background(), id)
		return itemLoadedMsg{item: item, err: err}
	}
}

func (m reviewModel) decideCmd(id, decision, reason string) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		item, err := client.Decide(context.Background(), id, decision, reason)
		return decidedMsg{item: item, decision: decision, err: err}
	}
}

// =============================================================================
// Rendering
// =============================================================================

func (m *reviewModel) updateViewportContent() {
	if !m.ready {
		return
	}
	if m.viewMode == viewItem && m.current != nil {
		m.viewport.SetContent(m.renderItemContent())
	}
}

func (m reviewModel) renderHeader() string {
	counts := fmt.Sprintf("%s %s %s",
		queuePendingBadge.Render(fmt.Sprintf("%d pending", len(m.lists[review.StatusPending]))),
		queueApprovedBadge.Render(fmt.Sprintf("%d approved", len(m.lists[review.StatusApproved]))),
		queueRejectedBadge.Render(fmt.Sprintf("%d rejected", len(m.lists[review.StatusRejected]))),
	)
	title := queueTitleStyle.Render("Scribe Review Queue")
	filter := queueMutedStyle.Render(fmt.Sprintf("showing %s", strings.ToLower(string(m.filter))))
	return fmt.Sprintf("%s  %s  %s\n", title, counts, filter)
}

func (m reviewModel) renderQueue() string {
	items := m.lists[m.filter]
	if len(items) == 0 {
		return queueMutedStyle.Render("Nothing here. New items appear as the pipeline queues them.") + "\n"
	}

	var b strings.Builder
	for i, item := range items {
		marker := "  "
		line := fmt.Sprintf("%s  %-12s %s  %s",
			shortID(item.ID),
			strings.ToLower(string(item.Status)),
			fmt.Sprintf("%d issue(s)", len(item.Issues)),
			humanAge(item.CreatedAt),
		)
		if i == m.cursor {
			marker = queueCursorStyle.Render("> ")
			line = queueSelectedStyle.Render(line)
		}
		b.WriteString(marker + line + "\n")
	}
	return b.String()
}

func (m reviewModel) renderItemContent() string {
	item := m.current
	var b strings.Builder

	b.WriteString(queueItemIDStyle.Render(item.ID) + "\n")
	b.WriteString(fmt.Sprintf("Status: %s\n", strings.ToLower(string(item.Status))))
	b.WriteString(fmt.Sprintf("Created: %s\n", item.CreatedAt.Format(time.RFC3339)))
	if item.DecidedAt != nil {
		b.WriteString(fmt.Sprintf("Decided: %s by %s\n",
			item.DecidedAt.Format(time.RFC3339), item.Reviewer))
	}
	if item.Reason != "" {
		b.WriteString(fmt.Sprintf("Reason: %s\n", item.Reason))
	}

	if len(item.Issues) > 0 {
		b.WriteString("\n" + queueSectionStyle.Render("Findings") + "\n")
		for _, issue := range item.Issues {
			sev := severityBadge(issue.Severity).Render(issue.Severity)
			if issue.Detail != "" {
				b.WriteString(fmt.Sprintf("  %s %s: %s\n", sev, issue.Kind, issue.Detail))
			} else {
				b.WriteString(fmt.Sprintf("  %s %s\n", sev, issue.Kind))
			}
		}
	}

	if item.Content != "" {
		b.WriteString("\n" + queueSectionStyle.Render("Quarantined Content") + "\n")
		b.WriteString(queueContentStyle.Render(item.Content) + "\n")
	}
	return b.String()
}

func (m reviewModel) renderReason() string {
	verb := "Approve"
	if m.pendingDecision == "reject" {
		verb = "Reject"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s\n\n", queueSectionStyle.Render(verb), m.pendingItemID))
	b.WriteString("Reason (recorded in the audit trail, enter to submit, esc to cancel):\n")
	b.WriteString(m.reasonInput.View() + "\n")
	return b.String()
}

func (m reviewModel) renderFooter() string {
	var help string
	switch m.viewMode {
	case viewQueue:
		help = keyHelp("j/k", "move") + keyHelp("enter", "open") + keyHelp("y", "approve") +
			keyHelp("n", "reject") + keyHelp("tab", "filter") + keyHelp("r", "refresh") +
			keyHelp("q", "quit")
	case viewItem:
		help = keyHelp("j/k", "scroll") + keyHelp("y", "approve") + keyHelp("n", "reject") +
			keyHelp("esc", "back") + keyHelp("q", "quit")
	default:
		help = keyHelp("enter", "submit") + keyHelp("esc", "cancel")
	}
	return help + "\n" + queueMutedStyle.Render(m.statusLine)
}

func keyHelp(key, desc string) string {
	return queueHelpKeyStyle.Render(key) + " " + queueHelpDescStyle.Render(desc) + "  "
}

// shortID trims a UUID down to its first segment for list display.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 && i < len(id)-1 {
		return id[:i]
	}
	return id
}

// humanAge renders how long ago a timestamp was, coarsely.
func humanAge(t time.Time) string {
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	}
}

func severityBadge(severity string) lipgloss.Style {
	switch strings.ToUpper(severity) {
	case "CRITICAL", "HIGH":
		return queueRejectedBadge
	case "MEDIUM":
		return queuePendingBadge
	default:
		return queueMutedBadge
	}
}

// =============================================================================
// Program Runner
// =============================================================================

// runReviewTUI opens the queue browser and blocks until the reviewer
// quits. The websocket subscription is best-effort; without it the
// browser still works through manual refresh.
func runReviewTUI() error {
	client := newGatewayClient()
	p := tea.NewProgram(newReviewModel(client), tea.WithAltScreen(), tea.WithOutput(os.Stderr))

	conn := dialQueueStream(client)
	if conn != nil {
		defer conn.Close()
		go func() {
			for {
				var note review.Notification
				if err := conn.ReadJSON(&note); err != nil {
					p.Send(streamDownMsg{err: err})
					return
				}
				p.Send(queueEventMsg{note: note})
			}
		}()
	}

	finalModel, err := p.Run()
	if err != nil {
		return err
	}
	if _, ok := finalModel.(reviewModel); !ok {
		return fmt.Errorf("unexpected model type from bubbletea: %T", finalModel)
	}
	if conn == nil {
		ux.Muted("Live updates were unavailable this session.")
	}
	return nil
}

// dialQueueStream connects to the gateway notification stream. Returns
// nil when the stream cannot be reached; callers treat that as degraded
// rather than fatal.
func dialQueueStream(client *gatewayClient) *websocket.Conn {
	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	header := http.Header{}
	if client.token != "" {
		header.Set("Authorization", "Bearer "+client.token)
	}
	conn, resp, err := dialer.Dial(client.streamURL(), header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil
	}
	return conn
}

// =============================================================================
// Styles
// =============================================================================

var (
	queueTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	queueItemIDStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212"))

	queueSectionStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("75")).
				Bold(true)

	queueCursorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true)

	queueSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("231")).
				Bold(true)

	queueMutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	queueContentStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("250")).
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("214")).
				Padding(0, 1)

	queueHelpKeyStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true)

	queueHelpDescStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("250"))

	queuePendingBadge = lipgloss.NewStyle().
				Foreground(lipgloss.Color("214")).
				Background(lipgloss.Color("58")).
				Padding(0, 1)

	queueApprovedBadge = lipgloss.NewStyle().
				Foreground(lipgloss.Color("42")).
				Background(lipgloss.Color("22")).
				Padding(0, 1)

	queueRejectedBadge = lipgloss.NewStyle().
				Foreground(lipgloss.Color("196")).
				Background(lipgloss.Color("52")).
				Padding(0, 1)

	queueMutedBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Background(lipgloss.Color("238")).
			Padding(0, 1)
)
