// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianScribe/pkg/ux"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/review"
)

// runReview is the bare `scribe review` entry point. A terminal gets the
// interactive queue browser; pipes and scripts get a plain listing.
func runReview(cmd *cobra.Command, args []string) {
	if ux.IsInteractive() {
		if err := runReviewTUI(); err != nil {
			ux.Error(fmt.Sprintf("Review browser failed: %v", err))
			os.Exit(1)
		}
		return
	}
	runReviewList(cmd, args)
}

// runReviewList prints queue items. The gateway defaults the filter to
// pending when no status is sent.
func runReviewList(cmd *cobra.Command, args []string) {
	client := newGatewayClient()
	items, err := client.ListReviews(context.Background(), reviewStatus)
	if err != nil {
		reportReviewError("list the queue", err)
		os.Exit(1)
	}

	if reviewJSON {
		printJSON(items)
		return
	}

	if len(items) == 0 {
		ux.Info("The review queue is empty.")
		return
	}
	ux.Title("Review Queue")
	for _, item := range items {
		ux.ItemLine(item.ID, string(item.Status), len(item.Issues))
	}
}

// runReviewShow prints one item with its issues and quarantined content.
func runReviewShow(cmd *cobra.Command, args []string) {
	client := newGatewayClient()
	item, err := client.GetReview(context.Background(), args[0])
	if err != nil {
		reportReviewError("fetch the item", err)
		os.Exit(1)
	}

	if reviewJSON {
		printJSON(item)
		return
	}
	printItem(item)
}

// runReviewDecide approves or rejects one queue item.
//
// With --approve or --reject the decision is taken straight from the
// flags. Without either, an interactive session gets a confirmation
// form; a non-interactive one is refused so scripts stay explicit.
func runReviewDecide(cmd *cobra.Command, args []string) {
	itemID := args[0]
	approve, _ := cmd.Flags().GetBool("approve")
	reject, _ := cmd.Flags().GetBool("reject")
	if approve && reject {
		ux.Error("Pass either --approve or --reject, not both.")
		os.Exit(1)
	}

	client := newGatewayClient()

	decision := ""
	switch {
	case approve:
		decision = "approve"
	case reject:
		decision = "reject"
	default:
		if !ux.IsInteractive() {
			ux.Error("Pass --approve or --reject when running non-interactively.")
			os.Exit(1)
		}
		// Show the reviewer what they are deciding before asking
		item, err := client.GetReview(context.Background(), itemID)
		if err != nil {
			reportReviewError("fetch the item", err)
			os.Exit(1)
		}
		printItem(item)

		decision, decideReason, err = promptDecision(itemID)
		if err != nil {
			ux.Error(fmt.Sprintf("Decision form failed: %v", err))
			os.Exit(1)
		}
		if decision == "" {
			ux.Muted("No decision made.")
			return
		}
	}

	decided, err := client.Decide(context.Background(), itemID, decision, decideReason)
	if err != nil {
		reportReviewError("record the decision", err)
		os.Exit(1)
	}

	switch decided.Status {
	case review.StatusApproved:
		ux.Success(fmt.Sprintf("Approved %s. Fetch the content with 'scribe review fetch %s'.",
			decided.ID, decided.ID))
	case review.StatusRejected:
		ux.Success(fmt.Sprintf("Rejected %s. The content stays quarantined.", decided.ID))
	default:
		ux.Success(fmt.Sprintf("Recorded %s for %s", decision, decided.ID))
	}
}

// runReviewFetch retrieves the released content of an approved item and
// prints it to stdout.
func runReviewFetch(cmd *cobra.Command, args []string) {
	client := newGatewayClient()
	content, err := client.ApprovedContent(context.Background(), args[0])
	if err != nil {
		reportReviewError("fetch the content", err)
		os.Exit(1)
	}
	fmt.Println(content)
}

// promptDecision runs the interactive approve/reject form. An empty
// decision means the reviewer backed out at the confirmation step.
func promptDecision(itemID string) (decision, reason string, err error) {
	confirmed := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Decide item %s", itemID)).
				Options(
					huh.NewOption("Approve and release the content", "approve"),
					huh.NewOption("Reject and discard the content", "reject"),
				).
				Value(&decision),
			huh.NewInput().
				Title("Reason").
				Description("Recorded with the decision in the audit trail").
				CharLimit(1024).
				Value(&reason),
			huh.NewConfirm().
				Title("Apply this decision?").
				Affirmative("Apply").
				Negative("Cancel").
				Value(&confirmed),
		),
	)
	if err := form.Run(); err != nil {
		return "", "", err
	}
	if !confirmed {
		return "", "", nil
	}
	return decision, reason, nil
}

// printItem renders one review item for human eyes.
func printItem(item *review.Item) {
	ux.ItemLine(item.ID, string(item.Status), len(item.Issues))
	ux.Info("Created " + item.CreatedAt.Format(time.RFC3339))
	if item.DecidedAt != nil {
		ux.Info(fmt.Sprintf("Decided %s by %s", item.DecidedAt.Format(time.RFC3339), item.Reviewer))
	}
	if item.Reason != "" {
		ux.Info("Reason: " + item.Reason)
	}
	for _, issue := range item.Issues {
		ux.IssueLine(issue.Kind, issue.Severity, issue.Detail)
	}
	if item.Content != "" {
		ux.WarningBox("Quarantined Content", item.Content)
	}
}

// reportReviewError maps review sentinels onto operator-facing messages.
func reportReviewError(action string, err error) {
	switch {
	case errors.Is(err, review.ErrItemNotFound):
		ux.Error("No such review item.")
	case errors.Is(err, review.ErrAlreadyDecided):
		ux.Error("That item was already decided.")
	case errors.Is(err, review.ErrStillPending):
		ux.Error("That item is still waiting for a reviewer.")
	case errors.Is(err, review.ErrRejected):
		ux.Error("That item was rejected; its content stays quarantined.")
	default:
		ux.Error(fmt.Sprintf("Could not %s: %v", action, err))
	}
}

// printJSON writes any value as indented JSON for scripting.
func printJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not encode JSON: %v\n", err)
		os.Exit(1)
	}
}
