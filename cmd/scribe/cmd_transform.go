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
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianScribe/cmd/scribe/config"
	"github.com/AleutianAI/AleutianScribe/pkg/ux"
	"github.com/AleutianAI/AleutianScribe/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/review"
)

// reviewPollInterval is how often --wait re-checks a queued item.
const reviewPollInterval = 3 * time.Second

// runTransform submits one document through the guarded pipeline.
//
// # Description
//
//	Sends POST /v1/transform for the document named in args[0]. The
//	audience and format fall back to the config file defaults when the
//	flags are empty. A delivered result prints (or writes) the rewritten
//	text; a queued result names the review item and, with --wait, polls
//	until a reviewer decides.
//
// # Inputs
//
//   - cmd: The Cobra command context
//   - args: args[0] is the document identifier, e.g. "guides/deploy"
//
// # Outputs
//
//   - None. Exits non-zero when the gateway refuses or blocks the request.
func runTransform(cmd *cobra.Command, args []string) {
	documentID := args[0]

	audience := transformAudience
	if audience == "" {
		audience = config.Global.Defaults.Audience
	}
	if audience == "" {
		ux.Error("No audience given. Pass --audience or set defaults.audience in the config.")
		os.Exit(1)
	}
	format := transformFormat
	if format == "" {
		format = config.Global.Defaults.Format
	}

	client := newGatewayClient()
	req := &datatypes.TransformRequest{
		DocumentID:              documentID,
		Audience:                audience,
		Format:                  format,
		MaxContextDocuments:     transformMaxDocs,
		AllowCircularReferences: transformNoCircles,
		FailOnValidationError:   transformFailFast,
	}

	var resp *datatypes.TransformResponse
	err := ux.WithSpinner(fmt.Sprintf("Transforming %s for %q", documentID, audience), func() error {
		var callErr error
		resp, callErr = client.Transform(context.Background(), req)
		return callErr
	})
	if err != nil {
		reportTransformError(err)
		os.Exit(1)
	}

	printAssemblyNotes(resp)

	switch resp.Status {
	case "delivered":
		ux.Success(fmt.Sprintf("Delivered in %dms", resp.ProcessingTimeMs))
		if err := writeOutput(resp.Output, transformOutFile); err != nil {
			ux.Error(err.Error())
			os.Exit(1)
		}
	case "queued":
		ux.Warning(fmt.Sprintf("Output held for human review: item %s", resp.ReviewItemID))
		for _, issue := range resp.Issues {
			ux.IssueLine(issue.Kind, issue.Severity, issue.Detail)
		}
		if !transformWait {
			ux.Muted(fmt.Sprintf("Run 'scribe review show %s' to inspect it.", resp.ReviewItemID))
			return
		}
		waitForRelease(client, resp.ReviewItemID)
	default:
		ux.Error(fmt.Sprintf("Gateway returned an unknown status %q", resp.Status))
		os.Exit(1)
	}
}

// reportTransformError explains a failed transform call. Gateway errors
// carry structured detail (status code, validation findings); transport
// errors do not.
func reportTransformError(err error) {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		ux.Error(fmt.Sprintf("Could not reach the gateway: %v", err))
		return
	}
	switch apiErr.StatusCode {
	case 403:
		ux.Error("Transform blocked: " + apiErr.Message)
		for _, issue := range apiErr.Issues {
			ux.IssueLine(issue.Kind, issue.Severity, issue.Detail)
		}
	case 404:
		ux.Error("Document not found: " + apiErr.Message)
	case 503:
		ux.Error("Gateway is shedding load, try again shortly: " + apiErr.Message)
	default:
		ux.Error(apiErr.Message)
	}
}

// printAssemblyNotes surfaces context assembly metadata that would
// otherwise hide in the response body.
func printAssemblyNotes(resp *datatypes.TransformResponse) {
	if len(resp.AcceptedContextIDs) > 0 {
		ux.Info(fmt.Sprintf("Context: %d document(s) included", len(resp.AcceptedContextIDs)))
	}
	for _, rej := range resp.RejectedContext {
		ux.Warning(fmt.Sprintf("Context %s excluded: %s", rej.DocumentID, rej.Reason))
	}
	for _, warning := range resp.Warnings {
		ux.Warning(warning)
	}
	if resp.InboundRedactions > 0 || resp.OutboundRedactions > 0 {
		ux.Info(fmt.Sprintf("Redactions: %d inbound, %d outbound",
			resp.InboundRedactions, resp.OutboundRedactions))
	}
}

// waitForRelease polls a queued review item until a reviewer decides,
// then prints the released content or the rejection.
func waitForRelease(client *gatewayClient, itemID string) {
	ux.Muted("Waiting for a reviewer decision (Ctrl-C to stop waiting)...")
	for {
		time.Sleep(reviewPollInterval)
		content, err := client.ApprovedContent(context.Background(), itemID)
		if err == nil {
			ux.Success("Approved and released")
			if err := writeOutput(content, transformOutFile); err != nil {
				ux.Error(err.Error())
				os.Exit(1)
			}
			return
		}
		if errors.Is(err, review.ErrStillPending) {
			continue
		}
		if errors.Is(err, review.ErrRejected) {
			ux.Error("A reviewer rejected the content.")
			os.Exit(1)
		}
		ux.Error(fmt.Sprintf("Could not check the review item: %v", err))
		os.Exit(1)
	}
}

// writeOutput delivers transformed content to the chosen sink. An empty
// outFile means stdout.
func writeOutput(content, outFile string) error {
	if outFile == "" {
		fmt.Println(content)
		return nil
	}
	if err := os.WriteFile(outFile, []byte(content), 0644); err != nil {
		return fmt.Errorf("could not write the output file: %w", err)
	}
	ux.Success(fmt.Sprintf("Wrote %d bytes to %s", len(content), outFile))
	return nil
}
