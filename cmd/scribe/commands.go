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
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianScribe/cmd/scribe/config"
	"github.com/AleutianAI/AleutianScribe/pkg/logging"
	"github.com/AleutianAI/AleutianScribe/pkg/ux"
)

// --- Global Command Variables ---
var (
	personalityLevel string // UX personality level (full/standard/minimal/machine)
	gatewayFlagURL   string // Gateway address override, beats env and config

	transformAudience  string
	transformFormat    string
	transformMaxDocs   int
	transformWait      bool
	transformOutFile   string
	transformFailFast  bool
	transformNoCircles bool

	reviewStatus string
	reviewJSON   bool
	decideReason string

	auditKeyHex string

	rootCmd = &cobra.Command{
		Use:   "scribe",
		Short: "A cli to operate the AleutianScribe document transform service",
		Long: `Scribe rewrites internal documents for new audiences through a
				guarded pipeline: inbound secret scanning, PII redaction, output
				validation, and a human review queue for anything sensitive.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Config first; personality and logging both read it
			if err := config.Load(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: could not load the config, using defaults: %v\n", err)
				config.Global = config.DefaultConfig()
			}

			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}

			initCLILogging()
		},
	}

	// --- Transform ---
	transformCmd = &cobra.Command{
		Use:   "transform [document-id]",
		Short: "Rewrite a document for a new audience through the guarded pipeline",
		Args:  cobra.ExactArgs(1),
		Run:   runTransform, // Defined in cmd_transform.go
	}

	// --- Review Queue ---
	reviewCmd = &cobra.Command{
		Use:   "review",
		Short: "Work the human review queue",
		Long: `Without a subcommand, review opens the interactive queue browser.
				In a non-interactive session it falls back to a plain listing.`,
		Run: runReview, // Defined in cmd_review.go
	}
	reviewListCmd = &cobra.Command{
		Use:   "list",
		Short: "List review queue items",
		Run:   runReviewList, // Defined in cmd_review.go
	}
	reviewShowCmd = &cobra.Command{
		Use:   "show [item-id]",
		Short: "Show one queue item including its quarantined content",
		Args:  cobra.ExactArgs(1),
		Run:   runReviewShow, // Defined in cmd_review.go
	}
	reviewDecideCmd = &cobra.Command{
		Use:   "decide [item-id]",
		Short: "Approve or reject a queued item",
		Args:  cobra.ExactArgs(1),
		Run:   runReviewDecide, // Defined in cmd_review.go
	}
	reviewFetchCmd = &cobra.Command{
		Use:   "fetch [item-id]",
		Short: "Fetch the released content of an approved item",
		Args:  cobra.ExactArgs(1),
		Run:   runReviewFetch, // Defined in cmd_review.go
	}

	// --- Local Documents ---
	docsCmd = &cobra.Command{
		Use:   "docs",
		Short: "Inspect local source documents before transforming them",
	}
	docsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List the documents under the document directory",
		Run:   runDocsList, // Defined in cmd_docs.go
	}
	docsShowCmd = &cobra.Command{
		Use:   "show [document-id]",
		Short: "Show a document's classification and how its references would assemble",
		Args:  cobra.ExactArgs(1),
		Run:   runDocsShow, // Defined in cmd_docs.go
	}

	// --- Audit Trail ---
	auditCmd = &cobra.Command{
		Use:   "audit",
		Short: "Inspect the tamper-evident audit trail",
	}
	auditVerifyCmd = &cobra.Command{
		Use:   "verify [log-file]",
		Short: "Verify the hash chain of an audit log file",
		Args:  cobra.ExactArgs(1),
		Run:   runAuditVerify, // Defined in cmd_audit.go
	}

	// --- Service ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the transform gateway in the foreground",
		Run:   runServe, // Defined in cmd_serve.go
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show gateway health and circuit breaker states",
		Run:   runStatus, // Defined in cmd_status.go
	}
)

// init runs when the Go program starts
func init() {
	// Global UX personality flag
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default, rich), standard, minimal, or machine (scripting)")
	rootCmd.PersistentFlags().StringVar(&gatewayFlagURL, "gateway", "",
		"Gateway address (default: SCRIBE_GATEWAY_URL, then the config file)")

	rootCmd.AddCommand(transformCmd)
	transformCmd.Flags().StringVarP(&transformAudience, "audience", "a", "",
		"Who the rewrite is for, e.g. 'new on-call engineers' (falls back to the config default)")
	transformCmd.Flags().StringVarP(&transformFormat, "format", "f", "",
		"Output format: text, markdown, or json")
	transformCmd.Flags().IntVar(&transformMaxDocs, "max-context", 0,
		"Cap on referenced context documents, 0 uses the pipeline default")
	transformCmd.Flags().BoolVar(&transformWait, "wait", false,
		"If the output lands in review, poll until a reviewer decides")
	transformCmd.Flags().StringVarP(&transformOutFile, "output", "o", "",
		"Write the delivered output to a file instead of stdout")
	transformCmd.Flags().BoolVar(&transformFailFast, "fail-on-validation", false,
		"Treat any validation finding as a hard failure instead of queueing")
	transformCmd.Flags().BoolVar(&transformNoCircles, "allow-circular", false,
		"Accept documents whose references form cycles")

	// review queue commands
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.AddCommand(reviewListCmd)
	reviewListCmd.Flags().StringVarP(&reviewStatus, "status", "s", "",
		"Filter by status: pending (default), approved, or rejected")
	reviewListCmd.Flags().BoolVar(&reviewJSON, "json", false, "Output as JSON for scripting")
	reviewCmd.AddCommand(reviewShowCmd)
	reviewShowCmd.Flags().BoolVar(&reviewJSON, "json", false, "Output as JSON for scripting")
	reviewCmd.AddCommand(reviewDecideCmd)
	reviewDecideCmd.Flags().Bool("approve", false, "Release the content to the requester")
	reviewDecideCmd.Flags().Bool("reject", false, "Discard the content")
	reviewDecideCmd.Flags().StringVar(&decideReason, "reason", "",
		"Free-text reason recorded with the decision")
	reviewCmd.AddCommand(reviewFetchCmd)

	// local document commands
	rootCmd.AddCommand(docsCmd)
	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsShowCmd)

	// audit trail commands
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditVerifyCmd.Flags().StringVar(&auditKeyHex, "key", "",
		"Hex HMAC key (default: the SCRIBE_AUDIT_KEY environment variable)")

	// service commands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

// initCLILogging sends operational logs to a file under the configured
// directory. The terminal belongs to ux output; slog only reaches it
// when file logging is disabled and something fails loudly enough.
func initCLILogging() {
	cfg := config.Global.Logging
	if cfg.Dir == "" {
		return
	}
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Level),
		LogDir:  cfg.Dir,
		Service: "scribe-cli",
		Quiet:   true,
	})
	slog.SetDefault(logger.Slog())
}
