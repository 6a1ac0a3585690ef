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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianScribe/pkg/ux"
)

// runStatus checks gateway liveness and reports circuit breaker states.
//
// An open breaker is not an outage by itself; the gateway queues or
// rejects work until the backend recovers. It still deserves a warning
// line so the operator knows why requests are slow or queued.
func runStatus(cmd *cobra.Command, args []string) {
	client := newGatewayClient()

	health, err := client.Health(context.Background())
	if err != nil {
		ux.Error(fmt.Sprintf("Gateway unreachable at %s: %v", client.baseURL, err))
		os.Exit(1)
	}

	ux.Success(fmt.Sprintf("Gateway at %s reports %s", client.baseURL, health.Status))

	for name, breaker := range health.Breakers {
		switch breaker.State {
		case "open":
			ux.Warning(fmt.Sprintf("Breaker %s is OPEN after %d consecutive failure(s)",
				name, breaker.ConsecutiveFailures))
		case "half-open":
			ux.Warning(fmt.Sprintf("Breaker %s is half-open, probing the backend", name))
		default:
			ux.Info(fmt.Sprintf("Breaker %s: %s", name, breaker.State))
		}
	}
}
