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
	"encoding/json"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// InfluxRecorder writes events to InfluxDB as points in the
// "audit_events" measurement.
//
// # Description
//
// Points are tagged by kind and outcome so dashboards can slice event
// rates without parsing fields. Identifiers and details travel as
// fields. Writes are synchronous; wrap this recorder behind Emit so a
// slow or down InfluxDB never stalls a transform.
type InfluxRecorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxRecorder connects to InfluxDB.
//
// Inputs:
//   - serverURL: The InfluxDB base URL.
//   - token: API token.
//   - org: Organization name.
//   - bucket: Destination bucket.
//
// Outputs:
//   - *InfluxRecorder: A ready recorder. Connection problems surface on
//     the first Record call, not here.
func NewInfluxRecorder(serverURL, token, org, bucket string) *InfluxRecorder {
	client := influxdb2.NewClient(serverURL, token)
	return &InfluxRecorder{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
	}
}

// Record writes one point.
func (r *InfluxRecorder) Record(ctx context.Context, event Event) error {
	event.normalize()
	if err := r.writeAPI.WritePoint(ctx, pointFromEvent(event)); err != nil {
		return fmt.Errorf("failed to write audit point: %w", err)
	}
	return nil
}

// Health reports whether the InfluxDB instance is reachable and ready.
func (r *InfluxRecorder) Health(ctx context.Context) error {
	health, err := r.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("influxdb not ready: %s %s", health.Status, msg)
	}
	return nil
}

// Close releases the underlying client.
func (r *InfluxRecorder) Close() {
	r.client.Close()
}

// pointFromEvent maps an event onto a line-protocol point.
func pointFromEvent(event Event) *write.Point {
	details := ""
	if len(event.Details) > 0 {
		if raw, err := json.Marshal(event.Details); err == nil {
			details = string(raw)
		}
	}
	return influxdb2.NewPoint(
		"audit_events",
		map[string]string{
			"kind":    string(event.Kind),
			"outcome": event.Outcome,
		},
		map[string]interface{}{
			"event_id":   event.ID,
			"actor_id":   event.ActorID,
			"subject_id": event.SubjectID,
			"details":    details,
		},
		event.Timestamp,
	)
}

var _ Recorder = (*InfluxRecorder)(nil)
