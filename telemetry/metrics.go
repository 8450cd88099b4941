// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics bundles the engine's instruments.
type Metrics struct {
	// QueriesTotal counts resolution queries, monolithic and stitched.
	QueriesTotal metric.Int64Counter

	// QueryDuration measures resolution query latency in seconds.
	QueryDuration metric.Float64Histogram

	// PathsFound counts complete paths emitted by queries.
	PathsFound metric.Int64Counter

	// PartialComputationsTotal counts per-file partial-path computations.
	PartialComputationsTotal metric.Int64Counter

	// FragmentsStored counts fragments written to the database.
	FragmentsStored metric.Int64Counter

	// EvictionsTotal counts partial-path evictions.
	EvictionsTotal metric.Int64Counter

	// ErrorsTotal counts errors returned to callers by resolution queries.
	ErrorsTotal metric.Int64Counter
}

// NewMetrics creates the engine instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.QueriesTotal, err = meter.Int64Counter(
		"stackscope_queries_total",
		metric.WithDescription("Resolution queries started"),
	); err != nil {
		return nil, fmt.Errorf("creating queries counter: %w", err)
	}

	if m.QueryDuration, err = meter.Float64Histogram(
		"stackscope_query_duration_seconds",
		metric.WithDescription("Resolution query latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating query duration histogram: %w", err)
	}

	if m.PathsFound, err = meter.Int64Counter(
		"stackscope_paths_found_total",
		metric.WithDescription("Complete paths emitted"),
	); err != nil {
		return nil, fmt.Errorf("creating paths counter: %w", err)
	}

	if m.PartialComputationsTotal, err = meter.Int64Counter(
		"stackscope_partial_computations_total",
		metric.WithDescription("Per-file partial path computations"),
	); err != nil {
		return nil, fmt.Errorf("creating partial computations counter: %w", err)
	}

	if m.FragmentsStored, err = meter.Int64Counter(
		"stackscope_fragments_stored_total",
		metric.WithDescription("Partial path fragments persisted"),
	); err != nil {
		return nil, fmt.Errorf("creating fragments counter: %w", err)
	}

	if m.EvictionsTotal, err = meter.Int64Counter(
		"stackscope_evictions_total",
		metric.WithDescription("Partial path set evictions"),
	); err != nil {
		return nil, fmt.Errorf("creating evictions counter: %w", err)
	}

	if m.ErrorsTotal, err = meter.Int64Counter(
		"stackscope_errors_total",
		metric.WithDescription("Errors surfaced to callers"),
	); err != nil {
		return nil, fmt.Errorf("creating errors counter: %w", err)
	}

	return m, nil
}
