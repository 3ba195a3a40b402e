// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package overlap

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("similarity.overlap")
	meter  = otel.Meter("similarity.overlap")
)

var (
	scanLatency       metric.Float64Histogram
	windowsEnumerated metric.Int64Counter
	windowComparisons metric.Int64Counter
	matchesSuppressed metric.Int64Counter
	matchesReported   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		if scanLatency, err = meter.Float64Histogram(
			"similarity_overlap_scan_duration_seconds",
			metric.WithDescription("Duration of an overlap scan"),
			metric.WithUnit("s"),
		); err != nil {
			metricsErr = err
			return
		}
		if windowsEnumerated, err = meter.Int64Counter(
			"similarity_overlap_windows_total",
			metric.WithDescription("Statement windows enumerated"),
		); err != nil {
			metricsErr = err
			return
		}
		if windowComparisons, err = meter.Int64Counter(
			"similarity_overlap_comparisons_total",
			metric.WithDescription("Window pairs compared with tree edit distance"),
		); err != nil {
			metricsErr = err
			return
		}
		if matchesSuppressed, err = meter.Int64Counter(
			"similarity_overlap_suppressed_total",
			metric.WithDescription("Matches dropped by the containment rule"),
		); err != nil {
			metricsErr = err
			return
		}
		if matchesReported, err = meter.Int64Counter(
			"similarity_overlap_matches_total",
			metric.WithDescription("Overlap matches reported"),
		); err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func recordFindMetrics(ctx context.Context, duration time.Duration, st scanStats, reported int) {
	if initMetrics() != nil {
		return
	}
	scanLatency.Record(ctx, duration.Seconds())
	windowsEnumerated.Add(ctx, int64(st.windows))
	windowComparisons.Add(ctx, int64(st.compared))
	matchesSuppressed.Add(ctx, int64(st.suppressed))
	matchesReported.Add(ctx, int64(reported))
}

func startFindSpan(ctx context.Context, files int, opts Options) (context.Context, trace.Span) {
	return tracer.Start(ctx, "overlap.FindOverlaps",
		trace.WithAttributes(
			attribute.Int("overlap.files", files),
			attribute.Int("overlap.min_window", opts.MinWindowSize),
			attribute.Int("overlap.max_window", opts.MaxWindowSize),
			attribute.Float64("overlap.threshold", opts.Threshold),
		),
	)
}

func setFindSpanResult(span trace.Span, matches int, err error) {
	span.SetAttributes(attribute.Int("overlap.matches", matches))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
