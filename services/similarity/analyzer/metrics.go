// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analyzer

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/similarity/services/similarity/report"
)

var (
	tracer = otel.Tracer("similarity.analyzer")
	meter  = otel.Meter("similarity.analyzer")
)

var (
	runLatency   metric.Float64Histogram
	filesParsed  metric.Int64Counter
	fileFailures metric.Int64Counter
	duplicates   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runLatency, err = meter.Float64Histogram(
			"similarity_run_duration_seconds",
			metric.WithDescription("Duration of a full analysis run"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		filesParsed, err = meter.Int64Counter(
			"similarity_files_parsed_total",
			metric.WithDescription("Source files parsed and extracted"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fileFailures, err = meter.Int64Counter(
			"similarity_file_failures_total",
			metric.WithDescription("Source files that failed a pipeline stage"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		duplicates, err = meter.Int64Counter(
			"similarity_duplicates_total",
			metric.WithDescription("Duplicate pairs reported, by section"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func recordFileFailure(ctx context.Context, stage string) {
	if initMetrics() != nil {
		return
	}
	fileFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

func recordRunMetrics(ctx context.Context, duration time.Duration, parsed, functions, types, overlaps int) {
	if initMetrics() != nil {
		return
	}
	runLatency.Record(ctx, duration.Seconds())
	filesParsed.Add(ctx, int64(parsed))
	duplicates.Add(ctx, int64(functions), metric.WithAttributes(attribute.String("section", "functions")))
	duplicates.Add(ctx, int64(types), metric.WithAttributes(attribute.String("section", "types")))
	duplicates.Add(ctx, int64(overlaps), metric.WithAttributes(attribute.String("section", "overlap")))
}

func startRunSpan(ctx context.Context, paths int, sections report.Sections) (context.Context, trace.Span) {
	return tracer.Start(ctx, "analyzer.Run",
		trace.WithAttributes(
			attribute.Int("analyzer.paths", paths),
			attribute.Bool("analyzer.functions", sections.Functions),
			attribute.Bool("analyzer.types", sections.Types),
			attribute.Bool("analyzer.overlap", sections.Overlap),
		),
	)
}

func startStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "analyzer."+stage)
}

func setSpanResult(span trace.Span, files, found int, err error) {
	span.SetAttributes(
		attribute.Int("analyzer.files", files),
		attribute.Int("analyzer.duplicates", found),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
