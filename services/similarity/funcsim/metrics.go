// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package funcsim

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
	tracer = otel.Tracer("similarity.funcsim")
	meter  = otel.Meter("similarity.funcsim")
)

var (
	findLatency metric.Float64Histogram
	comparisons metric.Int64Counter
	pairsFound  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		findLatency, err = meter.Float64Histogram(
			"similarity_function_search_duration_seconds",
			metric.WithDescription("Duration of a function similarity search"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		comparisons, err = meter.Int64Counter(
			"similarity_function_comparisons_total",
			metric.WithDescription("Function pairs compared with tree edit distance"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		pairsFound, err = meter.Int64Counter(
			"similarity_function_pairs_total",
			metric.WithDescription("Function pairs reported above threshold"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func recordFindMetrics(ctx context.Context, duration time.Duration, compared int64, found int) {
	if initMetrics() != nil {
		return
	}
	findLatency.Record(ctx, duration.Seconds())
	comparisons.Add(ctx, compared)
	pairsFound.Add(ctx, int64(found))
}

func startFindSpan(ctx context.Context, units int, opts FindOptions) (context.Context, trace.Span) {
	return tracer.Start(ctx, "funcsim.FindSimilar",
		trace.WithAttributes(
			attribute.Int("funcsim.units", units),
			attribute.Float64("funcsim.threshold", opts.Threshold),
			attribute.Bool("funcsim.fast", opts.Fast),
		),
	)
}

func setFindSpanResult(span trace.Span, pairs int, err error) {
	span.SetAttributes(attribute.Int("funcsim.pairs", pairs))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
