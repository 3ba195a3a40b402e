// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires OpenTelemetry for the similarity analyzer.
//
// The engine packages instrument themselves through otel.Tracer and
// otel.Meter. Until Init installs real providers those calls go to the
// global no-op implementations, so a plain run pays nothing.
//
// # Exporters
//
// Traces: "otlp" (gRPC), "stdout", or "none" (default).
// Metrics: "prometheus" (scraped via MetricsHandler), "stdout", or "none" (default).
//
// Stdout exporters write to Config.Writer so they do not interleave with
// the report on standard output.
//
// # Usage
//
//	shutdown, err := telemetry.Init(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
//
// # Thread Safety
//
// All exported functions are safe for concurrent use after Init() returns.
package telemetry
