// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the analyzer configuration.
//
// Values are layered with priority flags > env > file > defaults. Load
// applies defaults, the optional YAML/JSON file and SIMILARITY_*
// environment variables; the CLI then overrides individual fields from
// flags and calls Resolve.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/similarity/services/similarity/extract"
	"github.com/AleutianAI/similarity/services/similarity/funcsim"
	"github.com/AleutianAI/similarity/services/similarity/overlap"
	"github.com/AleutianAI/similarity/services/similarity/typesim"
)

// ErrNoAnalyzer is returned by Resolve when every analyzer is disabled.
var ErrNoAnalyzer = errors.New("no analyzer enabled")

// NoAnalyzerHint is printed by the CLI alongside ErrNoAnalyzer.
const NoAnalyzerHint = "At least one analyzer must be enabled. Use --types to enable type checking, --overlap for overlap detection, or remove --no-functions."

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SIMILARITY_"

// Defaults shared with the CLI flag definitions.
const (
	DefaultThreshold     = 0.87
	DefaultRenameCost    = 0.3
	DefaultMinLines      = 3
	DefaultMinWindow     = 8
	DefaultMaxWindow     = 25
	DefaultSizeTolerance = 0.25
	DefaultMaxFileSize   = 2 << 20

	weightTolerance = 0.001
)

// Config is the full analyzer configuration.
type Config struct {
	// Threshold is the similarity cut-off shared by all analyzers.
	Threshold float64 `json:"threshold" yaml:"threshold" validate:"gte=0,lte=1"`

	// Workers bounds comparison parallelism. 0 means GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers" validate:"gte=0"`

	Functions FunctionsConfig `json:"functions" yaml:"functions"`
	Types     TypesConfig     `json:"types" yaml:"types"`
	Overlap   OverlapConfig   `json:"overlap" yaml:"overlap"`
	Discovery DiscoveryConfig `json:"discovery" yaml:"discovery"`
	Output    OutputConfig    `json:"output" yaml:"output"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
}

// FunctionsConfig configures the function analyzer.
type FunctionsConfig struct {
	Enabled            bool    `json:"enabled" yaml:"enabled"`
	RenameCost         float64 `json:"rename_cost" yaml:"rename_cost" validate:"gte=0,lte=1"`
	MinLines           int     `json:"min_lines" yaml:"min_lines" validate:"gte=0"`
	MinTokens          int     `json:"min_tokens" yaml:"min_tokens" validate:"gte=0"`
	SizePenalty        bool    `json:"size_penalty" yaml:"size_penalty"`
	Fast               bool    `json:"fast" yaml:"fast"`
	FilterFunction     string  `json:"filter_function" yaml:"filter_function"`
	FilterFunctionBody string  `json:"filter_function_body" yaml:"filter_function_body"`
	MaxNodes           int     `json:"max_nodes" yaml:"max_nodes" validate:"gte=0"`
}

// TypesConfig configures the type analyzer.
type TypesConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Kinds is "all", "aliases" or "interfaces".
	Kinds               string  `json:"kinds" yaml:"kinds" validate:"oneof=all aliases interfaces"`
	AllowCrossKind      bool    `json:"allow_cross_kind" yaml:"allow_cross_kind"`
	StructuralWeight    float64 `json:"structural_weight" yaml:"structural_weight" validate:"gte=0,lte=1"`
	NamingWeight        float64 `json:"naming_weight" yaml:"naming_weight" validate:"gte=0,lte=1"`
	IncludeTypeLiterals bool    `json:"include_type_literals" yaml:"include_type_literals"`
}

// OverlapConfig configures the overlap analyzer.
type OverlapConfig struct {
	Enabled       bool    `json:"enabled" yaml:"enabled"`
	MinWindowSize int     `json:"min_window_size" yaml:"min_window_size" validate:"gte=1"`
	MaxWindowSize int     `json:"max_window_size" yaml:"max_window_size" validate:"gte=1"`
	SizeTolerance float64 `json:"size_tolerance" yaml:"size_tolerance" validate:"gte=0,lte=1"`
	SameFile      bool    `json:"same_file" yaml:"same_file"`
}

// DiscoveryConfig controls which files are analyzed.
type DiscoveryConfig struct {
	// Extensions overrides the per-analyzer defaults when non-empty.
	Extensions []string `json:"extensions" yaml:"extensions"`

	// Exclude holds glob patterns matched against paths.
	Exclude []string `json:"exclude" yaml:"exclude"`

	RespectGitignore bool  `json:"respect_gitignore" yaml:"respect_gitignore"`
	MaxFileSize      int64 `json:"max_file_size" yaml:"max_file_size" validate:"gte=0"`
}

// OutputConfig controls reporting.
type OutputConfig struct {
	Format             string `json:"format" yaml:"format" validate:"oneof=text json markdown md"`
	Print              bool   `json:"print" yaml:"print"`
	FailOnDuplicates   bool   `json:"fail_on_duplicates" yaml:"fail_on_duplicates"`
	ReportSyntaxErrors bool   `json:"report_syntax_errors" yaml:"report_syntax_errors"`
	LogLevel           string `json:"log_level" yaml:"log_level" validate:"oneof=debug info warn warning error"`
}

// TelemetryConfig selects exporters. Both default to "none".
type TelemetryConfig struct {
	TraceExporter  string        `json:"trace_exporter" yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string        `json:"metric_exporter" yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string        `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure   bool          `json:"otlp_insecure" yaml:"otlp_insecure"`
	MetricsAddr    string        `json:"metrics_addr" yaml:"metrics_addr"`
	ShutdownWait   time.Duration `json:"shutdown_wait" yaml:"shutdown_wait"`
}

// Default returns the configuration used when nothing is set.
//
// Functions are on, types and overlap are off, matching the classic
// command line.
func Default() Config {
	return Config{
		Threshold: DefaultThreshold,
		Functions: FunctionsConfig{
			Enabled:     true,
			RenameCost:  DefaultRenameCost,
			MinLines:    DefaultMinLines,
			SizePenalty: true,
			Fast:        true,
			MaxNodes:    funcsim.DefaultMaxNodes,
		},
		Types: TypesConfig{
			Kinds:            "all",
			StructuralWeight: 0.6,
			NamingWeight:     0.4,
		},
		Overlap: OverlapConfig{
			MinWindowSize: DefaultMinWindow,
			MaxWindowSize: DefaultMaxWindow,
			SizeTolerance: DefaultSizeTolerance,
		},
		Discovery: DiscoveryConfig{
			RespectGitignore: true,
			MaxFileSize:      DefaultMaxFileSize,
		},
		Output: OutputConfig{
			Format:   "text",
			LogLevel: "warn",
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "none",
			OTLPEndpoint:   "localhost:4317",
			OTLPInsecure:   true,
			ShutdownWait:   5 * time.Second,
		},
	}
}

// Load builds a configuration with priority env > file > defaults.
//
// # Inputs
//
//   - path: YAML or JSON file. Empty or missing means defaults only.
//
// # Outputs
//
//   - Config: Merged configuration.
//   - error: Non-nil if the file is invalid or validation fails.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := loadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("load config env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

// loadEnv applies SIMILARITY_* overrides. A malformed value is an error
// rather than silently ignored.
func loadEnv(cfg *Config) error {
	var errs []error
	float := func(key string, dst *float64) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = i
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	str := func(key string, dst *string) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = SplitList(v)
		}
	}

	float("THRESHOLD", &cfg.Threshold)
	integer("WORKERS", &cfg.Workers)

	boolean("FUNCTIONS", &cfg.Functions.Enabled)
	float("RENAME_COST", &cfg.Functions.RenameCost)
	integer("MIN_LINES", &cfg.Functions.MinLines)
	integer("MIN_TOKENS", &cfg.Functions.MinTokens)
	boolean("SIZE_PENALTY", &cfg.Functions.SizePenalty)
	boolean("FAST", &cfg.Functions.Fast)
	integer("MAX_NODES", &cfg.Functions.MaxNodes)

	boolean("TYPES", &cfg.Types.Enabled)
	str("TYPE_KINDS", &cfg.Types.Kinds)
	boolean("ALLOW_CROSS_KIND", &cfg.Types.AllowCrossKind)
	float("STRUCTURAL_WEIGHT", &cfg.Types.StructuralWeight)
	float("NAMING_WEIGHT", &cfg.Types.NamingWeight)
	boolean("INCLUDE_TYPE_LITERALS", &cfg.Types.IncludeTypeLiterals)

	boolean("OVERLAP", &cfg.Overlap.Enabled)
	integer("OVERLAP_MIN_WINDOW", &cfg.Overlap.MinWindowSize)
	integer("OVERLAP_MAX_WINDOW", &cfg.Overlap.MaxWindowSize)
	float("OVERLAP_SIZE_TOLERANCE", &cfg.Overlap.SizeTolerance)
	boolean("OVERLAP_SAME_FILE", &cfg.Overlap.SameFile)

	list("EXTENSIONS", &cfg.Discovery.Extensions)
	list("EXCLUDE", &cfg.Discovery.Exclude)
	boolean("RESPECT_GITIGNORE", &cfg.Discovery.RespectGitignore)

	str("FORMAT", &cfg.Output.Format)
	str("LOG_LEVEL", &cfg.Output.LogLevel)
	boolean("REPORT_SYNTAX_ERRORS", &cfg.Output.ReportSyntaxErrors)

	str("TRACE_EXPORTER", &cfg.Telemetry.TraceExporter)
	str("METRIC_EXPORTER", &cfg.Telemetry.MetricExporter)
	str("OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	str("METRICS_ADDR", &cfg.Telemetry.MetricsAddr)

	return errors.Join(errs...)
}

// SplitList splits a comma separated value, dropping empty items.
func SplitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Warning is a non-fatal configuration conflict.
type Warning struct {
	Field   string
	Message string
}

func (w Warning) String() string {
	return w.Message
}

// Resolve settles conflicting options.
//
// # Description
//
// Validates the configuration, then fails with ErrNoAnalyzer when every
// analyzer is disabled. When both MinLines and MinTokens are set the
// token rule wins and MinLines is cleared. A structural/naming weight sum other
// than 1 is reported but kept as configured.
//
// # Outputs
//
//   - []Warning: Conflicts that were resolved or tolerated.
//   - error: ErrInvalidConfig or ErrNoAnalyzer.
func (c *Config) Resolve() ([]Warning, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if !c.Functions.Enabled && !c.Types.Enabled && !c.Overlap.Enabled {
		return nil, ErrNoAnalyzer
	}

	var warnings []Warning
	if c.Functions.MinLines > 0 && c.Functions.MinTokens > 0 {
		warnings = append(warnings, Warning{
			Field:   "functions.min_tokens",
			Message: fmt.Sprintf("Both --min-lines and --min-tokens specified. Using --min-tokens=%d", c.Functions.MinTokens),
		})
		c.Functions.MinLines = 0
	}
	if c.Types.Enabled && math.Abs(c.Types.StructuralWeight+c.Types.NamingWeight-1) > weightTolerance {
		warnings = append(warnings, Warning{
			Field:   "types.naming_weight",
			Message: "structural_weight + naming_weight should equal 1.0",
		})
	}
	return warnings, nil
}

// FunctionOptions converts the configuration for funcsim.FindSimilar.
func (c *Config) FunctionOptions() funcsim.FindOptions {
	return funcsim.FindOptions{
		Options: funcsim.Options{
			RenameCost:  c.Functions.RenameCost,
			SizePenalty: c.Functions.SizePenalty,
		},
		Threshold:  c.Threshold,
		Fast:       c.Functions.Fast,
		NameFilter: c.Functions.FilterFunction,
		BodyFilter: c.Functions.FilterFunctionBody,
		Workers:    c.Workers,
		MaxNodes:   c.Functions.MaxNodes,
	}
}

// MinSize returns the function size filter.
func (c *Config) MinSize() extract.MinSize {
	return extract.MinSize{Lines: c.Functions.MinLines, Tokens: c.Functions.MinTokens}
}

// TypeOptions converts the configuration for typesim.
func (c *Config) TypeOptions() typesim.Options {
	return typesim.Options{
		AllowCrossKind:   c.Types.AllowCrossKind,
		StructuralWeight: c.Types.StructuralWeight,
		NamingWeight:     c.Types.NamingWeight,
	}
}

// KindFilter returns the type kind filter.
func (c *Config) KindFilter() extract.KindFilter {
	switch c.Types.Kinds {
	case "aliases":
		return extract.AliasesOnly
	case "interfaces":
		return extract.InterfacesOnly
	default:
		return extract.AllKinds
	}
}

// OverlapOptions converts the configuration for overlap.FindOverlaps.
func (c *Config) OverlapOptions() overlap.Options {
	return overlap.Options{
		MinWindowSize: c.Overlap.MinWindowSize,
		MaxWindowSize: c.Overlap.MaxWindowSize,
		Threshold:     c.Threshold,
		SizeTolerance: c.Overlap.SizeTolerance,
		SameFile:      c.Overlap.SameFile,
		RenameCost:    c.Functions.RenameCost,
		Fast:          c.Functions.Fast,
		Workers:       c.Workers,
	}
}
