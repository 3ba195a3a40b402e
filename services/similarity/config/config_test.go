// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/similarity/services/similarity/extract"
	"github.com/AleutianAI/similarity/services/similarity/funcsim"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.87, cfg.Threshold)
	assert.True(t, cfg.Functions.Enabled)
	assert.False(t, cfg.Types.Enabled)
	assert.False(t, cfg.Overlap.Enabled)
	assert.False(t, cfg.Types.AllowCrossKind)
	assert.Equal(t, 8, cfg.Overlap.MinWindowSize)
	assert.Equal(t, 25, cfg.Overlap.MaxWindowSize)
	assert.Equal(t, "none", cfg.Telemetry.TraceExporter)

	opts := cfg.FunctionOptions()
	assert.Equal(t, 0.3, opts.RenameCost)
	assert.True(t, opts.SizePenalty)
	assert.True(t, opts.Fast)
	assert.Equal(t, funcsim.DefaultMaxNodes, opts.MaxNodes)

	ov := cfg.OverlapOptions()
	assert.NoError(t, ov.Validate())
	assert.Equal(t, 0.25, ov.SizeTolerance)
	assert.Equal(t, cfg.Threshold, ov.Threshold)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "similarity.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
threshold: 0.9
functions:
  min_tokens: 40
types:
  enabled: true
  kinds: interfaces
overlap:
  enabled: true
  max_window_size: 30
discovery:
  exclude: ["**/vendor/**"]
`), 0o644))

	cfg, err := Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.Threshold)
	assert.Equal(t, 40, cfg.Functions.MinTokens)
	assert.Equal(t, DefaultMinLines, cfg.Functions.MinLines, "unset fields keep defaults")
	assert.True(t, cfg.Types.Enabled)
	assert.Equal(t, extract.InterfacesOnly, cfg.KindFilter())
	assert.Equal(t, 30, cfg.Overlap.MaxWindowSize)
	assert.Equal(t, []string{"**/vendor/**"}, cfg.Discovery.Exclude)

	jsonPath := filepath.Join(dir, "similarity.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"threshold": 0.5, "output": {"format": "json", "log_level": "info"}}`), 0o644))
	cfg, err = Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Threshold)
	assert.Equal(t, "json", cfg.Output.Format)

	cfg, err = Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("threshold: [1, 2"), 0o644))
	_, err = Load(badPath)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "similarity.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threshold: 0.9\n"), 0o644))

	t.Setenv("SIMILARITY_THRESHOLD", "0.75")
	t.Setenv("SIMILARITY_FAST", "false")
	t.Setenv("SIMILARITY_OVERLAP", "1")
	t.Setenv("SIMILARITY_EXCLUDE", "dist/**, ,node_modules/**")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.75, cfg.Threshold)
	assert.False(t, cfg.Functions.Fast)
	assert.True(t, cfg.Overlap.Enabled)
	assert.Equal(t, []string{"dist/**", "node_modules/**"}, cfg.Discovery.Exclude)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("SIMILARITY_WORKERS", "many")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SIMILARITY_WORKERS")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"threshold above one", func(c *Config) { c.Threshold = 1.5 }, "Threshold"},
		{"negative rename cost", func(c *Config) { c.Functions.RenameCost = -0.1 }, "Functions.RenameCost"},
		{"zero window", func(c *Config) { c.Overlap.MinWindowSize = 0 }, "Overlap.MinWindowSize"},
		{"max below min", func(c *Config) { c.Overlap.MaxWindowSize = 4 }, "Overlap.MaxWindowSize"},
		{"unknown format", func(c *Config) { c.Output.Format = "xml" }, "Output.Format"},
		{"unknown exporter", func(c *Config) { c.Telemetry.TraceExporter = "zipkin" }, "Telemetry.TraceExporter"},
		{"weight above one", func(c *Config) { c.Types.NamingWeight = 2 }, "Types.NamingWeight"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestResolve(t *testing.T) {
	t.Run("no analyzer", func(t *testing.T) {
		cfg := Default()
		cfg.Functions.Enabled = false
		_, err := cfg.Resolve()
		assert.ErrorIs(t, err, ErrNoAnalyzer)
	})

	t.Run("tokens win over lines", func(t *testing.T) {
		cfg := Default()
		cfg.Functions.MinTokens = 30
		warnings, err := cfg.Resolve()
		require.NoError(t, err)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0].String(), "--min-tokens=30")
		assert.Equal(t, extract.MinSize{Tokens: 30}, cfg.MinSize())
	})

	t.Run("weight sum", func(t *testing.T) {
		cfg := Default()
		cfg.Types.Enabled = true
		cfg.Types.NamingWeight = 0.5
		warnings, err := cfg.Resolve()
		require.NoError(t, err)
		require.Len(t, warnings, 1)
		assert.Equal(t, "types.naming_weight", warnings[0].Field)
		assert.Equal(t, 0.5, cfg.TypeOptions().NamingWeight, "weights are kept as configured")
	})

	t.Run("weights ignored when types are off", func(t *testing.T) {
		cfg := Default()
		cfg.Types.NamingWeight = 0.5
		warnings, err := cfg.Resolve()
		require.NoError(t, err)
		assert.Empty(t, warnings)
	})

	t.Run("invalid", func(t *testing.T) {
		cfg := Default()
		cfg.Threshold = -1
		_, err := cfg.Resolve()
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"ts", "tsx"}, SplitList(" ts ,tsx,,"))
	assert.Nil(t, SplitList(""))
}
