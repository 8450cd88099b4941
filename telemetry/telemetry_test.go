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
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "none"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown error = %v", err)
	}
}

func TestInit_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "carrier-pigeon"
	if _, err := Init(context.Background(), cfg); err == nil {
		t.Error("Init() = nil, want error for invalid exporter")
	}

	cfg = DefaultConfig()
	cfg.SampleRatio = 2.0
	if _, err := Init(context.Background(), cfg); err == nil {
		t.Error("Init() = nil, want error for out-of-range sample ratio")
	}

	cfg = DefaultConfig()
	cfg.ServiceName = ""
	if _, err := Init(context.Background(), cfg); err == nil {
		t.Error("Init() = nil, want error for empty service name")
	}
}

func TestNewMetrics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "none"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	meter := otel.Meter("test_metrics")
	metrics, err := NewMetrics(meter)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	// Verify all metrics are created
	if metrics.QueriesTotal == nil {
		t.Error("QueriesTotal is nil")
	}
	if metrics.QueryDuration == nil {
		t.Error("QueryDuration is nil")
	}
	if metrics.PathsFound == nil {
		t.Error("PathsFound is nil")
	}
	if metrics.PartialComputationsTotal == nil {
		t.Error("PartialComputationsTotal is nil")
	}
	if metrics.FragmentsStored == nil {
		t.Error("FragmentsStored is nil")
	}
	if metrics.EvictionsTotal == nil {
		t.Error("EvictionsTotal is nil")
	}
	if metrics.ErrorsTotal == nil {
		t.Error("ErrorsTotal is nil")
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("valid file overrides defaults", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "telemetry.yaml")
		content := "service_name: resolver\ntrace_exporter: stdout\nmetric_exporter: none\nsample_ratio: 0.25\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if cfg.ServiceName != "resolver" {
			t.Errorf("ServiceName = %q", cfg.ServiceName)
		}
		if cfg.TraceExporter != "stdout" {
			t.Errorf("TraceExporter = %q", cfg.TraceExporter)
		}
		if cfg.SampleRatio != 0.25 {
			t.Errorf("SampleRatio = %v", cfg.SampleRatio)
		}
	})

	t.Run("missing file returns error", func(t *testing.T) {
		if _, err := LoadConfig("/nonexistent/telemetry.yaml"); err == nil {
			t.Error("LoadConfig = nil, want error")
		}
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "telemetry.yaml")
		if err := os.WriteFile(path, []byte("sample_ratio: 7\n"), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Error("LoadConfig = nil, want validation error")
		}
	})
}
