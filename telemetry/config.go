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
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config controls telemetry initialization.
type Config struct {
	// ServiceName labels exported traces and metrics.
	ServiceName string `yaml:"service_name" validate:"required"`

	// TraceExporter selects the span exporter: "stdout" or "none".
	TraceExporter string `yaml:"trace_exporter" validate:"oneof=stdout none"`

	// MetricExporter selects the metric exporter: "prometheus", "stdout",
	// or "none".
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=prometheus stdout none"`

	// SampleRatio is the trace sampling ratio in [0, 1].
	SampleRatio float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

// DefaultConfig returns telemetry defaults: no span export, prometheus
// metrics, full sampling.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "stackscope",
		TraceExporter:  "none",
		MetricExporter: "prometheus",
		SampleRatio:    1.0,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}
	return nil
}

// LoadConfig reads and validates a YAML configuration file. Fields absent
// from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	buf, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading telemetry config: %w", err)
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing telemetry config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
