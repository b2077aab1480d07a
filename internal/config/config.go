// Copyright (c) 2020 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config parses the process's command-line flags and their
// DNSACCEL_-prefixed environment variable equivalents.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/peterbourgon/ff/v3"
)

// Config is the fully-resolved set of runtime parameters.
type Config struct {
	Iface       string
	Threshold   float64
	WaitTime    time.Duration
	MetricsPort int
	LogLevel    string
}

// Parse parses args (typically os.Args[1:]) against flags and their
// DNSACCEL_ environment overrides, applying defaults that match the
// normative test defaults for Threshold and WaitTime.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("dnsaccel", flag.ContinueOnError)

	cfg := &Config{}
	fs.StringVar(&cfg.Iface, "iface", "wlo1", "interface to attach the classifier to")
	fs.Float64Var(&cfg.Threshold, "threshold", 0.005, "loss ratio above which the injector activates")
	fs.DurationVar(&cfg.WaitTime, "wait", 5*time.Second, "time a query waits for a reply before timing out")
	fs.IntVar(&cfg.MetricsPort, "metrics-port", 9541, "loopback port to serve /metrics on")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "initial log level")

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("DNSACCEL")); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	if cfg.Iface == "" {
		return nil, fmt.Errorf("config: -iface must not be empty")
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("config: -threshold must be in [0,1], got %v", cfg.Threshold)
	}
	if cfg.WaitTime <= 0 {
		return nil, fmt.Errorf("config: -wait must be positive, got %v", cfg.WaitTime)
	}

	return cfg, nil
}
