// Copyright (c) 2020 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package applog is the process's structured logger: a thin wrapper around
// a zap sugared logger with an atomically adjustable level, INFO by
// default, and a custom time/caller encoding.
package applog

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var level = zap.NewAtomicLevel()

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
}

func callerEncoder(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(fmt.Sprintf("%s:%d", filepath.Base(caller.File), caller.Line))
}

// New returns a sugared logger for name (typically "dnsaccel"), logging at
// INFO or above until SetLevel changes it.
func New(name string) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = timeEncoder
	cfg.EncoderConfig.EncodeCaller = callerEncoder
	cfg.InitialFields = map[string]any{"component": name}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("applog: build: %w", err)
	}
	return logger.Sugar(), nil
}

// SetLevel adjusts the process-wide log level at runtime (e.g. in response
// to a signal or admin endpoint).
func SetLevel(lvl string) error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(lvl)); err != nil {
		return fmt.Errorf("applog: bad level %q: %w", lvl, err)
	}
	level.SetLevel(l)
	return nil
}
