// Copyright (c) 2020 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command dnsaccel is a transparent, kernel-assisted DNS response
// accelerator and loss-compensator for a local network interface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/quietflow/dnsaccel/internal/applog"
	"github.com/quietflow/dnsaccel/internal/attach"
	"github.com/quietflow/dnsaccel/internal/cache"
	"github.com/quietflow/dnsaccel/internal/config"
	"github.com/quietflow/dnsaccel/internal/correlate"
	"github.com/quietflow/dnsaccel/internal/inject"
	"github.com/quietflow/dnsaccel/internal/metrics"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger, err := applog.New("dnsaccel")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logger.Sync()
	if err := applog.SetLevel(cfg.LogLevel); err != nil {
		logger.Warnf("ignoring invalid -log-level: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bound, err := attach.Interface(cfg.Iface, func(f string, a ...any) { logger.Infof(f, a...) })
	if err != nil {
		logger.Errorf("attach %s: %v", cfg.Iface, err)
		return 1
	}
	defer bound.Close()
	logger.Infof("attached to %s (kernel-filtered=%v)", cfg.Iface, bound.KernelFiltered)

	c := cache.New()
	cor := correlate.New(c, func(f string, a ...any) { logger.Debugf(f, a...) })
	cor.Threshold = cfg.Threshold
	cor.WaitTime = cfg.WaitTime

	m := metrics.New()

	injector := inject.New(cor, bound.Socket.Writer, func(f string, a ...any) { logger.Infof(f, a...) })

	go func() {
		if err := m.Serve(ctx, cfg.MetricsPort); err != nil && ctx.Err() == nil {
			logger.Warnf("metrics server: %v", err)
		}
	}()
	go injector.Run(ctx)
	go reportLoop(ctx, cor, c, injector, m)

	receiveLoop(ctx, bound, cor, logger)

	logger.Infof("shutting down")
	return 0
}
