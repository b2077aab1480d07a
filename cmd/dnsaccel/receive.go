// Copyright (c) 2020 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/quietflow/dnsaccel/internal/attach"
	"github.com/quietflow/dnsaccel/internal/cache"
	"github.com/quietflow/dnsaccel/internal/classifier"
	"github.com/quietflow/dnsaccel/internal/correlate"
	"github.com/quietflow/dnsaccel/internal/decode"
	"github.com/quietflow/dnsaccel/internal/dnscodec"
	"github.com/quietflow/dnsaccel/internal/inject"
	"github.com/quietflow/dnsaccel/internal/metrics"
)

// maxFrameLen is the largest frame the kernel↔userland channel delivers
// per read; larger reads are tolerated, short reads are treated as errors.
const maxFrameLen = 2048

// receiveLoop reads frames off the bound socket until ctx is done,
// classifying in software when the kernel filter isn't attached, decoding,
// and feeding every DNS message into the correlator.
func receiveLoop(ctx context.Context, bound *attach.Result, cor *correlate.Correlator, logger *zap.SugaredLogger) {
	buf := make([]byte, maxFrameLen)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		bound.Socket.Reader.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, err := bound.Socket.Reader.Read(buf)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				continue
			}
			logger.Debugf("receive: read: %v", err)
			continue
		}
		frame := buf[:n]

		if !bound.KernelFiltered {
			if classifier.Decide(frame) != classifier.Forward {
				continue
			}
		}

		fl, payload, err := decode.Decode(frame)
		if err != nil {
			logger.Debugf("receive: decode: %v", err)
			continue
		}

		msg, err := dnscodec.Parse(payload)
		if err != nil {
			logger.Warnf("receive: parse dns: %v", err)
			continue
		}

		cor.Observe(fl, msg)
	}
}

// reportLoop periodically pushes correlator/cache state into metrics. It
// is not load-bearing for correctness, only for observability.
func reportLoop(ctx context.Context, cor *correlate.Correlator, c *cache.Cache, in *inject.Injector, m *metrics.Metrics) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.TotalRequestsSeen.Set(float64(cor.TotalRequestsSeen()))
			m.UnmatchedCount.Set(float64(cor.UnmatchedCount()))
			m.CacheEntries.Set(float64(c.Len()))
			m.InjectedReplies.Set(float64(in.Stats.InjectedTotal.Load()))
			m.LossRatio.Set(cor.LossRatio())
		}
	}
}
