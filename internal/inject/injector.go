// Copyright (c) 2020 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package inject runs the periodic task that forges and writes DNS replies
// for pending queries the correlator already has a cached answer for, once
// observed loss crosses the correlator's threshold.
package inject

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/quietflow/dnsaccel/internal/buildframe"
	"github.com/quietflow/dnsaccel/internal/correlate"
	"github.com/quietflow/dnsaccel/internal/dnscodec"
)

// Tick is the injector's cadence; the 10 ms injector tick is the sole
// retry engine for write/build failures, per design.
const Tick = 10 * time.Millisecond

// Stats is updated after every tick and read concurrently by callers (e.g.
// a metrics reporting loop), so its fields use atomics rather than plain
// integers, matching correlate.Correlator's own counters.
type Stats struct {
	InjectedTotal atomic.Uint64
}

// Injector periodically scans the correlator's pending set and serves any
// entry it can answer from cache once loss has crossed threshold.
type Injector struct {
	Correlator *correlate.Correlator
	Writer     io.Writer
	Logf       func(format string, args ...any)

	Stats Stats
}

// New returns an Injector that writes forged frames to w using entries
// from cor.
func New(cor *correlate.Correlator, w io.Writer, logf func(format string, args ...any)) *Injector {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Injector{Correlator: cor, Writer: w, Logf: logf}
}

// Run blocks, ticking every Tick until ctx is done.
func (in *Injector) Run(ctx context.Context) {
	ticker := time.NewTicker(Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			in.tick()
		}
	}
}

// tick runs exactly one pass of the algorithm in §4.5: gated on loss ratio,
// iterate a snapshot of PENDING, forge+write what cache can answer, and
// remove only entries that were actually written.
func (in *Injector) tick() {
	if in.Correlator.LossRatio() <= in.Correlator.Threshold {
		return
	}
	pending := in.Correlator.Snapshot()
	if len(pending) == 0 {
		return
	}

	for _, p := range pending {
		if len(p.QNames) == 0 {
			continue
		}
		qname := p.QNames[0]
		ips, ok := in.Correlator.Cache.Lookup(qname)
		if !ok {
			continue
		}

		payload, err := dnscodec.BuildReply(p.Key.ID, qname, ips)
		if err != nil {
			in.Logf("inject: build reply for %q: %v", qname, err)
			continue
		}
		replyFlow := p.Flow.Swapped()
		frame, err := buildframe.ReplyFrame(replyFlow, payload)
		if err != nil {
			in.Logf("inject: build frame for %q: %v", qname, err)
			continue
		}

		if _, err := in.Writer.Write(frame); err != nil {
			in.Logf("inject: write frame for %q: %v", qname, err)
			continue
		}

		// Only remove after a successful write, and only if nobody else
		// (a concurrent timeout) already removed it first.
		if _, removed := in.Correlator.RemoveIfPresent(p.Key); removed {
			in.Stats.InjectedTotal.Add(1)
			in.Logf("inject: served %s id=%d from cache (%v)", qname, p.Key.ID, ips)
		}
	}
}
