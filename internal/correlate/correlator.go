// Copyright (c) 2020 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package correlate matches DNS queries to their replies by transaction id
// and symmetric flow hash, ages unanswered queries out on a timer, and
// feeds the cache from real replies. It owns PENDING, the loss counters, and
// the UNMATCHED log.
package correlate

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/quietflow/dnsaccel/internal/cache"
	"github.com/quietflow/dnsaccel/internal/dnscodec"
	"github.com/quietflow/dnsaccel/internal/flow"
	"github.com/quietflow/dnsaccel/internal/shardmap"
)

// Default constants from spec §4.4. Both are normative for tests and both
// SHOULD be overridable (Correlator.Threshold / Correlator.WaitTime).
const (
	DefaultThreshold = 0.005
	DefaultWaitTime  = 5 * time.Second
)

// unmatchedLogSize bounds the UNMATCHED ring buffer. The loss counters are
// exact regardless of this bound; only the operator-visibility log trims.
const unmatchedLogSize = 4096

// Key is the correlation key: a DNS transaction id plus the symmetric flow
// hash of the conversation it was observed on.
type Key struct {
	ID   uint16
	Hash uint64
}

func shardOf(k Key) uint64 { return k.Hash }

// Pending is an outstanding request awaiting either a matching reply, a
// forged-reply injection, or a timeout.
type Pending struct {
	Key        Key
	Flow       flow.Identity
	QNames     []string
	InsertedAt time.Time
}

// Unmatched is one record of a request that never got a reply: either it
// timed out, or it was answered with RCODE=Refused.
type Unmatched struct {
	Flow      flow.Identity
	QNames    []string
	Timestamp time.Time
}

// Correlator owns the outstanding-request table and loss accounting. The
// zero value is not usable; construct with New.
type Correlator struct {
	Cache *cache.Cache

	Threshold float64
	WaitTime  time.Duration

	logf func(format string, args ...any)

	pending *shardmap.Map[Key, *Pending]

	totalRequestsSeen atomic.Uint64
	unmatchedCount    atomic.Uint64

	unmatchedMu  sync.Mutex
	unmatchedLog []Unmatched
	unmatchedPos int
}

// New returns a Correlator that learns into c and uses the given logf for
// correlation/timeout diagnostics (may be nil).
func New(c *cache.Cache, logf func(format string, args ...any)) *Correlator {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Correlator{
		Cache:     c,
		Threshold: DefaultThreshold,
		WaitTime:  DefaultWaitTime,
		logf:      logf,
		pending:   shardmap.New[Key, *Pending](shardOf),
	}
}

// TotalRequestsSeen returns the number of distinct queries observed.
func (c *Correlator) TotalRequestsSeen() uint64 { return c.totalRequestsSeen.Load() }

// UnmatchedCount returns the number of requests that timed out or were
// refused without a usable reply.
func (c *Correlator) UnmatchedCount() uint64 { return c.unmatchedCount.Load() }

// LossRatio returns unmatched/total, or 0 if no requests have been seen yet.
func (c *Correlator) LossRatio() float64 {
	total := c.totalRequestsSeen.Load()
	if total == 0 {
		return 0
	}
	return float64(c.unmatchedCount.Load()) / float64(total)
}

// PendingLen reports the number of outstanding requests.
func (c *Correlator) PendingLen() int { return c.pending.Len() }

// Snapshot returns a point-in-time copy of every outstanding request, for
// the injector to walk without holding up inserts/removals.
func (c *Correlator) Snapshot() []*Pending {
	entries := c.pending.Snapshot()
	out := make([]*Pending, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out
}

// RemoveIfPresent removes the pending entry for key if it is still there.
// It is exported so the injector can remove an entry only after its forged
// frame has been handed to the write path (§4.5's ordering guarantee); the
// injector and a timeout racing on the same key both call this, and
// whichever wins is a no-op for the other.
func (c *Correlator) RemoveIfPresent(key Key) (*Pending, bool) {
	return c.pending.Pop(key)
}

// Observe is called on every successfully decoded DNS message. fl is the
// flow it arrived on; msg is the decoded DNS message.
func (c *Correlator) Observe(fl flow.Identity, msg *dnscodec.Message) {
	key := Key{ID: msg.ID, Hash: fl.Hash()}

	if msg.IsQuery {
		c.observeQuery(key, fl, msg)
		return
	}
	c.observeResponse(key, msg)
}

func (c *Correlator) observeQuery(key Key, fl flow.Identity, msg *dnscodec.Message) {
	p := &Pending{
		Key:        key,
		Flow:       fl,
		QNames:     append([]string(nil), msg.Questions...),
		InsertedAt: time.Now(),
	}
	existed := c.pending.Set(key, p)
	if !existed {
		c.totalRequestsSeen.Add(1)
	}
	c.scheduleTimeout(key)
}

func (c *Correlator) observeResponse(key Key, msg *dnscodec.Message) {
	p, removed := c.pending.Pop(key)
	if !removed {
		return
	}

	if msg.Refused() {
		c.appendUnmatched(Unmatched{Flow: p.Flow, QNames: p.QNames, Timestamp: time.Now()})
		c.unmatchedCount.Add(1)
		return
	}

	ips := msg.AAnswers()
	if len(ips) == 0 {
		// AAAA-only or otherwise answer-less reply: discard silently.
		return
	}
	for _, qname := range p.QNames {
		c.Cache.Remember(qname, ips)
		c.logf("cache: %s -> %v (id=%d)", qname, ips, key.ID)
	}
}

// scheduleTimeout arranges for key to be evicted WAIT_TIME after insertion,
// one lightweight timer per outstanding request (design note strategy (a)).
func (c *Correlator) scheduleTimeout(key Key) {
	time.AfterFunc(c.WaitTime, func() { c.timeout(key) })
}

// timeout fires WAIT_TIME after a pending entry was inserted. Under
// pressure (loss ratio above Threshold) it defers by one more WAIT_TIME,
// giving the injector a chance to serve the entry first.
func (c *Correlator) timeout(key Key) {
	if c.LossRatio() > c.Threshold {
		time.AfterFunc(c.WaitTime, func() { c.evict(key) })
		return
	}
	c.evict(key)
}

func (c *Correlator) evict(key Key) {
	p, removed := c.pending.Pop(key)
	if !removed {
		return
	}
	c.appendUnmatched(Unmatched{Flow: p.Flow, QNames: p.QNames, Timestamp: time.Now()})
	c.unmatchedCount.Add(1)
	c.logf("timeout: id=%d qnames=%v", key.ID, p.QNames)
}

func (c *Correlator) appendUnmatched(u Unmatched) {
	c.unmatchedMu.Lock()
	defer c.unmatchedMu.Unlock()
	if len(c.unmatchedLog) < unmatchedLogSize {
		c.unmatchedLog = append(c.unmatchedLog, u)
		return
	}
	c.unmatchedLog[c.unmatchedPos] = u
	c.unmatchedPos = (c.unmatchedPos + 1) % unmatchedLogSize
}

// UnmatchedLog returns a copy of the retained unmatched records, oldest
// first. Its length may be less than UnmatchedCount once the ring buffer
// has wrapped.
func (c *Correlator) UnmatchedLog() []Unmatched {
	c.unmatchedMu.Lock()
	defer c.unmatchedMu.Unlock()
	// Once wrapped, the oldest record sits at unmatchedPos.
	out := make([]Unmatched, 0, len(c.unmatchedLog))
	out = append(out, c.unmatchedLog[c.unmatchedPos:]...)
	out = append(out, c.unmatchedLog[:c.unmatchedPos]...)
	return out
}
