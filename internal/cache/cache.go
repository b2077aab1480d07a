// Copyright (c) 2020 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cache is the qname -> addresses table learned from real DNS
// replies and served to the injector. Entries persist for the process
// lifetime; there is no TTL-driven expiry, per spec.
package cache

import (
	"net/netip"

	"github.com/cespare/xxhash/v2"
	"github.com/quietflow/dnsaccel/internal/shardmap"
)

func hashQName(qname string) uint64 {
	return xxhash.Sum64String(qname)
}

// Cache maps a learned qname to the non-empty list of IPv4 addresses from
// the most recent real reply that answered it.
type Cache struct {
	m *shardmap.Map[string, []netip.Addr]
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{m: shardmap.New[string, []netip.Addr](hashQName)}
}

// Lookup returns the cached addresses for qname, if any were learned. The
// returned slice is never empty; ok is false when nothing is cached.
func (c *Cache) Lookup(qname string) (ips []netip.Addr, ok bool) {
	ips, ok = c.m.Get(qname)
	return ips, ok
}

// Remember replaces qname's address list with ips, which must be non-empty.
// A later call for the same qname fully replaces the previous list.
func (c *Cache) Remember(qname string, ips []netip.Addr) {
	if len(ips) == 0 {
		return
	}
	cp := make([]netip.Addr, len(ips))
	copy(cp, ips)
	c.m.Set(qname, cp)
}

// Len reports the number of distinct qnames currently cached.
func (c *Cache) Len() int {
	return c.m.Len()
}
