// Copyright (c) 2020 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cache

import (
	"net/netip"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestRememberAndLookup(t *testing.T) {
	c := qt.New(t)
	cache := New()

	_, ok := cache.Lookup("example.com")
	c.Assert(ok, qt.IsFalse)

	ips := []netip.Addr{netip.MustParseAddr("1.2.3.4")}
	cache.Remember("example.com", ips)

	got, ok := cache.Lookup("example.com")
	c.Assert(ok, qt.IsTrue)
	c.Assert(got, qt.DeepEquals, ips)
	c.Assert(cache.Len(), qt.Equals, 1)
}

func TestRememberReplacesPreviousList(t *testing.T) {
	c := qt.New(t)
	cache := New()
	cache.Remember("a.example", []netip.Addr{netip.MustParseAddr("1.1.1.1")})
	cache.Remember("a.example", []netip.Addr{netip.MustParseAddr("2.2.2.2")})

	got, _ := cache.Lookup("a.example")
	c.Assert(got, qt.DeepEquals, []netip.Addr{netip.MustParseAddr("2.2.2.2")})
}

func TestRememberIgnoresEmptyList(t *testing.T) {
	c := qt.New(t)
	cache := New()
	cache.Remember("b.example", nil)
	_, ok := cache.Lookup("b.example")
	c.Assert(ok, qt.IsFalse)
}
