// Copyright (c) 2020 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flow

import (
	"net/netip"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestHashIsSymmetric(t *testing.T) {
	c := qt.New(t)
	id := Identity{
		Src:    netip.MustParseAddrPort("10.0.0.2:50001"),
		Dst:    netip.MustParseAddrPort("10.0.0.1:53"),
		SrcMAC: MAC{1, 2, 3, 4, 5, 6},
		DstMAC: MAC{6, 5, 4, 3, 2, 1},
	}
	c.Assert(id.Hash(), qt.Equals, id.Swapped().Hash())
}

func TestHashDistinguishesDifferentFlows(t *testing.T) {
	c := qt.New(t)
	a := Identity{
		Src:    netip.MustParseAddrPort("10.0.0.2:50001"),
		Dst:    netip.MustParseAddrPort("10.0.0.1:53"),
		SrcMAC: MAC{1, 2, 3, 4, 5, 6},
		DstMAC: MAC{6, 5, 4, 3, 2, 1},
	}
	b := a
	b.Src = netip.MustParseAddrPort("10.0.0.3:50002")
	c.Assert(a.Hash(), qt.Not(qt.Equals), b.Hash())
}

func TestSwappedReversesEndpoints(t *testing.T) {
	c := qt.New(t)
	id := Identity{
		Src:    netip.MustParseAddrPort("10.0.0.2:50001"),
		Dst:    netip.MustParseAddrPort("10.0.0.1:53"),
		SrcMAC: MAC{1, 2, 3, 4, 5, 6},
		DstMAC: MAC{6, 5, 4, 3, 2, 1},
	}
	s := id.Swapped()
	c.Assert(s.Src, qt.Equals, id.Dst)
	c.Assert(s.Dst, qt.Equals, id.Src)
	c.Assert(s.SrcMAC, qt.Equals, id.DstMAC)
	c.Assert(s.DstMAC, qt.Equals, id.SrcMAC)
}
