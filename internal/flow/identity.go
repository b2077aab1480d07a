// Copyright (c) 2020 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flow identifies a bidirectional UDP/IPv4 conversation and computes
// a hash over it that is invariant to which side is "source" and which is
// "destination".
package flow

import (
	"bytes"
	"net/netip"

	"github.com/cespare/xxhash/v2"
)

// MAC is a 6-byte hardware address.
type MAC [6]byte

// Identity is the flow a DNS message was observed on: two IP:port endpoints
// and the two Ethernet MACs that carried them.
type Identity struct {
	Src, Dst       netip.AddrPort
	SrcMAC, DstMAC MAC
}

// Swapped returns id with source and destination reversed, as used when
// building a forged reply directed back at the original requester.
func (id Identity) Swapped() Identity {
	return Identity{
		Src:    id.Dst,
		Dst:    id.Src,
		SrcMAC: id.DstMAC,
		DstMAC: id.SrcMAC,
	}
}

func macLess(a, b MAC) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

func endpointLess(a, b netip.AddrPort) bool {
	if a.Addr() != b.Addr() {
		return a.Addr().Less(b.Addr())
	}
	return a.Port() < b.Port()
}

// appendEndpoint writes addr/port in a canonical, platform-independent byte
// order so that the hash below doesn't depend on netip's internal layout.
func appendEndpoint(b []byte, ep netip.AddrPort) []byte {
	addr := ep.Addr().As4()
	b = append(b, addr[:]...)
	b = append(b, byte(ep.Port()>>8), byte(ep.Port()))
	return b
}

// Hash computes the symmetric flow hash: sort the two endpoints and the two
// MACs into canonical order before mixing, so that hash(A->B) == hash(B->A).
func (id Identity) Hash() uint64 {
	srcEP, dstEP := id.Src, id.Dst
	if !endpointLess(srcEP, dstEP) {
		srcEP, dstEP = dstEP, srcEP
	}
	srcMAC, dstMAC := id.SrcMAC, id.DstMAC
	if !macLess(srcMAC, dstMAC) {
		srcMAC, dstMAC = dstMAC, srcMAC
	}

	buf := make([]byte, 0, 2*6+2*6)
	buf = appendEndpoint(buf, srcEP)
	buf = appendEndpoint(buf, dstEP)
	buf = append(buf, srcMAC[:]...)
	buf = append(buf, dstMAC[:]...)
	return xxhash.Sum64(buf)
}
