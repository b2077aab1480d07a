// Copyright (c) 2020 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package decode parses the Ethernet/IPv4/UDP headers of a single frame, as
// delivered whole by the kernel classifier, into a flow identity plus the
// DNS payload slice. It never allocates more than the returned payload
// slice (which aliases the input) and never panics on truncated input.
package decode

import (
	"encoding/binary"
	"errors"
	"net/netip"

	"github.com/quietflow/dnsaccel/internal/flow"
)

// ErrMalformed is returned for any frame that fails a bounds or type check.
// Per spec, the caller's response to ErrMalformed is always the same:
// discard the frame and continue.
var ErrMalformed = errors.New("decode: malformed frame")

const (
	ethernetHeaderLen = 14
	ipProtoUDP        = 17
	etherTypeIPv4      = 0x0800
)

// Decode parses frame (one whole Ethernet II frame) into a flow identity and
// the DNS payload it carries. It requires IPv4-over-UDP; anything else,
// including truncated input, yields ErrMalformed.
func Decode(frame []byte) (flow.Identity, []byte, error) {
	var id flow.Identity

	if len(frame) < ethernetHeaderLen+20 {
		return id, nil, ErrMalformed
	}
	if binary.BigEndian.Uint16(frame[12:14]) != etherTypeIPv4 {
		return id, nil, ErrMalformed
	}
	copy(id.DstMAC[:], frame[0:6])
	copy(id.SrcMAC[:], frame[6:12])

	ipStart := ethernetHeaderLen
	versionIHL := frame[ipStart]
	if versionIHL>>4 != 4 {
		return id, nil, ErrMalformed
	}
	ihl := int(versionIHL&0x0f) * 4
	if ihl < 20 {
		return id, nil, ErrMalformed
	}
	if len(frame) < ipStart+ihl+8 {
		return id, nil, ErrMalformed
	}
	if frame[ipStart+9] != ipProtoUDP {
		return id, nil, ErrMalformed
	}

	srcIP, ok := netip.AddrFromSlice(frame[ipStart+12 : ipStart+16])
	if !ok {
		return id, nil, ErrMalformed
	}
	dstIP, ok := netip.AddrFromSlice(frame[ipStart+16 : ipStart+20])
	if !ok {
		return id, nil, ErrMalformed
	}

	udpStart := ipStart + ihl
	srcPort := binary.BigEndian.Uint16(frame[udpStart : udpStart+2])
	dstPort := binary.BigEndian.Uint16(frame[udpStart+2 : udpStart+4])

	id.Src = netip.AddrPortFrom(srcIP, srcPort)
	id.Dst = netip.AddrPortFrom(dstIP, dstPort)

	payloadStart := udpStart + 8
	if payloadStart > len(frame) {
		return id, nil, ErrMalformed
	}
	return id, frame[payloadStart:], nil
}
