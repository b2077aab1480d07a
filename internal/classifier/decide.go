// Copyright (c) 2020 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package classifier

import "encoding/binary"

// Verdict is the classifier's decision for one frame.
type Verdict int

const (
	// Ignore means the frame is not forwarded to userspace.
	Ignore Verdict = iota
	// Forward means the frame carries exactly one DNS question and should
	// cross into userspace.
	Forward
)

const (
	ethHeaderLen  = 14
	etherTypeIPv4 = 0x0800
	protoUDP      = 17
	protoTCP      = 6
	udpHeaderLen  = 8
	tcpHeaderLen  = 20
)

// Decide is a pure-Go model of the dns_queries.c socket filter: given one
// whole Ethernet frame, it returns the same verdict the attached kernel
// program would. It is used both to unit-test the predicate (invariants
// 8-10) and, when SO_ATTACH_BPF is unavailable, as an in-process fallback
// that runs the identical check against every frame read off the raw
// socket. It never panics: any bounds failure yields Ignore. Unlike the
// kernel program, it also ignores frames whose IHL is below 5.
func Decide(frame []byte) Verdict {
	if len(frame) < ethHeaderLen+2 {
		return Ignore
	}
	ethProto := binary.BigEndian.Uint16(frame[12:14])
	if ethProto != etherTypeIPv4 {
		return Ignore
	}

	ipStart := ethHeaderLen
	if len(frame) < ipStart+20 {
		return Ignore
	}
	versionIHL := frame[ipStart]
	if versionIHL>>4 != 4 {
		return Ignore
	}
	ipLen := int(versionIHL&0x0f) * 4
	if ipLen < 20 {
		return Ignore
	}
	if len(frame) < ipStart+10 {
		return Ignore
	}
	proto := frame[ipStart+9]

	var l4Len int
	switch proto {
	case protoUDP:
		l4Len = udpHeaderLen
	case protoTCP:
		l4Len = tcpHeaderLen
	default:
		return Ignore
	}

	qdcountOff := ipStart + ipLen + l4Len + 4
	if len(frame) < qdcountOff+2 {
		return Ignore
	}
	qdcount := binary.BigEndian.Uint16(frame[qdcountOff : qdcountOff+2])
	if qdcount == 1 {
		return Forward
	}
	return Ignore
}
