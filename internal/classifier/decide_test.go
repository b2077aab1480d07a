// Copyright (c) 2020 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package classifier

import (
	"encoding/binary"
	"testing"

	qt "github.com/frankban/quicktest"
)

// buildFrame constructs a minimal Ethernet+IPv4+L4+DNS-header frame with
// the given L4 protocol and QDCOUNT, for exercising the classifier's
// offset arithmetic without a full packet library.
func buildFrame(proto byte, qdcount uint16) []byte {
	const ipLen = 20
	var l4Len int
	switch proto {
	case protoUDP:
		l4Len = udpHeaderLen
	case protoTCP:
		l4Len = tcpHeaderLen
	}
	frame := make([]byte, ethHeaderLen+ipLen+l4Len+8)
	binary.BigEndian.PutUint16(frame[12:14], etherTypeIPv4)
	frame[ethHeaderLen] = 0x45 // version 4, IHL 5
	frame[ethHeaderLen+9] = proto
	off := ethHeaderLen + ipLen + l4Len + 4
	binary.BigEndian.PutUint16(frame[off:off+2], qdcount)
	return frame
}

func TestDecideForwardsSingleQuestionUDP(t *testing.T) {
	c := qt.New(t)
	c.Assert(Decide(buildFrame(protoUDP, 1)), qt.Equals, Forward)
}

func TestDecideForwardsSingleQuestionTCP(t *testing.T) {
	c := qt.New(t)
	c.Assert(Decide(buildFrame(protoTCP, 1)), qt.Equals, Forward)
}

func TestDecideIgnoresZeroOrMultipleQuestions(t *testing.T) {
	c := qt.New(t)
	c.Assert(Decide(buildFrame(protoUDP, 0)), qt.Equals, Ignore)
	c.Assert(Decide(buildFrame(protoUDP, 2)), qt.Equals, Ignore)
}

func TestDecideIgnoresNonUDPTCP(t *testing.T) {
	c := qt.New(t)
	frame := buildFrame(protoUDP, 1)
	frame[ethHeaderLen+9] = 1 // ICMP
	c.Assert(Decide(frame), qt.Equals, Ignore)
}

func TestDecideNeverPanicsOnTruncation(t *testing.T) {
	c := qt.New(t)
	full := buildFrame(protoUDP, 1)
	qdcountEnd := ethHeaderLen + 20 + udpHeaderLen + 4 + 2
	for n := 0; n <= len(full); n++ {
		// Input cut off before the end of QDCOUNT must yield Ignore, never a
		// panic; once QDCOUNT is present the verdict is Forward, as in the
		// kernel program. Calling Decide directly (rather than through
		// recover) is the no-panic assertion.
		got := Decide(full[:n])
		if n >= qdcountEnd {
			c.Assert(got, qt.Equals, Forward)
		} else {
			c.Assert(got, qt.Equals, Ignore)
		}
	}
}
