// Copyright (c) 2020 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package buildframe serializes a forged DNS reply into a complete
// Ethernet/IPv4/UDP frame ready to write back onto the wire, with the
// source and destination swapped relative to the original query's flow.
package buildframe

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/quietflow/dnsaccel/internal/flow"
)

// ReplyFrame serializes a forged DNS reply (payload, already wire-encoded by
// dnscodec.BuildReply) into an Ethernet/IPv4/UDP frame addressed from
// replyFlow.Src to replyFlow.Dst. Callers pass the original query's flow
// identity Swapped so the frame travels back to the original requester.
func ReplyFrame(replyFlow flow.Identity, payload []byte) ([]byte, error) {
	eth := layers.Ethernet{
		SrcMAC:       replyFlow.SrcMAC[:],
		DstMAC:       replyFlow.DstMAC[:],
		EthernetType: layers.EthernetTypeIPv4,
	}

	srcIP := replyFlow.Src.Addr()
	dstIP := replyFlow.Dst.Addr()
	if !srcIP.Is4() || !dstIP.Is4() {
		return nil, fmt.Errorf("buildframe: reply flow is not IPv4 (src=%v dst=%v)", srcIP, dstIP)
	}
	srcIPv4 := srcIP.As4()
	dstIPv4 := dstIP.As4()

	ip := layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Id:       0,
		Flags:    layers.IPv4DontFragment,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    srcIPv4[:],
		DstIP:    dstIPv4[:],
	}

	udp := layers.UDP{
		SrcPort: layers.UDPPort(replyFlow.Src.Port()),
		DstPort: layers.UDPPort(replyFlow.Dst.Port()),
	}
	if err := udp.SetNetworkLayerForChecksum(&ip); err != nil {
		return nil, fmt.Errorf("buildframe: set checksum layer: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	err := gopacket.SerializeLayers(buf, opts, &eth, &ip, &udp, gopacket.Payload(payload))
	if err != nil {
		return nil, fmt.Errorf("buildframe: serialize: %w", err)
	}
	return buf.Bytes(), nil
}
