// Copyright (c) 2020 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dnscodec

import (
	"net/netip"
	"testing"

	"github.com/miekg/dns"

	qt "github.com/frankban/quicktest"
)

func TestBuildReplyThenParseRoundTrips(t *testing.T) {
	c := qt.New(t)
	ips := []netip.Addr{
		netip.MustParseAddr("114.114.114.114"),
		netip.MustParseAddr("8.8.8.8"),
	}

	wire, err := BuildReply(0x1234, "6666.com", ips)
	c.Assert(err, qt.IsNil)

	msg, err := Parse(wire)
	c.Assert(err, qt.IsNil)
	c.Assert(msg.ID, qt.Equals, uint16(0x1234))
	c.Assert(msg.IsQuery, qt.IsFalse)
	c.Assert(msg.RCode, qt.Equals, dns.RcodeSuccess)
	c.Assert(msg.Questions, qt.DeepEquals, []string{"6666.com"})
	c.Assert(msg.AAnswers(), qt.DeepEquals, ips)
}

func TestBuildReplyRejectsEmptyAddressList(t *testing.T) {
	c := qt.New(t)
	_, err := BuildReply(1, "example.com", nil)
	c.Assert(err, qt.ErrorMatches, "dnscodec:.*no addresses.*")
}

func TestBuildReplyRejectsInvalidName(t *testing.T) {
	c := qt.New(t)
	ips := []netip.Addr{netip.MustParseAddr("1.2.3.4")}
	overlongLabel := make([]byte, 64)
	for i := range overlongLabel {
		overlongLabel[i] = 'a'
	}
	_, err := BuildReply(1, string(overlongLabel)+".com", ips)
	c.Assert(err, qt.IsNotNil)
}

func TestParseDetectsQuery(t *testing.T) {
	c := qt.New(t)
	q := new(dns.Msg)
	q.SetQuestion(dns.Fqdn("example.com"), dns.TypeA)
	q.Id = 42
	wire, err := q.Pack()
	c.Assert(err, qt.IsNil)

	msg, err := Parse(wire)
	c.Assert(err, qt.IsNil)
	c.Assert(msg.IsQuery, qt.IsTrue)
	c.Assert(msg.Questions, qt.DeepEquals, []string{"example.com"})
}

func TestParseDetectsRefused(t *testing.T) {
	c := qt.New(t)
	r := new(dns.Msg)
	r.SetRcode(new(dns.Msg), dns.RcodeRefused)
	r.Response = true
	wire, err := r.Pack()
	c.Assert(err, qt.IsNil)

	msg, err := Parse(wire)
	c.Assert(err, qt.IsNil)
	c.Assert(msg.Refused(), qt.IsTrue)
}

func TestParseProjectsAAAAAndCNAME(t *testing.T) {
	c := qt.New(t)
	m := new(dns.Msg)
	m.Response = true
	m.Id = 7
	m.Question = []dns.Question{{Name: dns.Fqdn("alias.example"), Qtype: dns.TypeA, Qclass: dns.ClassINET}}
	m.Answer = append(m.Answer, &dns.CNAME{
		Hdr:    dns.RR_Header{Name: dns.Fqdn("alias.example"), Rrtype: dns.TypeCNAME, Class: dns.ClassINET, Ttl: 10},
		Target: dns.Fqdn("real.example"),
	})
	m.Answer = append(m.Answer, &dns.AAAA{
		Hdr:  dns.RR_Header{Name: dns.Fqdn("real.example"), Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: 10},
		AAAA: netip.MustParseAddr("2001:db8::1").AsSlice(),
	})
	wire, err := m.Pack()
	c.Assert(err, qt.IsNil)

	msg, err := Parse(wire)
	c.Assert(err, qt.IsNil)
	c.Assert(msg.Answers, qt.HasLen, 2)
	c.Assert(msg.Answers[0].Kind, qt.Equals, KindCNAME)
	c.Assert(msg.Answers[0].CName, qt.Equals, "real.example")
	c.Assert(msg.Answers[1].Kind, qt.Equals, KindAAAA)
	c.Assert(msg.Answers[1].IP, qt.Equals, netip.MustParseAddr("2001:db8::1"))
	// AAnswers only projects A records, so a CNAME+AAAA-only reply yields none.
	c.Assert(msg.AAnswers(), qt.HasLen, 0)
}
