// Copyright (c) 2020 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dnscodec parses and builds the DNS messages the correlator and
// injector operate on. Parsing and reply-building are both built on
// github.com/miekg/dns; this package only projects the pieces the rest of
// the pipeline needs.
package dnscodec

import (
	"fmt"
	"net/netip"

	"github.com/miekg/dns"
)

// AnswerKind classifies an answer record's RDATA for the projection the
// correlator needs. Unknown RR types project to KindOther — not an error.
type AnswerKind int

const (
	KindOther AnswerKind = iota
	KindA
	KindAAAA
	KindCNAME
)

// Answer is one projected answer-section record.
type Answer struct {
	Kind  AnswerKind
	Name  string
	IP    netip.Addr // valid for KindA, KindAAAA
	CName string     // valid for KindCNAME
}

// Message is the projection of a parsed DNS message that the correlator
// needs: enough of the header plus question/answer names and addresses.
type Message struct {
	ID      uint16
	IsQuery bool
	RCode   int
	// Questions holds the qname of every question record, in wire order.
	Questions []string
	Answers   []Answer
}

// Refused reports whether the message's RCODE is REFUSED.
func (m *Message) Refused() bool {
	return m.RCode == dns.RcodeRefused
}

// AAnswers returns the IPv4 addresses of every A record in Answers, in
// order. A message with no A records returns a nil slice.
func (m *Message) AAnswers() []netip.Addr {
	var ips []netip.Addr
	for _, a := range m.Answers {
		if a.Kind == KindA {
			ips = append(ips, a.IP)
		}
	}
	return ips
}

// Parse parses a raw DNS message. Any malformed input fails the whole
// message, matching the "Malformed DNS" error class: callers should
// warn-log and discard the frame.
func Parse(b []byte) (*Message, error) {
	var msg dns.Msg
	if err := msg.Unpack(b); err != nil {
		return nil, fmt.Errorf("dnscodec: unpack: %w", err)
	}

	out := &Message{
		ID:      msg.Id,
		IsQuery: !msg.Response,
		RCode:   msg.Rcode,
	}
	for _, q := range msg.Question {
		out.Questions = append(out.Questions, normalize(q.Name))
	}
	for _, rr := range msg.Answer {
		out.Answers = append(out.Answers, projectRR(rr))
	}
	return out, nil
}

func projectRR(rr dns.RR) Answer {
	name := normalize(rr.Header().Name)
	switch v := rr.(type) {
	case *dns.A:
		if ip, ok := netip.AddrFromSlice(v.A.To4()); ok {
			return Answer{Kind: KindA, Name: name, IP: ip}
		}
	case *dns.AAAA:
		if ip, ok := netip.AddrFromSlice(v.AAAA.To16()); ok {
			return Answer{Kind: KindAAAA, Name: name, IP: ip}
		}
	case *dns.CNAME:
		return Answer{Kind: KindCNAME, Name: name, CName: normalize(v.Target)}
	}
	return Answer{Kind: KindOther, Name: name}
}

// normalize trims the trailing root label dot miekg/dns always keeps, since
// the cache and correlator key by the plain qname as observed on the wire.
func normalize(name string) string {
	if n := len(name); n > 1 && name[n-1] == '.' {
		return name[:n-1]
	}
	return name
}

// BuildReply builds an on-the-wire DNS reply with the given transaction id,
// a single question mirroring qname (QTYPE=A, QCLASS=IN), and one A answer
// per ip, TTL=10, CLASS=IN.
func BuildReply(id uint16, qname string, ips []netip.Addr) ([]byte, error) {
	if len(ips) == 0 {
		return nil, fmt.Errorf("dnscodec: BuildReply: no addresses for %q", qname)
	}
	fqdn := dns.Fqdn(qname)
	if _, ok := dns.IsDomainName(fqdn); !ok {
		return nil, fmt.Errorf("dnscodec: BuildReply: invalid name %q", qname)
	}

	msg := new(dns.Msg)
	msg.Id = id
	msg.Response = true
	msg.Opcode = dns.OpcodeQuery
	msg.Rcode = dns.RcodeSuccess
	msg.Question = []dns.Question{{
		Name:   fqdn,
		Qtype:  dns.TypeA,
		Qclass: dns.ClassINET,
	}}
	for _, ip := range ips {
		if !ip.Is4() {
			continue
		}
		a4 := ip.As4()
		msg.Answer = append(msg.Answer, &dns.A{
			Hdr: dns.RR_Header{
				Name:   fqdn,
				Rrtype: dns.TypeA,
				Class:  dns.ClassINET,
				Ttl:    10,
			},
			A: a4[:],
		})
	}
	if len(msg.Answer) == 0 {
		return nil, fmt.Errorf("dnscodec: BuildReply: no IPv4 addresses for %q", qname)
	}

	out, err := msg.Pack()
	if err != nil {
		return nil, fmt.Errorf("dnscodec: pack: %w", err)
	}
	return out, nil
}
