// Copyright (c) 2020 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rawsock opens an AF_PACKET raw socket bound to one interface and
// splits it into independent read and write halves, so a slow or blocked
// writer (the injector) never holds up the reader (the classifier/decode
// loop) and vice versa.
package rawsock

import (
	"fmt"
	"os"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// htons converts a uint16 from host to network byte order, needed because
// AF_PACKET's protocol field in sockaddr_ll is big-endian regardless of
// host endianness.
func htons(v uint16) uint16 {
	return (v<<8)&0xff00 | v>>8
}

// Socket is one AF_PACKET SOCK_RAW socket bound to an interface, with
// independent Reader and Writer handles over the same underlying fd.
type Socket struct {
	ifindex int
	fd      int

	Reader *os.File
	Writer *os.File
}

// Open binds a new raw socket to ifaceName, receiving and permitted to send
// every Ethernet frame on that interface (ETH_P_ALL).
func Open(ifaceName string) (*Socket, error) {
	link, err := netlink.LinkByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("rawsock: lookup interface %q: %w", ifaceName, err)
	}
	ifindex := link.Attrs().Index

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("rawsock: socket: %w", err)
	}

	addr := unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  ifindex,
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("rawsock: bind to %q: %w", ifaceName, err)
	}

	readFD, err := unix.Dup(fd)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("rawsock: dup read fd: %w", err)
	}
	writeFD, err := unix.Dup(fd)
	if err != nil {
		unix.Close(readFD)
		unix.Close(fd)
		return nil, fmt.Errorf("rawsock: dup write fd: %w", err)
	}
	unix.Close(fd)

	return &Socket{
		ifindex: ifindex,
		fd:      fd,
		Reader:  os.NewFile(uintptr(readFD), ifaceName+"-read"),
		Writer:  os.NewFile(uintptr(writeFD), ifaceName+"-write"),
	}, nil
}

// Ifindex returns the bound interface's kernel ifindex.
func (s *Socket) Ifindex() int { return s.ifindex }

// Close closes both halves of the socket.
func (s *Socket) Close() error {
	rerr := s.Reader.Close()
	werr := s.Writer.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}
