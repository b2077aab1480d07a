// Copyright (c) 2020 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package classifier loads the compiled dns_queries socket-filter program
// and attaches it to a raw socket via SO_ATTACH_BPF, so the kernel itself
// decides which frames cross into userspace (see decide.go for the
// identical predicate expressed in Go, used for testing and fallback).
package classifier

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/cilium/ebpf"
	"golang.org/x/sys/unix"
)

//go:generate clang -O2 -target bpf -c bpf/dns_queries.c -o bpf/dns_queries.o

//go:embed bpf/dns_queries.o
var programObject []byte

const programName = "dns_queries"

// Program is a loaded dns_queries socket-filter program, ready to attach to
// one or more raw sockets.
type Program struct {
	prog *ebpf.Program
}

// Load parses and loads the embedded classifier object into the kernel. It
// does not attach the program to anything.
func Load() (*Program, error) {
	spec, err := ebpf.LoadCollectionSpecFromReader(bytes.NewReader(programObject))
	if err != nil {
		return nil, fmt.Errorf("classifier: parse object: %w", err)
	}
	progSpec, ok := spec.Programs[programName]
	if !ok {
		return nil, fmt.Errorf("classifier: object has no %q program", programName)
	}
	prog, err := ebpf.NewProgram(progSpec)
	if err != nil {
		return nil, fmt.Errorf("classifier: load program: %w", err)
	}
	return &Program{prog: prog}, nil
}

// AttachToSocket attaches the program to fd via SO_ATTACH_BPF, so the
// kernel only delivers frames the classifier selects. Any previously
// attached filter on fd is replaced.
func (p *Program) AttachToSocket(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ATTACH_BPF, p.prog.FD()); err != nil {
		return fmt.Errorf("classifier: SO_ATTACH_BPF: %w", err)
	}
	return nil
}

// Close releases the kernel-side program. Attached sockets keep working
// (the kernel holds its own reference) but no new socket can attach it.
func (p *Program) Close() error {
	return p.prog.Close()
}
