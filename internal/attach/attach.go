// Copyright (c) 2020 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package attach wires the classifier and rawsock together: it opens the raw socket on the named interface, loads
// and attaches the kernel classifier, and falls back to the pure-Go
// classifier model when SO_ATTACH_BPF is unavailable (e.g. insufficient
// privilege, or a kernel without socket-filter BPF support) rather than
// failing the whole process.
package attach

import (
	"fmt"

	"github.com/quietflow/dnsaccel/internal/classifier"
	"github.com/quietflow/dnsaccel/internal/rawsock"
)

// Result is the bound, optionally kernel-filtered raw socket ready to feed
// the decode loop.
type Result struct {
	Socket *rawsock.Socket
	// KernelFiltered is true when the compiled classifier is attached and
	// the kernel is already discarding non-matching frames; false means
	// every frame on the interface reaches userspace and the caller must
	// run classifier.Decide itself before doing further work.
	KernelFiltered bool

	program *classifier.Program
}

// Interface opens a raw socket on ifaceName and attempts to attach the
// compiled DNS classifier to it. Socket open failure is always fatal;
// classifier load/attach failure is not — it degrades to KernelFiltered
// = false so the caller can run the fallback model instead.
func Interface(ifaceName string, logf func(format string, args ...any)) (*Result, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}

	sock, err := rawsock.Open(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("attach: open %q: %w", ifaceName, err)
	}

	prog, err := classifier.Load()
	if err != nil {
		logf("attach: classifier load failed, falling back to software model: %v", err)
		return &Result{Socket: sock, KernelFiltered: false}, nil
	}
	if err := prog.AttachToSocket(int(sock.Reader.Fd())); err != nil {
		logf("attach: SO_ATTACH_BPF failed, falling back to software model: %v", err)
		prog.Close()
		return &Result{Socket: sock, KernelFiltered: false}, nil
	}

	return &Result{Socket: sock, KernelFiltered: true, program: prog}, nil
}

// Close releases the classifier program, if one was loaded, and the
// underlying raw socket.
func (r *Result) Close() error {
	if r.program != nil {
		r.program.Close()
	}
	return r.Socket.Close()
}
