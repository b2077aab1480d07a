// Copyright (c) 2020 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shardmap

import (
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
)

func identityShard(k uint64) uint64 { return k }

func TestSetGetDelete(t *testing.T) {
	c := qt.New(t)
	m := New[uint64, string](identityShard)

	existed := m.Set(1, "one")
	c.Assert(existed, qt.IsFalse)

	v, ok := m.Get(1)
	c.Assert(ok, qt.IsTrue)
	c.Assert(v, qt.Equals, "one")

	existed = m.Set(1, "uno")
	c.Assert(existed, qt.IsTrue)

	c.Assert(m.Delete(1), qt.IsTrue)
	c.Assert(m.Delete(1), qt.IsFalse)
}

func TestPopIsOneShot(t *testing.T) {
	c := qt.New(t)
	m := New[uint64, string](identityShard)
	m.Set(5, "five")

	v, ok := m.Pop(5)
	c.Assert(ok, qt.IsTrue)
	c.Assert(v, qt.Equals, "five")

	_, ok = m.Pop(5)
	c.Assert(ok, qt.IsFalse)
}

func TestSnapshotIsConsistentUnderConcurrentMutation(t *testing.T) {
	c := qt.New(t)
	m := New[uint64, int](identityShard)
	for i := uint64(0); i < 1000; i++ {
		m.Set(i, int(i))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(0); i < 1000; i++ {
			m.Delete(i)
			m.Set(i+1000, int(i))
		}
	}()

	snap := m.Snapshot()
	wg.Wait()

	// Every key ever stored maps to key%1000, so any torn entry would show.
	for _, e := range snap {
		c.Assert(e.Value, qt.Equals, int(e.Key%1000))
	}
}

func TestLenReflectsEntries(t *testing.T) {
	c := qt.New(t)
	m := New[uint64, int](identityShard)
	for i := uint64(0); i < 40; i++ {
		m.Set(i, int(i))
	}
	c.Assert(m.Len(), qt.Equals, 40)
}
