// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package stats provides named counters for estimation bookkeeping:
// batches run, samples drawn, inside counts. Counters are updated
// atomically; collections are snapshotted into Values, which may be
// merged across workers by summation, mirroring the way batch counts
// themselves are reduced.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Values is a point-in-time snapshot of the counters in a Map.
type Values map[string]int64

// Merge adds the counts in v into w, summing values held in common.
func (w Values) Merge(v Values) {
	for k, n := range v {
		w[k] += n
	}
}

// String returns an abbreviated string of the snapshot's values
// sorted by key.
func (w Values) String() string {
	keys := make([]string, 0, len(w))
	for key := range w {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for i, key := range keys {
		keys[i] = fmt.Sprintf("%s:%d", key, w[key])
	}
	return strings.Join(keys, " ")
}

// A Map is a set of counters keyed by name.
type Map struct {
	mu       sync.Mutex
	counters map[string]*Int
}

// NewMap returns a fresh Map.
func NewMap() *Map {
	return &Map{counters: make(map[string]*Int)}
}

// Int returns the counter with the provided name, creating it if it
// does not already exist.
func (m *Map) Int(name string) *Int {
	m.mu.Lock()
	c := m.counters[name]
	if c == nil {
		c = new(Int)
		m.counters[name] = c
	}
	m.mu.Unlock()
	return c
}

// Snapshot returns the current values of all counters in the map.
func (m *Map) Snapshot() Values {
	vals := make(Values)
	m.mu.Lock()
	for name, c := range m.counters {
		vals[name] = c.Get()
	}
	m.mu.Unlock()
	return vals
}

// An Int is an integer counter that can be incremented and read
// atomically. A nil Int is a valid, no-op counter.
type Int struct {
	val int64
}

// Add increments the counter by delta.
func (c *Int) Add(delta int64) {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.val, delta)
}

// Get returns the counter's current value.
func (c *Int) Get() int64 {
	if c == nil {
		return 0
	}
	return atomic.LoadInt64(&c.val)
}
