// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stats

import "testing"

func TestStats(t *testing.T) {
	m := NewMap()
	var (
		samples = m.Int("samples")
		_       = m.Int("inside")
	)
	if got, want := samples.Get(), int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	samples.Add(1000)
	samples.Add(1000)
	if got, want := samples.Get(), int64(2000); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	vals := m.Snapshot()
	if got, want := len(vals), 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := vals["samples"], int64(2000); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := vals["inside"], int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestValuesMerge(t *testing.T) {
	merged := Values{"samples": 100, "inside": 80}
	merged.Merge(Values{"samples": 50, "batches": 1})
	if got, want := merged.String(), "batches:1 inside:80 samples:150"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNilInt(t *testing.T) {
	var c *Int
	c.Add(1)
	if got, want := c.Get(), int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
