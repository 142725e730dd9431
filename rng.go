// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package carlo

import (
	"encoding/binary"
	"math/rand"

	"github.com/spaolacci/murmur3"
)

// A Stream is a family of deterministic random sources derived from
// a single seed. A stream assigns each batch its own source so that
// batches evaluated concurrently neither share nor correlate random
// state: the source for batch i is seeded by hashing the stream's
// seed together with i. Streams are values and may be copied freely.
type Stream struct {
	seed uint64
}

// NewStream returns the stream derived from the provided seed.
func NewStream(seed int64) Stream {
	return Stream{seed: uint64(seed)}
}

// Batch returns a fresh random source for batch i. Batch returns a
// source producing the same sequence every time it is called with
// the same i on streams with the same seed.
func (s Stream) Batch(i int) *rand.Rand {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[:8], s.seed)
	binary.LittleEndian.PutUint64(b[8:], uint64(i))
	return rand.New(rand.NewSource(int64(murmur3.Sum64(b[:]))))
}
