// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/carlo"
)

// A Batch is a single unit of estimation work: N samples drawn from
// the batch's domain using the random source derived for Index from
// the batch's seed. Batches are self-contained and gob-encodable so
// that they may be shipped to remote workers.
type Batch struct {
	// Index is the batch's position within its query. It determines
	// the batch's random stream.
	Index int
	// N is the number of samples drawn by the batch.
	N int64
	// Domain is the bounding domain from which samples are drawn.
	Domain carlo.Domain
	// Seed is the seed of the query's random stream.
	Seed int64
}

// Count evaluates the batch, returning its inside count. Count is
// deterministic: it depends only on the batch's fields.
func (b Batch) Count() int64 {
	return b.Domain.Count(b.N, carlo.NewStream(b.Seed).Batch(b.Index))
}

func (b Batch) String() string {
	return fmt.Sprintf("batch(%d: n=%d seed=%d)", b.Index, b.N, b.Seed)
}

// A Query describes an aggregate estimation: J independent batches
// of N samples each, drawn from Domain using the stream seeded by
// Seed. The query's result is the total inside count over all
// batches, scaled by the domain area and the total sample count.
type Query struct {
	// N is the number of samples drawn per batch.
	N int64
	// J is the number of batches.
	J int
	// Domain is the bounding sampling domain.
	Domain carlo.Domain
	// Seed seeds the query's random stream.
	Seed int64
	// Resume holds counts from a previous, partially evaluated run of
	// this query; its counts are folded into the result. The zero
	// checkpoint resumes nothing.
	Resume Checkpoint
}

func (q Query) batch(i int) Batch {
	return Batch{Index: i, N: q.N, Domain: q.Domain, Seed: q.Seed}
}

func (q Query) validate() error {
	if q.N < 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("exec: invalid sample size %d", q.N))
	}
	if q.J < 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("exec: invalid batch count %d", q.J))
	}
	return nil
}
