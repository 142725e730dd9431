// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package carlo

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/traverse"
)

// Estimate draws n points from d using rng and returns the estimated
// area of the disk inscribed in d: the fraction of points falling
// inside the disk, scaled by the area of the bounding square. The
// estimate is unbiased, and its sampling variance shrinks as 1/n.
// Estimate fails with an error of kind errors.Invalid if n < 1.
func Estimate(n int64, d Domain, rng *rand.Rand) (float64, error) {
	if n < 1 {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("carlo.Estimate: invalid sample size %d", n))
	}
	return d.Area() * float64(d.Count(n, rng)) / float64(n), nil
}

// Aggregate estimates the area of the disk inscribed in d by
// evaluating j independent batches of n samples each and summing
// their inside counts. It is equivalent in expectation to Estimate
// with n*j samples, but keeps the batch decomposition explicit:
// batch i draws from stream.Batch(i), so the result depends only on
// the stream and not on scheduling. Batches are evaluated in
// parallel; if ctx is canceled, no further batches are issued and
// Aggregate returns the context's error. Aggregate fails with an
// error of kind errors.Invalid if n < 1 or j < 1.
func Aggregate(ctx context.Context, n, j int64, d Domain, stream Stream) (float64, error) {
	if n < 1 {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("carlo.Aggregate: invalid sample size %d", n))
	}
	if j < 1 {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("carlo.Aggregate: invalid batch count %d", j))
	}
	counts := make([]int64, j)
	err := traverse.Each(int(j), func(i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		counts[i] = d.Count(n, stream.Batch(i))
		return nil
	})
	if err != nil {
		return 0, err
	}
	var total int64
	for _, count := range counts {
		total += count
	}
	return d.Area() * float64(total) / float64(n*j), nil
}
