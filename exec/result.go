// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/grailbio/carlo"
	"github.com/grailbio/carlo/ctxsync"
	"gonum.org/v1/gonum/stat"
)

// A Result accumulates the outcome of a query's batches as they
// complete. Results may be read while evaluation is in flight: the
// estimate is always the scaled ratio of counts accumulated so far.
// Wait blocks until evaluation has finished.
type Result struct {
	domain carlo.Domain

	mu        sync.Mutex
	cond      *ctxsync.Cond
	inside    int64
	samples   int64
	batches   int
	estimates []float64
	done      bool
	err       error
}

func newResult(q Query) *Result {
	r := &Result{domain: q.Domain}
	r.cond = ctxsync.NewCond(&r.mu)
	r.inside = q.Resume.Inside
	r.samples = q.Resume.Samples
	return r
}

// Add folds one batch's counts into the result.
func (r *Result) add(n, count int64) {
	r.mu.Lock()
	r.inside += count
	r.samples += n
	r.batches++
	r.estimates = append(r.estimates, r.domain.Area()*float64(count)/float64(n))
	r.cond.Broadcast()
	r.mu.Unlock()
}

// Complete marks the result done with the provided evaluation error.
func (r *Result) complete(err error) {
	r.mu.Lock()
	r.done = true
	r.err = err
	r.cond.Broadcast()
	r.mu.Unlock()
}

// Wait blocks until the result's evaluation has completed, returning
// its error, or until ctx is done, returning the context's error.
func (r *Result) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for !r.done {
		if err := r.cond.Wait(ctx); err != nil {
			return err
		}
	}
	return r.err
}

// Estimate returns the current area estimate: the accumulated inside
// count over the accumulated sample count, scaled by the domain
// area. Estimate is 0 before any batch has completed.
func (r *Result) Estimate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.samples == 0 {
		return 0
	}
	return r.domain.Area() * float64(r.inside) / float64(r.samples)
}

// Checkpoint returns a checkpoint of the counts accumulated so far.
// Checkpoints from a completed result fold the whole evaluation.
func (r *Result) Checkpoint() Checkpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Checkpoint{Inside: r.inside, Samples: r.samples}
}

// next blocks until at least target batches have completed or the
// result is done, returning a checkpoint of the counts, the number
// of completed batches, and whether evaluation has finished. If ctx
// completes first, next returns batches < 0.
func (r *Result) next(ctx context.Context, target int) (Checkpoint, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.batches < target && !r.done {
		if err := r.cond.Wait(ctx); err != nil {
			return Checkpoint{}, -1, true
		}
	}
	return Checkpoint{Inside: r.inside, Samples: r.samples}, r.batches, r.done
}

// A Summary summarizes the spread of per-batch estimates.
type Summary struct {
	// N is the number of batches summarized.
	N int
	// Mean is the mean per-batch estimate.
	Mean float64
	// Variance is the sample variance of per-batch estimates.
	Variance float64
	// Stderr is the standard error of the mean estimate.
	Stderr float64
}

func (s Summary) String() string {
	return fmt.Sprintf("mean %f stderr %f over %d batches", s.Mean, s.Stderr, s.N)
}

// Summary returns summary statistics over the per-batch estimates
// accumulated so far. Counts folded in from a resumed checkpoint
// carry no per-batch information and are excluded. A single batch
// admits no variance estimate; it is reported as zero.
func (r *Result) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.estimates) == 0 {
		return Summary{}
	}
	var variance float64
	if len(r.estimates) > 1 {
		variance = stat.Variance(r.estimates, nil)
	}
	return Summary{
		N:        len(r.estimates),
		Mean:     stat.Mean(r.estimates, nil),
		Variance: variance,
		Stderr:   math.Sqrt(variance / float64(len(r.estimates))),
	}
}
