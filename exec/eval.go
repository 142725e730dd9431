// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package exec implements parallel evaluation of Monte Carlo
// estimation queries. Queries are decomposed into independent
// batches which are dispatched to an executor; executors run batches
// in-process or distributed on a bigmachine cluster. Sessions own
// executor resources and guarantee their release.
package exec

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Executor defines an interface used to provide implementations of
// batch runners. An Executor is responsible for evaluating single
// batches and returning their inside counts.
type Executor interface {
	// Start starts the executor. It is called by the session before
	// any batches are run; the returned shutdown function releases
	// the executor's resources.
	Start(*Session) (shutdown func())

	// Count evaluates a single batch, returning its inside count.
	// Count is called concurrently, up to the evaluation's
	// parallelism.
	Count(context.Context, Batch) (int64, error)

	// Maxprocs returns the number of processors available in this
	// executor. It determines the amount of available physical
	// parallelism.
	Maxprocs() int

	// Name names the executor for logging.
	Name() string
}

// Eval evaluates the query's batches on the provided executor,
// adding inside counts to res as batches complete; the reduction is
// a commutative sum, so completion order does not matter. At most p
// batches are dispatched concurrently. Evaluation is fail-fast: the
// first batch error cancels outstanding batches and is returned. If
// ctx is canceled, no further batches are issued; in-flight batches
// are discarded and do not corrupt the aggregate.
func Eval(ctx context.Context, executor Executor, p int, q Query, res *Result) error {
	if p < 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("exec.Eval: invalid parallelism %d", p))
	}
	if err := q.validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var (
		donec   = make(chan int64)
		errc    = make(chan error)
		next    int
		running int
	)
	for next < q.J || running > 0 {
		for running < p && next < q.J && ctx.Err() == nil {
			batch := q.batch(next)
			next++
			running++
			go func(batch Batch) {
				count, err := executor.Count(ctx, batch)
				if err != nil {
					select {
					case errc <- err:
					case <-ctx.Done():
					}
					return
				}
				select {
				case donec <- count:
				case <-ctx.Done():
				}
			}(batch)
		}
		if running == 0 {
			// Canceled with nothing in flight.
			return ctx.Err()
		}
		select {
		case count := <-donec:
			running--
			res.add(q.N, count)
		case err := <-errc:
			log.Error.Printf("eval: batch failed: %v", err)
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ctx.Err()
}
