// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"runtime"

	"github.com/grailbio/base/limiter"
	"github.com/grailbio/carlo/stats"
)

// LocalExecutor is an executor that evaluates batches in-process.
// Batch counting is CPU bound, so in-flight batches are limited to
// the session's parallelism.
type localExecutor struct {
	limiter *limiter.Limiter
	stats   *stats.Map
	sess    *Session
}

func newLocalExecutor() *localExecutor {
	return &localExecutor{
		limiter: limiter.New(),
		stats:   stats.NewMap(),
	}
}

func (l *localExecutor) Name() string { return "local" }

func (l *localExecutor) Start(sess *Session) (shutdown func()) {
	l.sess = sess
	l.limiter.Release(sess.p)
	return func() {}
}

func (l *localExecutor) Count(ctx context.Context, batch Batch) (int64, error) {
	if err := l.limiter.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer l.limiter.Release(1)
	count := batch.Count()
	l.stats.Int("batches").Add(1)
	l.stats.Int("samples").Add(batch.N)
	l.stats.Int("inside").Add(count)
	return count, nil
}

// Maxprocs returns the maxprocs reported by the Go runtime.
func (*localExecutor) Maxprocs() int { return runtime.GOMAXPROCS(0) }

// Stats returns a snapshot of the executor's counters.
func (l *localExecutor) Stats() stats.Values { return l.stats.Snapshot() }
