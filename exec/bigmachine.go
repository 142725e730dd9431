// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"encoding/gob"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/limiter"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/retry"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/carlo/stats"
	"golang.org/x/sync/errgroup"
)

const statsPollInterval = 5 * time.Second

var retryPolicy = retry.Backoff(time.Second, 5*time.Second, 1.5)

func init() {
	gob.Register(&worker{})
}

// A worker is the bigmachine service that evaluates batches on
// remote machines. Workers are stateless except for bookkeeping
// counters, so any batch may run on any machine.
type worker struct {
	// Exported just satisfies gob's persnickety nature: we need at
	// least one exported field.
	Exported struct{}

	stats *stats.Map

	mu sync.Mutex
	// seen records batch indices already counted, so that a batch
	// redelivered after a lost reply does not skew the counters.
	seen map[int]bool
}

func (w *worker) Init(b *bigmachine.B) error {
	w.stats = stats.NewMap()
	w.seen = make(map[int]bool)
	return nil
}

type countRequest struct {
	Batch Batch
}

type countReply struct {
	Count int64
}

// Count evaluates a single batch and replies with its inside count.
func (w *worker) Count(ctx context.Context, req countRequest, reply *countReply) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("panic while evaluating %s: %v\n%s", req.Batch, e, string(debug.Stack()))
			err = errors.E(err, errors.Fatal)
		}
	}()
	if req.Batch.N < 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("worker.Count: invalid sample size %d", req.Batch.N))
	}
	count := req.Batch.Count()
	w.mu.Lock()
	if !w.seen[req.Batch.Index] {
		w.seen[req.Batch.Index] = true
		w.stats.Int("batches").Add(1)
		w.stats.Int("samples").Add(req.Batch.N)
		w.stats.Int("inside").Add(count)
	}
	w.mu.Unlock()
	reply.Count = count
	return nil
}

// Stats replies with a snapshot of the worker's counters.
func (w *worker) Stats(ctx context.Context, _ struct{}, values *stats.Values) error {
	*values = w.stats.Snapshot()
	return nil
}

// A countMachine wraps a bigmachine machine together with the
// bookkeeping needed to dispatch batches to it.
type countMachine struct {
	*bigmachine.Machine

	// Limiter bounds the number of in-flight batches on the machine
	// to its procs.
	limiter *limiter.Limiter

	status *status.Task
}

// Go polls the machine's worker counters until ctx is done,
// publishing them to the executor's stats and the machine's status
// line.
func (m *countMachine) Go(ctx context.Context, b *bigmachineExecutor) {
	for {
		select {
		case <-time.After(statsPollInterval):
		case <-ctx.Done():
			return
		}
		var vals stats.Values
		if err := m.Call(ctx, "Worker.Stats", struct{}{}, &vals); err != nil {
			if ctx.Err() == nil {
				log.Printf("worker.Stats %s: %v", m.Addr, err)
			}
			continue
		}
		b.mu.Lock()
		b.stats[m.Addr] = vals
		b.mu.Unlock()
		if m.status != nil {
			m.status.Print(vals.String())
		}
	}
}

// BigmachineExecutor is an executor that evaluates batches on
// bigmachine machines. Machines are started lazily on the first
// batch; batches are assigned round robin, bounded per machine by
// the machine's procs. Transient call failures are retried with
// backoff; all other errors fail the batch.
type bigmachineExecutor struct {
	system bigmachine.System
	params []bigmachine.Param

	sess  *Session
	b     *bigmachine.B
	group *status.Group

	// pollCtx scopes the machine stat pollers to the executor's
	// lifetime; cancel is called on shutdown.
	pollCtx context.Context
	cancel  func()

	machinesOnce sync.Once
	machinesErr  error

	mu       sync.Mutex
	machines []*countMachine
	index    int
	stats    map[string]stats.Values
}

func newBigmachineExecutor(system bigmachine.System, params ...bigmachine.Param) *bigmachineExecutor {
	return &bigmachineExecutor{system: system, params: params}
}

func (b *bigmachineExecutor) Name() string { return "bigmachine" }

// Start registers the carlo worker with bigmachine and then starts
// the bigmachine. Machine startup is deferred until the first batch
// is dispatched.
func (b *bigmachineExecutor) Start(sess *Session) (shutdown func()) {
	b.sess = sess
	b.b = bigmachine.Start(b.system)
	b.stats = make(map[string]stats.Values)
	if status := sess.Status(); status != nil {
		b.group = status.Group("bigmachine")
	}
	b.pollCtx, b.cancel = context.WithCancel(context.Background())
	return func() {
		b.cancel()
		b.b.Shutdown()
	}
}

func (b *bigmachineExecutor) Count(ctx context.Context, batch Batch) (int64, error) {
	if err := b.initMachines(); err != nil {
		return 0, err
	}
	m := b.pick()
	if err := m.limiter.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer m.limiter.Release(1)
	var (
		req   = countRequest{Batch: batch}
		reply countReply
	)
	for retries := 0; ; retries++ {
		err := m.Call(ctx, "Worker.Count", req, &reply)
		if err == nil {
			return reply.Count, nil
		}
		if !errors.Is(errors.Net, err) && !errors.IsTemporary(err) {
			return 0, err
		}
		log.Printf("worker.Count %s: %v; retrying", m.Addr, err)
		if err := retry.Wait(ctx, retryPolicy, retries); err != nil {
			return 0, err
		}
	}
}

func (b *bigmachineExecutor) Maxprocs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var procs int
	for range b.machines {
		procs += b.b.System().Maxprocs()
	}
	if procs == 0 {
		procs = b.b.System().Maxprocs()
	}
	return procs
}

// Stats returns the merged counters of the executor's machines.
func (b *bigmachineExecutor) Stats() stats.Values {
	merged := make(stats.Values)
	b.mu.Lock()
	for _, vals := range b.stats {
		merged.Merge(vals)
	}
	b.mu.Unlock()
	return merged
}

// Pick returns the next machine in round-robin order.
func (b *bigmachineExecutor) pick() *countMachine {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.machines[b.index%len(b.machines)]
	b.index++
	return m
}

// InitMachines starts enough machines to satisfy the session's
// parallelism and waits for them to boot. It is called at most once.
func (b *bigmachineExecutor) initMachines() error {
	b.machinesOnce.Do(func() {
		var (
			n        = 1
			p        = b.sess.Parallelism()
			maxprocs = b.b.System().Maxprocs()
		)
		if p > 0 {
			n = p / maxprocs
			if p%maxprocs != 0 {
				n++
			}
		}
		log.Printf("starting %d machines (p=%d, maxprocs=%d)", n, p, maxprocs)
		ctx := context.Background()
		params := append([]bigmachine.Param{bigmachine.Services{"Worker": &worker{}}}, b.params...)
		machines, err := b.b.Start(ctx, n, params...)
		if err != nil {
			b.machinesErr = err
			return
		}
		g, _ := errgroup.WithContext(ctx)
		for i := range machines {
			m := machines[i]
			var task *status.Task
			if b.group != nil {
				task = b.group.Start(m.Addr)
				task.Print("waiting for machine to boot")
			}
			g.Go(func() error {
				<-m.Wait(bigmachine.Running)
				if err := m.Err(); err != nil {
					log.Error.Printf("machine %s failed to start: %v", m.Addr, err)
					if task != nil {
						task.Printf("failed to start: %v", err)
						task.Done()
					}
					return err
				}
				log.Printf("machine %v is ready", m.Addr)
				if task != nil {
					task.Print("running")
				}
				cm := &countMachine{
					Machine: m,
					limiter: limiter.New(),
					status:  task,
				}
				cm.limiter.Release(maxprocs)
				go cm.Go(b.pollCtx, b)
				b.mu.Lock()
				b.machines = append(b.machines, cm)
				b.mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			b.mu.Lock()
			nmachines := len(b.machines)
			b.mu.Unlock()
			// Proceed as long as some machines are available.
			if nmachines == 0 {
				b.machinesErr = err
			}
		}
	})
	return b.machinesErr
}
