// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"

	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
)

// Session represents a carlo compute session. A session owns an
// executor and is valid for the run of the binary; it can evaluate
// multiple queries, and is the scoped resource through which worker
// pools are acquired and released: Shutdown must be called on every
// exit path.
//
//	sess := exec.Start(exec.Local, exec.Parallelism(8))
//	defer sess.Shutdown()
//	res, err := sess.Run(ctx, exec.Query{N: 1e6, J: 100, Domain: carlo.UnitSquare})
type Session struct {
	context.Context
	p        int
	executor Executor
	shutdown func()
	status   *status.Status

	store    Store
	storeKey string
	every    int
}

// An Option represents a session configuration parameter value.
type Option func(s *Session)

// Local configures a session with the local in-process executor.
var Local Option = func(s *Session) {
	s.executor = newLocalExecutor()
}

// Bigmachine configures a session using the bigmachine executor
// configured with the provided system. If any params are provided,
// they are applied to each machine allocated for the session.
func Bigmachine(system bigmachine.System, params ...bigmachine.Param) Option {
	return func(s *Session) {
		s.executor = newBigmachineExecutor(system, params...)
	}
}

// Parallelism configures the session with the provided target
// parallelism.
func Parallelism(p int) Option {
	if p <= 0 {
		panic("exec.Parallelism: p <= 0")
	}
	return func(s *Session) {
		s.p = p
	}
}

// Status configures the session with a status object to which
// evaluation statuses are reported.
func Status(status *status.Status) Option {
	return func(s *Session) {
		s.status = status
	}
}

// Checkpointing configures the session to write a checkpoint to
// store under key after every interval completed batches. Checkpoint
// failures are logged, not fatal: a checkpoint is advisory.
func Checkpointing(store Store, key string, interval int) Option {
	if interval < 1 {
		panic("exec.Checkpointing: interval < 1")
	}
	return func(s *Session) {
		s.store = store
		s.storeKey = key
		s.every = interval
	}
}

// Start creates and starts a new carlo session, configuring it
// according to the provided options. If no executor is configured,
// the session uses the bigmachine executor with bigmachine's local
// (forked subprocess) system.
func Start(options ...Option) *Session {
	s := &Session{Context: backgroundcontext.Get()}
	for _, opt := range options {
		opt(s)
	}
	if s.p == 0 {
		s.p = 1
	}
	if s.executor == nil {
		s.executor = newBigmachineExecutor(bigmachine.Local)
	}
	s.shutdown = s.executor.Start(s)
	return s
}

// Shutdown releases the resources held by the session's executor.
// It is safe to call multiple times.
func (s *Session) Shutdown() {
	if s.shutdown != nil {
		s.shutdown()
		s.shutdown = nil
	}
}

// Parallelism returns the session's target parallelism.
func (s *Session) Parallelism() int { return s.p }

// Status returns the session's status object; it may be nil.
func (s *Session) Status() *status.Status { return s.status }

// Run evaluates the query on the session's executor, returning the
// completed result. Run returns when the evaluation has completed,
// or else on error. It is safe to make concurrent calls to Run; the
// underlying batches will be evaluated in parallel.
func (s *Session) Run(ctx context.Context, q Query) (*Result, error) {
	res, err := s.Submit(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := res.Wait(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

// Must is a version of Run that panics if the evaluation fails.
func (s *Session) Must(ctx context.Context, q Query) *Result {
	res, err := s.Run(ctx, q)
	if err != nil {
		log.Panicf("exec.Run: %v", err)
	}
	return res
}

// Submit begins evaluating the query and returns its result
// immediately. The result accumulates counts as batches complete and
// may be observed while evaluation is in flight; Wait blocks until
// evaluation has finished.
func (s *Session) Submit(ctx context.Context, q Query) (*Result, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	res := newResult(q)
	var task *status.Task
	if s.status != nil {
		task = s.status.Group("carlo").Startf("%d×%d samples", q.J, q.N)
	}
	var evalDone, ckptDone chan struct{}
	if s.store != nil {
		evalDone, ckptDone = make(chan struct{}), make(chan struct{})
		go s.checkpoint(ctx, res, evalDone, ckptDone)
	}
	go func() {
		err := Eval(ctx, s.executor, s.p, q, res)
		if ckptDone != nil {
			close(evalDone)
			<-ckptDone
		}
		if task != nil {
			if err != nil {
				task.Printf("error: %v", err)
			} else {
				task.Printf("estimate %f", res.Estimate())
			}
			task.Done()
		}
		res.complete(err)
	}()
	return res, nil
}

// checkpoint writes checkpoints of res as batches complete, one
// write per configured interval, with a final write once evaluation
// has finished. The checkpointer is the sole writer, so checkpoints
// are strictly ordered: the final write reflects the completed
// evaluation. Closing evalDone signals completion; done is closed
// when the checkpointer has finished.
func (s *Session) checkpoint(ctx context.Context, res *Result, evalDone <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-evalDone:
		case <-ctx.Done():
		}
		cancel()
	}()
	var written int
	for {
		cp, batches, finished := res.next(ctx, written+s.every)
		if finished || batches < 0 {
			break
		}
		if err := s.store.Put(ctx, s.storeKey, cp); err != nil {
			log.Error.Printf("checkpoint %s: %v", s.storeKey, err)
		}
		written = batches
	}
	select {
	case <-evalDone:
		// The evaluation's counts are settled; record them even if the
		// caller's context has since completed.
		if err := s.store.Put(backgroundcontext.Get(), s.storeKey, res.Checkpoint()); err != nil {
			log.Error.Printf("checkpoint %s: %v", s.storeKey, err)
		}
	default:
	}
}

// String returns a diagnostic description of the session.
func (s *Session) String() string {
	return fmt.Sprintf("session(%s, p=%d)", s.executor.Name(), s.p)
}
