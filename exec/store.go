// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// A Checkpoint records the counts accumulated by a partially (or
// fully) evaluated query. Counts combine by summation, so resuming
// from a checkpoint folds its counts in exactly: a resumed
// evaluation is indistinguishable from one that ran the checkpointed
// batches itself.
type Checkpoint struct {
	// Inside is the accumulated inside count.
	Inside int64
	// Samples is the accumulated number of samples drawn.
	Samples int64
}

// A Store persists checkpoints under caller-chosen keys. Puts
// replace any previous checkpoint under the same key.
type Store interface {
	// Put writes the checkpoint under the provided key.
	Put(ctx context.Context, key string, cp Checkpoint) error

	// Get retrieves the checkpoint stored under the provided key. If
	// no checkpoint is stored, an error with kind errors.NotExist is
	// returned.
	Get(ctx context.Context, key string) (Checkpoint, error)
}

// MemoryStore is a store implementation that holds checkpoints in
// process memory. It is useful for tests and for sharing progress
// between queries within one binary invocation.
type memoryStore struct {
	mu          sync.Mutex
	checkpoints map[string]Checkpoint
}

// NewMemoryStore returns a fresh in-memory checkpoint store.
func NewMemoryStore() Store {
	return &memoryStore{checkpoints: make(map[string]Checkpoint)}
}

func (m *memoryStore) Put(_ context.Context, key string, cp Checkpoint) error {
	m.mu.Lock()
	m.checkpoints[key] = cp
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (Checkpoint, error) {
	m.mu.Lock()
	cp, ok := m.checkpoints[key]
	m.mu.Unlock()
	if !ok {
		return Checkpoint{}, errors.E(errors.NotExist, fmt.Sprintf("checkpoint %s", key))
	}
	return cp, nil
}

// FileStore is a store implementation that writes checkpoints to
// files named prefix+key. FileStore uses GRAIL's file library, so
// the prefix may refer to URLs in a distributed object store such
// as S3.
type fileStore struct {
	prefix string
}

// NewFileStore returns a checkpoint store rooted at the provided
// path prefix.
func NewFileStore(prefix string) Store {
	return &fileStore{prefix: prefix}
}

func (s *fileStore) path(key string) string {
	return s.prefix + key
}

func (s *fileStore) Put(ctx context.Context, key string, cp Checkpoint) error {
	f, err := file.Create(ctx, s.path(key))
	if err != nil {
		return err
	}
	if _, err = fmt.Fprintf(f.Writer(ctx), "%d %d\n", cp.Inside, cp.Samples); err != nil {
		f.Discard(ctx)
		return err
	}
	return f.Close(ctx)
}

func (s *fileStore) Get(ctx context.Context, key string) (Checkpoint, error) {
	f, err := file.Open(ctx, s.path(key))
	if err != nil {
		return Checkpoint{}, err
	}
	defer f.Close(ctx)
	var cp Checkpoint
	if _, err := fmt.Fscanf(f.Reader(ctx), "%d %d", &cp.Inside, &cp.Samples); err != nil {
		return Checkpoint{}, errors.E(err, fmt.Sprintf("checkpoint %s: malformed", s.path(key)))
	}
	return cp, nil
}
