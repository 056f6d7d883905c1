// Package backup uploads staged artifacts to the remote object store
// through a bounded worker pool. A task exists per (content hash,
// artifact kind); identical bytes are never uploaded twice thanks to the
// remote catalog index and the durable upload ledger.
package backup

import (
	"context"
	"fmt"
	"sync"

	"github.com/codelynx/photolala/internal/cache"
	"github.com/codelynx/photolala/internal/photolala"
)

// TaskState is the lifecycle position of one upload task.
type TaskState string

const (
	// StateNotStarted is reported for (hash, kind) pairs the pipeline has
	// never been asked about. No task struct exists in this state.
	StateNotStarted TaskState = "not-started"
	StateQueued     TaskState = "queued"
	StateUploading  TaskState = "uploading"
	StateUploaded   TaskState = "uploaded"
	StateFailed     TaskState = "failed"
)

// TaskKey identifies an upload task.
type TaskKey struct {
	ContentHash string
	Kind        photolala.ArtifactKind
}

type task struct {
	key      TaskKey
	state    TaskState
	attempts int
	lastErr  error
	cancel   context.CancelFunc // non-nil while uploading
}

// RemoteIndex answers whether a content hash is already present in the
// remote catalog. Satisfied by *syncer.Engine.
type RemoteIndex interface {
	HasRemote(hash string) bool
}

// Pipeline drains upload tasks with a fixed pool of workers. Task state
// transitions are serialized under one mutex; uploads themselves run
// outside it.
type Pipeline struct {
	store       photolala.ObjectStore
	cache       *cache.Cache
	ledger      photolala.StateStore
	remote      RemoteIndex
	clock       photolala.Clock
	logger      photolala.Logger
	workers     int
	maxAttempts int
	retry       photolala.RetryPolicy

	mu      sync.Mutex
	cond    *sync.Cond
	tasks   map[TaskKey]*task
	queue   []TaskKey
	closed  bool
	pending sync.WaitGroup // counts tasks not yet terminal
	workerG sync.WaitGroup
}

// New creates a pipeline. Start must be called before Enqueue has any
// effect beyond queueing.
func New(store photolala.ObjectStore, artifactCache *cache.Cache, ledger photolala.StateStore, remote RemoteIndex, clock photolala.Clock, logger photolala.Logger, workers, maxAttempts int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	p := &Pipeline{
		store:       store,
		cache:       artifactCache,
		ledger:      ledger,
		remote:      remote,
		clock:       clock,
		logger:      logger,
		workers:     workers,
		maxAttempts: maxAttempts,
		retry:       photolala.DefaultRetryPolicy(),
		tasks:       make(map[TaskKey]*task),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the worker pool. Workers run until Stop is called; ctx
// bounds the individual uploads.
func (p *Pipeline) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.workerG.Add(1)
		go p.worker(ctx)
	}
}

// Stop wakes all workers and waits for them to drain the queue and
// finish in-flight uploads.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.workerG.Wait()
}

// Enqueue schedules an upload task. Idempotent: a task already queued,
// uploading, or uploaded is left untouched. A failed task is re-queued
// with a fresh attempt budget.
func (p *Pipeline) Enqueue(contentHash string, kind photolala.ArtifactKind) error {
	if err := photolala.ValidateContentHash(contentHash); err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("unknown artifact kind %q", kind)
	}

	key := TaskKey{ContentHash: contentHash, Kind: kind}

	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.tasks[key]; ok {
		switch t.state {
		case StateQueued, StateUploading, StateUploaded:
			return nil
		case StateFailed:
			t.state = StateQueued
			t.attempts = 0
			t.lastErr = nil
			p.pending.Add(1)
			p.queue = append(p.queue, key)
			p.cond.Signal()
			return nil
		}
	}

	p.tasks[key] = &task{key: key, state: StateQueued}
	p.pending.Add(1)
	p.queue = append(p.queue, key)
	p.cond.Signal()
	return nil
}

// Cancel removes a task. A queued task is removed synchronously; an
// in-flight upload is cancelled cooperatively through its context. An
// uploaded or unknown task is a no-op.
func (p *Pipeline) Cancel(contentHash string, kind photolala.ArtifactKind) {
	key := TaskKey{ContentHash: contentHash, Kind: kind}

	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tasks[key]
	if !ok {
		return
	}
	switch t.state {
	case StateQueued:
		p.removeQueuedLocked(key)
		delete(p.tasks, key)
		p.pending.Done()
	case StateUploading:
		if t.cancel != nil {
			t.cancel()
		}
	case StateFailed:
		delete(p.tasks, key)
	}
}

// CancelHash cancels every pending task for a content hash, across kinds.
func (p *Pipeline) CancelHash(contentHash string) {
	for _, kind := range photolala.AllKinds {
		p.Cancel(contentHash, kind)
	}
}

// State reports a task's position in the lifecycle.
func (p *Pipeline) State(contentHash string, kind photolala.ArtifactKind) TaskState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.tasks[TaskKey{ContentHash: contentHash, Kind: kind}]; ok {
		return t.state
	}
	return StateNotStarted
}

// TaskErr returns the last error of a failed task, nil otherwise.
func (p *Pipeline) TaskErr(contentHash string, kind photolala.ArtifactKind) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.tasks[TaskKey{ContentHash: contentHash, Kind: kind}]; ok {
		return t.lastErr
	}
	return nil
}

// Flush blocks until every enqueued task reaches a terminal state.
func (p *Pipeline) Flush() {
	p.pending.Wait()
}

func (p *Pipeline) removeQueuedLocked(key TaskKey) {
	for i, k := range p.queue {
		if k == key {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return
		}
	}
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.workerG.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		key := p.queue[0]
		p.queue = p.queue[1:]
		t := p.tasks[key]
		if t == nil || t.state != StateQueued {
			// Cancelled between queue and pickup.
			p.mu.Unlock()
			continue
		}
		t.state = StateUploading
		taskCtx, cancel := context.WithCancel(ctx)
		t.cancel = cancel
		p.mu.Unlock()

		err := p.upload(taskCtx, key)
		cancel()

		p.mu.Lock()
		t.cancel = nil
		switch {
		case err == nil:
			t.state = StateUploaded
			t.lastErr = nil
			p.pending.Done()
		case taskCtx.Err() != nil:
			// Cancelled: forget the task entirely.
			delete(p.tasks, key)
			p.pending.Done()
		case photolala.IsTransient(err) && t.attempts+1 < p.maxAttempts:
			t.attempts++
			t.lastErr = err
			t.state = StateQueued
			p.queue = append(p.queue, key)
			p.cond.Signal()
			p.logger.Warn("backup: upload failed, requeueing",
				"hash", key.ContentHash, "kind", key.Kind, "attempt", t.attempts, "error", err)
		default:
			t.state = StateFailed
			t.lastErr = err
			p.pending.Done()
			p.logger.Error("backup: upload failed permanently",
				"hash", key.ContentHash, "kind", key.Kind, "error", err)
		}
		p.mu.Unlock()
	}
}

// upload moves one artifact to the remote store, unless the remote
// already has it. The cache entry is pinned for the duration so eviction
// cannot race the read.
func (p *Pipeline) upload(ctx context.Context, key TaskKey) error {
	uploaded, err := p.ledger.HasUpload(key.ContentHash, key.Kind)
	if err != nil {
		return fmt.Errorf("consulting upload ledger: %w", err)
	}
	remoteHas := key.Kind == photolala.KindPhoto && p.remote != nil && p.remote.HasRemote(key.ContentHash)
	if uploaded || remoteHas {
		p.logger.Debug("backup: skipping upload, remote already has artifact",
			"hash", key.ContentHash, "kind", key.Kind)
		return p.ledger.RecordUpload(key.ContentHash, key.Kind, p.clock.Now())
	}

	p.cache.Pin(key.ContentHash, key.Kind)
	defer p.cache.Unpin(key.ContentHash, key.Kind)

	// The shared retry policy backs off between attempts. The artifact is
	// reopened per attempt: a failed Put may have consumed the reader.
	objectKey := photolala.ObjectKey(key.Kind, key.ContentHash)
	if err := p.retry.Do(ctx, func(ctx context.Context) error {
		r, size, err := p.cache.Open(key.ContentHash, key.Kind)
		if err != nil {
			return fmt.Errorf("opening staged artifact: %w", err)
		}
		defer r.Close()
		if err := p.store.Put(ctx, objectKey, r, size); err != nil {
			return fmt.Errorf("uploading %s: %w", objectKey, err)
		}
		return nil
	}); err != nil {
		return err
	}

	if err := p.ledger.RecordUpload(key.ContentHash, key.Kind, p.clock.Now()); err != nil {
		return fmt.Errorf("recording upload: %w", err)
	}
	return nil
}
