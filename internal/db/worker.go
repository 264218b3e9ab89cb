package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

// ErrWorkerClosed is returned by Do once Close has been called.
var ErrWorkerClosed = errors.New("db worker closed")

type TxFn func(ctx context.Context, tx *sql.Tx) error

type txJob struct {
	ctx    context.Context
	fn     TxFn
	result chan error
}

// Worker funnels write transactions through a single goroutine so that
// sqlite never sees two concurrent writers.
type Worker struct {
	conn *sql.DB

	mu     sync.RWMutex
	closed bool
	jobs   chan txJob
	done   chan struct{}
	once   sync.Once
}

func NewWorker(conn *sql.DB) *Worker {
	w := &Worker{
		conn: conn,
		jobs: make(chan txJob, 256),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

// Close stops accepting jobs, drains the queue and waits for the loop to
// exit. It is safe to call more than once.
func (w *Worker) Close() {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.jobs)
		w.mu.Unlock()
	})
	<-w.done
}

// Do runs fn inside a transaction on the worker goroutine. fn's error rolls
// the transaction back; otherwise the commit error is returned.
func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	j := txJob{ctx: ctx, fn: fn, result: make(chan error, 1)}

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrWorkerClosed
	}
	select {
	case w.jobs <- j:
		w.mu.RUnlock()
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}

	// The loop finishes the transaction even if the caller gives up; the
	// buffered result channel absorbs the outcome.
	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run() {
	defer close(w.done)

	for j := range w.jobs {
		j.result <- w.exec(j)
	}
}

func (w *Worker) exec(j txJob) error {
	if err := j.ctx.Err(); err != nil {
		return err
	}
	tx, err := w.conn.BeginTx(j.ctx, nil)
	if err != nil {
		return err
	}
	if err := j.fn(j.ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
