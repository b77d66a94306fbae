// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"
)

// ErrWorkerStopped is returned by Do after Stop.
var ErrWorkerStopped = errors.New("runtime worker stopped")

// Job is a unit of work run on the runtime goroutine.
type Job func(rt *goja.Runtime) (any, error)

type job struct {
	fn       Job
	done     chan jobResult
	canceled bool // guarded by Worker.mu
}

type jobResult struct {
	value any
	err   error
}

// Worker serializes all runtime access through a single goroutine.
//
// goja runtimes are not safe for concurrent use; every handler goes through
// the worker. A job whose caller gives up is interrupted, so a script that
// never returns cannot block the worker forever.
type Worker struct {
	rt       *goja.Runtime
	requests chan *job
	quit     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	current *job
}

// NewWorker creates a Worker for rt and starts its goroutine.
func NewWorker(rt *goja.Runtime) *Worker {
	w := &Worker{
		rt:       rt,
		requests: make(chan *job, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes jobs sequentially on a dedicated goroutine.
func (w *Worker) loop() {
	for {
		select {
		case j := <-w.requests:
			j.done <- w.execute(j)
		case <-w.quit:
			return
		}
	}
}

// execute runs a job, recovering from panics.
func (w *Worker) execute(j *job) (result jobResult) {
	w.rt.ClearInterrupt()
	w.mu.Lock()
	if j.canceled {
		w.mu.Unlock()
		return jobResult{err: context.Canceled}
	}
	w.current = j
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.current = nil
		w.mu.Unlock()
		if r := recover(); r != nil {
			result = jobResult{err: fmt.Errorf("runtime job panicked: %v", r)}
		}
	}()

	v, err := j.fn(w.rt)
	return jobResult{value: v, err: err}
}

// Do runs fn on the runtime goroutine and blocks until it completes.
//
// When ctx ends while fn is running, the runtime is interrupted and Do
// returns ctx's error once fn has unwound. A job still queued at that
// point is skipped.
func (w *Worker) Do(ctx context.Context, fn Job) (any, error) {
	j := &job{fn: fn, done: make(chan jobResult, 1)}

	select {
	case w.requests <- j:
	case <-w.quit:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-j.done:
		return res.value, res.err
	case <-w.quit:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
	}

	w.mu.Lock()
	j.canceled = true
	if w.current == j {
		w.rt.Interrupt(ctx.Err())
	}
	w.mu.Unlock()

	select {
	case <-j.done:
	case <-w.quit:
	}
	return nil, ctx.Err()
}

// Stop shuts down the worker goroutine. Queued jobs are abandoned.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.quit)
	})
}
