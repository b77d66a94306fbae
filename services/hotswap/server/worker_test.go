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
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_Do(t *testing.T) {
	w := NewWorker(goja.New())
	defer w.Stop()

	v, err := w.Do(context.Background(), func(rt *goja.Runtime) (any, error) {
		res, err := rt.RunString("1 + 2")
		if err != nil {
			return nil, err
		}
		return res.Export(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestWorker_SerializesJobs(t *testing.T) {
	w := NewWorker(goja.New())
	defer w.Stop()

	_, err := w.Do(context.Background(), func(rt *goja.Runtime) (any, error) {
		_, err := rt.RunString("var n = 0")
		return nil, err
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.Do(context.Background(), func(rt *goja.Runtime) (any, error) {
				_, err := rt.RunString("n++")
				return nil, err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, err := w.Do(context.Background(), func(rt *goja.Runtime) (any, error) {
		return rt.Get("n").Export(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50), v)
}

func TestWorker_RecoversPanics(t *testing.T) {
	w := NewWorker(goja.New())
	defer w.Stop()

	_, err := w.Do(context.Background(), func(*goja.Runtime) (any, error) {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	v, err := w.Do(context.Background(), func(*goja.Runtime) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestWorker_InterruptsOnDeadline(t *testing.T) {
	w := NewWorker(goja.New())
	defer w.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := w.Do(ctx, func(rt *goja.Runtime) (any, error) {
		_, err := rt.RunString("while (true) {}")
		return nil, err
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	v, err := w.Do(context.Background(), func(rt *goja.Runtime) (any, error) {
		res, err := rt.RunString("'alive'")
		if err != nil {
			return nil, err
		}
		return res.Export(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "alive", v)
}

func TestWorker_Stopped(t *testing.T) {
	w := NewWorker(goja.New())
	w.Stop()
	w.Stop()

	_, err := w.Do(context.Background(), func(*goja.Runtime) (any, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrWorkerStopped)
}
