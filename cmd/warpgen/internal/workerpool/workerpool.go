// Copyright 2025 go-highway Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package workerpool runs independent jobs on a bounded number of
// goroutines. Workers steal job indices from a shared counter, so uneven
// jobs (functions of very different sizes) balance across workers.
//
// Usage:
//
//	pool := workerpool.New(runtime.GOMAXPROCS(0))
//	err := pool.Run(ctx, len(files), func(ctx context.Context, i int) error {
//	    return process(ctx, files[i])
//	})
package workerpool

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Pool bounds the parallelism of the jobs it runs.
type Pool struct {
	numWorkers int
}

// New creates a pool running at most numWorkers jobs at a time.
// If numWorkers <= 0, uses GOMAXPROCS.
func New(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	return &Pool{numWorkers: numWorkers}
}

// NumWorkers returns the number of workers in the pool.
func (p *Pool) NumWorkers() int {
	return p.numWorkers
}

// Run executes fn for each index in [0, n) and blocks until all jobs
// complete or one fails. The first error cancels the context passed to the
// remaining jobs; jobs not yet started are skipped. Run returns the first
// error.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return nil
	}
	workers := min(p.numWorkers, n)
	if workers == 1 {
		for i := range n {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	var nextIdx atomic.Int32
	for range workers {
		g.Go(func() error {
			for {
				idx := int(nextIdx.Add(1)) - 1
				if idx >= n {
					return nil
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := fn(ctx, idx); err != nil {
					return err
				}
			}
		})
	}
	return g.Wait()
}

// ParallelFor executes fn for each index in [0, n) and blocks until all
// calls return.
func (p *Pool) ParallelFor(n int, fn func(i int)) {
	_ = p.Run(context.Background(), n, func(_ context.Context, i int) error {
		fn(i)
		return nil
	})
}
