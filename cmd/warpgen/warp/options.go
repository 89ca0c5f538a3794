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

// Package warp implements the warp-distribution rewrite engine: patterns
// that shrink the body of a warp region (code executed by lane 0 on
// full-width vectors) by sinking operations out of it as their per-lane
// equivalents, plus the passes that distribute loops, hoist uniform scalar
// code and lower what remains into lane-0 guarded code with scratch buffers.
package warp

import (
	"io"
	"os"

	"github.com/ajroetker/warpdist/cmd/warpgen/ir"
)

// DistributionMapFn chooses, for a transfer_write inside a warp region, the
// vector dimensions that are distributed across lanes.
type DistributionMapFn func(fn *ir.Func, write ir.OpID) []int

// InnermostDim distributes the innermost vector dimension.
func InnermostDim(fn *ir.Func, write ir.OpID) []int {
	return []int{fn.DecodeTransfer(write).VectorType.Rank() - 1}
}

// OutermostDim distributes the outermost vector dimension.
func OutermostDim(fn *ir.Func, write ir.OpID) []int {
	return []int{0}
}

// Options configures the rewrite engine.
type Options struct {
	// DistributionRatio is the number of lanes a transfer_write's
	// distributed dimension is split across.
	DistributionRatio int64

	// DistributionMap picks the distributed dimensions of a write.
	DistributionMap DistributionMapFn

	// Allocator provides scratch buffers for explicit lowering.
	Allocator Allocator

	// MaxRewrites bounds the number of successful rewrites of one
	// ApplyPatterns call.
	MaxRewrites int

	// MaxRetries bounds how many times patterns may rewrite the same root
	// operation.
	MaxRetries int

	// HoistUniform moves uniform scalar code out of warp regions before
	// propagation.
	HoistUniform bool

	// DistributeWrites enables transfer_write distribution.
	DistributeWrites bool

	// Lower rewrites the remaining warp regions into lane-0 guarded code.
	Lower bool

	// Disabled lists pattern names that must not be applied.
	Disabled []string

	// Debug enables tracing of applied rewrites to Trace.
	Debug bool

	// Trace receives debug output; os.Stderr when nil.
	Trace io.Writer
}

// DefaultOptions returns the engine defaults: a distribution ratio of 32
// over the innermost dimension, shared-memory scratch buffers, hoisting and
// write distribution on, lowering off.
func DefaultOptions() Options {
	return Options{
		DistributionRatio: 32,
		DistributionMap:   InnermostDim,
		Allocator:         SharedAllocator{Space: DefaultMemorySpace},
		MaxRewrites:       10000,
		MaxRetries:        256,
		HoistUniform:      true,
		DistributeWrites:  true,
	}
}

// withDefaults fills zero fields with their defaults.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.DistributionRatio <= 0 {
		o.DistributionRatio = d.DistributionRatio
	}
	if o.DistributionMap == nil {
		o.DistributionMap = d.DistributionMap
	}
	if o.Allocator == nil {
		o.Allocator = d.Allocator
	}
	if o.MaxRewrites <= 0 {
		o.MaxRewrites = d.MaxRewrites
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = d.MaxRetries
	}
	if o.Trace == nil {
		o.Trace = os.Stderr
	}
	return o
}
