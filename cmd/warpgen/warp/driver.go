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

package warp

import (
	"slices"
	"sort"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/ajroetker/warpdist/cmd/warpgen/ir"
)

// ErrNoConvergence is returned when pattern application exceeds its rewrite
// budget without reaching a fixpoint.
var ErrNoConvergence = errors.New("pattern application did not converge")

// Rewriter carries the function being rewritten, a builder and the engine
// options into patterns.
type Rewriter struct {
	fn   *ir.Func
	b    *ir.Builder
	opts Options

	// origins maps a warp rebuilt by moveToNewRegion to the warp it
	// descends from.
	origins map[ir.OpID]ir.OpID
}

// NewRewriter creates a rewriter for fn. Zero option fields take their
// defaults.
func NewRewriter(fn *ir.Func, opts Options) *Rewriter {
	return &Rewriter{fn: fn, b: ir.NewBuilder(fn), opts: opts.withDefaults(), origins: make(map[ir.OpID]ir.OpID)}
}

// origin returns the operation op descends from through region rebuilds,
// or op itself.
func (rw *Rewriter) origin(op ir.OpID) ir.OpID {
	if o, ok := rw.origins[op]; ok {
		return o
	}
	return op
}

// Func returns the function being rewritten.
func (rw *Rewriter) Func() *ir.Func { return rw.fn }

// Pattern is a rewrite anchored on operations of one kind.
type Pattern struct {
	// Name identifies this pattern in traces, statistics and configuration.
	Name string

	// Priority determines application order (higher = tried first).
	Priority int

	// Root is the kind of operation the pattern is anchored on.
	Root ir.OpKind

	// Apply rewrites op and reports whether it changed the IR. A pattern
	// that returns false must leave the IR untouched.
	Apply func(rw *Rewriter, op ir.OpID) bool
}

// Pattern names.
const (
	PatternHoistUniform    = "hoist-uniform"
	PatternForwardOperand  = "forward-operand"
	PatternDeadResult      = "dead-result"
	PatternUnrollReduction = "unroll-reduction"
	PatternSinkElementwise = "sink-elementwise"
	PatternSinkReduction   = "sink-reduction"
	PatternSinkRead        = "sink-transfer-read"
	PatternSinkBroadcast   = "sink-broadcast"
	PatternDistributeFor   = "distribute-for"
	PatternDistributeWrite = "distribute-transfer-write"
	PatternLower           = "lower-to-guarded"
)

// onRegion adapts a region rewrite to a Pattern.Apply.
func onRegion(apply func(rw *Rewriter, r Region) bool) func(rw *Rewriter, op ir.OpID) bool {
	return func(rw *Rewriter, op ir.OpID) bool {
		r, ok := AsRegion(rw.fn, op)
		return ok && apply(rw, r)
	}
}

// HoistPatterns returns the uniform-code hoisting pattern. It is tried
// before every other pattern so that warp regions created by loop
// distribution are hoisted too.
func HoistPatterns() []Pattern {
	return []Pattern{
		{Name: PatternHoistUniform, Priority: 50, Root: ir.OpKindWarp, Apply: onRegion(func(rw *Rewriter, r Region) bool {
			return HoistUniformCode(rw.fn, r) > 0
		})},
	}
}

// PropagationPatterns returns the sinking and cleanup patterns plus loop
// distribution, which only fires once nothing else matches its region.
func PropagationPatterns() []Pattern {
	return []Pattern{
		{Name: PatternForwardOperand, Priority: 40, Root: ir.OpKindWarp, Apply: onRegion(ForwardOperand)},
		{Name: PatternDeadResult, Priority: 30, Root: ir.OpKindWarp, Apply: onRegion(EliminateDeadResults)},
		{Name: PatternUnrollReduction, Priority: 25, Root: ir.OpKindWarp, Apply: onRegion(UnrollReduction)},
		{Name: PatternSinkElementwise, Priority: 20, Root: ir.OpKindWarp, Apply: onRegion(SinkElementwise)},
		{Name: PatternSinkReduction, Priority: 20, Root: ir.OpKindWarp, Apply: onRegion(SinkReduction)},
		{Name: PatternSinkRead, Priority: 20, Root: ir.OpKindWarp, Apply: onRegion(SinkTransferRead)},
		{Name: PatternSinkBroadcast, Priority: 20, Root: ir.OpKindWarp, Apply: onRegion(SinkBroadcast)},
		{Name: PatternDistributeFor, Priority: 5, Root: ir.OpKindWarp, Apply: onRegion(DistributeFor)},
	}
}

// WriteDistributionPatterns returns the transfer_write distribution pattern.
func WriteDistributionPatterns() []Pattern {
	return []Pattern{
		{Name: PatternDistributeWrite, Priority: 10, Root: ir.OpKindTransferWrite, Apply: DistributeTransferWrite},
	}
}

// LoweringPatterns returns the explicit lowering pattern.
func LoweringPatterns() []Pattern {
	return []Pattern{
		{Name: PatternLower, Priority: 0, Root: ir.OpKindWarp, Apply: onRegion(LowerToGuarded)},
	}
}

// AllPatterns returns every pattern the engine knows, in priority order.
func AllPatterns() []Pattern {
	all := slices.Concat(HoistPatterns(), PropagationPatterns(), WriteDistributionPatterns(), LoweringPatterns())
	sortPatterns(all)
	return all
}

func sortPatterns(patterns []Pattern) {
	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].Priority > patterns[j].Priority
	})
}

// Stats summarizes one or more pattern applications.
type Stats struct {
	// Rounds is the number of worklist sweeps.
	Rounds int

	// Rewrites is the number of successful pattern applications.
	Rewrites int

	// Applied counts successful applications per pattern name.
	Applied map[string]int

	// Erased counts trivially dead operations removed between rounds.
	Erased int
}

func (s *Stats) merge(o Stats) {
	s.Rounds += o.Rounds
	s.Rewrites += o.Rewrites
	s.Erased += o.Erased
	for name, n := range o.Applied {
		if s.Applied == nil {
			s.Applied = make(map[string]int)
		}
		s.Applied[name] += n
	}
}

// ApplyPatterns rewrites fn with patterns until none applies. Each round
// erases trivially dead operations, then visits the operations in
// pre-order and tries the patterns anchored on each, highest priority
// first; the first successful rewrite starts a new round.
func ApplyPatterns(fn *ir.Func, patterns []Pattern, opts Options) (Stats, error) {
	rw := NewRewriter(fn, opts)
	return rw.apply(patterns)
}

func (rw *Rewriter) apply(patterns []Pattern) (Stats, error) {
	fn := rw.fn
	stats := Stats{Applied: make(map[string]int)}
	rules := lo.Filter(patterns, func(p Pattern, _ int) bool {
		return !slices.Contains(rw.opts.Disabled, p.Name)
	})
	sortPatterns(rules)
	roots := lo.SliceToMap(rules, func(p Pattern) (ir.OpKind, bool) { return p.Root, true })
	retries := make(map[ir.OpID]int)

	changed := true
	for changed {
		changed = false
		stats.Rounds++
		stats.Erased += EraseDeadOps(fn)

		var worklist []ir.OpID
		fn.Walk(func(op *ir.Op) bool {
			if roots[op.Kind] {
				worklist = append(worklist, op.ID)
			}
			return true
		})

	sweep:
		for _, id := range worklist {
			op := fn.Op(id)
			if op.Erased() {
				continue
			}
			for _, rule := range rules {
				if op.Kind != rule.Root {
					continue
				}
				desc := opString(fn, id)
				root := rw.origin(id)
				if !rule.Apply(rw, id) {
					continue
				}
				rw.debugPrint("%s: rewrote %s in @%s", rule.Name, desc, fn.Name)
				stats.Applied[rule.Name]++
				stats.Rewrites++
				retries[root]++
				if stats.Rewrites >= rw.opts.MaxRewrites {
					return stats, errors.Wrapf(ErrNoConvergence, "@%s: %d rewrites", fn.Name, stats.Rewrites)
				}
				if retries[root] > rw.opts.MaxRetries {
					return stats, errors.Wrapf(ErrNoConvergence, "@%s: %s rewritten %d times", fn.Name, desc, retries[root])
				}
				changed = true
				break sweep
			}
		}
	}
	stats.Erased += EraseDeadOps(fn)
	return stats, nil
}

// EraseDeadOps erases trivially dead operations until none is left and
// returns how many were erased.
func EraseDeadOps(fn *ir.Func) int {
	erased := 0
	for {
		var ops []ir.OpID
		fn.Walk(func(op *ir.Op) bool {
			ops = append(ops, op.ID)
			return true
		})
		done := true
		// Reverse pre-order visits users before the values they use.
		for _, id := range slices.Backward(ops) {
			if fn.Op(id).Erased() || !fn.IsTriviallyDead(id) {
				continue
			}
			fn.Erase(id)
			erased++
			done = false
		}
		if done {
			return erased
		}
	}
}

// Distribute runs the full pipeline on fn: propagation with uniform-code
// hoisting, loop distribution and write distribution (each when enabled)
// to a fixpoint, then explicit lowering (when enabled).
func Distribute(fn *ir.Func, opts Options) (Stats, error) {
	rw := NewRewriter(fn, opts)
	var patterns []Pattern
	if rw.opts.HoistUniform {
		patterns = append(patterns, HoistPatterns()...)
	}
	patterns = append(patterns, PropagationPatterns()...)
	if rw.opts.DistributeWrites {
		patterns = append(patterns, WriteDistributionPatterns()...)
	}
	stats, err := rw.apply(patterns)
	if err != nil || !rw.opts.Lower {
		return stats, err
	}
	s, err := rw.apply(LoweringPatterns())
	stats.merge(s)
	if err != nil {
		return stats, errors.WithMessage(err, "lowering")
	}
	return stats, nil
}
