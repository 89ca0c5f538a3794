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
	"github.com/samber/lo"

	"github.com/ajroetker/warpdist/cmd/warpgen/ir"
)

// Region is a view of a warp operation.
type Region struct {
	fn *ir.Func
	ID ir.OpID
}

// AsRegion returns the warp view of op, or false if op is not a live warp.
func AsRegion(fn *ir.Func, op ir.OpID) (Region, bool) {
	o := fn.Op(op)
	if o == nil || o.Erased() || o.Kind != ir.OpKindWarp || len(o.Regions) != 1 {
		return Region{}, false
	}
	return Region{fn: fn, ID: op}, true
}

func (r Region) op() *ir.Op { return r.fn.Op(r.ID) }

// LaneID returns the lane id operand.
func (r Region) LaneID() ir.ValueID { return r.op().Operand(0) }

// Args returns the captured arguments.
func (r Region) Args() []ir.ValueID { return r.op().Operands()[1:] }

// Results returns the per-lane results.
func (r Region) Results() []ir.ValueID { return r.op().Results }

// WarpSize returns the number of lanes.
func (r Region) WarpSize() int64 {
	n, _ := r.op().Attrs.Int(ir.AttrWarpSize)
	return n
}

// Body returns the region block.
func (r Region) Body() ir.BlockID { return r.op().Region(0) }

// Yield returns the region terminator.
func (r Region) Yield() ir.OpID { return r.fn.Terminator(r.Body()) }

// Yielded returns the full-width values produced by the body.
func (r Region) Yielded() []ir.ValueID { return r.fn.Op(r.Yield()).Operands() }

// DistributionMap returns the dimensions along which yielded is distributed
// into result. At most one dimension may differ.
func DistributionMap(yielded, result ir.Type) []int {
	dims, ok := ir.DistributedDims(yielded, result)
	invariant(ok, "%s is not a distribution of %s", result, yielded)
	invariant(len(dims) <= 1, "only one distributed dimension is supported, got %v", dims)
	return dims
}

// moveToNewRegion creates a warp with the same lane id, warp size and
// captured arguments right before r, moves r's body into it and makes its
// yield produce values. r is left in place without a body.
func (rw *Rewriter) moveToNewRegion(r Region, values []ir.ValueID, types []ir.Type) Region {
	invariant(len(values) == len(types), "%d yielded values for %d result types", len(values), len(types))
	fn := rw.fn
	old := r.op()
	rw.b.SetInsertionPointBefore(r.ID)
	id := rw.b.Create(ir.OpWarp, old.Operands(), types, old.Attrs.Clone())
	fn.TakeRegions(id, r.ID)
	rw.origins[id] = rw.origin(r.ID)
	nr := Region{fn: fn, ID: id}
	fn.SetOperands(nr.Yield(), values)
	return nr
}

// AppendResults rebuilds r with extra results: the body yields values in
// addition to its current values, typed by types on the outside. The old
// results are replaced by the leading results of the new region and r is
// erased.
func (rw *Rewriter) AppendResults(r Region, values []ir.ValueID, types []ir.Type) Region {
	fn := rw.fn
	oldResults := append([]ir.ValueID(nil), r.Results()...)
	allValues := append(append([]ir.ValueID(nil), r.Yielded()...), values...)
	allTypes := append(lo.Map(oldResults, func(v ir.ValueID, _ int) ir.Type { return fn.Type(v) }), types...)
	nr := rw.moveToNewRegion(r, allValues, allTypes)
	for i, v := range oldResults {
		fn.ReplaceAllUsesWith(v, nr.Results()[i])
	}
	fn.Erase(r.ID)
	return nr
}

// ReplaceResults rebuilds r so that it yields exactly values, typed by
// types. origin[i] is the index of the old result that new result i
// replaces, or -1 for a fresh result. Every old result still in use must be
// mapped.
func (rw *Rewriter) ReplaceResults(r Region, values []ir.ValueID, types []ir.Type, origin []int) Region {
	invariant(len(origin) == len(values), "%d origins for %d values", len(origin), len(values))
	fn := rw.fn
	oldResults := append([]ir.ValueID(nil), r.Results()...)
	nr := rw.moveToNewRegion(r, values, types)
	for i, o := range origin {
		if o >= 0 {
			fn.ReplaceAllUsesWith(oldResults[o], nr.Results()[i])
		}
	}
	for i, v := range oldResults {
		invariant(!fn.HasUses(v), "result %d of %s dropped while still in use", i, opString(fn, r.ID))
	}
	fn.Erase(r.ID)
	return nr
}

// Match is a yielded value whose producer satisfied a predicate.
type Match struct {
	// Index is the position in the yield (and in the results).
	Index int

	// Value is the yielded value.
	Value ir.ValueID

	// Producer is the operation defining Value.
	Producer ir.OpID
}

// FindMatch returns the first yielded value produced by an operation
// satisfying pred whose corresponding result is still used.
func (r Region) FindMatch(pred func(op *ir.Op) bool) (Match, bool) {
	fn := r.fn
	results := r.Results()
	for i, v := range r.Yielded() {
		def := fn.DefiningOp(v)
		if !def.IsValid() || !pred(fn.Op(def)) {
			continue
		}
		if fn.HasUses(results[i]) {
			return Match{Index: i, Value: v, Producer: def}, true
		}
	}
	return Match{}, false
}

// enclosingRegion returns the warp whose body directly contains op.
func enclosingRegion(fn *ir.Func, op ir.OpID) (Region, bool) {
	parent := fn.Op(op).Parent
	if !parent.IsValid() {
		return Region{}, false
	}
	return AsRegion(fn, fn.Block(parent).Parent)
}

// laneOffsets returns one index per dimension of a value of type full: the
// lane's offset (lane * extent) along the dimensions distributed into dist,
// zero elsewhere. zero must be an index constant 0.
func laneOffsets(b *ir.Builder, lane, zero ir.ValueID, full, dist ir.Type) []ir.ValueID {
	offsets := lo.Times(full.Rank(), func(int) ir.ValueID { return zero })
	for _, d := range DistributionMap(full, dist) {
		offsets[d] = b.ComposedApply(0, ir.Term{Coeff: dist.Dim(d), Value: lane})
	}
	return offsets
}
