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

// DefaultMemorySpace is the memory space of scratch buffers allocated by
// SharedAllocator when none is configured.
const DefaultMemorySpace = "workgroup"

// Allocator provides the scratch buffers that carry values across the
// boundary of a lowered warp region. The buffer for a value of type t must
// be a memref with t's shape (1 element for scalars), visible to every lane
// of the warp, and created at b's insertion point, which precedes the
// region.
type Allocator interface {
	Allocate(b *ir.Builder, warp ir.OpID, t ir.Type) ir.ValueID
}

// AllocatorFunc adapts a function to the Allocator interface.
type AllocatorFunc func(b *ir.Builder, warp ir.OpID, t ir.Type) ir.ValueID

// Allocate calls f.
func (f AllocatorFunc) Allocate(b *ir.Builder, warp ir.OpID, t ir.Type) ir.ValueID {
	return f(b, warp, t)
}

// SharedAllocator allocates scratch buffers with an alloc op in a fixed
// memory space.
type SharedAllocator struct {
	Space string
}

// Allocate implements Allocator.
func (a SharedAllocator) Allocate(b *ir.Builder, _ ir.OpID, t ir.Type) ir.ValueID {
	shape := t.Shape
	if t.IsScalar() {
		shape = []int64{1}
	}
	space := a.Space
	if space == "" {
		space = DefaultMemorySpace
	}
	return b.Create1(ir.OpAlloc, ir.MemRef(t.Elem, shape...), ir.Attrs{ir.AttrSpace: space})
}

// LowerToGuarded rewrites a warp region into ordinary code: every lane
// stores its captured arguments into scratch buffers at its lane offset,
// lane 0 runs the body on full-width values loaded from them under an if
// and stores the yielded values into scratch buffers, and every lane then
// loads its slice of each result.
func LowerToGuarded(rw *Rewriter, r Region) bool {
	fn := rw.fn
	lane := r.LaneID()
	b := rw.b
	b.SetInsertionPointBefore(r.ID)
	zero := b.Index(0)
	origin := func(rank int) []ir.ValueID {
		return lo.Times(rank, func(int) ir.ValueID { return zero })
	}
	isLane0 := b.Binary(ir.OpCmpEq, lane, zero)
	guard, then := b.If(isLane0)

	body := fn.Block(r.Body())
	thenB := ir.NewBuilder(fn, ir.AtEndOf(then))
	replacements := make([]ir.ValueID, len(body.Args))
	for i, arg := range r.Args() {
		full := fn.Type(body.Args[i])
		dist := fn.Type(arg)
		b.SetInsertionPointBefore(guard)
		buf := rw.opts.Allocator.Allocate(b, r.ID, full)
		if full.IsScalar() {
			b.Create(ir.OpStore, []ir.ValueID{arg, buf, zero}, nil, nil)
			replacements[i] = thenB.Create1(ir.OpLoad, full, nil, buf, zero)
			continue
		}
		offsets := laneOffsets(b, lane, zero, full, dist)
		b.Create(ir.OpStore, append([]ir.ValueID{arg, buf}, offsets...), nil, nil)
		replacements[i] = thenB.Create1(ir.OpLoad, full, nil, append([]ir.ValueID{buf}, origin(full.Rank())...)...)
	}
	for i, arg := range body.Args {
		fn.ReplaceAllUsesWith(arg, replacements[i])
	}
	for _, op := range append([]ir.OpID(nil), body.Ops...) {
		fn.MoveToEnd(op, then)
	}

	yield := fn.Terminator(then)
	yielded := append([]ir.ValueID(nil), fn.Op(yield).Operands()...)
	inside := ir.NewBuilder(fn, ir.Before(yield))
	after := ir.NewBuilder(fn, ir.Before(r.ID))
	results := make([]ir.ValueID, len(yielded))
	for i, v := range yielded {
		full := fn.Type(v)
		dist := fn.Type(r.Results()[i])
		b.SetInsertionPointBefore(guard)
		buf := rw.opts.Allocator.Allocate(b, r.ID, full)
		if full.IsScalar() {
			inside.Create(ir.OpStore, []ir.ValueID{v, buf, zero}, nil, nil)
			results[i] = after.Create1(ir.OpLoad, dist, nil, buf, zero)
			continue
		}
		inside.Create(ir.OpStore, append([]ir.ValueID{v, buf}, origin(full.Rank())...), nil, nil)
		offsets := laneOffsets(after, lane, zero, full, dist)
		results[i] = after.Create1(ir.OpLoad, dist, nil, append([]ir.ValueID{buf}, offsets...)...)
	}
	fn.SetOperands(yield, nil)
	for i, res := range r.Results() {
		fn.ReplaceAllUsesWith(res, results[i])
	}
	fn.Erase(r.ID)
	return true
}
