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

// DistributeFor moves a loop that ends a warp region out of it: the loop is
// re-created after the region with its carried values at their distributed
// types, and its body is wrapped in a new warp region that receives the
// carried values as captured arguments. The loop bounds and every value the
// body captures must be defined outside the region, and every loop result
// must be yielded.
func DistributeFor(rw *Rewriter, r Region) bool {
	fn := rw.fn
	yield := r.Yield()
	loop := fn.Prev(yield)
	if !loop.IsValid() || fn.Op(loop).Kind != ir.OpKindFor {
		return false
	}
	forOp := fn.Op(loop)
	for _, v := range forOp.Operands()[:3] {
		if !fn.DefinedOutside(r.ID, v) {
			return false
		}
	}
	if capturesFromRegion(fn, loop, r.ID) {
		return false
	}

	// yieldPos[j] lists the yield positions of loop result j.
	results := r.Results()
	yieldPos := make([][]int, len(forOp.Results))
	for i, v := range r.Yielded() {
		if fn.DefiningOp(v) == loop {
			j := fn.ResultIndex(v)
			yieldPos[j] = append(yieldPos[j], i)
		}
	}
	distTypes := make([]ir.Type, len(yieldPos))
	for j, ps := range yieldPos {
		if len(ps) == 0 {
			return false
		}
		distTypes[j] = fn.Type(results[ps[0]])
		for _, p := range ps[1:] {
			if !fn.Type(results[p]).Equal(distTypes[j]) {
				return false
			}
		}
	}

	// The region now yields the loop inits in place of the loop results.
	inits := forOp.Operands()[3:]
	initValues := make([]ir.ValueID, len(yieldPos))
	for j, ps := range yieldPos {
		for _, p := range ps {
			fn.SetOperand(yield, p, inits[j])
		}
		initValues[j] = results[ps[0]]
	}

	rw.b.SetInsertionPointAfter(r.ID)
	newLoop, loopBody := rw.b.For(forOp.Operand(0), forOp.Operand(1), forOp.Operand(2), initValues)
	iterArgs := fn.Block(loopBody).Args[1:]
	fullTypes := lo.Map(forOp.Results, func(v ir.ValueID, _ int) ir.Type { return fn.Type(v) })
	lb := ir.NewBuilder(fn, ir.AtEndOf(loopBody))
	inner, innerBody := lb.Warp(r.LaneID(), r.WarpSize(), iterArgs, fullTypes, distTypes)

	oldBody := fn.Block(forOp.Region(0))
	m := ir.Mapping{oldBody.Args[0]: fn.Block(loopBody).Args[0]}
	for j, a := range oldBody.Args[1:] {
		m[a] = fn.Block(innerBody).Args[j]
	}
	wb := ir.NewBuilder(fn, ir.AtEndOf(innerBody))
	for _, op := range oldBody.Ops[:len(oldBody.Ops)-1] {
		wb.Clone(op, m)
	}
	oldYield := fn.Op(fn.Terminator(oldBody.ID))
	yielded := lo.Map(oldYield.Operands(), func(v ir.ValueID, _ int) ir.ValueID { return m.Lookup(v) })
	wb.Yield(yielded...)
	lb.Yield(fn.Op(inner).Results...)
	fn.Erase(loop)

	// Uses of the region results become uses of the new loop results; the
	// loop inits are then pointed back at the region results.
	for j, ps := range yieldPos {
		res := fn.Op(newLoop).Results[j]
		for _, p := range ps {
			fn.ReplaceAllUsesWith(results[p], res)
		}
		fn.SetOperand(newLoop, 3+j, results[ps[0]])
	}
	return true
}

// capturesFromRegion reports whether anything nested in loop uses a value
// defined inside warp but outside loop.
func capturesFromRegion(fn *ir.Func, loop, warp ir.OpID) bool {
	captures := false
	for _, r := range fn.Op(loop).Regions {
		fn.WalkBlock(r, func(op *ir.Op) bool {
			for _, v := range op.Operands() {
				if fn.DefinedOutside(loop, v) && !fn.DefinedOutside(warp, v) {
					captures = true
				}
			}
			return !captures
		})
	}
	return captures
}
