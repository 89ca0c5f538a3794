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
	"github.com/ajroetker/warpdist/cmd/warpgen/ir"
)

// DistributeTransferWrite moves a transfer_write out of its enclosing warp
// region. Only writes that are not followed by another side effect in the
// region are moved, and only when all operands but the stored vector are
// defined outside the region. The write is first distributed across lanes
// (each lane stores its slice); failing that, a 1-element vector store is
// split into its own warp region so the rest of the region can keep
// distributing.
func DistributeTransferWrite(rw *Rewriter, write ir.OpID) bool {
	fn := rw.fn
	r, ok := enclosingRegion(fn, write)
	if !ok {
		return false
	}
	tr := fn.DecodeTransfer(write)
	if tr.Mask.IsValid() {
		return false
	}
	for next := fn.Next(write); next.IsValid(); next = fn.Next(next) {
		if fn.HasSideEffect(next) {
			return false
		}
	}
	for i, v := range fn.Op(write).Operands() {
		if i != 0 && !fn.DefinedOutside(r.ID, v) {
			return false
		}
	}
	if distributeWrite(rw, r, write, tr) {
		return true
	}
	return extractWrite(rw, r, write, tr)
}

// distributeWrite yields the stored vector at its distributed shape and
// re-creates the write after the region with lane-offset indices.
func distributeWrite(rw *Rewriter, r Region, write ir.OpID, tr ir.Transfer) bool {
	fn := rw.fn
	dims := rw.opts.DistributionMap(fn, write)
	invariant(len(dims) == 1, "write distribution over %d dimensions is not implemented", len(dims))
	vt := tr.VectorType
	ratio := rw.opts.DistributionRatio
	shape := append([]int64(nil), vt.Shape...)
	for _, d := range dims {
		invariant(d >= 0 && d < vt.Rank(), "distributed dimension %d out of range for %s", d, vt)
		if shape[d]%ratio != 0 {
			return false
		}
		shape[d] /= ratio
	}
	distType := ir.Vector(vt.Elem, shape...)

	first := len(r.Results())
	nr := rw.AppendResults(r, []ir.ValueID{tr.Vector}, []ir.Type{distType})
	rw.b.SetInsertionPointAfter(nr.ID)
	moved := rw.b.Clone(write, ir.Mapping{tr.Vector: nr.Results()[first]})
	fn.Erase(write)

	rw.b.SetInsertionPointBefore(moved)
	for _, d := range dims {
		pos := tr.Permutation[d]
		if pos < 0 {
			continue
		}
		idx := rw.b.ComposedApply(0,
			ir.Term{Coeff: 1, Value: tr.Indices[pos]},
			ir.Term{Coeff: shape[d], Value: nr.LaneID()})
		fn.SetOperand(moved, tr.IndexOperand+pos, idx)
	}
	return true
}

// extractWrite handles a vector<1xT> store that cannot be distributed:
// the value is yielded as is and the write moves into a new result-less
// warp region right after the current one. It does nothing when the region
// holds only writes.
func extractWrite(rw *Rewriter, r Region, write ir.OpID, tr ir.Transfer) bool {
	fn := rw.fn
	vt := tr.VectorType
	if vt.Rank() != 1 || vt.Dim(0) != 1 {
		return false
	}
	onlyWrites := true
	for _, id := range fn.Block(r.Body()).Ops {
		if k := fn.Op(id).Kind; k != ir.OpKindTransferWrite && k != ir.OpKindYield {
			onlyWrites = false
			break
		}
	}
	if onlyWrites {
		return false
	}

	first := len(r.Results())
	nr := rw.AppendResults(r, []ir.ValueID{tr.Vector}, []ir.Type{vt})
	rw.b.SetInsertionPointAfter(nr.ID)
	_, body := rw.b.Warp(nr.LaneID(), nr.WarpSize(), nil, nil, nil)
	inner := ir.NewBuilder(fn, ir.AtEndOf(body))
	inner.Clone(write, ir.Mapping{tr.Vector: nr.Results()[first]})
	inner.Yield()
	fn.Erase(write)
	return true
}
