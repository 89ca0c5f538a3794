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
	"math/bits"

	"github.com/samber/lo"

	"github.com/ajroetker/warpdist/cmd/warpgen/ir"
)

// SinkElementwise moves an elementwise operation producing a yielded value
// out of the region. Its operands become new results of the region, typed
// at the distributed shape of the original result, and a per-lane copy of
// the operation is created after the region.
func SinkElementwise(rw *Rewriter, r Region) bool {
	fn := rw.fn
	m, ok := r.FindMatch(func(op *ir.Op) bool { return op.Kind == ir.OpKindElementwise })
	if !ok {
		return false
	}
	producer := fn.Op(m.Producer)
	distType := fn.Type(r.Results()[m.Index])

	values := producer.Operands()
	// A scalar operand of a vector op (e.g. a select condition) has no
	// per-lane shape.
	if distType.IsVector() && !lo.EveryBy(values, func(v ir.ValueID) bool { return fn.Type(v).IsVector() }) {
		return false
	}
	types := lo.Map(values, func(v ir.ValueID, _ int) ir.Type {
		t := fn.Type(v)
		if distType.IsVector() {
			return ir.Vector(t.Elem, distType.Shape...)
		}
		return t
	})

	first := len(r.Results())
	nr := rw.AppendResults(r, values, types)
	rw.b.SetInsertionPointAfter(nr.ID)
	operands := nr.Results()[first : first+len(values)]
	sunk := rw.b.Create(producer.Name, operands, []ir.Type{distType}, producer.Attrs.Clone())
	fn.ReplaceAllUsesWith(nr.Results()[m.Index], fn.Op(sunk).Results[0])
	return true
}

// combiningOps maps a reduction kind to its elementwise combining op, per
// element type.
var combiningOps = map[ir.ElemType]map[string]string{
	ir.F32: {
		"add": ir.OpAddF,
		"mul": ir.OpMulF,
		"min": ir.OpMinF,
		"max": ir.OpMaxF,
	},
	ir.I32: {
		"add": ir.OpAddI,
		"mul": ir.OpMulI,
		"min": ir.OpMinSI,
		"max": ir.OpMaxSI,
		"and": ir.OpAndI,
		"or":  ir.OpOrI,
		"xor": ir.OpXorI,
	},
}

// CombiningOp returns the op combining two partial results of a reduction
// of the given kind over elem.
func CombiningOp(kind string, elem ir.ElemType) (string, bool) {
	name, ok := combiningOps[elem][kind]
	return name, ok
}

// SinkReduction replaces a yielded 1-D reduction over exactly warp-size
// elements with a butterfly across lanes: each lane contributes one
// element, partial results are combined with shuffle-down at offsets
// warpSize/2, ..., 1, and lane 0's total is broadcast with an indexed
// shuffle.
func SinkReduction(rw *Rewriter, r Region) bool {
	fn := rw.fn
	m, ok := r.FindMatch(func(op *ir.Op) bool { return op.Kind == ir.OpKindReduction })
	if !ok {
		return false
	}
	red := fn.Op(m.Producer)
	vec := red.Operand(0)
	vt := fn.Type(vec)
	ws := r.WarpSize()
	if vt.Rank() != 1 || vt.Dim(0) != ws || bits.OnesCount64(uint64(ws)) != 1 {
		return false
	}
	if len(red.Operands()) != 1 {
		return false
	}
	elem := fn.Type(red.Results[0])
	combine, ok := CombiningOp(red.Attrs.Str(ir.AttrKind), elem.Elem)
	if !ok || !elem.IsScalar() {
		return false
	}

	first := len(r.Results())
	nr := rw.AppendResults(r, []ir.ValueID{vec}, []ir.Type{ir.Vector(elem.Elem, 1)})
	rw.b.SetInsertionPointAfter(nr.ID)
	laneVal := rw.b.Extract(nr.Results()[first], 0)
	for offset := ws / 2; offset > 0; offset /= 2 {
		shuffled := rw.b.Shuffle(laneVal, ir.ShuffleDown, offset, ws)
		laneVal = rw.b.Binary(combine, laneVal, shuffled)
	}
	total := rw.b.Shuffle(laneVal, ir.ShuffleIdx, 0, ws)
	fn.ReplaceAllUsesWith(nr.Results()[m.Index], total)
	return true
}

// UnrollReduction splits a yielded 1-D reduction over k*warpSize elements,
// k > 1, into k reductions of warp-size slices folded together with the
// reduction's combining op, each of which SinkReduction can distribute.
func UnrollReduction(rw *Rewriter, r Region) bool {
	fn := rw.fn
	ws := r.WarpSize()
	m, ok := r.FindMatch(func(op *ir.Op) bool {
		if op.Kind != ir.OpKindReduction || op.NumOperands() != 1 {
			return false
		}
		vt := fn.Type(op.Operand(0))
		return ws > 0 && vt.Rank() == 1 && vt.Dim(0) > ws && vt.Dim(0)%ws == 0
	})
	if !ok {
		return false
	}
	red := fn.Op(m.Producer)
	vec := red.Operand(0)
	elem := fn.Type(red.Results[0])
	combine, ok := CombiningOp(red.Attrs.Str(ir.AttrKind), elem.Elem)
	if !ok {
		return false
	}

	rw.b.SetInsertionPointBefore(m.Producer)
	acc := ir.NoValue
	for offset := int64(0); offset < fn.Type(vec).Dim(0); offset += ws {
		part := rw.b.Create1(ir.OpReduction, elem, red.Attrs.Clone(), rw.b.ExtractSlice(vec, offset, ws))
		if !acc.IsValid() {
			acc = part
			continue
		}
		acc = rw.b.Binary(combine, acc, part)
	}
	fn.ReplaceAllUsesWith(red.Results[0], acc)
	fn.Erase(m.Producer)
	return true
}

// SinkTransferRead re-issues a yielded transfer_read after the region,
// reading each lane's slice directly: indices along the distributed
// dimension are offset by lane * distributed extent. The read must only use
// values defined outside the region and carry no mask.
func SinkTransferRead(rw *Rewriter, r Region) bool {
	fn := rw.fn
	m, ok := r.FindMatch(func(op *ir.Op) bool { return op.Kind == ir.OpKindTransferRead })
	if !ok {
		return false
	}
	read := fn.Op(m.Producer)
	for _, v := range read.Operands() {
		if !fn.DefinedOutside(r.ID, v) {
			return false
		}
	}
	tr := fn.DecodeTransfer(m.Producer)
	if tr.Mask.IsValid() {
		return false
	}
	result := r.Results()[m.Index]
	distType := fn.Type(result)

	rw.b.SetInsertionPointAfter(r.ID)
	indices := append([]ir.ValueID(nil), tr.Indices...)
	for _, d := range DistributionMap(tr.VectorType, distType) {
		pos := tr.Permutation[d]
		if pos < 0 {
			continue
		}
		indices[pos] = rw.b.ComposedApply(0,
			ir.Term{Coeff: 1, Value: indices[pos]},
			ir.Term{Coeff: distType.Dim(d), Value: r.LaneID()})
	}
	operands := append([]ir.ValueID{tr.Memory}, indices...)
	sunk := rw.b.Create(ir.OpTransferRead, operands, []ir.Type{distType}, read.Attrs.Clone())
	fn.ReplaceAllUsesWith(result, fn.Op(sunk).Results[0])
	return true
}

// broadcastable reports whether src can be broadcast to the vector type dst:
// src is a scalar, or a vector whose trailing dimensions match dst's or
// are 1.
func broadcastable(src, dst ir.Type) bool {
	if !dst.IsVector() {
		return false
	}
	if src.IsScalar() {
		return src.Elem == dst.Elem
	}
	if !src.IsVector() || src.Elem != dst.Elem || src.Rank() > dst.Rank() {
		return false
	}
	lead := dst.Rank() - src.Rank()
	for i := range src.Rank() {
		if d := src.Dim(i); d != 1 && d != dst.Dim(lead+i) {
			return false
		}
	}
	return true
}

// SinkBroadcast moves a yielded broadcast out of the region: its source is
// yielded uniformly and broadcast after the region to the distributed
// result type.
func SinkBroadcast(rw *Rewriter, r Region) bool {
	fn := rw.fn
	m, ok := r.FindMatch(func(op *ir.Op) bool { return op.Kind == ir.OpKindBroadcast })
	if !ok {
		return false
	}
	src := fn.Op(m.Producer).Operand(0)
	srcType := fn.Type(src)
	distType := fn.Type(r.Results()[m.Index])
	if !broadcastable(srcType, distType) {
		return false
	}

	first := len(r.Results())
	nr := rw.AppendResults(r, []ir.ValueID{src}, []ir.Type{srcType})
	rw.b.SetInsertionPointAfter(nr.ID)
	v := rw.b.Broadcast(nr.Results()[first], distType)
	fn.ReplaceAllUsesWith(nr.Results()[m.Index], v)
	return true
}
