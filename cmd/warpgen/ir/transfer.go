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

package ir

import "slices"

// Transfer is the decoded operand layout of a transfer_read or
// transfer_write:
//
//	transfer_read(%mem, %i0, ..., %iN [, %mask]) : vector<...>
//	transfer_write(%vec, %mem, %i0, ..., %iN [, %mask])
type Transfer struct {
	// Vector is the stored vector (writes only).
	Vector ValueID

	// Memory is the memref read from or written to.
	Memory ValueID

	// Indices holds one index per memref dimension.
	Indices []ValueID

	// Mask is the optional mask operand, NoValue when absent.
	Mask ValueID

	// VectorType is the type of the transferred vector.
	VectorType Type

	// Permutation maps each vector dimension to the memref dimension it
	// walks, or -1 for a broadcast dimension. It defaults to the minor
	// identity (the vector covers the innermost memref dimensions).
	Permutation []int

	// IndexOperand is the operand position of Indices[0].
	IndexOperand int
}

// DecodeTransfer decodes a transfer_read or transfer_write operation.
func (f *Func) DecodeTransfer(op OpID) Transfer {
	o := f.ops[op]
	var t Transfer
	first := 0
	if o.Kind == OpKindTransferWrite {
		t.Vector = o.operands[0]
		t.VectorType = f.Type(t.Vector)
		first = 1
	} else {
		t.VectorType = f.Type(o.Results[0])
	}
	t.Memory = o.operands[first]
	rank := f.Type(t.Memory).Rank()
	t.IndexOperand = first + 1
	t.Indices = slices.Clone(o.operands[t.IndexOperand : t.IndexOperand+rank])
	if len(o.operands) > t.IndexOperand+rank {
		t.Mask = o.operands[t.IndexOperand+rank]
	}
	if perm, ok := o.Attrs.Ints(AttrPermutation); ok {
		for _, p := range perm {
			t.Permutation = append(t.Permutation, int(p))
		}
	} else {
		vr := t.VectorType.Rank()
		for i := range vr {
			t.Permutation = append(t.Permutation, rank-vr+i)
		}
	}
	return t
}
