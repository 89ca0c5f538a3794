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

package interp

import (
	"fmt"
	"math"
	"strings"

	"github.com/x448/float16"

	"github.com/ajroetker/warpdist/cmd/warpgen/ir"
)

// Value is the runtime value of one lane: a scalar, a vector or a memref.
// Elements are stored row-major, in F for float element types and in I
// otherwise. Scalar and vector values are immutable once produced; memref
// values are shared buffers that loads and stores operate on.
type Value struct {
	Type ir.Type
	F    []float64
	I    []int64
}

// NewValue returns a zero value of type t.
func NewValue(t ir.Type) *Value {
	n := t.NumElements()
	v := &Value{Type: t}
	if t.Elem.IsFloat() {
		v.F = make([]float64, n)
	} else {
		v.I = make([]int64, n)
	}
	return v
}

// Float returns a scalar of float type t.
func Float(t ir.Type, x float64) *Value {
	v := NewValue(t)
	v.F[0] = round(t.Elem, x)
	return v
}

// Int returns a scalar of integer type t.
func Int(t ir.Type, x int64) *Value {
	v := NewValue(t)
	v.I[0] = wrap(t.Elem, x)
	return v
}

// Len returns the number of elements.
func (v *Value) Len() int {
	if v.F != nil {
		return len(v.F)
	}
	return len(v.I)
}

// At returns element i converted to float64.
func (v *Value) At(i int) float64 {
	if v.F != nil {
		return v.F[i]
	}
	return float64(v.I[i])
}

func (v *Value) clone() *Value {
	c := &Value{Type: v.Type}
	if v.F != nil {
		c.F = append([]float64(nil), v.F...)
	} else {
		c.I = append([]int64(nil), v.I...)
	}
	return c
}

// copyElem copies element j of src into element i of v.
func (v *Value) copyElem(i int, src *Value, j int) {
	if v.F != nil {
		v.F[i] = src.F[j]
	} else {
		v.I[i] = src.I[j]
	}
}

// String formats v for diagnostics.
func (v *Value) String() string {
	var sb strings.Builder
	sb.WriteString(v.Type.String())
	sb.WriteString("[")
	for i := range v.Len() {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%g", v.At(i))
	}
	sb.WriteString("]")
	return sb.String()
}

// round rounds x to the precision of a float element type.
func round(e ir.ElemType, x float64) float64 {
	switch e {
	case ir.F32:
		return float64(float32(x))
	case ir.F16:
		return float64(float16.Fromfloat32(float32(x)).Float32())
	default:
		return x
	}
}

// wrap truncates x to the width of an integer element type.
func wrap(e ir.ElemType, x int64) int64 {
	switch e {
	case ir.I1:
		return x & 1
	case ir.I32:
		return int64(int32(x))
	default:
		return x
	}
}

// strides returns the row-major strides of shape.
func strides(shape []int64) []int64 {
	s := make([]int64, len(shape))
	acc := int64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

// unravel converts a linear index into a multi-index of shape.
func unravel(i int64, shape []int64) []int64 {
	idx := make([]int64, len(shape))
	for d := len(shape) - 1; d >= 0; d-- {
		idx[d] = i % shape[d]
		i /= shape[d]
	}
	return idx
}

// linear converts a multi-index into a linear index, reporting false when
// it is out of bounds.
func linear(idx, shape []int64) (int64, bool) {
	var off int64
	st := strides(shape)
	for d, x := range idx {
		if x < 0 || x >= shape[d] {
			return 0, false
		}
		off += x * st[d]
	}
	return off, true
}

// binaryFloat evaluates a float elementwise op.
func binaryFloat(name string, a, b float64) (float64, bool) {
	switch name {
	case ir.OpAddF:
		return a + b, true
	case ir.OpSubF:
		return a - b, true
	case ir.OpMulF:
		return a * b, true
	case ir.OpDivF:
		return a / b, true
	case ir.OpMaxF:
		return math.Max(a, b), true
	case ir.OpMinF:
		return math.Min(a, b), true
	}
	return 0, false
}

// binaryInt evaluates an integer elementwise op.
func binaryInt(name string, a, b int64) (int64, bool) {
	switch name {
	case ir.OpAddI:
		return a + b, true
	case ir.OpSubI:
		return a - b, true
	case ir.OpMulI:
		return a * b, true
	case ir.OpMaxSI:
		return max(a, b), true
	case ir.OpMinSI:
		return min(a, b), true
	case ir.OpAndI:
		return a & b, true
	case ir.OpOrI:
		return a | b, true
	case ir.OpXorI:
		return a ^ b, true
	}
	return 0, false
}

func compare(name string, a, b float64) bool {
	switch name {
	case ir.OpCmpEq:
		return a == b
	case ir.OpCmpNe:
		return a != b
	default:
		return a < b
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
