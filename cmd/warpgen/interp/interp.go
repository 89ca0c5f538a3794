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

// Package interp executes IR functions on a simulated warp. Every lane runs
// the function in lockstep under an activity mask: ordinary operations run
// on each active lane, shuffles exchange values between lanes, an if
// narrows the mask, and a warp region gathers its captured arguments to
// full width, runs its body on lane 0 alone and hands each lane its slice
// of the results.
//
// It is used to check that rewrites preserve the observable behavior of a
// function: its returned values and the contents of its memref arguments.
package interp

import (
	"github.com/pkg/errors"

	"github.com/ajroetker/warpdist/cmd/warpgen/ir"
)

// Input binds one function parameter.
type Input struct {
	// LaneID binds the parameter to each lane's index.
	LaneID bool

	// Value is the uniform value bound on every lane. Memref values are
	// shared by all lanes and mutated in place.
	Value *Value
}

// Lane binds a parameter to the lane index.
func Lane() Input { return Input{LaneID: true} }

// Uniform binds a parameter to the same value on every lane.
func Uniform(v *Value) Input { return Input{Value: v} }

// Result holds the values returned by each lane.
type Result struct {
	Returns [][]*Value
}

type machine struct {
	fn    *ir.Func
	lanes int
	env   map[ir.ValueID][]*Value
}

type runError struct {
	err error
}

func (m *machine) fail(op *ir.Op, format string, args ...any) {
	panic(runError{errors.Wrapf(errors.Errorf(format, args...), "%s (op %d)", op.Name, op.ID)})
}

// Run executes fn on a warp of the given number of lanes.
func Run(fn *ir.Func, lanes int, inputs ...Input) (res *Result, err error) {
	params := fn.Params()
	if len(inputs) != len(params) {
		return nil, errors.Errorf("@%s takes %d parameters, got %d inputs", fn.Name, len(params), len(inputs))
	}
	m := &machine{fn: fn, lanes: lanes, env: make(map[ir.ValueID][]*Value)}
	for i, p := range params {
		vals := make([]*Value, lanes)
		for l := range vals {
			if inputs[i].LaneID {
				vals[l] = Int(fn.Type(p), int64(l))
			} else {
				vals[l] = inputs[i].Value
			}
		}
		m.env[p] = vals
	}

	defer func() {
		if r := recover(); r != nil {
			re, ok := r.(runError)
			if !ok {
				panic(r)
			}
			res, err = nil, errors.WithMessagef(re.err, "@%s", fn.Name)
		}
	}()
	mask := make([]bool, lanes)
	for l := range mask {
		mask[l] = true
	}
	returned := m.block(fn.Body, mask)
	res = &Result{Returns: make([][]*Value, lanes)}
	for l := range lanes {
		for _, v := range returned {
			res.Returns[l] = append(res.Returns[l], m.env[v][l])
		}
	}
	return res, nil
}

// block executes the operations of b on the lanes in mask and returns the
// terminator's operands.
func (m *machine) block(b ir.BlockID, mask []bool) []ir.ValueID {
	for _, id := range m.fn.Block(b).Ops {
		op := m.fn.Op(id)
		if op.Kind.IsTerminator() {
			return op.Operands()
		}
		m.op(op, mask)
	}
	return nil
}

func (m *machine) get(v ir.ValueID, lane int) *Value {
	vals, ok := m.env[v]
	if !ok || vals[lane] == nil {
		panic(runError{errors.Errorf("value %d is not available on lane %d", v, lane)})
	}
	return vals[lane]
}

func (m *machine) set(v ir.ValueID, lane int, x *Value) {
	vals, ok := m.env[v]
	if !ok {
		vals = make([]*Value, m.lanes)
		m.env[v] = vals
	}
	vals[lane] = x
}

func (m *machine) op(op *ir.Op, mask []bool) {
	switch op.Kind {
	case ir.OpKindShuffle:
		m.shuffle(op, mask)
	case ir.OpKindAlloc:
		buf := NewValue(m.fn.Type(op.Results[0]))
		m.eachLane(mask, func(l int) { m.set(op.Results[0], l, buf) })
	case ir.OpKindFor:
		m.loop(op, mask)
	case ir.OpKindIf:
		m.cond(op, mask)
	case ir.OpKindWarp:
		m.warp(op, mask)
	default:
		m.eachLane(mask, func(l int) { m.lane(op, l) })
	}
}

func (m *machine) eachLane(mask []bool, f func(l int)) {
	for l, active := range mask {
		if active {
			f(l)
		}
	}
}

// lane executes a lane-local operation on lane l.
func (m *machine) lane(op *ir.Op, l int) {
	fn := m.fn
	arg := func(i int) *Value { return m.get(op.Operand(i), l) }
	var out *Value
	switch op.Kind {
	case ir.OpKindConstant:
		out = m.constant(op)
	case ir.OpKindElementwise:
		out = m.elementwise(op, l)
	case ir.OpKindApply:
		coeffs, _ := op.Attrs.Ints(ir.AttrCoeffs)
		sum, _ := op.Attrs.Int(ir.AttrOffset)
		for i := range op.Operands() {
			sum += coeffs[i] * arg(i).I[0]
		}
		out = Int(fn.Type(op.Results[0]), sum)
	case ir.OpKindReduction:
		out = m.reduction(op, arg(0))
	case ir.OpKindTransferRead:
		out = m.transferRead(op, l)
	case ir.OpKindTransferWrite:
		m.transferWrite(op, l)
	case ir.OpKindBroadcast:
		out = broadcast(arg(0), fn.Type(op.Results[0]))
	case ir.OpKindExtract:
		out = m.extract(op, arg(0))
	case ir.OpKindLoad:
		out = m.load(op, l)
	case ir.OpKindStore:
		m.store(op, l)
	default:
		m.fail(op, "cannot interpret operation")
	}
	if out != nil {
		m.set(op.Results[0], l, out)
	}
}

func (m *machine) constant(op *ir.Op) *Value {
	t := m.fn.Type(op.Results[0])
	v := NewValue(t)
	if t.Elem.IsFloat() {
		x, ok := op.Attrs.Float(ir.AttrValue)
		if !ok {
			m.fail(op, "missing float value")
		}
		for i := range v.F {
			v.F[i] = round(t.Elem, x)
		}
		return v
	}
	x, ok := op.Attrs.Int(ir.AttrValue)
	if !ok {
		m.fail(op, "missing integer value")
	}
	for i := range v.I {
		v.I[i] = wrap(t.Elem, x)
	}
	return v
}

func (m *machine) elementwise(op *ir.Op, l int) *Value {
	t := m.fn.Type(op.Results[0])
	out := NewValue(t)
	args := make([]*Value, op.NumOperands())
	for i := range args {
		args[i] = m.get(op.Operand(i), l)
	}
	// Scalars are splat over vector operands.
	elem := func(v *Value, i int) int {
		if v.Len() == 1 {
			return 0
		}
		return i
	}
	for i := range out.Len() {
		switch {
		case op.Name == ir.OpNegF:
			out.F[i] = round(t.Elem, -args[0].F[elem(args[0], i)])
		case op.Name == ir.OpSelect:
			if args[0].I[elem(args[0], i)] != 0 {
				out.copyElem(i, args[1], elem(args[1], i))
			} else {
				out.copyElem(i, args[2], elem(args[2], i))
			}
		case ir.IsComparison(op.Name):
			a, b := args[0].At(elem(args[0], i)), args[1].At(elem(args[1], i))
			out.I[i] = boolInt(compare(op.Name, a, b))
		case t.Elem.IsFloat():
			x, ok := binaryFloat(op.Name, args[0].F[elem(args[0], i)], args[1].F[elem(args[1], i)])
			if !ok {
				m.fail(op, "not a float operation")
			}
			out.F[i] = round(t.Elem, x)
		default:
			x, ok := binaryInt(op.Name, args[0].I[elem(args[0], i)], args[1].I[elem(args[1], i)])
			if !ok {
				m.fail(op, "not an integer operation")
			}
			out.I[i] = wrap(t.Elem, x)
		}
	}
	return out
}

var reductionOps = map[string][2]string{
	"add": {ir.OpAddF, ir.OpAddI},
	"mul": {ir.OpMulF, ir.OpMulI},
	"min": {ir.OpMinF, ir.OpMinSI},
	"max": {ir.OpMaxF, ir.OpMaxSI},
	"and": {"", ir.OpAndI},
	"or":  {"", ir.OpOrI},
	"xor": {"", ir.OpXorI},
}

// reduction folds the elements of src in order.
func (m *machine) reduction(op *ir.Op, src *Value) *Value {
	t := m.fn.Type(op.Results[0])
	ops, ok := reductionOps[op.Attrs.Str(ir.AttrKind)]
	if !ok {
		m.fail(op, "unknown reduction kind %q", op.Attrs.Str(ir.AttrKind))
	}
	out := NewValue(t)
	if t.Elem.IsFloat() {
		if ops[0] == "" {
			m.fail(op, "%s reduction over floats", op.Attrs.Str(ir.AttrKind))
		}
		acc := src.F[0]
		for _, x := range src.F[1:] {
			acc, _ = binaryFloat(ops[0], acc, x)
			acc = round(t.Elem, acc)
		}
		out.F[0] = acc
		return out
	}
	acc := src.I[0]
	for _, x := range src.I[1:] {
		acc, _ = binaryInt(ops[1], acc, x)
		acc = wrap(t.Elem, acc)
	}
	out.I[0] = acc
	return out
}

// broadcast splats a scalar, or replicates a vector along leading and unit
// dimensions, to type t.
func broadcast(src *Value, t ir.Type) *Value {
	out := NewValue(t)
	if src.Type.IsScalar() {
		for i := range out.Len() {
			out.copyElem(i, src, 0)
		}
		return out
	}
	lead := t.Rank() - src.Type.Rank()
	for i := range out.Len() {
		idx := unravel(int64(i), t.Shape)[lead:]
		for d := range idx {
			if src.Type.Dim(d) == 1 {
				idx[d] = 0
			}
		}
		j, _ := linear(idx, src.Type.Shape)
		out.copyElem(i, src, int(j))
	}
	return out
}

func (m *machine) extract(op *ir.Op, src *Value) *Value {
	pos, _ := op.Attrs.Ints(ir.AttrPosition)
	t := m.fn.Type(op.Results[0])
	out := NewValue(t)
	idx := make([]int64, src.Type.Rank())
	copy(idx, pos)
	base, ok := linear(idx, src.Type.Shape)
	if !ok || int(base)+out.Len() > src.Len() {
		m.fail(op, "position %v out of bounds for %s", pos, src.Type)
	}
	for i := range out.Len() {
		out.copyElem(i, src, int(base)+i)
	}
	return out
}

// indices returns the index operands of op starting at operand first.
func (m *machine) indices(op *ir.Op, first, n, l int) []int64 {
	idx := make([]int64, n)
	for i := range idx {
		idx[i] = m.get(op.Operand(first+i), l).I[0]
	}
	return idx
}

// transferElems calls f with the memref position of every element of a
// transfer, reporting false for out-of-bounds and masked-off elements.
func (m *machine) transferElems(op *ir.Op, l int, f func(i int, pos int64, ok bool)) {
	tr := m.fn.DecodeTransfer(op.ID)
	mem := m.get(tr.Memory, l)
	base := m.indices(op, tr.IndexOperand, len(tr.Indices), l)
	var mask *Value
	if tr.Mask.IsValid() {
		mask = m.get(tr.Mask, l)
	}
	for i := range int(tr.VectorType.NumElements()) {
		iv := unravel(int64(i), tr.VectorType.Shape)
		idx := append([]int64(nil), base...)
		for d, p := range tr.Permutation {
			if p >= 0 {
				idx[p] += iv[d]
			}
		}
		pos, ok := linear(idx, mem.Type.Shape)
		if mask != nil && mask.I[i] == 0 {
			ok = false
		}
		f(i, pos, ok)
	}
}

func (m *machine) transferRead(op *ir.Op, l int) *Value {
	tr := m.fn.DecodeTransfer(op.ID)
	mem := m.get(tr.Memory, l)
	out := NewValue(tr.VectorType)
	m.transferElems(op, l, func(i int, pos int64, ok bool) {
		if ok {
			out.copyElem(i, mem, int(pos))
		}
	})
	return out
}

func (m *machine) transferWrite(op *ir.Op, l int) {
	tr := m.fn.DecodeTransfer(op.ID)
	mem := m.get(tr.Memory, l)
	src := m.get(tr.Vector, l)
	m.transferElems(op, l, func(i int, pos int64, ok bool) {
		if ok {
			mem.copyElem(int(pos), src, i)
		}
	})
}

// load reads a scalar, or a vector of the memref's rank, at the given
// indices.
func (m *machine) load(op *ir.Op, l int) *Value {
	mem := m.get(op.Operand(0), l)
	base := m.indices(op, 1, mem.Type.Rank(), l)
	t := m.fn.Type(op.Results[0])
	out := NewValue(t)
	for i := range out.Len() {
		idx := append([]int64(nil), base...)
		if t.IsVector() {
			lead := len(idx) - t.Rank()
			for d, x := range unravel(int64(i), t.Shape) {
				idx[lead+d] += x
			}
		}
		pos, ok := linear(idx, mem.Type.Shape)
		if !ok {
			m.fail(op, "load at %v out of bounds for %s", idx, mem.Type)
		}
		out.copyElem(i, mem, int(pos))
	}
	return out
}

func (m *machine) store(op *ir.Op, l int) {
	src := m.get(op.Operand(0), l)
	mem := m.get(op.Operand(1), l)
	base := m.indices(op, 2, mem.Type.Rank(), l)
	for i := range src.Len() {
		idx := append([]int64(nil), base...)
		if src.Type.IsVector() {
			lead := len(idx) - src.Type.Rank()
			for d, x := range unravel(int64(i), src.Type.Shape) {
				idx[lead+d] += x
			}
		}
		pos, ok := linear(idx, mem.Type.Shape)
		if !ok {
			m.fail(op, "store at %v out of bounds for %s", idx, mem.Type)
		}
		mem.copyElem(int(pos), src, i)
	}
}
