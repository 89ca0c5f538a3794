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
	"github.com/ajroetker/warpdist/cmd/warpgen/ir"
)

// shuffle exchanges a scalar between lanes. Lanes are grouped in segments
// of width lanes; a lane whose source falls outside its segment, or on an
// inactive lane, keeps its own value.
func (m *machine) shuffle(op *ir.Op, mask []bool) {
	mode := op.Attrs.Str(ir.AttrMode)
	offset, _ := op.Attrs.Int(ir.AttrOffset)
	width, _ := op.Attrs.Int(ir.AttrWidth)
	if width <= 0 {
		width = int64(m.lanes)
	}
	src := op.Operand(0)
	m.eachLane(mask, func(l int) {
		seg := int64(l) / width * width
		rel := int64(l) - seg
		var from int64
		switch mode {
		case ir.ShuffleDown:
			from = rel + offset
		case ir.ShuffleUp:
			from = rel - offset
		case ir.ShuffleXor:
			from = rel ^ offset
		case ir.ShuffleIdx:
			from = offset
		default:
			m.fail(op, "unknown shuffle mode %q", mode)
		}
		s := int(seg + from)
		if from < 0 || from >= width || s >= m.lanes || !mask[s] {
			s = l
		}
		m.set(op.Results[0], l, m.get(src, s))
	})
}

// uniformIndex returns the value of an index operand that must agree on
// every active lane.
func (m *machine) uniformIndex(op *ir.Op, v ir.ValueID, mask []bool) int64 {
	first := -1
	var x int64
	m.eachLane(mask, func(l int) {
		y := m.get(v, l).I[0]
		if first < 0 {
			first, x = l, y
		} else if y != x {
			m.fail(op, "loop bound differs between lane %d (%d) and lane %d (%d)", first, x, l, y)
		}
	})
	return x
}

func anyActive(mask []bool) bool {
	for _, a := range mask {
		if a {
			return true
		}
	}
	return false
}

func (m *machine) loop(op *ir.Op, mask []bool) {
	if !anyActive(mask) {
		return
	}
	lb := m.uniformIndex(op, op.Operand(0), mask)
	ub := m.uniformIndex(op, op.Operand(1), mask)
	step := m.uniformIndex(op, op.Operand(2), mask)
	if step <= 0 {
		m.fail(op, "non-positive step %d", step)
	}
	body := m.fn.Block(op.Region(0))
	iters := make([][]*Value, len(op.Results))
	for j := range iters {
		iters[j] = make([]*Value, m.lanes)
		m.eachLane(mask, func(l int) { iters[j][l] = m.get(op.Operand(3+j), l) })
	}
	for iv := lb; iv < ub; iv += step {
		m.eachLane(mask, func(l int) {
			m.set(body.Args[0], l, Int(ir.Scalar(ir.Index), iv))
			for j := range iters {
				m.set(body.Args[1+j], l, iters[j][l])
			}
		})
		yielded := m.block(body.ID, mask)
		for j, y := range yielded {
			m.eachLane(mask, func(l int) { iters[j][l] = m.get(y, l) })
		}
	}
	for j, res := range op.Results {
		m.eachLane(mask, func(l int) { m.set(res, l, iters[j][l]) })
	}
}

func (m *machine) cond(op *ir.Op, mask []bool) {
	inner := make([]bool, m.lanes)
	m.eachLane(mask, func(l int) {
		inner[l] = m.get(op.Operand(0), l).I[0] != 0
	})
	if anyActive(inner) {
		m.block(op.Region(0), inner)
	}
}

// warp runs a warp region: captured arguments are gathered to their
// full-width types, lane 0 executes the body, and every lane receives its
// slice of each yielded value.
func (m *machine) warp(op *ir.Op, mask []bool) {
	fn := m.fn
	ws, _ := op.Attrs.Int(ir.AttrWarpSize)
	if int(ws) != m.lanes {
		m.fail(op, "warp size %d on a %d-lane machine", ws, m.lanes)
	}
	for l, active := range mask {
		if !active {
			m.fail(op, "warp region entered with lane %d inactive", l)
		}
	}
	body := fn.Block(op.Region(0))
	for i, arg := range op.Operands()[1:] {
		m.set(body.Args[i], 0, m.gather(op, arg, fn.Type(body.Args[i])))
	}
	lane0 := make([]bool, m.lanes)
	lane0[0] = true
	yielded := m.block(body.ID, lane0)
	for i, y := range yielded {
		full := m.get(y, 0)
		dist := fn.Type(op.Results[i])
		m.eachLane(mask, func(l int) {
			m.set(op.Results[i], l, m.slice(op, full, dist, l))
		})
	}
}

// distribution returns the distributed dimension of full into dist and the
// number of lanes holding distinct slices, or -1 when dist is full.
func (m *machine) distribution(op *ir.Op, full, dist ir.Type) (dim int, parts int64) {
	dims, ok := ir.DistributedDims(full, dist)
	if !ok || len(dims) > 1 {
		m.fail(op, "%s is not a distribution of %s", dist, full)
	}
	if len(dims) == 0 {
		return -1, 1
	}
	d := dims[0]
	parts = full.Dim(d) / dist.Dim(d)
	if parts > int64(m.lanes) {
		m.fail(op, "%s needs %d lanes to cover %s", dist, parts, full)
	}
	return d, parts
}

// gather assembles the full-width value of a captured argument from the
// per-lane slices.
func (m *machine) gather(op *ir.Op, arg ir.ValueID, full ir.Type) *Value {
	dist := m.fn.Type(arg)
	d, parts := m.distribution(op, full, dist)
	if d < 0 {
		return m.get(arg, 0)
	}
	out := NewValue(full)
	for j := range parts {
		src := m.get(arg, int(j))
		for e := range src.Len() {
			idx := unravel(int64(e), dist.Shape)
			idx[d] += j * dist.Dim(d)
			pos, _ := linear(idx, full.Shape)
			out.copyElem(int(pos), src, e)
		}
	}
	return out
}

// slice returns lane l's part of a full-width value. When fewer slices than
// lanes exist, lane l receives slice l mod parts.
func (m *machine) slice(op *ir.Op, full *Value, dist ir.Type, l int) *Value {
	d, parts := m.distribution(op, full.Type, dist)
	if d < 0 {
		return full
	}
	j := int64(l) % parts
	out := NewValue(dist)
	for e := range out.Len() {
		idx := unravel(int64(e), dist.Shape)
		idx[d] += j * dist.Dim(d)
		pos, _ := linear(idx, full.Type.Shape)
		out.copyElem(e, full, int(pos))
	}
	return out
}
