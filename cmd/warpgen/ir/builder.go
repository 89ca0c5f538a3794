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

import "fmt"

// Builder creates operations at an insertion point. New operations are
// inserted before the anchor operation, or appended to the block when there
// is no anchor, so consecutive Create calls keep their order.
type Builder struct {
	fn     *Func
	block  BlockID
	before OpID
}

// BuilderOption configures the Builder.
type BuilderOption func(*Builder)

// AtEndOf places the insertion point at the end of block b.
func AtEndOf(b BlockID) BuilderOption {
	return func(bld *Builder) {
		bld.SetInsertionPointToEnd(b)
	}
}

// Before places the insertion point right before op.
func Before(op OpID) BuilderOption {
	return func(bld *Builder) {
		bld.SetInsertionPointBefore(op)
	}
}

// NewBuilder creates a builder for fn. Without options it appends to the
// function body.
func NewBuilder(fn *Func, opts ...BuilderOption) *Builder {
	b := &Builder{fn: fn, block: fn.Body}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Func returns the function being built.
func (b *Builder) Func() *Func { return b.fn }

// SetInsertionPointBefore inserts subsequent operations right before op.
func (b *Builder) SetInsertionPointBefore(op OpID) {
	b.block = b.fn.Op(op).Parent
	b.before = op
}

// SetInsertionPointAfter inserts subsequent operations right after op.
func (b *Builder) SetInsertionPointAfter(op OpID) {
	b.block = b.fn.Op(op).Parent
	b.before = b.fn.Next(op)
}

// SetInsertionPointToStart inserts subsequent operations at the start of blk.
func (b *Builder) SetInsertionPointToStart(blk BlockID) {
	b.block = blk
	b.before = NoOp
	if ops := b.fn.Block(blk).Ops; len(ops) > 0 {
		b.before = ops[0]
	}
}

// SetInsertionPointToEnd appends subsequent operations to blk.
func (b *Builder) SetInsertionPointToEnd(blk BlockID) {
	b.block = blk
	b.before = NoOp
}

// Insert places a detached op at the insertion point.
func (b *Builder) Insert(op OpID) OpID {
	b.fn.InsertOp(op, b.block, b.before)
	return op
}

// Create builds an operation at the insertion point and returns it.
func (b *Builder) Create(name string, operands []ValueID, resultTypes []Type, attrs Attrs) OpID {
	return b.Insert(b.fn.NewOp(name, operands, resultTypes, attrs))
}

// Create1 builds a single-result operation and returns its result.
func (b *Builder) Create1(name string, t Type, attrs Attrs, operands ...ValueID) ValueID {
	op := b.Create(name, operands, []Type{t}, attrs)
	return b.fn.Op(op).Results[0]
}

// Constant creates a scalar (or splat vector) constant.
func (b *Builder) Constant(t Type, value any) ValueID {
	switch v := value.(type) {
	case int:
		value = int64(v)
	case float32:
		value = float64(v)
	}
	return b.Create1(OpConstant, t, Attrs{AttrValue: value})
}

// Index creates an index constant.
func (b *Builder) Index(v int64) ValueID {
	return b.Constant(Scalar(Index), v)
}

// Binary creates a two-operand elementwise operation whose result has the
// type of lhs (i1 for comparisons).
func (b *Builder) Binary(name string, lhs, rhs ValueID) ValueID {
	t := b.fn.Type(lhs)
	if IsComparison(name) {
		t = Type{Kind: t.Kind, Elem: I1, Shape: t.Shape}
	}
	return b.Create1(name, t, nil, lhs, rhs)
}

// Shuffle creates a cross-lane shuffle of a scalar value.
func (b *Builder) Shuffle(v ValueID, mode string, offset, width int64) ValueID {
	return b.Create1(OpShuffle, b.fn.Type(v), Attrs{AttrMode: mode, AttrOffset: offset, AttrWidth: width}, v)
}

// Extract creates an extraction at a static position.
func (b *Builder) Extract(v ValueID, position ...int64) ValueID {
	t := b.fn.Type(v)
	var rt Type
	if len(position) == t.Rank() {
		rt = t.ElementType()
	} else {
		rt = Vector(t.Elem, t.Shape[len(position):]...)
	}
	return b.Create1(OpExtract, rt, Attrs{AttrPosition: append([]int64(nil), position...)}, v)
}

// ExtractSlice creates an extraction of the width elements of the 1-D
// vector v starting at offset.
func (b *Builder) ExtractSlice(v ValueID, offset, width int64) ValueID {
	t := b.fn.Type(v)
	return b.Create1(OpExtract, Vector(t.Elem, width), Attrs{AttrPosition: []int64{offset}}, v)
}

// Broadcast creates a broadcast of src to type t.
func (b *Builder) Broadcast(src ValueID, t Type) ValueID {
	return b.Create1(OpBroadcast, t, nil, src)
}

// Yield creates a region terminator.
func (b *Builder) Yield(values ...ValueID) OpID {
	return b.Create(OpYield, values, nil, nil)
}

// Return creates the function terminator.
func (b *Builder) Return(values ...ValueID) OpID {
	return b.Create(OpReturn, values, nil, nil)
}

// Warp creates a warp region with the given lane id, warp size, captured
// arguments and result types. The body block gets one argument per captured
// value, typed by argTypes (the full-width types); it is left empty.
func (b *Builder) Warp(laneID ValueID, warpSize int64, args []ValueID, argTypes []Type, resultTypes []Type) (OpID, BlockID) {
	if len(args) != len(argTypes) {
		panic(fmt.Sprintf("ir: warp has %d captured args but %d argument types", len(args), len(argTypes)))
	}
	operands := append([]ValueID{laneID}, args...)
	op := b.Create(OpWarp, operands, resultTypes, Attrs{AttrWarpSize: warpSize})
	body := b.fn.AddRegion(op, argTypes...)
	return op, body
}

// For creates a counted loop with the given bounds and loop-carried initial
// values. The body block has the induction variable followed by one argument
// per carried value; it is left empty.
func (b *Builder) For(lb, ub, step ValueID, inits []ValueID) (OpID, BlockID) {
	types := make([]Type, len(inits))
	for i, v := range inits {
		types[i] = b.fn.Type(v)
	}
	operands := append([]ValueID{lb, ub, step}, inits...)
	op := b.Create(OpFor, operands, types, nil)
	body := b.fn.AddRegion(op, append([]Type{Scalar(Index)}, types...)...)
	return op, body
}

// If creates a conditional without results; the then block is left empty.
func (b *Builder) If(cond ValueID) (OpID, BlockID) {
	op := b.Create(OpIf, []ValueID{cond}, nil, nil)
	return op, b.fn.AddRegion(op)
}

// Clone copies op (with its regions) to the insertion point, remapping
// operands through m and recording the copies of results and block arguments
// in m.
func (b *Builder) Clone(op OpID, m Mapping) OpID {
	f := b.fn
	src := f.Op(op)
	operands := make([]ValueID, len(src.operands))
	for i, v := range src.operands {
		operands[i] = m.Lookup(v)
	}
	types := make([]Type, len(src.Results))
	for i, r := range src.Results {
		types[i] = f.Type(r)
	}
	id := b.Create(src.Name, operands, types, src.Attrs.Clone())
	for i, r := range src.Results {
		m[r] = f.Op(id).Results[i]
	}
	for _, r := range src.Regions {
		srcBlock := f.Block(r)
		argTypes := make([]Type, len(srcBlock.Args))
		for i, a := range srcBlock.Args {
			argTypes[i] = f.Type(a)
		}
		nb := f.AddRegion(id, argTypes...)
		for i, a := range srcBlock.Args {
			m[a] = f.Block(nb).Args[i]
		}
		inner := &Builder{fn: f, block: nb}
		for _, innerOp := range srcBlock.Ops {
			inner.Clone(innerOp, m)
		}
	}
	return id
}
