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

import (
	"fmt"
	"slices"
)

// OpID identifies an operation within a Func. Zero is the invalid handle.
type OpID int32

// ValueID identifies an SSA value within a Func. Zero is the invalid handle.
type ValueID int32

// BlockID identifies a block within a Func. Zero is the invalid handle.
type BlockID int32

// Invalid handle constants.
const (
	NoOp    OpID    = 0
	NoValue ValueID = 0
	NoBlock BlockID = 0
)

// IsValid reports whether the handle is not the zero sentinel.
func (id OpID) IsValid() bool    { return id != NoOp }
func (id ValueID) IsValid() bool { return id != NoValue }
func (id BlockID) IsValid() bool { return id != NoBlock }

// Use is one operand slot referring to a value.
type Use struct {
	Op    OpID
	Index int
}

// valueInfo is the arena record of a value. A value is either the result of
// an operation (def set) or an argument of a block (owner set).
type valueInfo struct {
	typ   Type
	def   OpID
	owner BlockID
	index int
	uses  []Use
}

// Op is a single operation. Operands are only mutated through Func so that
// use lists stay consistent; Results never change after creation.
type Op struct {
	// ID is the stable handle of this operation.
	ID OpID

	// Kind categorizes this operation for pattern matching.
	Kind OpKind

	// Name is the textual operation name (e.g. "addf", "warp").
	Name string

	// Results are the values defined by this operation.
	Results []ValueID

	// Attrs holds static attributes (warp_size, reduction kind, ...).
	Attrs Attrs

	// Regions are the single-block regions owned by this operation.
	Regions []BlockID

	// Parent is the block this operation currently lives in, or NoBlock when
	// detached.
	Parent BlockID

	operands []ValueID
	erased   bool
}

// Operands returns the operand list. The slice must not be modified.
func (op *Op) Operands() []ValueID { return op.operands }

// Operand returns operand i.
func (op *Op) Operand(i int) ValueID { return op.operands[i] }

// NumOperands returns the number of operands.
func (op *Op) NumOperands() int { return len(op.operands) }

// Result returns result i.
func (op *Op) Result(i int) ValueID { return op.Results[i] }

// Erased reports whether the operation has been erased.
func (op *Op) Erased() bool { return op.erased }

// Region returns the block of region i.
func (op *Op) Region(i int) BlockID { return op.Regions[i] }

// Block is an ordered list of operations with typed arguments.
type Block struct {
	// ID is the stable handle of this block.
	ID BlockID

	// Args are the block arguments.
	Args []ValueID

	// Ops is the operation order; the last one is the terminator.
	Ops []OpID

	// Parent is the operation owning this block, or NoOp for a function body.
	Parent OpID
}

// Func is an arena of operations, blocks and values. Handles are indices into
// the arena and stay valid for the life of the Func; erased operations keep
// their slot.
type Func struct {
	// Name is the function name.
	Name string

	// Body is the top-level block; its arguments are the parameters.
	Body BlockID

	ops    []*Op
	values []*valueInfo
	blocks []*Block
}

// NewFunc creates an empty function with the given parameter types.
func NewFunc(name string, params ...Type) *Func {
	f := &Func{
		Name:   name,
		ops:    []*Op{nil},
		values: []*valueInfo{nil},
		blocks: []*Block{nil},
	}
	f.Body = f.NewBlock(NoOp, params...)
	return f
}

// Params returns the function parameters.
func (f *Func) Params() []ValueID { return f.blocks[f.Body].Args }

// Op returns the operation with the given handle.
func (f *Func) Op(id OpID) *Op { return f.ops[id] }

// Block returns the block with the given handle.
func (f *Func) Block(id BlockID) *Block { return f.blocks[id] }

// Type returns the type of a value.
func (f *Func) Type(v ValueID) Type { return f.values[v].typ }

// NumOps returns the size of the operation arena, including erased slots.
func (f *Func) NumOps() int { return len(f.ops) - 1 }

// NewBlock creates a block owned by parent with arguments of the given types.
// The block is not attached to parent's region list.
func (f *Func) NewBlock(parent OpID, argTypes ...Type) BlockID {
	id := BlockID(len(f.blocks))
	blk := &Block{ID: id, Parent: parent}
	f.blocks = append(f.blocks, blk)
	for _, t := range argTypes {
		f.AddBlockArg(id, t)
	}
	return id
}

// AddBlockArg appends an argument of type t to block b.
func (f *Func) AddBlockArg(b BlockID, t Type) ValueID {
	blk := f.blocks[b]
	v := f.newValue(&valueInfo{typ: t, owner: b, index: len(blk.Args)})
	blk.Args = append(blk.Args, v)
	return v
}

func (f *Func) newValue(info *valueInfo) ValueID {
	id := ValueID(len(f.values))
	f.values = append(f.values, info)
	return id
}

// NewOp creates a detached operation. The caller inserts it with InsertOp
// (usually through a Builder).
func (f *Func) NewOp(name string, operands []ValueID, resultTypes []Type, attrs Attrs) OpID {
	id := OpID(len(f.ops))
	op := &Op{
		ID:    id,
		Kind:  Classify(name),
		Name:  name,
		Attrs: attrs,
	}
	f.ops = append(f.ops, op)
	for i, t := range resultTypes {
		op.Results = append(op.Results, f.newValue(&valueInfo{typ: t, def: id, index: i}))
	}
	f.SetOperands(id, operands)
	return id
}

// AddRegion attaches a new block with the given argument types to op.
func (f *Func) AddRegion(op OpID, argTypes ...Type) BlockID {
	b := f.NewBlock(op, argTypes...)
	f.ops[op].Regions = append(f.ops[op].Regions, b)
	return b
}

// InsertOp places a detached operation into block b before op `before`
// (NoOp appends at the end).
func (f *Func) InsertOp(op OpID, b BlockID, before OpID) {
	o := f.ops[op]
	if o.Parent.IsValid() {
		panic(fmt.Sprintf("ir: op %d is already attached to block %d", op, o.Parent))
	}
	blk := f.blocks[b]
	pos := len(blk.Ops)
	if before.IsValid() {
		pos = slices.Index(blk.Ops, before)
		if pos < 0 {
			panic(fmt.Sprintf("ir: op %d is not in block %d", before, b))
		}
	}
	blk.Ops = slices.Insert(blk.Ops, pos, op)
	o.Parent = b
}

// detach removes op from its parent block without erasing it.
func (f *Func) detach(op OpID) {
	o := f.ops[op]
	if !o.Parent.IsValid() {
		return
	}
	blk := f.blocks[o.Parent]
	if i := slices.Index(blk.Ops, op); i >= 0 {
		blk.Ops = slices.Delete(blk.Ops, i, i+1)
	}
	o.Parent = NoBlock
}

// MoveBefore moves op right before anchor, possibly into another block.
func (f *Func) MoveBefore(op, anchor OpID) {
	f.detach(op)
	f.InsertOp(op, f.ops[anchor].Parent, anchor)
}

// MoveAfter moves op right after anchor.
func (f *Func) MoveAfter(op, anchor OpID) {
	f.detach(op)
	f.InsertOp(op, f.ops[anchor].Parent, f.Next(anchor))
}

// MoveToEnd moves op to the end of block b.
func (f *Func) MoveToEnd(op OpID, b BlockID) {
	f.detach(op)
	f.InsertOp(op, b, NoOp)
}

// Next returns the operation following op in its block, or NoOp.
func (f *Func) Next(op OpID) OpID {
	o := f.ops[op]
	if !o.Parent.IsValid() {
		return NoOp
	}
	ops := f.blocks[o.Parent].Ops
	i := slices.Index(ops, op)
	if i < 0 || i+1 >= len(ops) {
		return NoOp
	}
	return ops[i+1]
}

// Prev returns the operation preceding op in its block, or NoOp.
func (f *Func) Prev(op OpID) OpID {
	o := f.ops[op]
	if !o.Parent.IsValid() {
		return NoOp
	}
	ops := f.blocks[o.Parent].Ops
	i := slices.Index(ops, op)
	if i <= 0 {
		return NoOp
	}
	return ops[i-1]
}

// Terminator returns the last operation of block b, or NoOp if it is empty.
func (f *Func) Terminator(b BlockID) OpID {
	ops := f.blocks[b].Ops
	if len(ops) == 0 {
		return NoOp
	}
	return ops[len(ops)-1]
}

// ---- Operands and uses ----

func (f *Func) addUse(v ValueID, u Use) {
	if !v.IsValid() {
		return
	}
	info := f.values[v]
	info.uses = append(info.uses, u)
}

func (f *Func) removeUse(v ValueID, u Use) {
	if !v.IsValid() {
		return
	}
	info := f.values[v]
	if i := slices.Index(info.uses, u); i >= 0 {
		info.uses = slices.Delete(info.uses, i, i+1)
	}
}

// SetOperand replaces operand i of op with v.
func (f *Func) SetOperand(op OpID, i int, v ValueID) {
	o := f.ops[op]
	u := Use{Op: op, Index: i}
	f.removeUse(o.operands[i], u)
	o.operands[i] = v
	f.addUse(v, u)
}

// SetOperands replaces the whole operand list of op.
func (f *Func) SetOperands(op OpID, vs []ValueID) {
	o := f.ops[op]
	for i, old := range o.operands {
		f.removeUse(old, Use{Op: op, Index: i})
	}
	o.operands = slices.Clone(vs)
	for i, v := range o.operands {
		f.addUse(v, Use{Op: op, Index: i})
	}
}

// Uses returns a copy of the use list of v.
func (f *Func) Uses(v ValueID) []Use {
	return slices.Clone(f.values[v].uses)
}

// HasUses reports whether v has at least one use.
func (f *Func) HasUses(v ValueID) bool {
	return len(f.values[v].uses) > 0
}

// ReplaceAllUsesWith rewrites every use of old to refer to repl.
func (f *Func) ReplaceAllUsesWith(old, repl ValueID) {
	if old == repl {
		return
	}
	f.ReplaceUsesIf(old, repl, func(Use) bool { return true })
}

// ReplaceUsesIf rewrites the uses of old accepted by pred to refer to repl.
func (f *Func) ReplaceUsesIf(old, repl ValueID, pred func(Use) bool) {
	for _, u := range f.Uses(old) {
		if pred(u) {
			f.SetOperand(u.Op, u.Index, repl)
		}
	}
}

// ---- Erasure ----

// dropUses releases every operand use held by op and everything nested in it.
func (f *Func) dropUses(op OpID) {
	o := f.ops[op]
	for i, v := range o.operands {
		f.removeUse(v, Use{Op: op, Index: i})
		o.operands[i] = NoValue
	}
	for _, r := range o.Regions {
		for _, inner := range f.blocks[r].Ops {
			f.dropUses(inner)
		}
	}
}

func (f *Func) markErased(op OpID) {
	o := f.ops[op]
	o.erased = true
	for _, r := range o.Regions {
		for _, inner := range f.blocks[r].Ops {
			f.markErased(inner)
		}
	}
}

// Erase removes op and its regions. Erasing an operation whose results are
// still used is a programming error.
func (f *Func) Erase(op OpID) {
	f.dropUses(op)
	for _, r := range f.ops[op].Results {
		if f.HasUses(r) {
			panic(fmt.Sprintf("ir: erasing op %d (%s) whose result %d still has uses", op, f.ops[op].Name, r))
		}
	}
	f.detach(op)
	f.markErased(op)
}

// TakeRegions moves the regions of src to dst (which must have none).
func (f *Func) TakeRegions(dst, src OpID) {
	d, s := f.ops[dst], f.ops[src]
	if len(d.Regions) != 0 {
		panic(fmt.Sprintf("ir: op %d already owns regions", dst))
	}
	d.Regions, s.Regions = s.Regions, nil
	for _, r := range d.Regions {
		f.blocks[r].Parent = dst
	}
}

// ---- Structural queries ----

// DefiningOp returns the operation producing v, or NoOp for block arguments.
func (f *Func) DefiningOp(v ValueID) OpID { return f.values[v].def }

// ResultIndex returns the position of v in its defining op's results, or in
// its owner block's arguments.
func (f *Func) ResultIndex(v ValueID) int { return f.values[v].index }

// OwnerBlock returns the block declaring v as an argument, or NoBlock.
func (f *Func) OwnerBlock(v ValueID) BlockID { return f.values[v].owner }

// DefiningBlock returns the block in which v becomes available.
func (f *Func) DefiningBlock(v ValueID) BlockID {
	info := f.values[v]
	if info.def.IsValid() {
		return f.ops[info.def].Parent
	}
	return info.owner
}

// IsAncestor reports whether block b is nested (at any depth) inside op.
func (f *Func) IsAncestor(op OpID, b BlockID) bool {
	for b.IsValid() {
		parent := f.blocks[b].Parent
		if parent == op {
			return true
		}
		if !parent.IsValid() {
			return false
		}
		b = f.ops[parent].Parent
	}
	return false
}

// DefinedOutside reports whether v is defined outside the regions of op.
func (f *Func) DefinedOutside(op OpID, v ValueID) bool {
	return !f.IsAncestor(op, f.DefiningBlock(v))
}

// Effect returns the memory effect of op.
func (f *Func) Effect(op OpID) Effect {
	o := f.ops[op]
	switch o.Kind {
	case OpKindTransferWrite, OpKindStore:
		return EffectWrite
	case OpKindTransferRead, OpKindLoad:
		return EffectRead
	case OpKindAlloc:
		return EffectAlloc
	case OpKindFor, OpKindIf, OpKindWarp:
		return EffectRecursive
	case OpKindOpaque:
		if o.Attrs.Str(AttrPure) == "true" {
			return EffectNone
		}
		return EffectWrite
	default:
		return EffectNone
	}
}

// HasSideEffect reports whether op may have an observable effect, which
// forbids reordering other effects across it.
func (f *Func) HasSideEffect(op OpID) bool {
	return f.Effect(op) != EffectNone
}

// IsTriviallyDead reports whether op can be erased: none of its results is
// used and erasing it cannot remove an observable effect. Reads and
// allocations are removable; region-holding ops are removable when their
// bodies are.
func (f *Func) IsTriviallyDead(op OpID) bool {
	o := f.ops[op]
	if o.erased || o.Kind.IsTerminator() {
		return false
	}
	for _, r := range o.Results {
		if f.HasUses(r) {
			return false
		}
	}
	return f.removable(op)
}

func (f *Func) removable(op OpID) bool {
	switch f.Effect(op) {
	case EffectNone, EffectRead, EffectAlloc:
		return true
	case EffectRecursive:
		for _, r := range f.ops[op].Regions {
			for _, inner := range f.blocks[r].Ops {
				if !f.ops[inner].Kind.IsTerminator() && !f.removable(inner) {
					return false
				}
			}
		}
		return true
	default:
		return false
	}
}

// Walk visits every live operation in pre-order. Returning false from visit
// skips the operation's regions.
func (f *Func) Walk(visit func(op *Op) bool) {
	f.WalkBlock(f.Body, visit)
}

// WalkBlock visits the operations of block b in pre-order.
func (f *Func) WalkBlock(b BlockID, visit func(op *Op) bool) {
	for _, id := range slices.Clone(f.blocks[b].Ops) {
		op := f.ops[id]
		if op.erased {
			continue
		}
		if !visit(op) {
			continue
		}
		for _, r := range op.Regions {
			f.WalkBlock(r, visit)
		}
	}
}

// Collect returns the live operations of the given kind in pre-order.
func (f *Func) Collect(kind OpKind) []OpID {
	var ids []OpID
	f.Walk(func(op *Op) bool {
		if op.Kind == kind {
			ids = append(ids, op.ID)
		}
		return true
	})
	return ids
}

// Mapping maps values of a cloned region to their copies.
type Mapping map[ValueID]ValueID

// Lookup returns the mapped value of v, or v itself when unmapped.
func (m Mapping) Lookup(v ValueID) ValueID {
	if r, ok := m[v]; ok {
		return r
	}
	return v
}

// String returns a debug representation of op.
func (op *Op) String() string {
	return fmt.Sprintf("Op{ID:%d Kind:%s Name:%q In:%v Out:%v}", op.ID, op.Kind, op.Name, op.operands, op.Results)
}
