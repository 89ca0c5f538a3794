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
	"strings"

	"github.com/pkg/errors"
)

// DistributedDims compares the full-width type of a value with its per-lane
// type and returns the dimensions that were subdivided. Identical types
// return no dimensions (broadcast). ok is false when dist is not a valid
// subdivision of full: different kind, element type or rank, or a dimension
// that does not divide the full extent.
func DistributedDims(full, dist Type) (dims []int, ok bool) {
	if full.Kind != dist.Kind || full.Elem != dist.Elem || full.Rank() != dist.Rank() {
		return nil, false
	}
	for i := range full.Shape {
		if full.Shape[i] == dist.Shape[i] {
			continue
		}
		if dist.Shape[i] <= 0 || full.Shape[i]%dist.Shape[i] != 0 {
			return nil, false
		}
		dims = append(dims, i)
	}
	return dims, true
}

// Verify checks the structural invariants of fn: consistent use lists,
// operands visible from their users, well-formed terminators, and the
// arity and typing rules of warp, for and if regions. All problems found are
// reported in a single error.
func Verify(fn *Func) error {
	v := &verifier{fn: fn}
	v.block(fn.Body, OpKindReturn)
	if len(v.problems) == 0 {
		return nil
	}
	return errors.Errorf("verify @%s:\n  %s", fn.Name, strings.Join(v.problems, "\n  "))
}

type verifier struct {
	fn       *Func
	problems []string
}

func (v *verifier) report(op *Op, format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf("op %d (%s): %s", op.ID, op.Name, fmt.Sprintf(format, args...)))
}

func (v *verifier) block(b BlockID, terminator OpKind) {
	fn := v.fn
	ops := fn.Block(b).Ops
	if len(ops) == 0 {
		v.problems = append(v.problems, fmt.Sprintf("block %d is empty", b))
		return
	}
	for i, id := range ops {
		op := fn.Op(id)
		if op.erased {
			v.report(op, "erased op still linked in block %d", b)
			continue
		}
		if op.Parent != b {
			v.report(op, "parent is block %d, listed in block %d", op.Parent, b)
		}
		last := i == len(ops)-1
		switch {
		case last && op.Kind != terminator:
			v.report(op, "block %d must end with %s", b, terminator)
		case !last && op.Kind.IsTerminator():
			v.report(op, "terminator in the middle of block %d", b)
		}
		v.op(op)
	}
}

func (v *verifier) op(op *Op) {
	fn := v.fn
	for i, operand := range op.operands {
		if !operand.IsValid() {
			v.report(op, "operand %d is unset", i)
			continue
		}
		if !slices.Contains(fn.values[operand].uses, Use{Op: op.ID, Index: i}) {
			v.report(op, "operand %d missing from the use list of value %d", i, operand)
		}
		if !v.visible(operand, op) {
			v.report(op, "operand %d (value %d) is not visible at its use", i, operand)
		}
	}
	for _, r := range op.Results {
		for _, u := range fn.values[r].uses {
			user := fn.Op(u.Op)
			if user.erased || u.Index >= len(user.operands) || user.operands[u.Index] != r {
				v.report(op, "result %d has a stale use %v", r, u)
			}
		}
	}

	switch op.Kind {
	case OpKindWarp:
		v.warp(op)
	case OpKindFor:
		v.forOp(op)
	case OpKindIf:
		if len(op.operands) != 1 || fn.Type(op.operands[0]).Elem != I1 {
			v.report(op, "condition must be a single i1")
		}
		if len(op.Regions) != 1 {
			v.report(op, "expected one region")
			return
		}
		v.block(op.Regions[0], OpKindYield)
	case OpKindReduction:
		if len(op.operands) != 1 || !fn.Type(op.operands[0]).IsVector() {
			v.report(op, "reduction operand must be a vector")
		} else if len(op.Results) != 1 || !fn.Type(op.Results[0]).Equal(fn.Type(op.operands[0]).ElementType()) {
			v.report(op, "reduction result must be the element type of its operand")
		}
	case OpKindTransferRead, OpKindTransferWrite:
		v.transfer(op)
	default:
		if len(op.Regions) != 0 {
			v.report(op, "unexpected region on %s", op.Kind)
		}
	}
}

// visible reports whether value x can be used by op: it must be defined in
// op's block (earlier) or in a block enclosing it.
func (v *verifier) visible(x ValueID, op *Op) bool {
	fn := v.fn
	defBlock := fn.DefiningBlock(x)
	def := fn.DefiningOp(x)
	user := op.ID
	b := op.Parent
	for b.IsValid() {
		if b == defBlock {
			if !def.IsValid() {
				return true
			}
			ops := fn.Block(b).Ops
			return slices.Index(ops, def) < slices.Index(ops, user)
		}
		parent := fn.Block(b).Parent
		if !parent.IsValid() {
			return false
		}
		user = parent
		b = fn.Op(parent).Parent
	}
	return false
}

func (v *verifier) warp(op *Op) {
	fn := v.fn
	ws, ok := op.Attrs.Int(AttrWarpSize)
	if !ok || ws <= 0 {
		v.report(op, "missing or invalid warp_size")
	}
	if len(op.operands) == 0 || fn.Type(op.operands[0]).Elem != Index || !fn.Type(op.operands[0]).IsScalar() {
		v.report(op, "first operand must be the index lane id")
		return
	}
	if len(op.Regions) != 1 {
		v.report(op, "expected one region")
		return
	}
	body := fn.Block(op.Regions[0])
	args := op.operands[1:]
	if len(body.Args) != len(args) {
		v.report(op, "%d captured args but %d block arguments", len(args), len(body.Args))
	} else {
		for i, a := range args {
			v.distribution(op, "captured arg", i, fn.Type(body.Args[i]), fn.Type(a))
		}
	}
	v.block(op.Regions[0], OpKindYield)
	term := fn.Terminator(op.Regions[0])
	if !term.IsValid() || fn.Op(term).Kind != OpKindYield {
		return
	}
	yield := fn.Op(term)
	if len(yield.operands) != len(op.Results) {
		v.report(op, "%d results but the yield has %d operands", len(op.Results), len(yield.operands))
		return
	}
	for i, y := range yield.operands {
		if y.IsValid() {
			v.distribution(op, "result", i, fn.Type(y), fn.Type(op.Results[i]))
		}
	}
}

func (v *verifier) distribution(op *Op, what string, i int, full, dist Type) {
	dims, ok := DistributedDims(full, dist)
	switch {
	case !ok:
		v.report(op, "%s %d: %s is not a distribution of %s", what, i, dist, full)
	case len(dims) > 1:
		v.report(op, "%s %d: %s distributes more than one dimension of %s", what, i, dist, full)
	}
}

func (v *verifier) forOp(op *Op) {
	fn := v.fn
	if len(op.operands) < 3 {
		v.report(op, "expected lower bound, upper bound and step")
		return
	}
	inits := op.operands[3:]
	if len(inits) != len(op.Results) {
		v.report(op, "%d carried values but %d results", len(inits), len(op.Results))
	}
	if len(op.Regions) != 1 {
		v.report(op, "expected one region")
		return
	}
	body := fn.Block(op.Regions[0])
	if len(body.Args) != len(inits)+1 {
		v.report(op, "body has %d arguments, want %d", len(body.Args), len(inits)+1)
	}
	v.block(op.Regions[0], OpKindYield)
	term := fn.Terminator(op.Regions[0])
	if !term.IsValid() {
		return
	}
	yield := fn.Op(term)
	if yield.Kind != OpKindYield || len(yield.operands) != len(op.Results) {
		v.report(op, "yield must return %d values", len(op.Results))
		return
	}
	for i, y := range yield.operands {
		if y.IsValid() && !fn.Type(y).Equal(fn.Type(op.Results[i])) {
			v.report(op, "yield %d has type %s, want %s", i, fn.Type(y), fn.Type(op.Results[i]))
		}
	}
}

func (v *verifier) transfer(op *Op) {
	fn := v.fn
	mem := 0
	if op.Kind == OpKindTransferWrite {
		mem = 1
	}
	if len(op.operands) <= mem {
		v.report(op, "missing memref operand")
		return
	}
	mt := fn.Type(op.operands[mem])
	if !mt.IsMemRef() {
		v.report(op, "operand %d must be a memref, got %s", mem, mt)
		return
	}
	n := len(op.operands) - mem - 1
	if n != mt.Rank() && n != mt.Rank()+1 {
		v.report(op, "expected %d indices (plus an optional mask), got %d operands", mt.Rank(), n)
	}
}
