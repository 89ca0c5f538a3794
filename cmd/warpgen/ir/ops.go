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
	"maps"
	"slices"
)

// OpKind categorizes IR operations for pattern matching. The set is closed:
// anything the engine does not recognize is OpKindOpaque, which no sinking
// pattern matches.
type OpKind int

const (
	// OpKindOpaque represents operations the engine knows nothing about.
	// They are treated as side-effecting unless marked pure.
	OpKindOpaque OpKind = iota

	// OpKindConstant represents scalar or splat vector constants.
	OpKindConstant

	// OpKindElementwise represents lane-wise operations with no cross-lane
	// dependency (addf, mulf, maxsi, cmpeq, select, ...).
	OpKindElementwise

	// OpKindApply represents affine index arithmetic: Σ coeffs[i]*operand[i] + offset.
	OpKindApply

	// OpKindReduction represents a full reduction of a vector to a scalar.
	OpKindReduction

	// OpKindTransferRead represents a vector read from memory.
	OpKindTransferRead

	// OpKindTransferWrite represents a vector write to memory.
	OpKindTransferWrite

	// OpKindBroadcast represents a broadcast from a narrower shape (or a scalar).
	OpKindBroadcast

	// OpKindExtract represents extraction of a scalar or sub-vector at a
	// static position. A result of the source's rank is the contiguous
	// slice starting at the position.
	OpKindExtract

	// OpKindShuffle represents a cross-lane register exchange.
	OpKindShuffle

	// OpKindFor represents a counted loop with loop-carried values.
	OpKindFor

	// OpKindIf represents a conditional region without results.
	OpKindIf

	// OpKindWarp represents a warp execution region.
	OpKindWarp

	// OpKindYield terminates warp, for and if regions.
	OpKindYield

	// OpKindReturn terminates a function body.
	OpKindReturn

	// OpKindAlloc represents scratch memory allocation.
	OpKindAlloc

	// OpKindLoad represents a plain load from a buffer at explicit offsets.
	OpKindLoad

	// OpKindStore represents a plain store to a buffer at explicit offsets.
	OpKindStore
)

var opKindNames = [...]string{
	OpKindOpaque:        "Opaque",
	OpKindConstant:      "Constant",
	OpKindElementwise:   "Elementwise",
	OpKindApply:         "Apply",
	OpKindReduction:     "Reduction",
	OpKindTransferRead:  "TransferRead",
	OpKindTransferWrite: "TransferWrite",
	OpKindBroadcast:     "Broadcast",
	OpKindExtract:       "Extract",
	OpKindShuffle:       "Shuffle",
	OpKindFor:           "For",
	OpKindIf:            "If",
	OpKindWarp:          "Warp",
	OpKindYield:         "Yield",
	OpKindReturn:        "Return",
	OpKindAlloc:         "Alloc",
	OpKindLoad:          "Load",
	OpKindStore:         "Store",
}

// String returns a human-readable name for the OpKind.
func (k OpKind) String() string {
	if int(k) >= 0 && int(k) < len(opKindNames) {
		return opKindNames[k]
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// IsTerminator reports whether ops of this kind end a block.
func (k OpKind) IsTerminator() bool {
	return k == OpKindYield || k == OpKindReturn
}

// Op names with a dedicated kind.
const (
	OpConstant      = "constant"
	OpApply         = "apply"
	OpReduction     = "reduction"
	OpTransferRead  = "transfer_read"
	OpTransferWrite = "transfer_write"
	OpBroadcast     = "broadcast"
	OpExtract       = "extract"
	OpShuffle       = "shuffle"
	OpFor           = "for"
	OpIf            = "if"
	OpWarp          = "warp"
	OpYield         = "yield"
	OpReturn        = "return"
	OpAlloc         = "alloc"
	OpLoad          = "load"
	OpStore         = "store"
)

// Elementwise op names.
const (
	OpAddF   = "addf"
	OpSubF   = "subf"
	OpMulF   = "mulf"
	OpDivF   = "divf"
	OpMaxF   = "maxf"
	OpMinF   = "minf"
	OpNegF   = "negf"
	OpAddI   = "addi"
	OpSubI   = "subi"
	OpMulI   = "muli"
	OpMaxSI  = "maxsi"
	OpMinSI  = "minsi"
	OpAndI   = "andi"
	OpOrI    = "ori"
	OpXorI   = "xori"
	OpCmpEq  = "cmpeq"
	OpCmpNe  = "cmpne"
	OpCmpLt  = "cmplt"
	OpSelect = "select"
)

var elementwiseOps = map[string]bool{
	OpAddF: true, OpSubF: true, OpMulF: true, OpDivF: true,
	OpMaxF: true, OpMinF: true, OpNegF: true,
	OpAddI: true, OpSubI: true, OpMulI: true,
	OpMaxSI: true, OpMinSI: true,
	OpAndI: true, OpOrI: true, OpXorI: true,
	OpCmpEq: true, OpCmpNe: true, OpCmpLt: true,
	OpSelect: true,
}

// IsComparison reports whether name is an elementwise comparison producing i1.
func IsComparison(name string) bool {
	return name == OpCmpEq || name == OpCmpNe || name == OpCmpLt
}

// Classify returns the OpKind for an operation name.
func Classify(name string) OpKind {
	if elementwiseOps[name] {
		return OpKindElementwise
	}
	switch name {
	case OpConstant:
		return OpKindConstant
	case OpApply:
		return OpKindApply
	case OpReduction:
		return OpKindReduction
	case OpTransferRead:
		return OpKindTransferRead
	case OpTransferWrite:
		return OpKindTransferWrite
	case OpBroadcast:
		return OpKindBroadcast
	case OpExtract:
		return OpKindExtract
	case OpShuffle:
		return OpKindShuffle
	case OpFor:
		return OpKindFor
	case OpIf:
		return OpKindIf
	case OpWarp:
		return OpKindWarp
	case OpYield:
		return OpKindYield
	case OpReturn:
		return OpKindReturn
	case OpAlloc:
		return OpKindAlloc
	case OpLoad:
		return OpKindLoad
	case OpStore:
		return OpKindStore
	default:
		return OpKindOpaque
	}
}

// Effect describes the memory behaviour of an operation.
type Effect int

const (
	// EffectNone marks pure operations.
	EffectNone Effect = iota

	// EffectRead marks operations that only read memory.
	EffectRead

	// EffectWrite marks operations that write memory (or are unknown).
	EffectWrite

	// EffectAlloc marks allocations.
	EffectAlloc

	// EffectRecursive marks region-holding operations whose effect is the
	// union of their bodies. They are conservatively treated as effectful.
	EffectRecursive
)

// Attrs holds operation attributes. Values are int64, float64, string or
// []int64.
type Attrs map[string]any

// Int returns an integer attribute.
func (a Attrs) Int(key string) (int64, bool) {
	switch v := a[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// Float returns a numeric attribute as float64.
func (a Attrs) Float(key string) (float64, bool) {
	switch v := a[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// Str returns a string attribute.
func (a Attrs) Str(key string) string {
	s, _ := a[key].(string)
	return s
}

// Ints returns an integer list attribute.
func (a Attrs) Ints(key string) ([]int64, bool) {
	v, ok := a[key].([]int64)
	return v, ok
}

// Clone returns a deep copy of the attributes.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	c := maps.Clone(a)
	for k, v := range c {
		if l, ok := v.([]int64); ok {
			c[k] = slices.Clone(l)
		}
	}
	return c
}

// Attribute keys.
const (
	AttrValue       = "value"
	AttrWarpSize    = "warp_size"
	AttrKind        = "kind"
	AttrMode        = "mode"
	AttrOffset      = "offset"
	AttrWidth       = "width"
	AttrCoeffs      = "coeffs"
	AttrPosition    = "position"
	AttrPermutation = "permutation"
	AttrSpace       = "space"
	AttrPure        = "pure"
)

// Shuffle modes.
const (
	ShuffleDown = "down"
	ShuffleUp   = "up"
	ShuffleIdx  = "idx"
	ShuffleXor  = "xor"
)
