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

// Package ir provides the intermediate representation rewritten by the warp
// distribution engine: an arena of operations, blocks and values addressed by
// stable handles, together with a builder, a textual printer and parser, and
// a verifier for the invariants the rewrite patterns rely on.
package ir

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// TypeKind distinguishes scalars, vectors and memory references.
type TypeKind int

const (
	// TypeScalar is a single element (f32, i32, index, ...).
	TypeScalar TypeKind = iota

	// TypeVector is a statically shaped register vector (vector<32xf32>).
	TypeVector

	// TypeMemRef is a statically shaped memory buffer (memref<1024xf32>).
	TypeMemRef
)

// ElemType is the element type of a scalar, vector or memref.
type ElemType int

const (
	ElemInvalid ElemType = iota
	F16
	F32
	F64
	I1
	I32
	I64
	Index
)

var elemNames = map[ElemType]string{
	F16:   "f16",
	F32:   "f32",
	F64:   "f64",
	I1:    "i1",
	I32:   "i32",
	I64:   "i64",
	Index: "index",
}

// String returns the textual spelling of the element type.
func (e ElemType) String() string {
	if s, ok := elemNames[e]; ok {
		return s
	}
	return "elem(" + strconv.Itoa(int(e)) + ")"
}

// IsFloat reports whether e is a floating-point element type.
func (e ElemType) IsFloat() bool {
	return e == F16 || e == F32 || e == F64
}

// IsInteger reports whether e is an integer (or index) element type.
func (e ElemType) IsInteger() bool {
	return e == I1 || e == I32 || e == I64 || e == Index
}

// BitWidth returns the storage width of the element type in bits.
// Index is treated as 64 bits wide.
func (e ElemType) BitWidth() int {
	switch e {
	case I1:
		return 1
	case F16:
		return 16
	case F32, I32:
		return 32
	case F64, I64, Index:
		return 64
	default:
		return 0
	}
}

func parseElemType(s string) (ElemType, bool) {
	for e, name := range elemNames {
		if name == s {
			return e, true
		}
	}
	return ElemInvalid, false
}

// Type is an IR type. Types are values: they are compared with Equal and must
// not be mutated after construction (Shape is shared between copies).
type Type struct {
	// Kind selects scalar, vector or memref.
	Kind TypeKind

	// Elem is the element type.
	Elem ElemType

	// Shape holds the static dimension sizes for vectors and memrefs.
	// It is nil for scalars.
	Shape []int64
}

// Scalar returns the scalar type with element e.
func Scalar(e ElemType) Type {
	return Type{Kind: TypeScalar, Elem: e}
}

// Vector returns a vector type with the given element type and shape.
func Vector(e ElemType, shape ...int64) Type {
	return Type{Kind: TypeVector, Elem: e, Shape: append([]int64(nil), shape...)}
}

// MemRef returns a memref type with the given element type and shape.
func MemRef(e ElemType, shape ...int64) Type {
	return Type{Kind: TypeMemRef, Elem: e, Shape: append([]int64(nil), shape...)}
}

// IsValid reports whether t carries an element type.
func (t Type) IsValid() bool { return t.Elem != ElemInvalid }

// IsScalar reports whether t is a scalar type.
func (t Type) IsScalar() bool { return t.Kind == TypeScalar }

// IsVector reports whether t is a vector type.
func (t Type) IsVector() bool { return t.Kind == TypeVector }

// IsMemRef reports whether t is a memref type.
func (t Type) IsMemRef() bool { return t.Kind == TypeMemRef }

// Rank returns the number of dimensions (0 for scalars).
func (t Type) Rank() int { return len(t.Shape) }

// Dim returns the size of dimension i.
func (t Type) Dim(i int) int64 { return t.Shape[i] }

// NumElements returns the number of elements held by a value of type t.
func (t Type) NumElements() int64 {
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// WithShape returns a vector type with t's element type and the given shape.
func (t Type) WithShape(shape ...int64) Type {
	return Vector(t.Elem, shape...)
}

// ElementType returns the scalar type of t's elements.
func (t Type) ElementType() Type {
	return Scalar(t.Elem)
}

// Equal reports whether two types are identical.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind || t.Elem != o.Elem || len(t.Shape) != len(o.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// String returns the textual spelling used by the printer.
func (t Type) String() string {
	switch t.Kind {
	case TypeVector, TypeMemRef:
		var sb strings.Builder
		if t.Kind == TypeVector {
			sb.WriteString("vector<")
		} else {
			sb.WriteString("memref<")
		}
		for _, d := range t.Shape {
			sb.WriteString(strconv.FormatInt(d, 10))
			sb.WriteByte('x')
		}
		sb.WriteString(t.Elem.String())
		sb.WriteByte('>')
		return sb.String()
	default:
		return t.Elem.String()
	}
}

// ParseType parses the textual spelling of a type, e.g. "f32",
// "vector<4x32xf32>" or "memref<1024xi32>".
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if e, ok := parseElemType(s); ok {
		return Scalar(e), nil
	}
	var kind TypeKind
	var body string
	switch {
	case strings.HasPrefix(s, "vector<") && strings.HasSuffix(s, ">"):
		kind, body = TypeVector, s[len("vector<"):len(s)-1]
	case strings.HasPrefix(s, "memref<") && strings.HasSuffix(s, ">"):
		kind, body = TypeMemRef, s[len("memref<"):len(s)-1]
	default:
		return Type{}, errors.Errorf("unknown type %q", s)
	}
	body = strings.ReplaceAll(body, " ", "")
	var shape []int64
	for {
		n := 0
		for n < len(body) && body[n] >= '0' && body[n] <= '9' {
			n++
		}
		if n == 0 || n >= len(body) || body[n] != 'x' {
			break
		}
		d, err := strconv.ParseInt(body[:n], 10, 64)
		if err != nil || d <= 0 {
			return Type{}, errors.Errorf("type %q: bad dimension %q", s, body[:n])
		}
		shape = append(shape, d)
		body = body[n+1:]
	}
	if len(shape) == 0 {
		return Type{}, errors.Errorf("type %q has no shape", s)
	}
	e, ok := parseElemType(body)
	if !ok {
		return Type{}, errors.Errorf("type %q: unknown element type %q", s, body)
	}
	return Type{Kind: kind, Elem: e, Shape: shape}, nil
}
