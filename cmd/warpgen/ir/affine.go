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

// Term is one coefficient-weighted operand of an affine index expression.
type Term struct {
	Coeff int64
	Value ValueID
}

// ComposedApply builds the index expression Σ term.Coeff*term.Value + offset.
// Operands that are index constants are folded into the offset and operands
// produced by other apply ops are composed into the new expression, so chains
// of per-lane offset computations collapse into one apply. When everything
// folds, a constant is returned; a single unit term with no offset returns
// the value itself.
func (b *Builder) ComposedApply(offset int64, terms ...Term) ValueID {
	var values []ValueID
	var coeffs []int64
	add := func(c int64, v ValueID) {
		if i := slices.Index(values, v); i >= 0 {
			coeffs[i] += c
			return
		}
		values = append(values, v)
		coeffs = append(coeffs, c)
	}
	var expand func(c int64, v ValueID)
	expand = func(c int64, v ValueID) {
		if c == 0 {
			return
		}
		if def := b.fn.DefiningOp(v); def.IsValid() {
			op := b.fn.Op(def)
			switch op.Kind {
			case OpKindConstant:
				if k, ok := op.Attrs.Int(AttrValue); ok && b.fn.Type(v).Elem == Index {
					offset += c * k
					return
				}
			case OpKindApply:
				inner, _ := op.Attrs.Ints(AttrCoeffs)
				k, _ := op.Attrs.Int(AttrOffset)
				offset += c * k
				for i, operand := range op.operands {
					expand(c*inner[i], operand)
				}
				return
			}
		}
		add(c, v)
	}
	for _, t := range terms {
		expand(t.Coeff, t.Value)
	}

	// Drop operands whose coefficients cancelled out.
	kept := values[:0]
	keptCoeffs := coeffs[:0]
	for i, v := range values {
		if coeffs[i] != 0 {
			kept = append(kept, v)
			keptCoeffs = append(keptCoeffs, coeffs[i])
		}
	}

	switch {
	case len(kept) == 0:
		return b.Index(offset)
	case len(kept) == 1 && keptCoeffs[0] == 1 && offset == 0:
		return kept[0]
	}
	return b.Create1(OpApply, Scalar(Index), Attrs{AttrCoeffs: slices.Clone(keptCoeffs), AttrOffset: offset}, kept...)
}
