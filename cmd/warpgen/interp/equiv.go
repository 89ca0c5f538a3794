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
	"math/rand/v2"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"

	"github.com/ajroetker/warpdist/cmd/warpgen/ir"
)

// Snapshot is the observable outcome of running a function.
type Snapshot struct {
	// Returns holds, per lane, the elements of each returned value.
	Returns [][][]float64

	// Memory holds the final elements of each memref parameter.
	Memory [][]float64
}

// Inputs returns deterministic inputs for fn: the first index parameter is
// the lane id, other index parameters are 0, memrefs are fresh buffers and
// every other parameter gets a small pseudo-random value. Float values are
// multiples of 1/4 so that reassociated sums stay exact.
func Inputs(fn *ir.Func, seed uint64) []Input {
	r := rand.New(rand.NewPCG(seed, 0x9e3779b97f4a7c15))
	var inputs []Input
	laneBound := false
	for _, p := range fn.Params() {
		t := fn.Type(p)
		if t.IsScalar() && t.Elem == ir.Index {
			if !laneBound {
				laneBound = true
				inputs = append(inputs, Lane())
				continue
			}
			inputs = append(inputs, Uniform(Int(t, 0)))
			continue
		}
		v := NewValue(t)
		for i := range v.Len() {
			switch {
			case t.Elem.IsFloat():
				v.F[i] = round(t.Elem, float64(r.IntN(17)-8)/4)
			case t.Elem == ir.I1:
				v.I[i] = int64(r.IntN(2))
			default:
				v.I[i] = int64(r.IntN(17) - 8)
			}
		}
		inputs = append(inputs, Uniform(v))
	}
	return inputs
}

// Observe runs fn on generated inputs and captures its outcome.
func Observe(fn *ir.Func, lanes int, seed uint64) (Snapshot, error) {
	inputs := Inputs(fn, seed)
	res, err := Run(fn, lanes, inputs...)
	if err != nil {
		return Snapshot{}, err
	}
	var s Snapshot
	for _, vals := range res.Returns {
		var lane [][]float64
		for _, v := range vals {
			lane = append(lane, elements(v))
		}
		s.Returns = append(s.Returns, lane)
	}
	for _, in := range inputs {
		if in.Value != nil && in.Value.Type.IsMemRef() {
			s.Memory = append(s.Memory, elements(in.Value))
		}
	}
	return s, nil
}

func elements(v *Value) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.At(i)
	}
	return out
}

// Equivalent runs before and after on identical generated inputs and
// reports an error describing any difference in their outcome.
func Equivalent(before, after *ir.Func, lanes int, seed uint64) error {
	want, err := Observe(before, lanes, seed)
	if err != nil {
		return errors.WithMessage(err, "running original")
	}
	got, err := Observe(after, lanes, seed)
	if err != nil {
		return errors.WithMessage(err, "running rewritten")
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(1e-6, 1e-9)); diff != "" {
		return errors.Errorf("@%s: behavior changed (-original +rewritten):\n%s", after.Name, diff)
	}
	return nil
}
