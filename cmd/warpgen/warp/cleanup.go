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

package warp

import (
	"github.com/ajroetker/warpdist/cmd/warpgen/ir"
)

// EliminateDeadResults rebuilds the region without the results nobody
// uses. It reports false when every result is used.
func EliminateDeadResults(rw *Rewriter, r Region) bool {
	fn := rw.fn
	yielded := r.Yielded()
	var values []ir.ValueID
	var types []ir.Type
	var origin []int
	for i, res := range r.Results() {
		if !fn.HasUses(res) {
			continue
		}
		values = append(values, yielded[i])
		types = append(types, fn.Type(res))
		origin = append(origin, i)
	}
	if len(values) == len(r.Results()) {
		return false
	}
	rw.ReplaceResults(r, values, types, origin)
	return true
}

// ForwardOperand replaces a used result with a value available outside the
// region when the region merely passes it through: a yielded value defined
// outside the region, or a captured argument, of the same type as the
// result.
func ForwardOperand(rw *Rewriter, r Region) bool {
	fn := rw.fn
	results := r.Results()
	body := r.Body()
	for i, v := range r.Yielded() {
		res := results[i]
		if !fn.HasUses(res) {
			continue
		}
		forwarded := ir.NoValue
		if fn.DefinedOutside(r.ID, v) {
			forwarded = v
		} else if fn.OwnerBlock(v) == body {
			forwarded = r.Args()[fn.ResultIndex(v)]
		}
		if !forwarded.IsValid() || !fn.Type(forwarded).Equal(fn.Type(res)) {
			continue
		}
		fn.ReplaceAllUsesWith(res, forwarded)
		return true
	}
	return false
}
