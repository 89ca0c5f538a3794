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
	"github.com/samber/lo"

	"github.com/ajroetker/warpdist/cmd/warpgen/ir"
)

// HoistUniformCode moves operations out of the region, in order, when they
// produce no vector, have no side effect and no regions, and only use
// values defined outside the region or produced by operations already
// hoisted. It returns the number of operations moved.
func HoistUniformCode(fn *ir.Func, r Region) int {
	hoisted := make(map[ir.OpID]bool)
	uniform := func(v ir.ValueID) bool {
		return hoisted[fn.DefiningOp(v)] || fn.DefinedOutside(r.ID, v)
	}
	var moves []ir.OpID
	for _, id := range fn.Block(r.Body()).Ops {
		op := fn.Op(id)
		if op.Kind.IsTerminator() || len(op.Regions) > 0 || fn.HasSideEffect(id) {
			continue
		}
		if lo.SomeBy(op.Results, func(res ir.ValueID) bool { return fn.Type(res).IsVector() }) {
			continue
		}
		if lo.EveryBy(op.Operands(), uniform) {
			hoisted[id] = true
			moves = append(moves, id)
		}
	}
	for _, id := range moves {
		fn.MoveBefore(id, r.ID)
	}
	return len(moves)
}
