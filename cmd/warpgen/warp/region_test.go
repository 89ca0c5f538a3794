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
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ajroetker/warpdist/cmd/warpgen/ir"
)

const twoResultSrc = `func @two(%0: index, %1: memref<64xf32>) {
  %2 = constant() {value = 0} : index
  %3, %4 = warp(%0, %1) {warp_size = 32} : vector<1xf32>, vector<2xf32> {
    ^(%5: memref<64xf32>):
    %6 = transfer_read(%5, %2) : vector<32xf32>
    %7 = transfer_read(%5, %2) : vector<64xf32>
    yield(%6, %7)
  }
  transfer_write(%3, %1, %0)
  return()
}
`

func TestAppendResults(t *testing.T) {
	fn := parse(t, twoResultSrc)
	r := firstRegion(t, fn)
	body := r.Body()
	lane := r.LaneID()
	oldResults := append([]ir.ValueID(nil), r.Results()...)
	extra := fn.Block(body).Ops[0]

	rw := NewRewriter(fn, DefaultOptions())
	nr := rw.AppendResults(r, []ir.ValueID{fn.Op(extra).Results[0]}, []ir.Type{ir.Vector(ir.F32, 32)})

	require.True(t, fn.Op(r.ID).Erased())
	require.Equal(t, body, nr.Body(), "body must move, not be copied")
	require.Len(t, nr.Results(), 3)
	require.Len(t, nr.Yielded(), 3)
	require.Equal(t, lane, nr.LaneID())
	require.Equal(t, int64(32), nr.WarpSize())
	require.False(t, fn.HasUses(oldResults[0]))
	require.True(t, fn.HasUses(nr.Results()[0]), "old result uses move to the new region")
	require.NoError(t, ir.Verify(fn))
}

func TestReplaceResults(t *testing.T) {
	fn := parse(t, twoResultSrc)
	r := firstRegion(t, fn)
	y := r.Yielded()
	rw := NewRewriter(fn, DefaultOptions())
	nr := rw.ReplaceResults(r, []ir.ValueID{y[0]}, []ir.Type{ir.Vector(ir.F32, 1)}, []int{0})
	require.Len(t, nr.Results(), 1)
	require.True(t, fn.HasUses(nr.Results()[0]))
	require.NoError(t, ir.Verify(fn))
}

func TestReplaceResultsDroppingUsedResultPanics(t *testing.T) {
	fn := parse(t, twoResultSrc)
	r := firstRegion(t, fn)
	y := r.Yielded()
	rw := NewRewriter(fn, DefaultOptions())
	require.PanicsWithError(t, fmt.Sprintf("warp: invariant violated: result 0 of warp#%d dropped while still in use", r.ID), func() {
		rw.ReplaceResults(r, []ir.ValueID{y[1]}, []ir.Type{ir.Vector(ir.F32, 2)}, []int{1})
	})
}

func TestReshapeArityMismatchPanics(t *testing.T) {
	fn := parse(t, twoResultSrc)
	r := firstRegion(t, fn)
	rw := NewRewriter(fn, DefaultOptions())
	require.Panics(t, func() {
		rw.AppendResults(r, []ir.ValueID{r.Yielded()[0]}, nil)
	})
}

func TestDistributionMap(t *testing.T) {
	require.Equal(t, []int{1}, DistributionMap(ir.Vector(ir.F32, 4, 32), ir.Vector(ir.F32, 4, 1)))
	require.Empty(t, DistributionMap(ir.Vector(ir.F32, 32), ir.Vector(ir.F32, 32)))
	require.Panics(t, func() {
		DistributionMap(ir.Vector(ir.F32, 64, 32), ir.Vector(ir.F32, 2, 1))
	})
}

func TestFindMatchSkipsUnusedResults(t *testing.T) {
	fn := parse(t, twoResultSrc)
	r := firstRegion(t, fn)
	isRead := func(op *ir.Op) bool { return op.Kind == ir.OpKindTransferRead }
	m, ok := r.FindMatch(isRead)
	require.True(t, ok)
	require.Equal(t, 0, m.Index)

	// Result 1 is unused, so once result 0 loses its user nothing matches.
	fn.Erase(fn.Block(fn.Body).Ops[2])
	_, ok = r.FindMatch(isRead)
	require.False(t, ok)
}
