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

const scaleSrc = `func @scale(%0: index, %1: memref<64xf32>) {
  %2 = constant() {value = 0} : index
  warp(%0) {warp_size = 32} {
    %3 = constant() {value = 2.0} : vector<64xf32>
    %4 = transfer_read(%1, %2) : vector<64xf32>
    %5 = mulf(%4, %3) : vector<64xf32>
    transfer_write(%5, %1, %2)
    yield()
  }
  return()
}
`

func TestDistributeTransferWrite(t *testing.T) {
	fn := parse(t, scaleSrc)
	write := fn.Collect(ir.OpKindTransferWrite)[0]
	require.True(t, DistributeTransferWrite(NewRewriter(fn, DefaultOptions()), write))
	require.NoError(t, ir.Verify(fn))

	r := firstRegion(t, fn)
	require.Len(t, r.Results(), 1)
	require.True(t, fn.Type(r.Results()[0]).Equal(ir.Vector(ir.F32, 2)))

	moved := fn.Op(fn.Collect(ir.OpKindTransferWrite)[0])
	require.Equal(t, fn.Body, moved.Parent)
	require.Equal(t, r.Results()[0], moved.Operand(0))
	apply := fn.Op(fn.DefiningOp(moved.Operand(2)))
	require.Equal(t, ir.OpKindApply, apply.Kind)
	coeffs, _ := apply.Attrs.Ints(ir.AttrCoeffs)
	require.Equal(t, []int64{2}, coeffs)
	require.Equal(t, []ir.ValueID{r.LaneID()}, apply.Operands())
	requireEquivalent(t, scaleSrc, fn)
}

func TestDistributeTransferWriteRatios(t *testing.T) {
	for _, extent := range []int64{16, 32, 64, 96} {
		for _, ratio := range []int64{8, 32, 64} {
			t.Run(fmt.Sprintf("%d/%d", extent, ratio), func(t *testing.T) {
				src := fmt.Sprintf(`func @w(%%0: index, %%1: memref<128xf32>) {
  %%2 = constant() {value = 0} : index
  warp(%%0) {warp_size = 32} {
    %%3 = transfer_read(%%1, %%2) : vector<%[1]dxf32>
    transfer_write(%%3, %%1, %%2)
    yield()
  }
  return()
}
`, extent)
				fn := parse(t, src)
				opts := DefaultOptions()
				opts.DistributionRatio = ratio
				write := fn.Collect(ir.OpKindTransferWrite)[0]
				legal := extent%ratio == 0
				require.Equal(t, legal, DistributeTransferWrite(NewRewriter(fn, opts), write))
				require.NoError(t, ir.Verify(fn))
				if !legal {
					return
				}
				r := firstRegion(t, fn)
				require.True(t, fn.Type(r.Results()[0]).Equal(ir.Vector(ir.F32, extent/ratio)))
				if ratio == 32 {
					requireEquivalent(t, src, fn)
				}
			})
		}
	}
}

func TestDistributeTransferWriteOnOuterDim(t *testing.T) {
	src := `func @outer(%0: index, %1: memref<64x4xf32>) {
  %2 = constant() {value = 0} : index
  warp(%0) {warp_size = 32} {
    %3 = transfer_read(%1, %2, %2) : vector<64x4xf32>
    transfer_write(%3, %1, %2, %2)
    yield()
  }
  return()
}
`
	fn := parse(t, src)
	opts := DefaultOptions()
	opts.DistributionMap = OutermostDim
	require.True(t, DistributeTransferWrite(NewRewriter(fn, opts), fn.Collect(ir.OpKindTransferWrite)[0]))
	r := firstRegion(t, fn)
	require.True(t, fn.Type(r.Results()[0]).Equal(ir.Vector(ir.F32, 2, 4)))
	moved := fn.Op(fn.Collect(ir.OpKindTransferWrite)[0])
	require.Equal(t, ir.OpKindApply, fn.Op(fn.DefiningOp(moved.Operand(2))).Kind)
	require.Equal(t, ir.OpKindConstant, fn.Op(fn.DefiningOp(moved.Operand(3))).Kind)
	requireEquivalent(t, src, fn)
}

func TestDistributeTransferWriteFailsClosed(t *testing.T) {
	tests := map[string]string{
		"outside a region": `func @w(%0: index, %1: memref<32xf32>, %2: vector<32xf32>) {
  %3 = constant() {value = 0} : index
  transfer_write(%2, %1, %3)
  return()
}
`,
		"followed by a side effect": `func @w(%0: index, %1: memref<64xf32>) {
  %2 = constant() {value = 0} : index
  warp(%0) {warp_size = 32} {
    %3 = transfer_read(%1, %2) : vector<32xf32>
    transfer_write(%3, %1, %2)
    %4 = transfer_read(%1, %2) : vector<32xf32>
    yield()
  }
  return()
}
`,
		"index defined inside": `func @w(%0: index, %1: memref<64xf32>) {
  warp(%0) {warp_size = 32} {
    %2 = constant() {value = 0} : index
    %3 = transfer_read(%1, %2) : vector<32xf32>
    transfer_write(%3, %1, %2)
    yield()
  }
  return()
}
`,
		"masked": `func @w(%0: index, %1: memref<64xf32>, %2: vector<32xi1>) {
  %3 = constant() {value = 0} : index
  warp(%0) {warp_size = 32} {
    %4 = transfer_read(%1, %3) : vector<32xf32>
    transfer_write(%4, %1, %3, %2)
    yield()
  }
  return()
}
`,
		"single element, nothing else": `func @w(%0: index, %1: memref<64xf32>, %2: vector<1xf32>) {
  %3 = constant() {value = 0} : index
  warp(%0) {warp_size = 32} {
    transfer_write(%2, %1, %3)
    yield()
  }
  return()
}
`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			fn := parse(t, src)
			before := fn.String()
			write := fn.Collect(ir.OpKindTransferWrite)[0]
			require.False(t, DistributeTransferWrite(NewRewriter(fn, DefaultOptions()), write))
			require.Equal(t, before, fn.String())
		})
	}
}

const singleSrc = `func @single(%0: index, %1: memref<32xf32>) {
  %2 = constant() {value = 0} : index
  warp(%0) {warp_size = 32} {
    %3 = transfer_read(%1, %2) : vector<32xf32>
    %4 = reduction(%3) {kind = add} : f32
    %5 = broadcast(%4) : vector<1xf32>
    transfer_write(%5, %1, %2)
    yield()
  }
  return()
}
`

func TestExtractSingleElementWrite(t *testing.T) {
	fn := parse(t, singleSrc)
	write := fn.Collect(ir.OpKindTransferWrite)[0]
	require.True(t, DistributeTransferWrite(NewRewriter(fn, DefaultOptions()), write))
	require.NoError(t, ir.Verify(fn))

	regions := fn.Collect(ir.OpKindWarp)
	require.Len(t, regions, 2)
	first, _ := AsRegion(fn, regions[0])
	second, _ := AsRegion(fn, regions[1])
	require.True(t, fn.Type(first.Results()[0]).Equal(ir.Vector(ir.F32, 1)))
	require.Empty(t, second.Results())
	require.Equal(t, second.ID, fn.Next(first.ID))

	ops := fn.Block(second.Body()).Ops
	require.Len(t, ops, 2)
	require.Equal(t, first.Results()[0], fn.Op(ops[0]).Operand(0))
	requireEquivalent(t, singleSrc, fn)
}

func TestExtractSingleElementWriteConverges(t *testing.T) {
	fn := parse(t, singleSrc)
	stats, err := Distribute(fn, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Applied[PatternDistributeWrite])
	require.Equal(t, 1, stats.Applied[PatternSinkReduction])

	regions := fn.Collect(ir.OpKindWarp)
	require.Len(t, regions, 1, "the drained region is erased:\n%s", fn)
	r, _ := AsRegion(fn, regions[0])
	require.Empty(t, r.Results())
	require.Equal(t, 1, countOps(fn, ir.OpKindTransferWrite))
	requireEquivalent(t, singleSrc, fn)
}
