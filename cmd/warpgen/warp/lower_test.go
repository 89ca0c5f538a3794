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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ajroetker/warpdist/cmd/warpgen/ir"
)

const constantWarpSrc = `func @splat(%0: index) {
  %1 = warp(%0) {warp_size = 32} : vector<1xf32> {
    %2 = constant() {value = 1.5} : vector<32xf32>
    yield(%2)
  }
  return(%1)
}
`

func TestLowerToGuarded(t *testing.T) {
	fn := parse(t, constantWarpSrc)
	require.True(t, LowerToGuarded(NewRewriter(fn, DefaultOptions()), firstRegion(t, fn)))
	require.NoError(t, ir.Verify(fn))
	require.Zero(t, countOps(fn, ir.OpKindWarp))

	var names []string
	for _, id := range fn.Block(fn.Body).Ops {
		names = append(names, fn.Op(id).Name)
	}
	require.Equal(t, []string{ir.OpConstant, ir.OpCmpEq, ir.OpAlloc, ir.OpIf, ir.OpLoad, ir.OpReturn}, names)

	alloc := fn.Op(fn.Collect(ir.OpKindAlloc)[0])
	require.Equal(t, DefaultMemorySpace, alloc.Attrs.Str(ir.AttrSpace))
	require.True(t, fn.Type(alloc.Results[0]).Equal(ir.MemRef(ir.F32, 32)))

	guard := fn.Op(fn.Collect(ir.OpKindIf)[0])
	var inside []string
	for _, id := range fn.Block(guard.Region(0)).Ops {
		inside = append(inside, fn.Op(id).Name)
	}
	require.Equal(t, []string{ir.OpConstant, ir.OpStore, ir.OpYield}, inside)

	load := fn.Op(fn.Collect(ir.OpKindLoad)[0])
	require.Equal(t, []ir.ValueID{alloc.Results[0], fn.Params()[0]}, load.Operands())
	requireEquivalent(t, constantWarpSrc, fn)
}

func TestLowerToGuardedWithArguments(t *testing.T) {
	src := `func @args(%0: index, %1: vector<2xf32>, %2: f32) {
  %3, %4 = warp(%0, %1, %2) {warp_size = 32} : vector<2xf32>, f32 {
    ^(%5: vector<64xf32>, %6: f32):
    %7 = addf(%5, %5) : vector<64xf32>
    %8 = mulf(%6, %6) : f32
    yield(%7, %8)
  }
  return(%3, %4)
}
`
	fn := parse(t, src)
	require.True(t, LowerToGuarded(NewRewriter(fn, DefaultOptions()), firstRegion(t, fn)))
	require.NoError(t, ir.Verify(fn))
	require.Zero(t, countOps(fn, ir.OpKindWarp))
	// One buffer per captured argument and per result.
	require.Equal(t, 4, countOps(fn, ir.OpKindAlloc))
	require.Equal(t, 4, countOps(fn, ir.OpKindStore))
	require.Equal(t, 4, countOps(fn, ir.OpKindLoad))
	requireEquivalent(t, src, fn)
}

func TestLowerWithCustomAllocator(t *testing.T) {
	fn := parse(t, constantWarpSrc)
	var requested []ir.Type
	opts := DefaultOptions()
	opts.Allocator = AllocatorFunc(func(b *ir.Builder, warp ir.OpID, t ir.Type) ir.ValueID {
		requested = append(requested, t)
		return SharedAllocator{Space: "private"}.Allocate(b, warp, t)
	})
	require.True(t, LowerToGuarded(NewRewriter(fn, opts), firstRegion(t, fn)))
	require.Len(t, requested, 1)
	require.True(t, requested[0].Equal(ir.Vector(ir.F32, 32)))
	alloc := fn.Op(fn.Collect(ir.OpKindAlloc)[0])
	require.Equal(t, "private", alloc.Attrs.Str(ir.AttrSpace))
}
