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

	"github.com/ajroetker/warpdist/cmd/warpgen/interp"
	"github.com/ajroetker/warpdist/cmd/warpgen/ir"
)

func parse(t *testing.T, src string) *ir.Func {
	t.Helper()
	fn, err := ir.ParseFunc(src)
	require.NoError(t, err)
	require.NoError(t, ir.Verify(fn))
	return fn
}

func firstRegion(t *testing.T, fn *ir.Func) Region {
	t.Helper()
	ids := fn.Collect(ir.OpKindWarp)
	require.NotEmpty(t, ids, "no warp region in\n%s", fn)
	r, ok := AsRegion(fn, ids[0])
	require.True(t, ok)
	return r
}

// verifying wraps patterns so that the IR is verified after every
// successful rewrite.
func verifying(t *testing.T, patterns []Pattern) []Pattern {
	t.Helper()
	out := make([]Pattern, len(patterns))
	for i, p := range patterns {
		apply := p.Apply
		p.Apply = func(rw *Rewriter, op ir.OpID) bool {
			if !apply(rw, op) {
				return false
			}
			require.NoError(t, ir.Verify(rw.Func()), "after %s:\n%s", p.Name, rw.Func())
			return true
		}
		out[i] = p
	}
	return out
}

func requireEquivalent(t *testing.T, src string, after *ir.Func) {
	t.Helper()
	before := ir.MustParseFunc(src)
	for seed := uint64(1); seed <= 3; seed++ {
		require.NoError(t, interp.Equivalent(before, after, 32, seed), "rewritten:\n%s", after)
	}
}

func countOps(fn *ir.Func, kind ir.OpKind) int {
	return len(fn.Collect(kind))
}
