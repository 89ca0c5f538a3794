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
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ajroetker/warpdist/cmd/warpgen/ir"
)

func alwaysApplies(name string, priority int, calls *[]string) Pattern {
	return Pattern{
		Name:     name,
		Priority: priority,
		Root:     ir.OpKindReturn,
		Apply: func(*Rewriter, ir.OpID) bool {
			*calls = append(*calls, name)
			return true
		},
	}
}

func TestApplyPatternsRewriteBudget(t *testing.T) {
	fn := parse(t, constantWarpSrc)
	var calls []string
	opts := DefaultOptions()
	opts.MaxRewrites = 5
	opts.MaxRetries = 100
	stats, err := ApplyPatterns(fn, []Pattern{alwaysApplies("loop", 0, &calls)}, opts)
	require.ErrorIs(t, err, ErrNoConvergence)
	require.Equal(t, 5, stats.Rewrites)
	require.Len(t, calls, 5)
}

func TestApplyPatternsRetryBudget(t *testing.T) {
	fn := parse(t, constantWarpSrc)
	var calls []string
	opts := DefaultOptions()
	opts.MaxRetries = 3
	stats, err := ApplyPatterns(fn, []Pattern{alwaysApplies("loop", 0, &calls)}, opts)
	require.ErrorIs(t, err, ErrNoConvergence)
	require.Contains(t, err.Error(), "rewritten 4 times")
	require.Equal(t, 4, stats.Rewrites)
}

func TestApplyPatternsRetryBudgetFollowsRebuiltRegions(t *testing.T) {
	fn := parse(t, constantWarpSrc)
	rebuild := Pattern{
		Name: "rebuild",
		Root: ir.OpKindWarp,
		Apply: onRegion(func(rw *Rewriter, r Region) bool {
			rw.AppendResults(r, nil, nil)
			return true
		}),
	}
	opts := DefaultOptions()
	opts.MaxRetries = 3
	stats, err := ApplyPatterns(fn, []Pattern{rebuild}, opts)
	require.ErrorIs(t, err, ErrNoConvergence)
	require.Contains(t, err.Error(), "rewritten 4 times")
	require.Equal(t, 4, stats.Rewrites)
	require.NoError(t, ir.Verify(fn))
}

func TestApplyPatternsPriorityAndDisabled(t *testing.T) {
	var calls []string
	patterns := []Pattern{
		alwaysApplies("low", 1, &calls),
		alwaysApplies("high", 9, &calls),
	}
	opts := DefaultOptions()
	opts.MaxRewrites = 2

	_, err := ApplyPatterns(parse(t, constantWarpSrc), patterns, opts)
	require.ErrorIs(t, err, ErrNoConvergence)
	require.Equal(t, []string{"high", "high"}, calls)

	calls = nil
	opts.Disabled = []string{"high"}
	_, err = ApplyPatterns(parse(t, constantWarpSrc), patterns, opts)
	require.ErrorIs(t, err, ErrNoConvergence)
	require.Equal(t, []string{"low", "low"}, calls)
}

func TestApplyPatternsFixpoint(t *testing.T) {
	fn := parse(t, elementwiseSrc)
	stats, err := ApplyPatterns(fn, verifying(t, PropagationPatterns()), DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, map[string]int{
		PatternSinkElementwise: 1,
		PatternSinkRead:        2,
		PatternDeadResult:      2,
	}, stats.Applied)
	require.Equal(t, 5, stats.Rewrites)
	require.Equal(t, 6, stats.Rounds)
	require.Zero(t, countOps(fn, ir.OpKindWarp), "the drained region is erased:\n%s", fn)

	again, err := ApplyPatterns(fn, PropagationPatterns(), DefaultOptions())
	require.NoError(t, err)
	require.Zero(t, again.Rewrites)
	requireEquivalent(t, elementwiseSrc, fn)
}

func TestApplyPatternsDebugTrace(t *testing.T) {
	var trace bytes.Buffer
	opts := DefaultOptions()
	opts.Debug = true
	opts.Trace = &trace
	fn := parse(t, elementwiseSrc)
	_, err := ApplyPatterns(fn, PropagationPatterns(), opts)
	require.NoError(t, err)
	require.Contains(t, trace.String(), "[warp] sink-elementwise: rewrote warp#")
}

func TestEraseDeadOps(t *testing.T) {
	src := `func @dead(%0: index, %1: memref<32xf32>) {
  %2 = constant() {value = 0} : index
  %3 = apply(%0, %2) {coeffs = [1, 1], offset = 0} : index
  %4 = transfer_read(%1, %3) : vector<32xf32>
  %5 = negf(%4) : vector<32xf32>
  %6 = warp(%0) {warp_size = 32} : vector<1xf32> {
    %7 = transfer_read(%1, %2) : vector<32xf32>
    yield(%7)
  }
  transfer_write(%4, %1, %2)
  return()
}
`
	fn := parse(t, src)
	require.Equal(t, 2, EraseDeadOps(fn))
	require.NoError(t, ir.Verify(fn))
	require.Zero(t, countOps(fn, ir.OpKindWarp))
	require.Equal(t, 1, countOps(fn, ir.OpKindTransferRead))
	require.Zero(t, EraseDeadOps(fn))
}

func TestDistribute(t *testing.T) {
	fn := parse(t, scaleSrc)
	opts := DefaultOptions()
	opts.Lower = true
	stats, err := Distribute(fn, opts)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Applied[PatternDistributeWrite])
	require.Equal(t, 1, stats.Applied[PatternLower])
	require.Zero(t, countOps(fn, ir.OpKindWarp))
	require.NoError(t, ir.Verify(fn))
	requireEquivalent(t, scaleSrc, fn)
}

func TestDistributeWithoutWrites(t *testing.T) {
	fn := parse(t, scaleSrc)
	before := fn.String()
	opts := DefaultOptions()
	opts.DistributeWrites = false
	stats, err := Distribute(fn, opts)
	require.NoError(t, err)
	require.Zero(t, stats.Rewrites)
	require.Equal(t, before, fn.String())
}

func TestAllPatternsOrder(t *testing.T) {
	all := AllPatterns()
	require.Equal(t, PatternHoistUniform, all[0].Name)
	require.Equal(t, PatternLower, all[len(all)-1].Name)
	for i := 1; i < len(all); i++ {
		require.GreaterOrEqual(t, all[i-1].Priority, all[i].Priority)
	}
}
