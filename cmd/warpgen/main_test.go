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

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"
)

const addSrc = `func @add(%0: index, %1: memref<32xf32>, %2: memref<32xf32>) {
  %3 = constant() {value = 0} : index
  %4 = warp(%0) {warp_size = 32} : vector<1xf32> {
    %5 = transfer_read(%1, %3) : vector<32xf32>
    %6 = transfer_read(%2, %3) : vector<32xf32>
    %7 = addf(%5, %6) : vector<32xf32>
    yield(%7)
  }
  transfer_write(%4, %1, %0)
  return()
}
`

const splatSrc = `func @splat(%0: index) {
  %1 = warp(%0) {warp_size = 32} : vector<1xf32> {
    %2 = constant() {value = 1.5} : vector<32xf32>
    yield(%2)
  }
  return(%1)
}
`

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRun(t *testing.T) {
	path := writeFile(t, "add.ir", addSrc)
	stdout, stderr, err := execute(t, "run", "--check", "--stats", path)
	require.NoError(t, err, stderr)
	require.NotContains(t, stdout, "warp(")
	require.Contains(t, stdout, "transfer_read(%2, %0) : vector<1xf32>")
	require.Contains(t, stderr, "@add: rounds=")
	require.Contains(t, stderr, "sink-elementwise=1")
}

func TestRunDebug(t *testing.T) {
	path := writeFile(t, "add.ir", addSrc)
	_, stderr, err := execute(t, "run", "--debug", "--jobs", "2", "--check", "--seeds", "4", path)
	require.NoError(t, err, stderr)
	require.Contains(t, stderr, "[warpgen] 1 inputs on 2 workers")
	require.Contains(t, stderr, "[warp] sink-elementwise: rewrote warp#")
}

func TestRunLower(t *testing.T) {
	path := writeFile(t, "splat.ir", splatSrc)
	stdout, stderr, err := execute(t, "run", "--lower", "--check", path)
	require.NoError(t, err, stderr)
	require.NotContains(t, stdout, "warp(")
	require.Contains(t, stdout, "alloc() {space = workgroup} : memref<32xf32>")
}

func TestRunConfigFile(t *testing.T) {
	cfg := writeFile(t, "warp.yaml", "lower: true\nmemory_space: scratch\n")
	path := writeFile(t, "splat.ir", splatSrc)

	stdout, _, err := execute(t, "run", "--config", cfg, path)
	require.NoError(t, err)
	require.Contains(t, stdout, "{space = scratch}")

	// Flags override the file.
	stdout, _, err = execute(t, "run", "--config", cfg, "--lower=false", path)
	require.NoError(t, err)
	require.Contains(t, stdout, "warp(%0)")
}

func TestRunArchive(t *testing.T) {
	ar := &txtar.Archive{
		Comment: []byte("two kernels\n"),
		Files: []txtar.File{
			{Name: "add.ir", Data: []byte(addSrc)},
			{Name: "notes.txt", Data: []byte("left alone\n")},
			{Name: "splat.ir", Data: []byte(splatSrc)},
		},
	}
	path := writeFile(t, "kernels.txtar", string(txtar.Format(ar)))
	stdout, stderr, err := execute(t, "run", "--jobs", "2", path)
	require.NoError(t, err, stderr)

	out := txtar.Parse([]byte(stdout))
	require.Equal(t, "two kernels\n", string(out.Comment))
	require.Len(t, out.Files, 3)
	require.NotContains(t, string(out.Files[0].Data), "warp(")
	require.Equal(t, "left alone\n", string(out.Files[1].Data))
	require.Contains(t, string(out.Files[2].Data), "warp(%0)")
}

func TestRunReportsFailures(t *testing.T) {
	good := writeFile(t, "good.ir", splatSrc)
	bad := writeFile(t, "bad.ir", "func @bad(%0: index) {\n  return(%1)\n}\n")
	stdout, stderr, err := execute(t, "run", good, bad)
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 of 2 inputs failed")
	require.Contains(t, stdout, "@splat")
	require.Contains(t, stderr, "error:")
	require.Contains(t, stderr, "bad.ir")
}

func TestVerify(t *testing.T) {
	path := writeFile(t, "add.ir", addSrc+"\n"+splatSrc)
	stdout, _, err := execute(t, "verify", path)
	require.NoError(t, err)
	require.Equal(t, path+": ok (2 functions)\n", stdout)
}

func TestPatterns(t *testing.T) {
	stdout, _, err := execute(t, "patterns")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 12)
	require.Contains(t, lines[0], "PRIORITY")
	require.Contains(t, lines[1], "hoist-uniform")
	require.Contains(t, stdout, "Sink Transfer Read")
}

func TestPatternTitle(t *testing.T) {
	require.Equal(t, "Lower To Guarded", patternTitle("lower-to-guarded"))
}
