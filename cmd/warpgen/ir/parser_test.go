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

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const kernelSrc = `func @kernel(%0: index, %1: memref<1024xf32>) {
  %2 = constant() {value = 0} : index
  %3 = warp(%0, %1) {warp_size = 32} : vector<1xf32> {
    ^(%4: memref<1024xf32>):
    %5 = transfer_read(%4, %2) : vector<32xf32>
    %6 = constant() {value = 2.0} : vector<32xf32>
    %7 = mulf(%5, %6) : vector<32xf32>
    yield(%7)
  }
  return(%3)
}
`

const loopSrc = `func @loops(%0: index, %1: f32) {
  %2 = constant() {value = 0} : index
  %3 = constant() {value = 4} : index
  %4 = constant() {value = 1} : index
  %5 = for(%2, %3, %4, %1) : f32 {
    ^(%6: index, %7: f32):
    %8 = addf(%7, %7) : f32
    yield(%8)
  }
  %9 = cmpeq(%0, %2) : i1
  if(%9) {
    %10 = opaque_call(%5) {note = "two words", pure = true} : f32
    yield()
  }
  %11 = apply(%0, %2) {coeffs = [4, -1], offset = 3} : index
  return(%5)
}
`

func TestPrintRoundTrip(t *testing.T) {
	for _, src := range []string{kernelSrc, loopSrc} {
		fn, err := ParseFunc(src)
		if err != nil {
			t.Fatalf("ParseFunc: %v", err)
		}
		if diff := cmp.Diff(src, Print(fn)); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
		if err := Verify(fn); err != nil {
			t.Errorf("Verify: %v", err)
		}
	}
}

func TestParseRenamesValues(t *testing.T) {
	src := `
// Comments and arbitrary value names are accepted.
func @named(%lane: index, %x: f32) {
  %double = addf(%x, %x) : f32
  return(%double)
}
`
	fn := MustParseFunc(src)
	want := `func @named(%0: index, %1: f32) {
  %2 = addf(%1, %1) : f32
  return(%2)
}
`
	if diff := cmp.Diff(want, fn.String()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestParseStructure(t *testing.T) {
	fn := MustParseFunc(kernelSrc)
	warps := fn.Collect(OpKindWarp)
	if len(warps) != 1 {
		t.Fatalf("found %d warps, want 1", len(warps))
	}
	w := fn.Op(warps[0])
	if ws, _ := w.Attrs.Int(AttrWarpSize); ws != 32 {
		t.Errorf("warp_size = %d, want 32", ws)
	}
	body := fn.Block(w.Region(0))
	if len(body.Args) != 1 || !fn.Type(body.Args[0]).Equal(MemRef(F32, 1024)) {
		t.Errorf("body args = %v", body.Args)
	}
	if got := fn.Op(fn.Terminator(body.ID)).Kind; got != OpKindYield {
		t.Errorf("terminator kind = %v, want Yield", got)
	}
	muls := fn.Collect(OpKindElementwise)
	if len(muls) != 1 || fn.Op(muls[0]).Name != OpMulF {
		t.Errorf("elementwise ops = %v", muls)
	}
	if c, _ := fn.Op(fn.DefiningOp(fn.Op(muls[0]).Operand(1))).Attrs.Float(AttrValue); c != 2 {
		t.Errorf("constant = %v, want 2", c)
	}
}

func TestParseMultipleFuncs(t *testing.T) {
	fns, err := Parse("two.ir", kernelSrc+loopSrc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(fns) != 2 || fns[0].Name != "kernel" || fns[1].Name != "loops" {
		t.Errorf("parsed %d funcs", len(fns))
	}
	if _, err := ParseFunc(kernelSrc + loopSrc); err == nil {
		t.Error("ParseFunc accepted two functions")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"undefined", "func @f() {\n  return(%x)\n}", "use of undefined value %x"},
		{"redefinition", "func @f(%a: f32) {\n  %a = addf(%a, %a) : f32\n  return()\n}", "redefinition of %a"},
		{"missing types", "func @f() {\n  %0 = constant() {value = 1}\n  return()\n}", "defines 1 values but declares 0 result types"},
		{"bad type", "func @f(%a: vector<xf32>) {\n  return()\n}", "has no shape"},
		{"unterminated", "func @f(%c: i1) {\n  if(%c) {\n    yield()\n", "unterminated region"},
		{"no func", "warp()", `expected "func"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.ir", tt.src)
			if err == nil {
				t.Fatal("Parse succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
