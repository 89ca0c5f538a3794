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
	"testing"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want Type
	}{
		{"f32", Scalar(F32)},
		{"index", Scalar(Index)},
		{"i1", Scalar(I1)},
		{"vector<32xf32>", Vector(F32, 32)},
		{"vector<4x32xf16>", Vector(F16, 4, 32)},
		{"vector<1xindex>", Vector(Index, 1)},
		{"memref<1024xi32>", MemRef(I32, 1024)},
		{"memref<8x128xf64>", MemRef(F64, 8, 128)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			if err != nil {
				t.Fatalf("ParseType(%q): %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseType(%q) = %s, want %s", tt.in, got, tt.want)
			}
			if got.String() != tt.in {
				t.Errorf("String() = %q, want %q", got.String(), tt.in)
			}
		})
	}
}

func TestParseTypeErrors(t *testing.T) {
	for _, in := range []string{"", "f8", "vector<f32>", "vector<0xf32>", "memref<4xbogus>", "tensor<4xf32>"} {
		if _, err := ParseType(in); err == nil {
			t.Errorf("ParseType(%q) succeeded, want error", in)
		}
	}
}

func TestDistributedDims(t *testing.T) {
	tests := []struct {
		name       string
		full, dist Type
		want       []int
		ok         bool
	}{
		{"broadcast", Vector(F32, 32), Vector(F32, 32), nil, true},
		{"innermost", Vector(F32, 4, 32), Vector(F32, 4, 1), []int{1}, true},
		{"outermost", Vector(F32, 64, 8), Vector(F32, 2, 8), []int{0}, true},
		{"two dims", Vector(F32, 64, 32), Vector(F32, 2, 1), []int{0, 1}, true},
		{"scalar", Scalar(F32), Scalar(F32), nil, true},
		{"not dividing", Vector(F32, 32), Vector(F32, 3), nil, false},
		{"rank change", Vector(F32, 32), Vector(F32, 1, 1), nil, false},
		{"elem change", Vector(F32, 32), Vector(I32, 1), nil, false},
		{"kind change", Vector(F32, 1), Scalar(F32), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DistributedDims(tt.full, tt.dist)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("dims = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("dims = %v, want %v", got, tt.want)
				}
			}
		})
	}
}
