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
	"os"

	"github.com/ajroetker/warpdist/cmd/warpgen/ir"
)

// debugWarp enables debug output for the rewrite engine.
var debugWarp = os.Getenv("DEBUG_WARP") != ""

func (rw *Rewriter) debugPrint(format string, args ...any) {
	if debugWarp || rw.opts.Debug {
		fmt.Fprintf(rw.opts.Trace, "[warp] "+format+"\n", args...)
	}
}

// InvariantError reports a violated internal invariant. Patterns raise it
// by panicking; it signals a bug in the engine, not bad input.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return "warp: invariant violated: " + e.Msg }

func invariant(cond bool, format string, args ...any) {
	if !cond {
		panic(&InvariantError{Msg: fmt.Sprintf(format, args...)})
	}
}

func opString(fn *ir.Func, op ir.OpID) string {
	o := fn.Op(op)
	return fmt.Sprintf("%s#%d", o.Name, op)
}
