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

// Command warpgen distributes warp regions of textual vector IR across
// lanes.
//
// Usage:
//
//	warpgen run kernel.ir                  # propagate and distribute writes
//	warpgen run --lower --check kernel.ir  # also lower, then compare behavior
//	warpgen run --config warp.yaml a.ir b.txtar
//	warpgen verify kernel.ir
//	warpgen patterns
//
// Inputs are files holding one or more functions, or txtar archives whose
// *.ir members are each compiled; archives are printed back with the
// rewritten members.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "warpgen",
		Short:         "Distribute warp regions of vector IR across lanes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newVerifyCmd(), newPatternsCmd())
	return root
}

// reportError prints err to w, colouring the prefix when w is a terminal.
func reportError(w io.Writer, err error) {
	prefix := "error:"
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		prefix = "\x1b[31merror:\x1b[0m"
	}
	fmt.Fprintf(w, "%s %v\n", prefix, err)
}
