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
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ajroetker/warpdist/cmd/warpgen/ir"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [files...]",
		Short: "Parse and verify the given inputs without rewriting them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := loadSources(args)
			if err != nil {
				return err
			}
			failed := 0
			units := flatten(sources)
			for _, u := range units {
				n, err := verifyUnit(u)
				if err != nil {
					reportError(cmd.ErrOrStderr(), err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d functions)\n", u.name, n)
			}
			if failed > 0 {
				return errors.Errorf("%d of %d inputs failed", failed, len(units))
			}
			return nil
		},
	}
}

func verifyUnit(u unit) (int, error) {
	fns, err := ir.Parse(u.name, u.src)
	if err != nil {
		return 0, err
	}
	for _, fn := range fns {
		if err := ir.Verify(fn); err != nil {
			return 0, errors.Wrap(err, u.name)
		}
	}
	return len(fns), nil
}
