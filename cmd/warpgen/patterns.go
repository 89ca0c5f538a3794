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
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ajroetker/warpdist/cmd/warpgen/warp"
)

func newPatternsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "List the rewrite patterns in the order they are tried",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PRIORITY\tROOT\tNAME\tDESCRIPTION")
			for _, p := range warp.AllPatterns() {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", p.Priority, p.Root, p.Name, patternTitle(p.Name))
			}
			return tw.Flush()
		},
	}
}

var titleCaser = cases.Title(language.English)

// patternTitle renders a pattern name for people: "sink-transfer-read"
// becomes "Sink Transfer Read".
func patternTitle(name string) string {
	return titleCaser.String(strings.ReplaceAll(name, "-", " "))
}
