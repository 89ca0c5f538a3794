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
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"
	"gopkg.in/yaml.v3"
)

// fixtureOptions is the optional "options" section of a fixture.
type fixtureOptions struct {
	Ratio   int64    `yaml:"ratio"`
	Lower   bool     `yaml:"lower"`
	Disable []string `yaml:"disable"`
}

// TestFixtures runs Distribute on the "input" section of every
// testdata/*.txtar file and matches the printed result against the
// "checks" section: each line must appear after the previous one, and a
// line starting with "!" must not appear at all.
func TestFixtures(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "*.txtar"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	for _, path := range paths {
		t.Run(strings.TrimSuffix(filepath.Base(path), ".txtar"), func(t *testing.T) {
			ar, err := txtar.ParseFile(path)
			require.NoError(t, err)
			sections := make(map[string]string)
			for _, f := range ar.Files {
				sections[f.Name] = string(f.Data)
			}
			src, ok := sections["input"]
			require.True(t, ok, "missing input section")

			var fo fixtureOptions
			require.NoError(t, yaml.Unmarshal([]byte(sections["options"]), &fo))
			opts := DefaultOptions()
			if fo.Ratio != 0 {
				opts.DistributionRatio = fo.Ratio
			}
			opts.Lower = fo.Lower
			opts.Disabled = fo.Disable

			fn := parse(t, src)
			_, err = Distribute(fn, opts)
			require.NoError(t, err)
			out := fn.String()
			matchChecks(t, out, sections["checks"])
			if opts.DistributionRatio == 32 {
				requireEquivalent(t, src, fn)
			}
		})
	}
}

func matchChecks(t *testing.T, out, checks string) {
	t.Helper()
	rest := out
	for _, line := range strings.Split(checks, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "!"):
			require.NotContains(t, out, line[1:], "output:\n%s", out)
		default:
			i := strings.Index(rest, line)
			require.GreaterOrEqual(t, i, 0, "%q not found in order in:\n%s", line, out)
			rest = rest[i+len(line):]
		}
	}
}
