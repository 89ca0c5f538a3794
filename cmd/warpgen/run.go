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
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/tools/txtar"

	"github.com/ajroetker/warpdist/cmd/warpgen/internal/workerpool"
	"github.com/ajroetker/warpdist/cmd/warpgen/interp"
	"github.com/ajroetker/warpdist/cmd/warpgen/ir"
	"github.com/ajroetker/warpdist/cmd/warpgen/warp"
)

type runFlags struct {
	config  string
	lower   bool
	noHoist bool
	ratio   int64
	stats   bool
	check   bool
	jobs    int
	lanes   int
	seeds   int
	debug   bool
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run [files...]",
		Short: "Distribute the warp regions of the given inputs and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolve(cmd)
			if err != nil {
				return err
			}
			return runInputs(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args, cfg, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.config, "config", "", "YAML configuration file")
	fl.BoolVar(&f.lower, "lower", false, "lower the remaining warp regions to lane-0 guarded code")
	fl.BoolVar(&f.noHoist, "no-hoist", false, "do not hoist uniform scalar code out of warp regions")
	fl.Int64Var(&f.ratio, "ratio", 32, "number of lanes a transfer_write is distributed across")
	fl.BoolVar(&f.stats, "stats", false, "report pattern statistics on stderr")
	fl.BoolVar(&f.check, "check", false, "check that rewriting preserves behavior with the interpreter")
	fl.IntVar(&f.jobs, "jobs", 0, "inputs compiled in parallel (0 means GOMAXPROCS)")
	fl.IntVar(&f.lanes, "lanes", 32, "lanes simulated by --check")
	fl.IntVar(&f.seeds, "seeds", 3, "input seeds tried by --check")
	fl.BoolVar(&f.debug, "debug", false, "trace applied rewrites on stderr")
	return cmd
}

// resolve loads the configuration file, then applies the flags given on
// the command line.
func (f runFlags) resolve(cmd *cobra.Command) (Config, error) {
	cfg := DefaultConfig()
	if f.config != "" {
		var err error
		if cfg, err = LoadConfig(f.config); err != nil {
			return cfg, err
		}
	}
	fl := cmd.Flags()
	if fl.Changed("lower") {
		cfg.Lower = f.lower
	}
	if fl.Changed("no-hoist") {
		cfg.HoistUniform = !f.noHoist
	}
	if fl.Changed("ratio") {
		cfg.DistributionRatio = f.ratio
	}
	if fl.Changed("debug") {
		cfg.Debug = f.debug
	}
	return cfg, cfg.Validate()
}

// funcStats are the statistics of one rewritten function.
type funcStats struct {
	name  string
	stats warp.Stats
}

// result is the outcome of compiling one unit.
type result struct {
	text  string
	stats []funcStats
	err   error
}

func runInputs(ctx context.Context, stdout, stderr io.Writer, paths []string, cfg Config, f runFlags) error {
	sources, err := loadSources(paths)
	if err != nil {
		return err
	}
	units := flatten(sources)
	opts := cfg.Options()
	opts.Trace = stderr

	results := make([]result, len(units))
	pool := workerpool.New(f.jobs)
	if cfg.Debug {
		fmt.Fprintf(stderr, "[warpgen] %d inputs on %d workers\n", len(units), pool.NumWorkers())
	}
	// Failures are reported per unit and never cancel the others.
	_ = pool.Run(ctx, len(units), func(_ context.Context, i int) error {
		results[i] = compileUnit(units[i], opts, f, pool)
		return nil
	})

	next := 0
	for _, s := range sources {
		rs := results[next : next+len(s.units)]
		next += len(s.units)
		if s.archive == nil {
			fmt.Fprint(stdout, rs[0].text)
			continue
		}
		ar := &txtar.Archive{Comment: s.archive.Comment, Files: slices.Clone(s.archive.Files)}
		for j, u := range s.units {
			if rs[j].err == nil {
				ar.Files[u.member].Data = []byte(rs[j].text)
			}
		}
		fmt.Fprint(stdout, string(txtar.Format(ar)))
	}

	failed := 0
	for i, r := range results {
		if f.stats {
			for _, fs := range r.stats {
				fmt.Fprintln(stderr, formatStats(units[i].name, fs))
			}
		}
		if r.err != nil {
			reportError(stderr, r.err)
			failed++
		}
	}
	if failed > 0 {
		return errors.Errorf("%d of %d inputs failed", failed, len(units))
	}
	return nil
}

// compileUnit parses, verifies and distributes every function of u. A
// violated engine invariant is reported as an internal error of u. With
// --check, the interpreter seeds run on pool.
func compileUnit(u unit, opts warp.Options, f runFlags, pool *workerpool.Pool) (r result) {
	defer func() {
		if p := recover(); p != nil {
			if ie, ok := p.(*warp.InvariantError); ok {
				r.err = errors.Wrapf(ie, "%s: internal error", u.name)
				return
			}
			r.err = errors.Errorf("%s: internal error: %v", u.name, p)
		}
	}()
	fns, err := ir.Parse(u.name, u.src)
	if err != nil {
		return result{err: err}
	}
	var sb strings.Builder
	for i, fn := range fns {
		if err := ir.Verify(fn); err != nil {
			return result{err: errors.Wrap(err, u.name)}
		}
		original := fn.String()
		stats, err := warp.Distribute(fn, opts)
		r.stats = append(r.stats, funcStats{name: fn.Name, stats: stats})
		if err != nil {
			return result{stats: r.stats, err: errors.Wrapf(err, "%s: @%s", u.name, fn.Name)}
		}
		if err := ir.Verify(fn); err != nil {
			return result{stats: r.stats, err: errors.Wrapf(err, "%s: internal error after rewriting", u.name)}
		}
		if f.check {
			before, err := ir.ParseFunc(original)
			if err != nil {
				return result{stats: r.stats, err: errors.Wrap(err, u.name)}
			}
			errs := make([]error, f.seeds)
			pool.ParallelFor(f.seeds, func(i int) {
				errs[i] = interp.Equivalent(before, fn, f.lanes, uint64(i+1))
			})
			if err, found := lo.Find(errs, func(err error) bool { return err != nil }); found {
				return result{stats: r.stats, err: errors.Wrapf(err, "%s: @%s", u.name, fn.Name)}
			}
		}
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(fn.String())
	}
	r.text = sb.String()
	return r
}

func formatStats(unit string, fs funcStats) string {
	s := fs.stats
	names := lo.Keys(s.Applied)
	slices.Sort(names)
	applied := lo.Map(names, func(name string, _ int) string {
		return fmt.Sprintf("%s=%d", name, s.Applied[name])
	})
	return fmt.Sprintf("%s: @%s: rounds=%d rewrites=%d erased=%d [%s]",
		unit, fs.name, s.Rounds, s.Rewrites, s.Erased, strings.Join(applied, " "))
}
