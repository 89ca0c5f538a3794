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
	"io"
	"os"
	"slices"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/ajroetker/warpdist/cmd/warpgen/warp"
)

// Config is the engine configuration, as read from a YAML file.
type Config struct {
	DistributionRatio int64    `yaml:"distribution_ratio"`
	DistributionDim   string   `yaml:"distribution_dim"`
	MaxRewrites       int      `yaml:"max_rewrites"`
	MaxRetries        int      `yaml:"max_retries"`
	HoistUniform      bool     `yaml:"hoist_uniform"`
	DistributeWrites  bool     `yaml:"distribute_writes"`
	Lower             bool     `yaml:"lower"`
	MemorySpace       string   `yaml:"memory_space"`
	Disable           []string `yaml:"disable"`
	Debug             bool     `yaml:"debug"`
}

// Distribution dimension names.
const (
	DimInnermost = "innermost"
	DimOutermost = "outermost"
)

// DefaultConfig returns the configuration matching warp.DefaultOptions.
func DefaultConfig() Config {
	d := warp.DefaultOptions()
	return Config{
		DistributionRatio: d.DistributionRatio,
		DistributionDim:   DimInnermost,
		MaxRewrites:       d.MaxRewrites,
		MaxRetries:        d.MaxRetries,
		HoistUniform:      d.HoistUniform,
		DistributeWrites:  d.DistributeWrites,
		Lower:             d.Lower,
		MemorySpace:       warp.DefaultMemorySpace,
	}
}

// LoadConfig reads a YAML configuration file. Keys absent from the file
// keep their defaults; unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrap(err, "config")
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.WithMessagef(err, "config %s", path)
	}
	return cfg, nil
}

// Validate checks value ranges and pattern names.
func (c Config) Validate() error {
	if c.DistributionRatio <= 0 {
		return errors.Errorf("distribution_ratio must be positive, got %d", c.DistributionRatio)
	}
	if c.DistributionDim != DimInnermost && c.DistributionDim != DimOutermost {
		return errors.Errorf("distribution_dim must be %q or %q, got %q", DimInnermost, DimOutermost, c.DistributionDim)
	}
	if c.MaxRewrites <= 0 || c.MaxRetries <= 0 {
		return errors.Errorf("max_rewrites and max_retries must be positive")
	}
	names := lo.Map(warp.AllPatterns(), func(p warp.Pattern, _ int) string { return p.Name })
	for _, name := range c.Disable {
		if !slices.Contains(names, name) {
			return errors.Errorf("unknown pattern %q in disable", name)
		}
	}
	return nil
}

// Options converts the configuration into engine options.
func (c Config) Options() warp.Options {
	opts := warp.DefaultOptions()
	opts.DistributionRatio = c.DistributionRatio
	if c.DistributionDim == DimOutermost {
		opts.DistributionMap = warp.OutermostDim
	}
	opts.MaxRewrites = c.MaxRewrites
	opts.MaxRetries = c.MaxRetries
	opts.HoistUniform = c.HoistUniform
	opts.DistributeWrites = c.DistributeWrites
	opts.Lower = c.Lower
	opts.Allocator = warp.SharedAllocator{Space: c.MemorySpace}
	opts.Disabled = slices.Clone(c.Disable)
	opts.Debug = c.Debug
	return opts
}
