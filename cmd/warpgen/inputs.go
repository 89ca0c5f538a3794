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
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/tools/txtar"
)

// source is one input file. A txtar archive holds several units, one per
// *.ir member; any other file is a single unit.
type source struct {
	path    string
	archive *txtar.Archive
	units   []unit
}

// unit is a piece of IR text compiled on its own.
type unit struct {
	name   string
	member int // index in the archive's files, or -1
	src    string
}

func loadSources(paths []string) ([]source, error) {
	sources := make([]source, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read input")
		}
		if filepath.Ext(path) != ".txtar" {
			sources = append(sources, source{path: path, units: []unit{{name: path, member: -1, src: string(data)}}})
			continue
		}
		ar := txtar.Parse(data)
		s := source{path: path, archive: ar}
		for i, f := range ar.Files {
			if strings.HasSuffix(f.Name, ".ir") {
				s.units = append(s.units, unit{name: path + ":" + f.Name, member: i, src: string(f.Data)})
			}
		}
		if len(s.units) == 0 {
			return nil, errors.Errorf("%s: archive has no *.ir members", path)
		}
		sources = append(sources, s)
	}
	return sources, nil
}

// flatten lists every unit of sources in order.
func flatten(sources []source) []unit {
	var units []unit
	for _, s := range sources {
		units = append(units, s.units...)
	}
	return units
}
