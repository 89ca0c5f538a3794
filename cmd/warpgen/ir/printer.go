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
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/samber/lo"
)

// Printer renders functions in the textual IR form accepted by Parse.
// Values are renumbered in definition order, so printing is deterministic
// and independent of arena handles.
type Printer struct {
	fn     *Func
	buf    strings.Builder
	indent int
	names  map[ValueID]int
	next   int
}

// Print returns the textual form of fn.
func Print(fn *Func) string {
	p := &Printer{fn: fn, names: make(map[ValueID]int)}
	p.printFunc()
	return p.buf.String()
}

// String returns the textual form of the function.
func (f *Func) String() string { return Print(f) }

func (p *Printer) name(v ValueID) string {
	if n, ok := p.names[v]; ok {
		return "%" + strconv.Itoa(n)
	}
	return fmt.Sprintf("%%?%d", v)
}

func (p *Printer) define(v ValueID) string {
	p.names[v] = p.next
	p.next++
	return p.name(v)
}

func (p *Printer) line(format string, args ...any) {
	p.buf.WriteString(strings.Repeat("  ", p.indent))
	fmt.Fprintf(&p.buf, format, args...)
	p.buf.WriteByte('\n')
}

func (p *Printer) printFunc() {
	fn := p.fn
	params := lo.Map(fn.Params(), func(v ValueID, _ int) string {
		return p.define(v) + ": " + fn.Type(v).String()
	})
	p.line("func @%s(%s) {", fn.Name, strings.Join(params, ", "))
	p.indent++
	p.printOps(fn.Body)
	p.indent--
	p.line("}")
}

func (p *Printer) printOps(b BlockID) {
	for _, id := range p.fn.Block(b).Ops {
		p.printOp(p.fn.Op(id))
	}
}

func (p *Printer) printOp(op *Op) {
	fn := p.fn
	var sb strings.Builder
	if len(op.Results) > 0 {
		sb.WriteString(strings.Join(lo.Map(op.Results, func(v ValueID, _ int) string { return p.define(v) }), ", "))
		sb.WriteString(" = ")
	}
	sb.WriteString(op.Name)
	sb.WriteByte('(')
	sb.WriteString(strings.Join(lo.Map(op.operands, func(v ValueID, _ int) string { return p.name(v) }), ", "))
	sb.WriteByte(')')
	if len(op.Attrs) > 0 {
		sb.WriteString(" ")
		sb.WriteString(formatAttrs(op.Attrs))
	}
	if len(op.Results) > 0 {
		sb.WriteString(" : ")
		sb.WriteString(strings.Join(lo.Map(op.Results, func(v ValueID, _ int) string { return fn.Type(v).String() }), ", "))
	}
	if len(op.Regions) == 0 {
		p.line("%s", sb.String())
		return
	}
	for _, r := range op.Regions {
		sb.WriteString(" {")
		p.line("%s", sb.String())
		sb.Reset()
		p.indent++
		blk := fn.Block(r)
		if len(blk.Args) > 0 {
			args := lo.Map(blk.Args, func(v ValueID, _ int) string {
				return p.define(v) + ": " + fn.Type(v).String()
			})
			p.line("^(%s):", strings.Join(args, ", "))
		}
		p.printOps(r)
		p.indent--
		sb.WriteString("}")
	}
	p.line("%s", sb.String())
}

func formatAttrs(a Attrs) string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := lo.Map(keys, func(k string, _ int) string {
		return k + " = " + formatAttr(a[k])
	})
	return "{" + strings.Join(parts, ", ") + "}"
}

func formatAttr(v any) string {
	switch v := v.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		s := strconv.FormatFloat(v, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eIN") {
			s += ".0"
		}
		return s
	case string:
		if isIdent(v) {
			return v
		}
		return strconv.Quote(v)
	case []int64:
		return "[" + strings.Join(lo.Map(v, func(x int64, _ int) string { return strconv.FormatInt(x, 10) }), ", ") + "]"
	default:
		return strconv.Quote(fmt.Sprint(v))
	}
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}
