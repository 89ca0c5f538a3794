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
	"strconv"
	"strings"
	"text/scanner"

	"github.com/pkg/errors"
)

type token struct {
	kind rune
	text string
	pos  scanner.Position
}

// parseError aborts parsing; it is recovered in Parse.
type parseError struct{ err error }

type parser struct {
	toks   []token
	pos    int
	fn     *Func
	b      *Builder
	values map[string]ValueID
}

// Parse parses every function of a textual IR file.
func Parse(filename, src string) (fns []*Func, err error) {
	toks, err := tokenize(filename, src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	defer func() {
		if r := recover(); r != nil {
			pe, ok := r.(parseError)
			if !ok {
				panic(r)
			}
			fns, err = nil, pe.err
		}
	}()
	for p.peek(0).kind != scanner.EOF {
		fns = append(fns, p.parseFunc())
	}
	return fns, nil
}

// ParseFunc parses a source holding exactly one function.
func ParseFunc(src string) (*Func, error) {
	fns, err := Parse("<input>", src)
	if err != nil {
		return nil, err
	}
	if len(fns) != 1 {
		return nil, errors.Errorf("expected exactly one function, found %d", len(fns))
	}
	return fns[0], nil
}

// MustParseFunc is like ParseFunc but panics on error. It is meant for tests
// and fixed inputs.
func MustParseFunc(src string) *Func {
	fn, err := ParseFunc(src)
	if err != nil {
		panic(err)
	}
	return fn
}

func tokenize(filename, src string) ([]token, error) {
	var s scanner.Scanner
	s.Init(strings.NewReader(src))
	s.Filename = filename
	s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats |
		scanner.ScanStrings | scanner.ScanComments | scanner.SkipComments
	var scanErr error
	s.Error = func(s *scanner.Scanner, msg string) {
		if scanErr == nil {
			scanErr = errors.Errorf("%s: %s", s.Position, msg)
		}
	}
	var toks []token
	for tok := s.Scan(); tok != scanner.EOF; tok = s.Scan() {
		toks = append(toks, token{kind: tok, text: s.TokenText(), pos: s.Position})
	}
	if scanErr != nil {
		return nil, scanErr
	}
	toks = append(toks, token{kind: scanner.EOF, pos: s.Pos()})
	return toks, nil
}

func (p *parser) fail(format string, args ...any) {
	tok := p.peek(0)
	panic(parseError{errors.Errorf("%s: %s", tok.pos, fmt.Sprintf(format, args...))})
}

func (p *parser) peek(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() token {
	tok := p.peek(0)
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return tok
}

func (p *parser) is(kind rune) bool { return p.peek(0).kind == kind }

func (p *parser) expect(kind rune) token {
	if !p.is(kind) {
		p.fail("expected %s, found %q", scanner.TokenString(kind), p.peek(0).text)
	}
	return p.next()
}

func (p *parser) expectKeyword(word string) {
	if tok := p.peek(0); tok.kind != scanner.Ident || tok.text != word {
		p.fail("expected %q, found %q", word, tok.text)
	}
	p.next()
}

func (p *parser) valueName() string {
	p.expect('%')
	tok := p.next()
	if tok.kind != scanner.Ident && tok.kind != scanner.Int {
		p.fail("expected value name after %%, found %q", tok.text)
	}
	return tok.text
}

func (p *parser) define(name string, v ValueID) {
	if _, ok := p.values[name]; ok {
		p.fail("redefinition of %%%s", name)
	}
	p.values[name] = v
}

func (p *parser) lookup(name string) ValueID {
	v, ok := p.values[name]
	if !ok {
		p.fail("use of undefined value %%%s", name)
	}
	return v
}

func (p *parser) parseType() Type {
	tok := p.expect(scanner.Ident)
	text := tok.text
	if text == "vector" || text == "memref" {
		p.expect('<')
		var sb strings.Builder
		for !p.is('>') {
			if p.is(scanner.EOF) {
				p.fail("unterminated type")
			}
			sb.WriteString(p.next().text)
		}
		p.next()
		text += "<" + sb.String() + ">"
	}
	t, err := ParseType(text)
	if err != nil {
		p.fail("%v", err)
	}
	return t
}

// parseParams parses "%a: T, %b: T" up to (not including) the closing paren.
func (p *parser) parseParams() ([]string, []Type) {
	var names []string
	var types []Type
	for !p.is(')') {
		if len(names) > 0 {
			p.expect(',')
		}
		names = append(names, p.valueName())
		p.expect(':')
		types = append(types, p.parseType())
	}
	return names, types
}

func (p *parser) parseFunc() *Func {
	p.expectKeyword("func")
	p.expect('@')
	name := p.expect(scanner.Ident).text
	p.expect('(')
	names, types := p.parseParams()
	p.expect(')')
	p.fn = NewFunc(name, types...)
	p.values = make(map[string]ValueID)
	for i, n := range names {
		p.define(n, p.fn.Params()[i])
	}
	p.b = NewBuilder(p.fn)
	p.expect('{')
	for !p.is('}') {
		p.parseOp()
	}
	p.next()
	return p.fn
}

func (p *parser) parseOp() {
	var results []string
	if p.is('%') {
		results = append(results, p.valueName())
		for p.is(',') {
			p.next()
			results = append(results, p.valueName())
		}
		p.expect('=')
	}
	name := p.expect(scanner.Ident).text
	p.expect('(')
	var operands []ValueID
	for !p.is(')') {
		if len(operands) > 0 {
			p.expect(',')
		}
		operands = append(operands, p.lookup(p.valueName()))
	}
	p.next()

	var attrs Attrs
	if p.is('{') && p.peek(1).kind == scanner.Ident && p.peek(2).kind == '=' {
		attrs = p.parseAttrs()
	}
	var types []Type
	if p.is(':') {
		p.next()
		types = append(types, p.parseType())
		for p.is(',') {
			p.next()
			types = append(types, p.parseType())
		}
	}
	if len(types) != len(results) {
		p.fail("%s defines %d values but declares %d result types", name, len(results), len(types))
	}

	op := p.b.Create(name, operands, types, attrs)
	for i, r := range results {
		p.define(r, p.fn.Op(op).Results[i])
	}
	for p.is('{') {
		p.parseRegion(op)
	}
}

func (p *parser) parseRegion(op OpID) {
	p.expect('{')
	var names []string
	var types []Type
	if p.is('^') {
		p.next()
		p.expect('(')
		names, types = p.parseParams()
		p.expect(')')
		p.expect(':')
	}
	blk := p.fn.AddRegion(op, types...)
	for i, n := range names {
		p.define(n, p.fn.Block(blk).Args[i])
	}
	outer := p.b.block
	p.b.SetInsertionPointToEnd(blk)
	for !p.is('}') {
		if p.is(scanner.EOF) {
			p.fail("unterminated region")
		}
		p.parseOp()
	}
	p.next()
	p.b.SetInsertionPointToEnd(outer)
}

func (p *parser) parseAttrs() Attrs {
	attrs := Attrs{}
	p.expect('{')
	for !p.is('}') {
		if len(attrs) > 0 {
			p.expect(',')
		}
		key := p.expect(scanner.Ident).text
		p.expect('=')
		attrs[key] = p.parseAttrValue()
	}
	p.next()
	return attrs
}

func (p *parser) parseNumber() any {
	neg := false
	if p.is('-') {
		p.next()
		neg = true
	}
	tok := p.next()
	switch tok.kind {
	case scanner.Int:
		v, err := strconv.ParseInt(tok.text, 0, 64)
		if err != nil {
			p.fail("bad integer %q", tok.text)
		}
		if neg {
			v = -v
		}
		return v
	case scanner.Float:
		v, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			p.fail("bad float %q", tok.text)
		}
		if neg {
			v = -v
		}
		return v
	default:
		p.fail("expected number, found %q", tok.text)
		return nil
	}
}

func (p *parser) parseAttrValue() any {
	switch tok := p.peek(0); tok.kind {
	case scanner.Int, scanner.Float, '-':
		return p.parseNumber()
	case scanner.String:
		p.next()
		s, err := strconv.Unquote(tok.text)
		if err != nil {
			p.fail("bad string %s", tok.text)
		}
		return s
	case scanner.Ident:
		p.next()
		return tok.text
	case '[':
		p.next()
		list := []int64{}
		for !p.is(']') {
			if len(list) > 0 {
				p.expect(',')
			}
			v, ok := p.parseNumber().(int64)
			if !ok {
				p.fail("list attributes hold integers only")
			}
			list = append(list, v)
		}
		p.next()
		return list
	default:
		p.fail("unexpected %q in attribute value", tok.text)
		return nil
	}
}
