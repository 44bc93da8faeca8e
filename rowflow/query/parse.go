package query

import (
	"fmt"
	"strconv"
	"strings"
	"text/scanner"

	"github.com/wbrown/janus-rowflow/rowflow"
)

// Parse reads a filter written as comparisons combined with and/or/not and
// parentheses, e.g.
//
//	l.k = r.k and (r.v != "x" or r.n >= 10)
//
// Operands are qualified field names, numbers, double-quoted strings,
// true, false and null. This is a convenience for tools and tests; query
// languages proper live outside this module.
func Parse(src string) (Predicate, error) {
	p := &parser{}
	p.s.Init(strings.NewReader(src))
	p.s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats | scanner.ScanStrings
	p.s.Error = func(s *scanner.Scanner, msg string) {
		if p.err == nil {
			p.err = fmt.Errorf("parse %q: %s at %s", src, msg, s.Position)
		}
	}
	p.next()

	pred := p.parseOr()
	if p.err == nil && p.tok != scanner.EOF {
		p.fail("unexpected %q", p.text)
	}
	if p.err != nil {
		return nil, p.err
	}
	return pred, nil
}

// MustParse is Parse for literals known to be valid; it panics on error
func MustParse(src string) Predicate {
	p, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return p
}

type parser struct {
	s    scanner.Scanner
	tok  rune
	text string
	err  error
}

func (p *parser) next() {
	p.tok = p.s.Scan()
	p.text = p.s.TokenText()
}

func (p *parser) fail(format string, args ...any) {
	if p.err == nil {
		p.err = fmt.Errorf("parse: "+format+" at %s", append(args, p.s.Position)...)
	}
}

func (p *parser) keyword(word string) bool {
	return p.tok == scanner.Ident && strings.EqualFold(p.text, word)
}

func (p *parser) parseOr() Predicate {
	terms := []Predicate{p.parseAnd()}
	for p.err == nil && p.keyword("or") {
		p.next()
		terms = append(terms, p.parseAnd())
	}
	if len(terms) == 1 {
		return terms[0]
	}
	return Or{Terms: terms}
}

func (p *parser) parseAnd() Predicate {
	terms := []Predicate{p.parseUnary()}
	for p.err == nil && p.keyword("and") {
		p.next()
		terms = append(terms, p.parseUnary())
	}
	if len(terms) == 1 {
		return terms[0]
	}
	return And{Terms: terms}
}

func (p *parser) parseUnary() Predicate {
	switch {
	case p.err != nil:
		return False
	case p.keyword("not"):
		p.next()
		return Not{Term: p.parseUnary()}
	case p.tok == '(':
		p.next()
		inner := p.parseOr()
		if p.tok != ')' {
			p.fail("expected )")
			return False
		}
		p.next()
		return inner
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() Predicate {
	left := p.parseOperand()
	if p.err != nil {
		return False
	}
	// A lone true/false is a constant predicate
	if c, ok := left.(Const); ok && c.Value.Kind() == rowflow.KindBool && !p.atOperator() {
		b, _ := c.Value.AsBool()
		return Bool(b)
	}
	op := p.parseOperator()
	right := p.parseOperand()
	if p.err != nil {
		return False
	}
	return Comparison{Op: op, Left: left, Right: right}
}

func (p *parser) atOperator() bool {
	switch p.tok {
	case '=', '!', '<', '>':
		return true
	}
	return false
}

func (p *parser) parseOperator() rowflow.CompareOp {
	if !p.atOperator() {
		p.fail("expected comparison operator, got %q", p.text)
		return rowflow.OpEQ
	}
	text := string(p.tok)
	if next := p.s.Peek(); next == '=' || (p.tok == '<' && next == '>') {
		p.s.Next()
		text += string(next)
	}
	p.next()
	op, err := rowflow.ParseOp(text)
	if err != nil {
		p.fail("%v", err)
		return rowflow.OpEQ
	}
	return op
}

func (p *parser) parseOperand() ValueExpr {
	negative := false
	if p.tok == '-' {
		negative = true
		p.next()
	}
	switch p.tok {
	case scanner.Int:
		i, err := strconv.ParseInt(p.text, 10, 64)
		if err != nil {
			p.fail("bad integer %q", p.text)
		}
		p.next()
		if negative {
			i = -i
		}
		return Const{Value: rowflow.Int(i)}
	case scanner.Float:
		f, err := strconv.ParseFloat(p.text, 64)
		if err != nil {
			p.fail("bad number %q", p.text)
		}
		p.next()
		if negative {
			f = -f
		}
		return Const{Value: rowflow.Float(f)}
	}
	if negative {
		p.fail("expected number after -")
		return Const{}
	}
	switch p.tok {
	case scanner.String:
		s, err := strconv.Unquote(p.text)
		if err != nil {
			p.fail("bad string %s", p.text)
		}
		p.next()
		return Const{Value: rowflow.String(s)}
	case scanner.Ident:
		switch strings.ToLower(p.text) {
		case "true", "false":
			v := strings.EqualFold(p.text, "true")
			p.next()
			return Const{Value: rowflow.Bool(v)}
		case "null":
			p.next()
			return Const{}
		}
		name := p.text
		p.next()
		for p.tok == '.' {
			p.next()
			if p.tok != scanner.Ident {
				p.fail("expected field name after .")
				return Const{}
			}
			name += "." + p.text
			p.next()
		}
		return Field{Name: name}
	}
	p.fail("unexpected %q", p.text)
	return Const{}
}
