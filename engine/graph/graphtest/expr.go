package graphtest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/knakk/rdf"

	"github.com/phisdata/phis-dal/engine/domain"
)

type solution map[string]rdf.Term

// expr evaluates to an rdf.Term, a bool, or nil on error.
type expr func(s solution) any

func (p *parser) parseExpr() (expr, error) { return p.parseOr() }

func (p *parser) parseOr() (expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept(tPunct, "||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l, r := left, right
		left = func(s solution) any { return ebv(l(s)) || ebv(r(s)) }
	}
	return left, nil
}

func (p *parser) parseAnd() (expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.accept(tPunct, "&&") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l, r := left, right
		left = func(s solution) any { return ebv(l(s)) && ebv(r(s)) }
	}
	return left, nil
}

func (p *parser) parseUnary() (expr, error) {
	if p.accept(tPunct, "!") {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return func(s solution) any { return !ebv(inner(s)) }, nil
	}
	return p.parseRelational()
}

func (p *parser) parseRelational() (expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	switch {
	case t.kind == tPunct && (t.val == "=" || t.val == "!=" || t.val == "<" || t.val == ">" || t.val == "<=" || t.val == ">="):
		p.next()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return relational(t.val, left, right), nil
	case t.is(tWord, "IN"):
		p.next()
		list, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return membership(left, list, false), nil
	case t.is(tWord, "NOT"):
		p.next()
		if err := p.expect(tWord, "IN"); err != nil {
			return nil, err
		}
		list, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return membership(left, list, true), nil
	}
	return left, nil
}

func (p *parser) parseList() ([]expr, error) {
	if err := p.expect(tPunct, "("); err != nil {
		return nil, err
	}
	var out []expr
	for !p.accept(tPunct, ")") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		p.accept(tPunct, ",")
	}
	return out, nil
}

func (p *parser) parsePrimary() (expr, error) {
	t := p.next()
	switch t.kind {
	case tPunct:
		if t.val != "(" {
			return nil, fmt.Errorf("unexpected %s in expression", t)
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return e, p.expect(tPunct, ")")
	case tVar:
		name := t.val
		return func(s solution) any {
			if v, ok := s[name]; ok {
				return v
			}
			return nil
		}, nil
	case tIRI, tLit, tNum:
		term, err := concrete(t)
		if err != nil {
			return nil, err
		}
		return func(solution) any { return term }, nil
	case tWord:
		return p.parseCall(strings.ToUpper(t.val))
	}
	return nil, fmt.Errorf("unexpected %s in expression", t)
}

func (p *parser) parseCall(name string) (expr, error) {
	if name == "BOUND" {
		if err := p.expect(tPunct, "("); err != nil {
			return nil, err
		}
		v := p.next()
		if v.kind != tVar {
			return nil, fmt.Errorf("BOUND expects a variable, got %s", v)
		}
		if err := p.expect(tPunct, ")"); err != nil {
			return nil, err
		}
		return func(s solution) any { _, ok := s[v.val]; return ok }, nil
	}
	args, err := p.parseList()
	if err != nil {
		return nil, err
	}
	switch name {
	case "STR":
		if len(args) != 1 {
			return nil, fmt.Errorf("STR takes one argument")
		}
		return func(s solution) any {
			t, ok := args[0](s).(rdf.Term)
			if !ok {
				return nil
			}
			return rdf.NewTypedLiteral(t.String(), domain.XSDString)
		}, nil
	case "REGEX":
		if len(args) < 2 {
			return nil, fmt.Errorf("REGEX takes two or three arguments")
		}
		return func(s solution) any {
			text, ok1 := lexical(args[0](s))
			pat, ok2 := lexical(args[1](s))
			if !ok1 || !ok2 {
				return nil
			}
			if len(args) == 3 {
				if flags, ok := lexical(args[2](s)); ok && strings.Contains(flags, "i") {
					pat = "(?i)" + pat
				}
			}
			re, err := regexp.Compile(pat)
			if err != nil {
				return nil
			}
			return re.MatchString(text)
		}, nil
	case "STRSTARTS", "CONTAINS":
		if len(args) != 2 {
			return nil, fmt.Errorf("%s takes two arguments", name)
		}
		return func(s solution) any {
			a, ok1 := lexical(args[0](s))
			b, ok2 := lexical(args[1](s))
			if !ok1 || !ok2 {
				return nil
			}
			if name == "STRSTARTS" {
				return strings.HasPrefix(a, b)
			}
			return strings.Contains(a, b)
		}, nil
	}
	return nil, fmt.Errorf("unsupported function %s", name)
}

func relational(op string, left, right expr) expr {
	return func(s solution) any {
		a, ok1 := left(s).(rdf.Term)
		b, ok2 := right(s).(rdf.Term)
		if !ok1 || !ok2 {
			return nil
		}
		if op == "=" || op == "!=" {
			eq := sameTerm(a, b)
			if !eq {
				if c, ok := compareLiterals(a, b); ok {
					eq = c == 0
				}
			}
			return eq == (op == "=")
		}
		c, ok := compareLiterals(a, b)
		if !ok {
			return nil
		}
		switch op {
		case "<":
			return c < 0
		case ">":
			return c > 0
		case "<=":
			return c <= 0
		}
		return c >= 0
	}
}

func membership(left expr, list []expr, negate bool) expr {
	return func(s solution) any {
		a, ok := left(s).(rdf.Term)
		if !ok {
			return nil
		}
		for _, e := range list {
			if b, ok := e(s).(rdf.Term); ok && sameTerm(a, b) {
				return !negate
			}
		}
		return negate
	}
}

// ebv is the effective boolean value; errors are false.
func ebv(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case rdf.Literal:
		return x.String() == "true" || x.String() == "1"
	}
	return false
}

func lexical(v any) (string, bool) {
	t, ok := v.(rdf.Term)
	if !ok || t.Type() == rdf.TermBlank {
		return "", false
	}
	return t.String(), true
}

func key(t rdf.Term) string { return t.Serialize(rdf.NTriples) }

func sameTerm(a, b rdf.Term) bool { return key(a) == key(b) }

// compareLiterals orders two literals as date-times, numbers or strings.
func compareLiterals(a, b rdf.Term) (int, bool) {
	la, ok1 := a.(rdf.Literal)
	lb, ok2 := b.(rdf.Literal)
	if !ok1 || !ok2 {
		if a.Type() == rdf.TermIRI && b.Type() == rdf.TermIRI {
			return strings.Compare(a.String(), b.String()), true
		}
		return 0, false
	}
	if isDateTime(la) && isDateTime(lb) {
		ta, err1 := time.Parse(time.RFC3339Nano, la.String())
		tb, err2 := time.Parse(time.RFC3339Nano, lb.String())
		if err1 != nil || err2 != nil {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	fa, err1 := strconv.ParseFloat(la.String(), 64)
	fb, err2 := strconv.ParseFloat(lb.String(), 64)
	if err1 == nil && err2 == nil && isNumeric(la) && isNumeric(lb) {
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	return strings.Compare(la.String(), lb.String()), true
}

func isDateTime(l rdf.Literal) bool { return l.DataType == domain.XSDDateTime }

func isNumeric(l rdf.Literal) bool {
	return strings.HasPrefix(l.DataType.String(), "http://www.w3.org/2001/XMLSchema#") &&
		l.DataType != domain.XSDString && l.DataType != domain.XSDDateTime && l.DataType != domain.XSDBoolean
}
