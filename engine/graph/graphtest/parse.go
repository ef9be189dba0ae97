package graphtest

import (
	"fmt"
	"strconv"

	"github.com/knakk/rdf"

	"github.com/phisdata/phis-dal/engine/domain"
)

// patTerm is a triple pattern position: a variable or a concrete term.
type patTerm struct {
	v   string
	t   rdf.Term
	mod string
}

type triplePat struct{ s, p, o patTerm }

type optionalPat struct{ g *group }

type graphPat struct {
	name string
	g    *group
}

type unionPat struct{ branches []*group }

type valuesPat struct {
	v     string
	terms []rdf.Term
}

type group struct {
	elems   []any
	filters []expr
}

type orderKey struct {
	v    string
	desc bool
}

type countProj struct {
	of, as   string
	distinct bool
}

type query struct {
	ask      bool
	distinct bool
	vars     []string
	count    *countProj
	from     []string
	where    *group
	groupBy  []string
	orderBy  []orderKey
	limit    int
	offset   int
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tEOF {
		p.pos++
	}
	return t
}

func (p *parser) accept(kind tokKind, val string) bool {
	if p.peek().is(kind, val) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(kind tokKind, val string) error {
	if !p.accept(kind, val) {
		return fmt.Errorf("expected %q, got %s", val, p.peek())
	}
	return nil
}

func parseQuery(src string) (*query, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	q := &query{limit: -1}

	switch {
	case p.accept(tWord, "ASK"):
		q.ask = true
	case p.accept(tWord, "SELECT"):
		q.distinct = p.accept(tWord, "DISTINCT")
		if err := p.parseProjection(q); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported query form at %s", p.peek())
	}
	for p.accept(tWord, "FROM") {
		t := p.next()
		if t.kind != tIRI {
			return nil, fmt.Errorf("FROM expects an IRI, got %s", t)
		}
		q.from = append(q.from, t.val)
	}
	p.accept(tWord, "WHERE")
	if q.where, err = p.parseGroup(); err != nil {
		return nil, err
	}
	for p.peek().kind != tEOF {
		switch {
		case p.accept(tWord, "GROUP"):
			if err := p.expect(tWord, "BY"); err != nil {
				return nil, err
			}
			for p.peek().kind == tVar {
				q.groupBy = append(q.groupBy, p.next().val)
			}
		case p.accept(tWord, "ORDER"):
			if err := p.expect(tWord, "BY"); err != nil {
				return nil, err
			}
		orderLoop:
			for {
				desc := false
				switch {
				case p.accept(tWord, "DESC"):
					desc = true
				case p.accept(tWord, "ASC"):
				case p.peek().kind == tVar:
					q.orderBy = append(q.orderBy, orderKey{v: p.next().val})
					continue
				default:
					break orderLoop
				}
				if err := p.expect(tPunct, "("); err != nil {
					return nil, err
				}
				v := p.next()
				if v.kind != tVar {
					return nil, fmt.Errorf("ORDER BY expects a variable, got %s", v)
				}
				if err := p.expect(tPunct, ")"); err != nil {
					return nil, err
				}
				q.orderBy = append(q.orderBy, orderKey{v: v.val, desc: desc})
			}
		case p.accept(tWord, "LIMIT"):
			n, err := strconv.Atoi(p.next().val)
			if err != nil {
				return nil, err
			}
			q.limit = n
		case p.accept(tWord, "OFFSET"):
			n, err := strconv.Atoi(p.next().val)
			if err != nil {
				return nil, err
			}
			q.offset = n
		default:
			return nil, fmt.Errorf("unexpected %s after WHERE", p.peek())
		}
	}
	return q, nil
}

func (p *parser) parseProjection(q *query) error {
	if p.accept(tPunct, "*") {
		return nil
	}
	for {
		switch t := p.peek(); {
		case t.kind == tVar:
			q.vars = append(q.vars, p.next().val)
		case t.is(tPunct, "("):
			p.next()
			if err := p.expect(tWord, "COUNT"); err != nil {
				return err
			}
			if err := p.expect(tPunct, "("); err != nil {
				return err
			}
			c := &countProj{distinct: p.accept(tWord, "DISTINCT")}
			v := p.next()
			if v.kind != tVar {
				return fmt.Errorf("COUNT expects a variable, got %s", v)
			}
			c.of = v.val
			if err := p.expect(tPunct, ")"); err != nil {
				return err
			}
			if err := p.expect(tWord, "AS"); err != nil {
				return err
			}
			as := p.next()
			if as.kind != tVar {
				return fmt.Errorf("AS expects a variable, got %s", as)
			}
			c.as = as.val
			if err := p.expect(tPunct, ")"); err != nil {
				return err
			}
			q.count = c
		default:
			return nil
		}
	}
}

func (p *parser) parseGroup() (*group, error) {
	if err := p.expect(tPunct, "{"); err != nil {
		return nil, err
	}
	g := &group{}
	for !p.accept(tPunct, "}") {
		t := p.peek()
		switch {
		case t.kind == tEOF:
			return nil, fmt.Errorf("unterminated group")
		case p.accept(tPunct, "."):
		case p.accept(tWord, "OPTIONAL"):
			inner, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			g.elems = append(g.elems, optionalPat{g: inner})
		case p.accept(tWord, "GRAPH"):
			name := p.next()
			if name.kind != tIRI {
				return nil, fmt.Errorf("GRAPH expects an IRI, got %s", name)
			}
			inner, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			g.elems = append(g.elems, graphPat{name: name.val, g: inner})
		case p.accept(tWord, "FILTER"):
			e, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			g.filters = append(g.filters, e)
		case p.accept(tWord, "VALUES"):
			v := p.next()
			if v.kind != tVar {
				return nil, fmt.Errorf("VALUES expects a variable, got %s", v)
			}
			if err := p.expect(tPunct, "{"); err != nil {
				return nil, err
			}
			vp := valuesPat{v: v.val}
			for !p.accept(tPunct, "}") {
				term, err := concrete(p.next())
				if err != nil {
					return nil, err
				}
				vp.terms = append(vp.terms, term)
			}
			g.elems = append(g.elems, vp)
		case t.is(tPunct, "{"):
			first, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			u := unionPat{branches: []*group{first}}
			for p.accept(tWord, "UNION") {
				b, err := p.parseGroup()
				if err != nil {
					return nil, err
				}
				u.branches = append(u.branches, b)
			}
			g.elems = append(g.elems, u)
		default:
			tp, err := p.parseTriple()
			if err != nil {
				return nil, err
			}
			g.elems = append(g.elems, tp)
		}
	}
	return g, nil
}

func (p *parser) parseTriple() (triplePat, error) {
	var tp triplePat
	var err error
	if tp.s, err = p.patTerm(); err != nil {
		return tp, err
	}
	if tp.p, err = p.patTerm(); err != nil {
		return tp, err
	}
	if tp.o, err = p.patTerm(); err != nil {
		return tp, err
	}
	return tp, nil
}

func (p *parser) patTerm() (patTerm, error) {
	t := p.next()
	if t.kind == tVar {
		return patTerm{v: t.val}, nil
	}
	term, err := concrete(t)
	return patTerm{t: term, mod: t.mod}, err
}

// concrete converts an IRI or literal token to a term.
func concrete(t token) (rdf.Term, error) {
	switch t.kind {
	case tIRI:
		return rdf.NewIRI(t.val)
	case tLit:
		if t.lang != "" {
			return rdf.NewLangLiteral(t.val, t.lang)
		}
		if t.dt != "" {
			dt, err := rdf.NewIRI(t.dt)
			if err != nil {
				return nil, err
			}
			return rdf.NewTypedLiteral(t.val, dt), nil
		}
		return rdf.NewTypedLiteral(t.val, domain.XSDString), nil
	case tNum:
		return rdf.NewTypedLiteral(t.val, domain.XSDInteger), nil
	}
	return nil, fmt.Errorf("expected a term, got %s", t)
}

// update operation parsed from INSERT DATA / DELETE DATA.
type updateOp struct {
	insert bool
	quads  []quad
}

func parseUpdate(src string) ([]updateOp, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	var ops []updateOp
	for p.peek().kind != tEOF {
		var op updateOp
		switch {
		case p.accept(tWord, "INSERT"):
			op.insert = true
		case p.accept(tWord, "DELETE"):
		default:
			return nil, fmt.Errorf("unsupported update at %s", p.peek())
		}
		if err := p.expect(tWord, "DATA"); err != nil {
			return nil, err
		}
		if err := p.expect(tPunct, "{"); err != nil {
			return nil, err
		}
		for !p.accept(tPunct, "}") {
			graph := ""
			closeGraph := false
			if p.accept(tWord, "GRAPH") {
				name := p.next()
				if name.kind != tIRI {
					return nil, fmt.Errorf("GRAPH expects an IRI, got %s", name)
				}
				graph = name.val
				if err := p.expect(tPunct, "{"); err != nil {
					return nil, err
				}
				closeGraph = true
			}
			for {
				if closeGraph && p.accept(tPunct, "}") {
					break
				}
				if !closeGraph && (p.peek().is(tPunct, "}") || p.peek().is(tWord, "GRAPH")) {
					break
				}
				if p.peek().kind == tEOF {
					return nil, fmt.Errorf("unterminated data block")
				}
				tp, err := p.parseTriple()
				if err != nil {
					return nil, err
				}
				if tp.s.v != "" || tp.p.v != "" || tp.o.v != "" {
					return nil, fmt.Errorf("variables are not allowed in DATA blocks")
				}
				op.quads = append(op.quads, quad{g: graph, s: tp.s.t, p: tp.p.t, o: tp.o.t})
				p.accept(tPunct, ".")
			}
		}
		ops = append(ops, op)
		if !p.accept(tPunct, ";") {
			break
		}
	}
	if p.peek().kind != tEOF {
		return nil, fmt.Errorf("trailing input at %s", p.peek())
	}
	return ops, nil
}
