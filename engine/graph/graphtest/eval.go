package graphtest

import (
	"sort"
	"strconv"
	"strings"

	"github.com/knakk/rdf"

	"github.com/phisdata/phis-dal/engine/domain"
)

type quad struct {
	g       string
	s, p, o rdf.Term
}

func (q quad) key() string { return key(q.s) + " " + key(q.p) + " " + key(q.o) }

// dataset is the set of triples visible to one pattern.
type dataset []quad

type evaluator struct {
	graphs map[string]map[string]quad
}

// view merges the named graphs, or every graph when names is empty.
func (e *evaluator) view(names []string) dataset {
	seen := map[string]bool{}
	var out dataset
	add := func(g map[string]quad) {
		for k, q := range g {
			if !seen[k] {
				seen[k] = true
				out = append(out, q)
			}
		}
	}
	if len(names) == 0 {
		for _, g := range e.graphs {
			add(g)
		}
		return out
	}
	for _, n := range names {
		add(e.graphs[n])
	}
	return out
}

func (e *evaluator) group(g *group, ds dataset, in []solution) []solution {
	sols := in
	for _, el := range g.elems {
		switch x := el.(type) {
		case triplePat:
			sols = e.triple(x, ds, sols)
		case optionalPat:
			var out []solution
			for _, s := range sols {
				ext := e.group(x.g, ds, []solution{s})
				if len(ext) == 0 {
					out = append(out, s)
					continue
				}
				out = append(out, ext...)
			}
			sols = out
		case graphPat:
			sols = e.group(x.g, e.view([]string{x.name}), sols)
		case unionPat:
			var out []solution
			for _, b := range x.branches {
				out = append(out, e.group(b, ds, sols)...)
			}
			sols = out
		case valuesPat:
			var out []solution
			for _, s := range sols {
				for _, t := range x.terms {
					if bound, ok := s[x.v]; ok {
						if sameTerm(bound, t) {
							out = append(out, s)
						}
						continue
					}
					out = append(out, extend(s, x.v, t))
				}
			}
			sols = out
		}
	}
	for _, f := range g.filters {
		var out []solution
		for _, s := range sols {
			if ebv(f(s)) {
				out = append(out, s)
			}
		}
		sols = out
	}
	return sols
}

func extend(s solution, v string, t rdf.Term) solution {
	out := make(solution, len(s)+1)
	for k, x := range s {
		out[k] = x
	}
	out[v] = t
	return out
}

// bind unifies a pattern position with a term under s.
func bind(s solution, pt patTerm, t rdf.Term) (solution, bool) {
	if pt.v == "" {
		return s, sameTerm(pt.t, t)
	}
	if cur, ok := s[pt.v]; ok {
		return s, sameTerm(cur, t)
	}
	return extend(s, pt.v, t), true
}

func resolve(s solution, pt patTerm) rdf.Term {
	if pt.v == "" {
		return pt.t
	}
	return s[pt.v]
}

func (e *evaluator) triple(tp triplePat, ds dataset, in []solution) []solution {
	if tp.p.mod != "" {
		return e.path(tp, ds, in)
	}
	var out []solution
	for _, s := range in {
		for _, q := range ds {
			s1, ok := bind(s, tp.s, q.s)
			if !ok {
				continue
			}
			s2, ok := bind(s1, tp.p, q.p)
			if !ok {
				continue
			}
			s3, ok := bind(s2, tp.o, q.o)
			if !ok {
				continue
			}
			out = append(out, s3)
		}
	}
	return out
}

// path evaluates pred* and pred+ by breadth-first closure from each start node.
func (e *evaluator) path(tp triplePat, ds dataset, in []solution) []solution {
	pred := key(tp.p.t)
	edges := map[string][]rdf.Term{}
	nodes := map[string]rdf.Term{}
	for _, q := range ds {
		if key(q.p) != pred {
			continue
		}
		edges[key(q.s)] = append(edges[key(q.s)], q.o)
		nodes[key(q.s)] = q.s
		nodes[key(q.o)] = q.o
	}
	reach := func(start rdf.Term) []rdf.Term {
		seen := map[string]bool{}
		var out []rdf.Term
		if tp.p.mod == "*" {
			seen[key(start)] = true
			out = append(out, start)
		}
		frontier := []rdf.Term{start}
		for len(frontier) > 0 {
			var next []rdf.Term
			for _, n := range frontier {
				for _, o := range edges[key(n)] {
					if !seen[key(o)] {
						seen[key(o)] = true
						out = append(out, o)
						next = append(next, o)
					}
				}
			}
			frontier = next
		}
		return out
	}
	var out []solution
	for _, s := range in {
		var starts []rdf.Term
		if t := resolve(s, tp.s); t != nil {
			starts = []rdf.Term{t}
		} else {
			for _, n := range nodes {
				starts = append(starts, n)
			}
		}
		for _, start := range starts {
			s1, ok := bind(s, tp.s, start)
			if !ok {
				continue
			}
			for _, end := range reach(start) {
				if s2, ok := bind(s1, tp.o, end); ok {
					out = append(out, s2)
				}
			}
		}
	}
	return out
}

func (e *evaluator) ask(q *query) bool {
	return len(e.group(q.where, e.view(q.from), []solution{{}})) > 0
}

func (e *evaluator) selectRows(q *query) []solution {
	sols := e.group(q.where, e.view(q.from), []solution{{}})
	if q.count != nil {
		sols = aggregate(q, sols)
	}
	if len(q.orderBy) > 0 {
		sort.SliceStable(sols, func(i, j int) bool {
			for _, k := range q.orderBy {
				c := compareBound(sols[i][k.v], sols[j][k.v])
				if c == 0 {
					continue
				}
				if k.desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	sols = project(q, sols)
	if q.offset > 0 {
		if q.offset >= len(sols) {
			sols = nil
		} else {
			sols = sols[q.offset:]
		}
	}
	if q.limit >= 0 && q.limit < len(sols) {
		sols = sols[:q.limit]
	}
	return sols
}

func aggregate(q *query, sols []solution) []solution {
	type bucket struct {
		keys   solution
		values map[string]bool
		n      int
	}
	var order []string
	buckets := map[string]*bucket{}
	for _, s := range sols {
		var parts []string
		keys := solution{}
		for _, v := range q.groupBy {
			if t, ok := s[v]; ok {
				parts = append(parts, key(t))
				keys[v] = t
			} else {
				parts = append(parts, "")
			}
		}
		k := strings.Join(parts, "\x00")
		b, ok := buckets[k]
		if !ok {
			b = &bucket{keys: keys, values: map[string]bool{}}
			buckets[k] = b
			order = append(order, k)
		}
		if t, ok := s[q.count.of]; ok {
			b.values[key(t)] = true
			b.n++
		}
	}
	if len(q.groupBy) == 0 && len(order) == 0 {
		order = append(order, "")
		buckets[""] = &bucket{keys: solution{}, values: map[string]bool{}}
	}
	out := make([]solution, 0, len(order))
	for _, k := range order {
		b := buckets[k]
		n := b.n
		if q.count.distinct {
			n = len(b.values)
		}
		out = append(out, extend(b.keys, q.count.as, rdf.NewTypedLiteral(strconv.Itoa(n), domain.XSDInteger)))
	}
	return out
}

func compareBound(a, b rdf.Term) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if c, ok := compareLiterals(a, b); ok {
		return c
	}
	return strings.Compare(key(a), key(b))
}

func project(q *query, sols []solution) []solution {
	vars := q.vars
	if q.count != nil {
		vars = append(append([]string(nil), q.vars...), q.count.as)
	}
	out := make([]solution, 0, len(sols))
	seen := map[string]bool{}
	for _, s := range sols {
		row := s
		if len(vars) > 0 {
			row = solution{}
			for _, v := range vars {
				if t, ok := s[v]; ok {
					row[v] = t
				}
			}
		}
		if q.distinct {
			k := rowKey(row)
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		out = append(out, row)
	}
	return out
}

func rowKey(s solution) string {
	names := make([]string, 0, len(s))
	for v := range s {
		names = append(names, v)
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, v := range names {
		sb.WriteString(v)
		sb.WriteByte('=')
		sb.WriteString(key(s[v]))
		sb.WriteByte('\x00')
	}
	return sb.String()
}
