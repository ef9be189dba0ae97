package sparql

import (
	"strconv"
	"strings"

	"github.com/phisdata/phis-dal/engine/domain"
)

// Block is a group graph pattern: triples, optionals, unions, filters.
type Block struct {
	lines []string
}

func indent(b *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteString("  ")
	}
}

// Triplet adds the pattern "s p o .". Any position may be a variable.
func (b *Block) Triplet(s, p, o Term) *Block {
	b.lines = append(b.lines, ser(s)+" "+ser(p)+" "+ser(o)+" .")
	return b
}

// Optional adds an OPTIONAL group built by fn.
func (b *Block) Optional(fn func(*Block)) *Block {
	return b.nest("OPTIONAL ", fn)
}

// Graph scopes the patterns built by fn to a named graph.
func (b *Block) Graph(g Term, fn func(*Block)) *Block {
	return b.nest("GRAPH "+ser(g)+" ", fn)
}

// Union adds the alternatives built by fns, joined by UNION.
func (b *Block) Union(fns ...func(*Block)) *Block {
	var parts []string
	for _, fn := range fns {
		var inner Block
		fn(&inner)
		parts = append(parts, inner.group(0))
	}
	if len(parts) > 0 {
		b.lines = append(b.lines, strings.Join(parts, " UNION "))
	}
	return b
}

// Filter adds FILTER(e). Empty expressions are ignored.
func (b *Block) Filter(e Expr) *Block {
	if e != "" {
		b.lines = append(b.lines, "FILTER ("+string(e)+")")
	}
	return b
}

// OrFilter adds one FILTER whose expressions are OR-ed together.
func (b *Block) OrFilter(es ...Expr) *Block {
	return b.Filter(Or(es...))
}

// Values adds an inline VALUES table for a single variable.
func (b *Block) Values(v Var, ts ...Term) *Block {
	if len(ts) == 0 {
		return b
	}
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = ser(t)
	}
	b.lines = append(b.lines, "VALUES "+ser(v)+" { "+strings.Join(parts, " ")+" }")
	return b
}

// Empty reports whether no pattern was added.
func (b *Block) Empty() bool { return len(b.lines) == 0 }

func (b *Block) nest(keyword string, fn func(*Block)) *Block {
	var inner Block
	fn(&inner)
	if !inner.Empty() {
		b.lines = append(b.lines, keyword+inner.group(0))
	}
	return b
}

// group renders "{ ... }" with lines indented one level deeper than depth.
func (b *Block) group(depth int) string {
	var sb strings.Builder
	sb.WriteString("{\n")
	for _, l := range b.lines {
		for _, sub := range strings.Split(l, "\n") {
			indent(&sb, depth+1)
			sb.WriteString(sub)
			sb.WriteByte('\n')
		}
	}
	indent(&sb, depth)
	sb.WriteString("}")
	return sb.String()
}

// Order is a sort direction.
type Order int

const (
	Asc Order = iota
	Desc
)

type orderKey struct {
	v   Var
	dir Order
}

// Query accumulates the parts of a SELECT/ASK query. Renderers do not mutate it.
type Query struct {
	vars     []Var
	distinct bool
	from     []domain.ResourceURI
	where    Block
	groupBy  []Var
	orderBy  []orderKey
	limit    int
	offset   int
}

// NewQuery returns an empty query.
func NewQuery() *Query { return &Query{} }

// Select adds projected variables. Duplicates are ignored.
func (q *Query) Select(vars ...Var) *Query {
	for _, v := range vars {
		if !q.selects(v) {
			q.vars = append(q.vars, v)
		}
	}
	return q
}

func (q *Query) selects(v Var) bool {
	for _, x := range q.vars {
		if x == v {
			return true
		}
	}
	return false
}

// Distinct toggles SELECT DISTINCT.
func (q *Query) Distinct(on bool) *Query { q.distinct = on; return q }

// From adds a dataset graph.
func (q *Query) From(g domain.ResourceURI) *Query {
	if !g.IsZero() {
		q.from = append(q.from, g)
	}
	return q
}

// Where returns the top-level pattern block.
func (q *Query) Where() *Block { return &q.where }

// GroupBy adds grouping variables.
func (q *Query) GroupBy(vars ...Var) *Query { q.groupBy = append(q.groupBy, vars...); return q }

// OrderBy adds a sort key.
func (q *Query) OrderBy(v Var, dir Order) *Query {
	q.orderBy = append(q.orderBy, orderKey{v: v, dir: dir})
	return q
}

// Limit caps the number of solutions. Non-positive values remove the cap.
func (q *Query) Limit(n int) *Query { q.limit = n; return q }

// Offset skips solutions. Non-positive values remove the offset.
func (q *Query) Offset(n int) *Query { q.offset = n; return q }

// Page sets limit and offset for a zero-based page.
func (q *Query) Page(page, size int) *Query {
	if size <= 0 {
		return q
	}
	if page < 0 {
		page = 0
	}
	return q.Limit(size).Offset(page * size)
}

// SelectQuery renders the full SELECT form.
func (q *Query) SelectQuery() string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if q.distinct {
		sb.WriteString("DISTINCT ")
	}
	if len(q.vars) == 0 {
		sb.WriteString("*")
	} else {
		for i, v := range q.vars {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(ser(v))
		}
	}
	sb.WriteByte('\n')
	q.writeBody(&sb)
	if len(q.groupBy) > 0 {
		sb.WriteString("\nGROUP BY")
		for _, v := range q.groupBy {
			sb.WriteString(" " + ser(v))
		}
	}
	if len(q.orderBy) > 0 {
		sb.WriteString("\nORDER BY")
		for _, k := range q.orderBy {
			if k.dir == Desc {
				sb.WriteString(" DESC(" + ser(k.v) + ")")
			} else {
				sb.WriteString(" ASC(" + ser(k.v) + ")")
			}
		}
	}
	if q.limit > 0 {
		sb.WriteString("\nLIMIT " + strconv.Itoa(q.limit))
	}
	if q.offset > 0 {
		sb.WriteString("\nOFFSET " + strconv.Itoa(q.offset))
	}
	return sb.String()
}

// AskQuery renders an existence test over the same patterns. Projection,
// grouping, ordering and paging are dropped.
func (q *Query) AskQuery() string {
	var sb strings.Builder
	sb.WriteString("ASK\n")
	q.writeBody(&sb)
	return sb.String()
}

// CountQuery renders COUNT(DISTINCT ?uri) AS ?count over the same patterns.
// Projection, grouping, ordering and paging are dropped.
func (q *Query) CountQuery() string {
	var sb strings.Builder
	sb.WriteString("SELECT (COUNT(DISTINCT " + ser(URI) + ") AS " + ser(Count) + ")\n")
	q.writeBody(&sb)
	return sb.String()
}

func (q *Query) writeBody(sb *strings.Builder) {
	for _, g := range q.from {
		sb.WriteString("FROM " + ser(g) + "\n")
	}
	sb.WriteString("WHERE ")
	sb.WriteString(q.where.group(0))
}
