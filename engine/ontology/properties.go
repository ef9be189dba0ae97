package ontology

import (
	"context"
	"fmt"
	"strconv"

	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/engine/graph"
	"github.com/phisdata/phis-dal/engine/sparql"
	"github.com/phisdata/phis-dal/engine/vocab"
)

// Unbounded is the Max of a Bounds without an upper limit.
const Unbounded = -1

// Bounds is the allowed number of occurrences of a property on one subject.
type Bounds struct {
	Min      int
	Max      int
	Declared bool
}

// Allows reports whether n occurrences are within the bounds.
func (b Bounds) Allows(n int) bool {
	if !b.Declared {
		return true
	}
	return n >= b.Min && (b.Max == Unbounded || n <= b.Max)
}

func (b Bounds) String() string {
	if b.Max == Unbounded {
		return fmt.Sprintf("[%d..*]", b.Min)
	}
	return fmt.Sprintf("[%d..%d]", b.Min, b.Max)
}

// Metadata reads property definitions from the ontology.
type Metadata interface {
	DomainsOf(ctx context.Context, property domain.ResourceURI) ([]domain.ResourceURI, error)
	Cardinality(ctx context.Context, subjectType, property domain.ResourceURI) (Bounds, error)
}

// SPARQLMetadata reads rdfs:domain declarations and OWL restrictions.
type SPARQLMetadata struct {
	store graph.Store
}

var _ Metadata = (*SPARQLMetadata)(nil)

// NewSPARQLMetadata creates a new SPARQLMetadata over store.
func NewSPARQLMetadata(store graph.Store) *SPARQLMetadata {
	return &SPARQLMetadata{store: store}
}

// DomainsOf returns the declared rdfs:domain classes of property. An empty
// result means any subject type is accepted.
func (m *SPARQLMetadata) DomainsOf(ctx context.Context, property domain.ResourceURI) ([]domain.ResourceURI, error) {
	d := sparql.Var("domain")
	q := sparql.NewQuery().Select(d).Distinct(true).OrderBy(d, sparql.Asc)
	q.Where().Triplet(property, vocab.Domain, d)
	rows, err := m.store.Select(ctx, q.SelectQuery())
	if err != nil {
		return nil, fmt.Errorf("domains of %s: %w", property, err)
	}
	out := make([]domain.ResourceURI, 0, len(rows))
	for _, row := range rows {
		if u := row.URI(string(d)); !u.IsZero() {
			out = append(out, u)
		}
	}
	return out, nil
}

// Cardinality merges the owl restrictions on property declared by
// subjectType or any of its ancestors into the tightest bounds.
func (m *SPARQLMetadata) Cardinality(ctx context.Context, subjectType, property domain.ResourceURI) (Bounds, error) {
	var (
		anc   = sparql.Var("ancestor")
		restr = sparql.Var("restriction")
		exact = sparql.Var("exact")
		least = sparql.Var("min")
		most  = sparql.Var("max")
	)
	q := sparql.NewQuery().Select(restr, exact, least, most).Distinct(true)
	q.Where().
		Triplet(subjectType, sparql.ZeroOrMore(vocab.SubClassOf), anc).
		Triplet(anc, vocab.SubClassOf, restr).
		Triplet(restr, vocab.OnProperty, property).
		Optional(func(b *sparql.Block) { b.Triplet(restr, vocab.Cardinality, exact) }).
		Optional(func(b *sparql.Block) { b.Triplet(restr, vocab.MinCardinality, least) }).
		Optional(func(b *sparql.Block) { b.Triplet(restr, vocab.MaxCardinality, most) })
	rows, err := m.store.Select(ctx, q.SelectQuery())
	if err != nil {
		return Bounds{}, fmt.Errorf("cardinality of %s on %s: %w", property, subjectType, err)
	}

	b := Bounds{Max: Unbounded}
	tighten := func(lo, hi int) {
		b.Declared = true
		if lo > b.Min {
			b.Min = lo
		}
		if hi != Unbounded && (b.Max == Unbounded || hi < b.Max) {
			b.Max = hi
		}
	}
	for _, row := range rows {
		if n, ok := count(row, exact); ok {
			tighten(n, n)
		}
		if n, ok := count(row, least); ok {
			tighten(n, Unbounded)
		}
		if n, ok := count(row, most); ok {
			tighten(0, n)
		}
	}
	return b, nil
}

func count(row graph.Binding, v sparql.Var) (int, bool) {
	s := row.String(string(v))
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	return n, err == nil && n >= 0
}
