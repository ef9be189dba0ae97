// Package ontology answers type and property questions against the class
// taxonomy stored in the graph: subclass closure, instance checks, declared
// domains and cardinality restrictions.
package ontology

import (
	"context"
	"fmt"

	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/engine/graph"
	"github.com/phisdata/phis-dal/engine/sparql"
	"github.com/phisdata/phis-dal/engine/vocab"
	"github.com/phisdata/phis-dal/pkg/fn"
)

// Hierarchy resolves subclass and instance relations. Unknown URIs are not
// errors: they are simply not subclasses or instances of anything.
type Hierarchy interface {
	IsSubClassOf(ctx context.Context, candidate, expected domain.ResourceURI) (bool, error)
	IsInstanceOf(ctx context.Context, uri, expected domain.ResourceURI) (bool, error)
	TypeOf(ctx context.Context, uri domain.ResourceURI) (domain.ResourceURI, bool, error)
}

// SPARQLHierarchy evaluates every call as one query on the triplestore.
type SPARQLHierarchy struct {
	store graph.Store
}

var _ Hierarchy = (*SPARQLHierarchy)(nil)

// NewSPARQLHierarchy creates a new SPARQLHierarchy over store.
func NewSPARQLHierarchy(store graph.Store) *SPARQLHierarchy {
	return &SPARQLHierarchy{store: store}
}

// IsSubClassOf asks for a subClassOf* path from candidate to expected.
func (h *SPARQLHierarchy) IsSubClassOf(ctx context.Context, candidate, expected domain.ResourceURI) (bool, error) {
	if candidate == expected {
		return true, nil
	}
	if candidate.IsZero() || expected.IsZero() {
		return false, nil
	}
	q := sparql.NewQuery()
	q.Where().Triplet(candidate, sparql.ZeroOrMore(vocab.SubClassOf), expected)
	ok, err := h.store.Ask(ctx, q.AskQuery())
	if err != nil {
		return false, fmt.Errorf("subclass %s of %s: %w", candidate, expected, err)
	}
	return ok, nil
}

// IsInstanceOf checks the asserted type and its ancestry in a single ASK.
func (h *SPARQLHierarchy) IsInstanceOf(ctx context.Context, uri, expected domain.ResourceURI) (bool, error) {
	if uri.IsZero() || expected.IsZero() {
		return false, nil
	}
	t := sparql.Var("type")
	q := sparql.NewQuery()
	q.Where().
		Triplet(uri, vocab.Type, t).
		Triplet(t, sparql.ZeroOrMore(vocab.SubClassOf), expected)
	ok, err := h.store.Ask(ctx, q.AskQuery())
	if err != nil {
		return false, fmt.Errorf("instance %s of %s: %w", uri, expected, err)
	}
	return ok, nil
}

// TypeOf returns the first asserted rdf:type of uri.
func (h *SPARQLHierarchy) TypeOf(ctx context.Context, uri domain.ResourceURI) (domain.ResourceURI, bool, error) {
	if uri.IsZero() {
		return "", false, nil
	}
	t := sparql.Var("type")
	q := sparql.NewQuery().Select(t).OrderBy(t, sparql.Asc).Limit(1)
	q.Where().Triplet(uri, vocab.Type, t)
	rows, err := h.store.Select(ctx, q.SelectQuery())
	if err != nil {
		return "", false, fmt.Errorf("type of %s: %w", uri, err)
	}
	for _, row := range rows {
		if u := row.URI(string(t)); !u.IsZero() {
			return u, true, nil
		}
	}
	return "", false, nil
}

// TypesOf returns every asserted rdf:type of uri, sorted.
func (h *SPARQLHierarchy) TypesOf(ctx context.Context, uri domain.ResourceURI) ([]domain.ResourceURI, error) {
	if uri.IsZero() {
		return nil, nil
	}
	t := sparql.Var("type")
	q := sparql.NewQuery().Select(t).Distinct(true).OrderBy(t, sparql.Asc)
	q.Where().Triplet(uri, vocab.Type, t)
	rows, err := h.store.Select(ctx, q.SelectQuery())
	if err != nil {
		return nil, fmt.Errorf("types of %s: %w", uri, err)
	}
	return fn.FilterMap(rows, func(row graph.Binding) (domain.ResourceURI, bool) {
		u := row.URI(string(t))
		return u, !u.IsZero()
	}), nil
}
