package graph

import (
	"context"
	"fmt"

	"github.com/knakk/rdf"

	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/engine/sparql"
)

const (
	varP sparql.Var = "p"
	varO sparql.Var = "o"
)

// Exists reports whether uri is the subject of any statement.
func Exists(ctx context.Context, s Store, uri domain.ResourceURI) (bool, error) {
	return ExistsInGraph(ctx, s, "", uri)
}

// ExistsInGraph reports whether uri is the subject of a statement in graph.
// An empty graph searches the whole dataset.
func ExistsInGraph(ctx context.Context, s Store, graph, uri domain.ResourceURI) (bool, error) {
	q := sparql.NewQuery()
	pattern := func(b *sparql.Block) { b.Triplet(uri, varP, varO) }
	if graph.IsZero() {
		pattern(q.Where())
	} else {
		q.Where().Graph(graph, pattern)
	}
	ok, err := s.Ask(ctx, q.AskQuery())
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", uri, err)
	}
	return ok, nil
}

// Existence binds ExistsInGraph to a store and graph.
func Existence(s Store, graph domain.ResourceURI) func(context.Context, domain.ResourceURI) (bool, error) {
	return func(ctx context.Context, uri domain.ResourceURI) (bool, error) {
		return ExistsInGraph(ctx, s, graph, uri)
	}
}

// Describe reads the statements whose subject is uri. An empty graph reads
// the whole dataset.
func Describe(ctx context.Context, s Store, graph, uri domain.ResourceURI) ([]domain.Triplet, error) {
	q := sparql.NewQuery().Select(varP, varO)
	pattern := func(b *sparql.Block) { b.Triplet(uri, varP, varO) }
	if graph.IsZero() {
		pattern(q.Where())
	} else {
		q.Where().Graph(graph, pattern)
	}
	rows, err := s.Select(ctx, q.SelectQuery())
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", uri, err)
	}
	out := make([]domain.Triplet, 0, len(rows))
	for _, row := range rows {
		p := row.URI(string(varP))
		o, ok := row[string(varO)]
		if p.IsZero() || !ok || o.Type() == rdf.TermBlank {
			continue
		}
		out = append(out, domain.Triplet{Subject: uri, Predicate: p, Object: o})
	}
	return out, nil
}
