package ontology

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/engine/graph"
	"github.com/phisdata/phis-dal/engine/sparql"
	"github.com/phisdata/phis-dal/engine/vocab"
	"github.com/phisdata/phis-dal/pkg/fn"
	"github.com/phisdata/phis-dal/pkg/repo"
)

// Neo4jHierarchy answers subclass questions from the taxonomy mirrored into
// Neo4j as (:Class)-[:SUBCLASS_OF]->(:Class) by SyncTaxonomy. The mirror holds
// classes only, so instance and type questions go to the triplestore.
type Neo4jHierarchy struct {
	open      repo.Opener
	instances *SPARQLHierarchy
}

var _ Hierarchy = (*Neo4jHierarchy)(nil)

// NewNeo4jHierarchy creates a new Neo4jHierarchy reading classes through open
// and instances from store.
func NewNeo4jHierarchy(open repo.Opener, store graph.Store) *Neo4jHierarchy {
	return &Neo4jHierarchy{open: open, instances: NewSPARQLHierarchy(store)}
}

func (h *Neo4jHierarchy) IsSubClassOf(ctx context.Context, candidate, expected domain.ResourceURI) (bool, error) {
	if candidate == expected {
		return true, nil
	}
	if candidate.IsZero() || expected.IsZero() {
		return false, nil
	}
	var ok bool
	err := repo.Query(ctx, h.open,
		`MATCH (c:Class {uri: $candidate})-[:SUBCLASS_OF*0..]->(e:Class {uri: $expected}) RETURN count(*) > 0 AS ok`,
		map[string]any{"candidate": string(candidate), "expected": string(expected)},
		func(rec *neo4j.Record) error {
			v, _, err := neo4j.GetRecordValue[bool](rec, "ok")
			ok = v
			return err
		})
	if err != nil {
		return false, fmt.Errorf("subclass %s of %s: %w", candidate, expected, err)
	}
	return ok, nil
}

// IsInstanceOf reads the asserted types of uri from the triplestore and
// resolves each against the mirrored taxonomy.
func (h *Neo4jHierarchy) IsInstanceOf(ctx context.Context, uri, expected domain.ResourceURI) (bool, error) {
	if uri.IsZero() || expected.IsZero() {
		return false, nil
	}
	types, err := h.instances.TypesOf(ctx, uri)
	if err != nil {
		return false, err
	}
	for _, t := range types {
		ok, err := h.IsSubClassOf(ctx, t, expected)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (h *Neo4jHierarchy) TypeOf(ctx context.Context, uri domain.ResourceURI) (domain.ResourceURI, bool, error) {
	return h.instances.TypeOf(ctx, uri)
}

// Class is a mirrored taxonomy node.
type Class struct {
	URI   domain.ResourceURI
	Label string
}

// NewClassRepo returns the repository of :Class nodes keyed by uri.
func NewClassRepo(open repo.Opener) *repo.Neo4jRepo[Class, string] {
	return repo.NewNeo4jRepo[Class, string](
		open,
		"Class",
		func(c Class) map[string]any {
			return map[string]any{"uri": string(c.URI), "label": c.Label}
		},
		func(rec *neo4j.Record) (Class, error) {
			node, _, err := neo4j.GetRecordValue[neo4j.Node](rec, "n")
			if err != nil {
				return Class{}, err
			}
			uri, err := neo4j.GetProperty[string](node, "uri")
			if err != nil {
				return Class{}, err
			}
			label, _ := neo4j.GetProperty[string](node, "label")
			return Class{URI: domain.ResourceURI(uri), Label: label}, nil
		},
		repo.WithIDKey[Class, string]("uri"),
	)
}

// SyncOpts tunes SyncTaxonomy.
type SyncOpts struct {
	BatchSize int
	Workers   int
	Logger    *slog.Logger
}

// SyncStats reports what SyncTaxonomy wrote.
type SyncStats struct {
	Classes int
	Edges   int
}

type edge struct{ child, parent domain.ResourceURI }

const mergeEdges = `UNWIND $edges AS e
MERGE (c:Class {uri: e.child})
MERGE (p:Class {uri: e.parent})
MERGE (c)-[:SUBCLASS_OF]->(p)`

// SyncTaxonomy copies every rdfs:subClassOf edge and class label from the
// triplestore into Neo4j. Writes are idempotent merges.
func SyncTaxonomy(ctx context.Context, store graph.Store, open repo.Opener, opts SyncOpts) (SyncStats, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	child, parent, label := sparql.Var("child"), sparql.Var("parent"), sparql.Var("label")
	q := sparql.NewQuery().Select(child, parent, label).Distinct(true)
	q.Where().
		Triplet(child, vocab.SubClassOf, parent).
		Optional(func(b *sparql.Block) { b.Triplet(child, vocab.Label, label) })
	rows, err := store.Select(ctx, q.SelectQuery())
	if err != nil {
		return SyncStats{}, fmt.Errorf("read taxonomy: %w", err)
	}

	edges := fn.Unique(fn.FilterMap(rows, func(r graph.Binding) (edge, bool) {
		e := edge{child: r.URI(string(child)), parent: r.URI(string(parent))}
		return e, !e.child.IsZero() && !e.parent.IsZero()
	}))
	classes := fn.UniqueBy(fn.FilterMap(rows, func(r graph.Binding) (Class, bool) {
		c := Class{URI: r.URI(string(child)), Label: r.String(string(label))}
		return c, !c.URI.IsZero() && c.Label != ""
	}), func(c Class) domain.ResourceURI { return c.URI })

	batches := fn.Chunk(edges, opts.BatchSize)
	errs := fn.ParMap(batches, opts.Workers, func(batch []edge) error {
		params := map[string]any{"edges": fn.Map(batch, func(e edge) map[string]any {
			return map[string]any{"child": string(e.child), "parent": string(e.parent)}
		})}
		return repo.Query(ctx, open, mergeEdges, params, nil)
	})
	if err := fn.FirstErr(errs); err != nil {
		return SyncStats{}, fmt.Errorf("merge subclass edges: %w", err)
	}

	classRepo := NewClassRepo(open)
	errs = fn.ParMap(classes, opts.Workers, func(c Class) error { return classRepo.Upsert(ctx, c) })
	if err := fn.FirstErr(errs); err != nil {
		return SyncStats{}, fmt.Errorf("upsert classes: %w", err)
	}

	stats := SyncStats{Classes: len(classes), Edges: len(edges)}
	log.Info("taxonomy synced", "classes", stats.Classes, "edges", stats.Edges, "batches", len(batches))
	return stats, nil
}
