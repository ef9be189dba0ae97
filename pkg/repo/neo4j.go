package repo

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jRepo is a generic Neo4j-backed repository keyed by one node property.
type Neo4jRepo[T any, ID comparable] struct {
	open       Opener
	label      string
	idKey      string
	toMap      func(T) map[string]any
	fromRecord func(*neo4j.Record) (T, error)
}

// Neo4jOption configures a Neo4jRepo.
type Neo4jOption[T any, ID comparable] func(*Neo4jRepo[T, ID])

// WithIDKey sets the property name used as the ID (default "id").
func WithIDKey[T any, ID comparable](key string) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.idKey = key }
}

// NewNeo4jRepo creates a repository for nodes with the given label. Records
// passed to fromRecord carry the node under key "n".
func NewNeo4jRepo[T any, ID comparable](
	open Opener,
	label string,
	toMap func(T) map[string]any,
	fromRecord func(*neo4j.Record) (T, error),
	opts ...Neo4jOption[T, ID],
) *Neo4jRepo[T, ID] {
	r := &Neo4jRepo[T, ID]{
		open:       open,
		label:      label,
		idKey:      "id",
		toMap:      toMap,
		fromRecord: fromRecord,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Compile-time interface check.
var _ Repository[any, string] = (*Neo4jRepo[any, string])(nil)

func (r *Neo4jRepo[T, ID]) Get(ctx context.Context, id ID) (T, error) {
	var (
		out   T
		found bool
	)
	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) RETURN n LIMIT 1", r.label, r.idKey)
	err := Query(ctx, r.open, cypher, map[string]any{"id": id}, func(rec *neo4j.Record) error {
		v, err := r.fromRecord(rec)
		if err != nil {
			return err
		}
		out, found = v, true
		return nil
	})
	if err != nil {
		return out, err
	}
	if !found {
		return out, fmt.Errorf("%s %v: %w", r.label, id, ErrNotFound)
	}
	return out, nil
}

func (r *Neo4jRepo[T, ID]) List(ctx context.Context, opts ListOpts) ([]T, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	cypher := fmt.Sprintf("MATCH (n:%s) RETURN n ORDER BY n.%s SKIP $offset LIMIT $limit", r.label, r.idKey)
	params := map[string]any{"offset": opts.Offset, "limit": limit}

	var items []T
	err := Query(ctx, r.open, cypher, params, func(rec *neo4j.Record) error {
		item, err := r.fromRecord(rec)
		if err != nil {
			return err
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Upsert merges the node on its ID and overwrites the mapped properties.
func (r *Neo4jRepo[T, ID]) Upsert(ctx context.Context, entity T) error {
	props := r.toMap(entity)
	cypher := fmt.Sprintf("MERGE (n:%s {%s: $id}) SET n += $props", r.label, r.idKey)
	return Query(ctx, r.open, cypher, map[string]any{"id": props[r.idKey], "props": props}, nil)
}

func (r *Neo4jRepo[T, ID]) Delete(ctx context.Context, id ID) error {
	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) DETACH DELETE n", r.label, r.idKey)
	return Query(ctx, r.open, cypher, map[string]any{"id": id}, nil)
}

func (r *Neo4jRepo[T, ID]) Exists(ctx context.Context, id ID) (bool, error) {
	var ok bool
	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) RETURN count(n) > 0 AS ok", r.label, r.idKey)
	err := Query(ctx, r.open, cypher, map[string]any{"id": id}, func(rec *neo4j.Record) error {
		v, _, err := neo4j.GetRecordValue[bool](rec, "ok")
		ok = v
		return err
	})
	return ok, err
}
