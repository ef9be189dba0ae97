// Package graphtest provides an in-memory triplestore that evaluates the
// SELECT, ASK and DATA update forms produced by engine/sparql.
package graphtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/knakk/rdf"

	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/engine/graph"
)

// MemStore is a graph.Store backed by maps of quads keyed by graph name.
type MemStore struct {
	mu      sync.Mutex
	graphs  map[string]map[string]quad
	updates []string
	queries []string

	// FailUpdate, when set, is consulted before each update is applied.
	FailUpdate func(update string) error
	// FailQuery, when set, is consulted before each SELECT or ASK.
	FailQuery func(query string) error
}

var _ graph.Store = (*MemStore)(nil)

// New creates a new empty MemStore.
func New() *MemStore {
	return &MemStore{graphs: map[string]map[string]quad{}}
}

// Add loads triplets into graph g without going through an update.
func (m *MemStore) Add(g domain.ResourceURI, ts ...domain.Triplet) *MemStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range ts {
		m.put(quad{g: string(g), s: t.Subject.IRI(), p: t.Predicate.IRI(), o: t.Object})
	}
	return m
}

func (m *MemStore) put(q quad) {
	g, ok := m.graphs[q.g]
	if !ok {
		g = map[string]quad{}
		m.graphs[q.g] = g
	}
	g[q.key()] = q
}

func (m *MemStore) remove(q quad) {
	if g, ok := m.graphs[q.g]; ok {
		delete(g, q.key())
	}
}

// Statements returns every triplet stored in graph g.
func (m *MemStore) Statements(g domain.ResourceURI) []domain.Triplet {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Triplet
	for _, q := range m.graphs[string(g)] {
		out = append(out, toTriplet(q))
	}
	return out
}

// Subject returns every triplet about uri across all graphs.
func (m *MemStore) Subject(uri domain.ResourceURI) []domain.Triplet {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Triplet
	for _, g := range m.graphs {
		for _, q := range g {
			if q.s.Type() == rdf.TermIRI && q.s.String() == string(uri) {
				out = append(out, toTriplet(q))
			}
		}
	}
	return out
}

// Len counts the quads in all graphs.
func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, g := range m.graphs {
		n += len(g)
	}
	return n
}

// Updates returns the update requests applied so far.
func (m *MemStore) Updates() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.updates...)
}

// Queries returns the SELECT and ASK requests received so far.
func (m *MemStore) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

func toTriplet(q quad) domain.Triplet {
	return domain.Triplet{
		Subject:   domain.ResourceURI(q.s.String()),
		Predicate: domain.ResourceURI(q.p.String()),
		Object:    q.o,
	}
}

func (m *MemStore) Select(ctx context.Context, text string) ([]graph.Binding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, text)
	if m.FailQuery != nil {
		if err := m.FailQuery(text); err != nil {
			return nil, err
		}
	}
	q, err := parseQuery(text)
	if err != nil {
		return nil, domain.NewPersistenceError("select", domain.PersistenceMalformed, err)
	}
	if q.ask {
		return nil, domain.NewPersistenceError("select", domain.PersistenceMalformed, fmt.Errorf("ASK sent as SELECT"))
	}
	e := &evaluator{graphs: m.graphs}
	rows := e.selectRows(q)
	out := make([]graph.Binding, len(rows))
	for i, r := range rows {
		out[i] = graph.Binding(r)
	}
	return out, nil
}

func (m *MemStore) Ask(ctx context.Context, text string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, text)
	if m.FailQuery != nil {
		if err := m.FailQuery(text); err != nil {
			return false, err
		}
	}
	q, err := parseQuery(text)
	if err != nil {
		return false, domain.NewPersistenceError("ask", domain.PersistenceMalformed, err)
	}
	if !q.ask {
		return false, domain.NewPersistenceError("ask", domain.PersistenceMalformed, fmt.Errorf("SELECT sent as ASK"))
	}
	return (&evaluator{graphs: m.graphs}).ask(q), nil
}

// Update parses the whole request before touching any graph, so a request
// either applies completely or not at all.
func (m *MemStore) Update(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUpdate != nil {
		if err := m.FailUpdate(text); err != nil {
			return err
		}
	}
	ops, err := parseUpdate(text)
	if err != nil {
		return domain.NewPersistenceError("update", domain.PersistenceMalformed, err)
	}
	for _, op := range ops {
		for _, q := range op.quads {
			if op.insert {
				m.put(q)
			} else {
				m.remove(q)
			}
		}
	}
	m.updates = append(m.updates, text)
	return nil
}
