package ontology

import (
	"context"
	"sync"

	"github.com/phisdata/phis-dal/engine/domain"
)

// Session memoizes hierarchy and metadata answers for the lifetime of one
// request. Ontology metadata is read live from the graph, so a Session must
// not outlive the request that created it.
type Session struct {
	h Hierarchy
	m Metadata

	mu       sync.Mutex
	subclass map[[2]domain.ResourceURI]bool
	instance map[[2]domain.ResourceURI]bool
	types    map[domain.ResourceURI]typeAnswer
	domains  map[domain.ResourceURI][]domain.ResourceURI
	bounds   map[[2]domain.ResourceURI]Bounds
}

type typeAnswer struct {
	uri domain.ResourceURI
	ok  bool
}

var (
	_ Hierarchy = (*Session)(nil)
	_ Metadata  = (*Session)(nil)
)

// NewSession creates a new Session with empty caches.
func NewSession(h Hierarchy, m Metadata) *Session {
	return &Session{
		h:        h,
		m:        m,
		subclass: map[[2]domain.ResourceURI]bool{},
		instance: map[[2]domain.ResourceURI]bool{},
		types:    map[domain.ResourceURI]typeAnswer{},
		domains:  map[domain.ResourceURI][]domain.ResourceURI{},
		bounds:   map[[2]domain.ResourceURI]Bounds{},
	}
}

// Constraints returns a constraint checker that reads through the session.
func (s *Session) Constraints() *Constraints { return NewConstraints(s, s) }

func (s *Session) IsSubClassOf(ctx context.Context, candidate, expected domain.ResourceURI) (bool, error) {
	return memo(s, s.subclass, [2]domain.ResourceURI{candidate, expected}, func() (bool, error) {
		return s.h.IsSubClassOf(ctx, candidate, expected)
	})
}

func (s *Session) IsInstanceOf(ctx context.Context, uri, expected domain.ResourceURI) (bool, error) {
	return memo(s, s.instance, [2]domain.ResourceURI{uri, expected}, func() (bool, error) {
		return s.h.IsInstanceOf(ctx, uri, expected)
	})
}

func (s *Session) TypeOf(ctx context.Context, uri domain.ResourceURI) (domain.ResourceURI, bool, error) {
	a, err := memo(s, s.types, uri, func() (typeAnswer, error) {
		t, ok, err := s.h.TypeOf(ctx, uri)
		return typeAnswer{t, ok}, err
	})
	return a.uri, a.ok, err
}

func (s *Session) DomainsOf(ctx context.Context, property domain.ResourceURI) ([]domain.ResourceURI, error) {
	return memo(s, s.domains, property, func() ([]domain.ResourceURI, error) {
		return s.m.DomainsOf(ctx, property)
	})
}

func (s *Session) Cardinality(ctx context.Context, subjectType, property domain.ResourceURI) (Bounds, error) {
	return memo(s, s.bounds, [2]domain.ResourceURI{subjectType, property}, func() (Bounds, error) {
		return s.m.Cardinality(ctx, subjectType, property)
	})
}

// memo returns the cached answer for k or computes and stores it. Errors are
// not cached. The lock is released while load runs.
func memo[K comparable, V any](s *Session, cache map[K]V, k K, load func() (V, error)) (V, error) {
	s.mu.Lock()
	if v, ok := cache[k]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	v, err := load()
	if err != nil {
		return v, err
	}
	s.mu.Lock()
	cache[k] = v
	s.mu.Unlock()
	return v, nil
}
