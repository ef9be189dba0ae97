package ontology

import (
	"context"
	"fmt"

	"github.com/phisdata/phis-dal/engine/domain"
)

// Constraints checks property values against the domains and cardinality
// restrictions declared in the ontology.
type Constraints struct {
	h Hierarchy
	m Metadata
}

// NewConstraints creates a new Constraints.
func NewConstraints(h Hierarchy, m Metadata) *Constraints {
	return &Constraints{h: h, m: m}
}

// SatisfiesDomain reports whether a subject of subjectType may carry property.
// A property without declared domains accepts every subject.
func (c *Constraints) SatisfiesDomain(ctx context.Context, subjectType, property domain.ResourceURI) (bool, error) {
	domains, err := c.m.DomainsOf(ctx, property)
	if err != nil {
		return false, err
	}
	if len(domains) == 0 {
		return true, nil
	}
	for _, d := range domains {
		ok, err := c.h.IsSubClassOf(ctx, subjectType, d)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// CheckCardinality counts each predicate in props and compares the count with
// the bounds declared for subjectType. It yields one error per offending
// predicate, in order of first appearance.
func (c *Constraints) CheckCardinality(ctx context.Context, index int, subject string, subjectType domain.ResourceURI, props []domain.Property) ([]domain.ValidationError, error) {
	counts := map[domain.ResourceURI]int{}
	var order []domain.ResourceURI
	for _, p := range props {
		if counts[p.Relation] == 0 {
			order = append(order, p.Relation)
		}
		counts[p.Relation]++
	}

	var out []domain.ValidationError
	for _, rel := range order {
		b, err := c.m.Cardinality(ctx, subjectType, rel)
		if err != nil {
			return out, err
		}
		if n := counts[rel]; !b.Allows(n) {
			out = append(out, domain.ValidationError{
				Index:     index,
				Subject:   subject,
				Predicate: rel,
				Value:     fmt.Sprint(n),
				Kind:      domain.KindCardinality,
				Message:   fmt.Sprintf("%d occurrence(s), expected %s", n, b),
			})
		}
	}
	return out, nil
}
