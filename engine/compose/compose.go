// Package compose builds the dependent statements attached to a parent
// resource: its temporal anchor, concerned items, free-form properties and
// annotations.
package compose

import (
	"time"

	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/engine/vocab"
)

// Instant anchors parent in time through an auxiliary instant node.
func Instant(parent, instant domain.ResourceURI, at time.Time) []domain.Triplet {
	return []domain.Triplet{
		domain.URITriplet(instant, vocab.Type, vocab.Instant),
		domain.DateTimeTriplet(instant, vocab.InXSDDateTimeStamp, at),
		domain.URITriplet(parent, vocab.HasTime, instant),
	}
}

// ConcernedItems links parent to each item through relation. Duplicate items
// are linked once.
func ConcernedItems(parent, relation domain.ResourceURI, items []domain.ResourceURI) []domain.Triplet {
	seen := make(map[domain.ResourceURI]bool, len(items))
	out := make([]domain.Triplet, 0, len(items))
	for _, it := range items {
		if it.IsZero() || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, domain.URITriplet(parent, relation, it))
	}
	return out
}

// Properties attaches free-form properties to parent. Predicates handled by
// the other composers are skipped.
func Properties(parent domain.ResourceURI, props []domain.Property) []domain.Triplet {
	out := make([]domain.Triplet, 0, len(props))
	for _, p := range props {
		if vocab.Structural(p.Relation) || p.Relation.IsZero() {
			continue
		}
		out = append(out, domain.Triplet{Subject: parent, Predicate: p.Relation, Object: p.Object()})
	}
	return out
}

// Annotation renders one annotation. Its targets are taken as given.
func Annotation(a domain.Annotation) []domain.Triplet {
	out := []domain.Triplet{
		domain.URITriplet(a.URI, vocab.Type, vocab.Annotation),
		domain.URITriplet(a.URI, vocab.Creator, a.Creator),
		domain.URITriplet(a.URI, vocab.MotivatedBy, a.Motivation),
	}
	if !a.Created.IsZero() {
		out = append(out, domain.DateTimeTriplet(a.URI, vocab.Created, a.Created))
	}
	for _, body := range a.BodyValues {
		out = append(out, domain.LiteralTriplet(a.URI, vocab.BodyValue, body))
	}
	for _, target := range a.Targets {
		out = append(out, domain.URITriplet(a.URI, vocab.HasTarget, target))
	}
	return out
}

// Annotations renders annotations attached to parent. Whatever targets the
// caller supplied, each annotation targets parent only.
func Annotations(parent domain.ResourceURI, anns []domain.Annotation) []domain.Triplet {
	var out []domain.Triplet
	for _, a := range anns {
		a.Targets = []domain.ResourceURI{parent}
		out = append(out, Annotation(a)...)
	}
	return out
}
