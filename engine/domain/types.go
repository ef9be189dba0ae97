// Package domain defines the identity, statement and error types shared by
// the graph, document and relational store adapters.
package domain

import (
	"time"

	"github.com/knakk/rdf"
)

// Property is a free-form (relation, value) pair attached to a resource.
// Value is read as an IRI when it parses as one, unless Datatype or Lang is set.
type Property struct {
	Relation ResourceURI `json:"relation"`
	Value    string      `json:"value"`
	Datatype ResourceURI `json:"datatype,omitempty"`
	Lang     string      `json:"lang,omitempty"`
}

// Object returns the RDF term for the property value.
func (p Property) Object() rdf.Term {
	if p.Lang != "" {
		if lit, err := rdf.NewLangLiteral(p.Value, p.Lang); err == nil {
			return lit
		}
	}
	if p.Datatype != "" {
		return rdf.NewTypedLiteral(p.Value, p.Datatype.IRI())
	}
	if u, err := ParseURI(p.Value); err == nil {
		return u.IRI()
	}
	return rdf.NewTypedLiteral(p.Value, XSDString)
}

// IsURI reports whether the value is rendered as an IRI.
func (p Property) IsURI() bool {
	return p.Object().Type() == rdf.TermIRI
}

// Annotation is a free-text comment linked to one or more target resources.
type Annotation struct {
	URI        ResourceURI   `json:"uri,omitempty"`
	Creator    ResourceURI   `json:"creator"`
	Motivation ResourceURI   `json:"motivatedBy"`
	BodyValues []string      `json:"bodyValues"`
	Targets    []ResourceURI `json:"targets"`
	Created    time.Time     `json:"creationDate"`
}

// Event is something that happened to one or more concerned items at an instant.
type Event struct {
	URI            ResourceURI   `json:"uri,omitempty"`
	Type           ResourceURI   `json:"rdfType"`
	Instant        ResourceURI   `json:"instant,omitempty"`
	Date           time.Time     `json:"date"`
	ConcernedItems []ResourceURI `json:"concernedItems"`
	Properties     []Property    `json:"properties,omitempty"`
	Annotations    []Annotation  `json:"annotations,omitempty"`
}

// ConcernedItem is a linked object with its display label.
type ConcernedItem struct {
	URI    ResourceURI `json:"uri"`
	Type   ResourceURI `json:"rdfType,omitempty"`
	Labels []string    `json:"labels,omitempty"`
}

// Germplasm is a genetic resource (species, variety, accession, lot).
type Germplasm struct {
	URI        ResourceURI `json:"uri,omitempty"`
	Type       ResourceURI `json:"rdfType"`
	Label      string      `json:"label"`
	Species    ResourceURI `json:"species,omitempty"`
	Properties []Property  `json:"properties,omitempty"`
}

// Measurement is one time-series data point stored in the document store.
type Measurement struct {
	URI        ResourceURI `json:"uri,omitempty" bson:"uri"`
	Variable   ResourceURI `json:"variable" bson:"variable"`
	Object     ResourceURI `json:"object" bson:"object"`
	Provenance ResourceURI `json:"provenance" bson:"provenance"`
	Date       time.Time   `json:"date" bson:"date"`
	Value      any         `json:"value" bson:"value"`
}
