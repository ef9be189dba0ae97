// Package vocab holds the IRIs of the ontologies the engine reasons over.
package vocab

import "github.com/phisdata/phis-dal/engine/domain"

// Namespaces.
const (
	RDF     = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFS    = "http://www.w3.org/2000/01/rdf-schema#"
	OWL     = "http://www.w3.org/2002/07/owl#"
	XSD     = "http://www.w3.org/2001/XMLSchema#"
	Time    = "http://www.w3.org/2006/time#"
	OA      = "http://www.w3.org/ns/oa#"
	DCTerms = "http://purl.org/dc/terms/"
	FOAF    = "http://xmlns.com/foaf/0.1/"
	OESO    = "http://www.opensilex.org/vocabulary/oeso#"
	OEEV    = "http://www.opensilex.org/vocabulary/oeev#"
)

// Schema relations.
const (
	Type           domain.ResourceURI = RDF + "type"
	SubClassOf     domain.ResourceURI = RDFS + "subClassOf"
	Label          domain.ResourceURI = RDFS + "label"
	Comment        domain.ResourceURI = RDFS + "comment"
	Domain         domain.ResourceURI = RDFS + "domain"
	Range          domain.ResourceURI = RDFS + "range"
	OnProperty     domain.ResourceURI = OWL + "onProperty"
	Cardinality    domain.ResourceURI = OWL + "cardinality"
	MinCardinality domain.ResourceURI = OWL + "minCardinality"
	MaxCardinality domain.ResourceURI = OWL + "maxCardinality"
	Restriction    domain.ResourceURI = OWL + "Restriction"
	Class          domain.ResourceURI = OWL + "Class"
)

// Temporal anchoring.
const (
	Instant            domain.ResourceURI = Time + "Instant"
	HasTime            domain.ResourceURI = Time + "hasTime"
	InXSDDateTimeStamp domain.ResourceURI = Time + "inXSDDateTimeStamp"
)

// Annotations.
const (
	Annotation  domain.ResourceURI = OA + "Annotation"
	Motivation  domain.ResourceURI = OA + "Motivation"
	HasTarget   domain.ResourceURI = OA + "hasTarget"
	MotivatedBy domain.ResourceURI = OA + "motivatedBy"
	BodyValue   domain.ResourceURI = OA + "bodyValue"
	Creator     domain.ResourceURI = DCTerms + "creator"
	Created     domain.ResourceURI = DCTerms + "created"
	Person      domain.ResourceURI = FOAF + "Person"
)

// Phenotyping concepts.
const (
	Event            domain.ResourceURI = OEEV + "Event"
	Concerns         domain.ResourceURI = OEEV + "concerns"
	Germplasm        domain.ResourceURI = OESO + "Germplasm"
	Species          domain.ResourceURI = OESO + "Species"
	FromSpecies      domain.ResourceURI = OESO + "fromSpecies"
	SensingDevice    domain.ResourceURI = OESO + "SensingDevice"
	Variable         domain.ResourceURI = OESO + "Variable"
	ScientificObject domain.ResourceURI = OESO + "ScientificObject"
	Experiment       domain.ResourceURI = OESO + "Experiment"
	Provenance       domain.ResourceURI = OESO + "Provenance"
	HasExperiment    domain.ResourceURI = OESO + "hasExperiment"
)

// Structural reports whether p is managed by a dedicated composer rather than
// the free-form property list.
func Structural(p domain.ResourceURI) bool {
	switch p {
	case Type, HasTime, Concerns:
		return true
	}
	return false
}
