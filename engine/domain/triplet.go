package domain

import (
	"time"

	"github.com/knakk/rdf"
)

// XSD datatypes used for literal objects.
var (
	XSDString   = mustIRI("http://www.w3.org/2001/XMLSchema#string")
	XSDInteger  = mustIRI("http://www.w3.org/2001/XMLSchema#integer")
	XSDDecimal  = mustIRI("http://www.w3.org/2001/XMLSchema#decimal")
	XSDBoolean  = mustIRI("http://www.w3.org/2001/XMLSchema#boolean")
	XSDDateTime = mustIRI("http://www.w3.org/2001/XMLSchema#dateTime")
)

func mustIRI(s string) rdf.IRI {
	iri, err := rdf.NewIRI(s)
	if err != nil {
		panic(err)
	}
	return iri
}

// Triplet is the unit of graph mutation. Object is an IRI or a literal.
type Triplet struct {
	Subject   ResourceURI
	Predicate ResourceURI
	Object    rdf.Term
}

// URITriplet links two resources.
func URITriplet(s, p, o ResourceURI) Triplet {
	return Triplet{Subject: s, Predicate: p, Object: o.IRI()}
}

// LiteralTriplet attaches a plain string literal.
func LiteralTriplet(s, p ResourceURI, value string) Triplet {
	return Triplet{Subject: s, Predicate: p, Object: rdf.NewTypedLiteral(value, XSDString)}
}

// TypedTriplet attaches a literal with an explicit XSD datatype.
func TypedTriplet(s, p ResourceURI, value string, datatype ResourceURI) Triplet {
	return Triplet{Subject: s, Predicate: p, Object: rdf.NewTypedLiteral(value, datatype.IRI())}
}

// LangTriplet attaches a language-tagged literal.
func LangTriplet(s, p ResourceURI, value, lang string) (Triplet, error) {
	lit, err := rdf.NewLangLiteral(value, lang)
	if err != nil {
		return Triplet{}, err
	}
	return Triplet{Subject: s, Predicate: p, Object: lit}, nil
}

// DateTimeTriplet attaches an xsd:dateTime literal normalised to UTC.
func DateTimeTriplet(s, p ResourceURI, t time.Time) Triplet {
	return Triplet{Subject: s, Predicate: p, Object: rdf.NewTypedLiteral(FormatDateTime(t), XSDDateTime)}
}

// ObjectURI returns the object as a ResourceURI when it is an IRI.
func (t Triplet) ObjectURI() (ResourceURI, bool) {
	if t.Object == nil || t.Object.Type() != rdf.TermIRI {
		return "", false
	}
	return ResourceURI(t.Object.String()), true
}

// Valid reports whether every position is filled.
func (t Triplet) Valid() bool {
	return !t.Subject.IsZero() && !t.Predicate.IsZero() && t.Object != nil
}

// NTriple renders the statement as one N-Triples line (without newline).
func (t Triplet) NTriple() string {
	return t.Subject.Serialize(rdf.NTriples) + " " + t.Predicate.Serialize(rdf.NTriples) + " " + t.Object.Serialize(rdf.NTriples) + " ."
}

// Property returns the predicate and object as a free-form property.
func (t Triplet) Property() Property {
	p := Property{Relation: t.Predicate}
	if t.Object == nil {
		return p
	}
	p.Value = t.Object.String()
	if lit, ok := t.Object.(rdf.Literal); ok {
		if lang := lit.Lang(); lang != "" {
			p.Lang = lang
		} else {
			p.Datatype = ResourceURI(lit.DataType.String())
		}
	}
	return p
}
