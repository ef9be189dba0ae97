// Package sparql assembles SPARQL 1.1 query and update text. Rendering is the
// only place that produces query strings; DAOs compose builders and never
// concatenate text themselves.
package sparql

import (
	"strconv"
	"strings"
	"time"

	"github.com/knakk/rdf"

	"github.com/phisdata/phis-dal/engine/domain"
)

// Term is anything that can sit in a triple pattern position: a variable, an
// IRI (domain.ResourceURI or rdf.IRI), a literal or a property path.
type Term interface {
	Serialize(rdf.Format) string
}

// Var is a query variable, written without the leading '?'.
type Var string

func (v Var) Serialize(rdf.Format) string { return "?" + string(v) }

// Canonical variables.
const (
	URI   Var = "uri"
	Count Var = "count"
)

// Path is a property path over a single predicate.
type Path struct {
	Pred domain.ResourceURI
	Mod  string
}

func (p Path) Serialize(f rdf.Format) string { return p.Pred.Serialize(f) + p.Mod }

// ZeroOrMore is the reflexive-transitive path p*.
func ZeroOrMore(p domain.ResourceURI) Path { return Path{Pred: p, Mod: "*"} }

// OneOrMore is the transitive path p+.
func OneOrMore(p domain.ResourceURI) Path { return Path{Pred: p, Mod: "+"} }

type raw string

func (r raw) Serialize(rdf.Format) string { return string(r) }

// String returns a plain string literal term.
func String(s string) Term { return raw(quote(s)) }

// Int returns an xsd:integer literal term.
func Int(n int) Term {
	return rdf.NewTypedLiteral(strconv.Itoa(n), domain.XSDInteger)
}

// DateTime returns an xsd:dateTime literal term in UTC.
func DateTime(t time.Time) Term {
	return rdf.NewTypedLiteral(domain.FormatDateTime(t), domain.XSDDateTime)
}

// URIs converts resource URIs to terms.
func URIs(us ...domain.ResourceURI) []Term {
	out := make([]Term, len(us))
	for i, u := range us {
		out[i] = u
	}
	return out
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func quote(s string) string { return `"` + literalEscaper.Replace(s) + `"` }

func ser(t Term) string { return t.Serialize(rdf.NTriples) }
