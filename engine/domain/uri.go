package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/knakk/rdf"
)

// ErrInvalidURI is returned by ParseURI for strings that cannot identify a resource.
var ErrInvalidURI = errors.New("invalid resource URI")

// ResourceURI identifies a graph node (class, instance or property). The same
// value is used as a SPARQL IRI, a document field and a SQL column, so it is
// the only identity type shared by the three store adapters.
type ResourceURI string

// ParseURI validates s as an absolute http(s) or urn IRI.
func ParseURI(s string) (ResourceURI, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURI)
	}
	if strings.ContainsAny(s, " \t\r\n<>\"{}|^`\\") {
		return "", fmt.Errorf("%w: %q contains illegal characters", ErrInvalidURI, s)
	}
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() {
		return "", fmt.Errorf("%w: %q is not absolute", ErrInvalidURI, s)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "urn":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURI, u.Scheme)
	}
	return ResourceURI(s), nil
}

// MustURI is ParseURI for constants; it panics on invalid input.
func MustURI(s string) ResourceURI {
	u, err := ParseURI(s)
	if err != nil {
		panic(err)
	}
	return u
}

func (u ResourceURI) String() string { return string(u) }

// IsZero reports whether the URI is unset.
func (u ResourceURI) IsZero() bool { return u == "" }

// Serialize renders the URI as an IRI reference. It lets a ResourceURI be
// used directly as a query term.
func (u ResourceURI) Serialize(rdf.Format) string { return "<" + string(u) + ">" }

// IRI converts to a knakk/rdf IRI. Invalid URIs yield the zero IRI.
func (u ResourceURI) IRI() rdf.IRI {
	iri, err := rdf.NewIRI(string(u))
	if err != nil {
		return rdf.IRI{}
	}
	return iri
}

// LocalName returns the fragment or last path segment.
func (u ResourceURI) LocalName() string {
	s := string(u)
	if i := strings.LastIndexAny(s, "#/:"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Namespace returns everything up to and including the last '#', '/' or ':'.
func (u ResourceURI) Namespace() string {
	s := string(u)
	if i := strings.LastIndexAny(s, "#/:"); i >= 0 {
		return s[:i+1]
	}
	return ""
}
