// Package validate admits or rejects a batch of candidate resources before
// any write. Every candidate is checked to completion and every problem is
// reported; the batch is admitted only when no problem was found.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phisdata/phis-dal/engine/account"
	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/engine/graph"
	"github.com/phisdata/phis-dal/engine/ontology"
	"github.com/phisdata/phis-dal/engine/vocab"
	"github.com/phisdata/phis-dal/pkg/metrics"
)

// Reference is a link from a candidate to a resource that must already exist.
type Reference struct {
	Predicate domain.ResourceURI
	URI       domain.ResourceURI
	// Type, when set, must be a type of URI (through subClassOf*).
	Type domain.ResourceURI
	// Graph restricts the existence lookup. Zero searches the dataset.
	Graph    domain.ResourceURI
	Required bool
}

// Candidate is one resource awaiting admission.
type Candidate struct {
	// Key names the candidate in errors, e.g. "events[2]" or its URI.
	Key        string
	Type       domain.ResourceURI
	Root       domain.ResourceURI
	Properties []domain.Property
	References []Reference
	// ConcernedItems must each exist.
	ConcernedItems []domain.ResourceURI
	Instant        time.Time
	Annotations    []domain.Annotation
	// Required lists predicates that must occur among Properties.
	Required []domain.ResourceURI
}

// AnnotationCandidate describes a standalone annotation: its creator must be
// a person, its motivation a motivation instance, and every target must exist.
func AnnotationCandidate(key string, a domain.Annotation) Candidate {
	c := Candidate{
		Key:  key,
		Type: vocab.Annotation,
		References: []Reference{
			{Predicate: vocab.Creator, URI: a.Creator, Type: vocab.Person, Required: true},
			{Predicate: vocab.MotivatedBy, URI: a.Motivation, Type: vocab.Motivation, Required: true},
		},
		Required: []domain.ResourceURI{vocab.BodyValue, vocab.HasTarget},
	}
	for _, b := range a.BodyValues {
		c.Properties = append(c.Properties, domain.Property{Relation: vocab.BodyValue, Value: b, Datatype: vocab.XSD + "string"})
	}
	for _, t := range a.Targets {
		c.References = append(c.References, Reference{Predicate: vocab.HasTarget, URI: t})
		c.Properties = append(c.Properties, domain.Property{Relation: vocab.HasTarget, Value: t.String()})
	}
	return c
}

// Rules are the batch-wide admission rules of one operation.
type Rules struct {
	Operation string
	AdminOnly bool
	// Root is the concept every candidate type must specialize, unless the
	// candidate names its own.
	Root                  domain.ResourceURI
	RequireInstant        bool
	RequireConcernedItems bool
	// SkipCardinality disables the restriction check for partial payloads.
	SkipCardinality bool
}

// Options wires a Validator to its collaborators. Nil fields fall back to
// SPARQL lookups on the store and the default logger.
type Options struct {
	Hierarchy   ontology.Hierarchy
	Metadata    ontology.Metadata
	Users       account.Users
	Logger      *slog.Logger
	Metrics     *metrics.DAL
	// Experiments, when set, resolves references typed as experiments.
	Experiments account.Experiments
}

// Validator runs the admission checks against the graph store.
type Validator struct {
	store   graph.Store
	h       ontology.Hierarchy
	m       ontology.Metadata
	users   account.Users
	exps    account.Experiments
	log     *slog.Logger
	metrics *metrics.DAL
}

// New creates a new Validator.
func New(store graph.Store, opts Options) *Validator {
	v := &Validator{
		store:   store,
		h:       opts.Hierarchy,
		m:       opts.Metadata,
		users:   opts.Users,
		exps:    opts.Experiments,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
	if v.h == nil {
		v.h = ontology.NewSPARQLHierarchy(store)
	}
	if v.m == nil {
		v.m = ontology.NewSPARQLMetadata(store)
	}
	if v.log == nil {
		v.log = slog.Default()
	}
	return v
}

// Validate checks cs under rules on behalf of principal. Validation problems
// are returned in the report; the error is reserved for authorization and
// store failures. An admin-only operation attempted by a non-admin fails
// before any candidate is looked at.
func (v *Validator) Validate(ctx context.Context, principal string, rules Rules, cs []Candidate) (domain.Report, error) {
	var report domain.Report
	if rules.AdminOnly {
		if err := v.Authorize(ctx, principal, rules.Operation); err != nil {
			return report, err
		}
	}

	run := &check{v: v, s: ontology.NewSession(v.h, v.m), rules: rules, exps: map[domain.ResourceURI]bool{}}
	for i, c := range cs {
		if err := run.candidate(ctx, i, c, &report); err != nil {
			return report, err
		}
	}
	for _, e := range report.Errors {
		v.metrics.ValidationError(string(e.Kind))
	}
	if !report.OK() {
		v.log.Info("batch rejected", "op", rules.Operation, "candidates", len(cs), "errors", report.Len())
	}
	return report, nil
}

// Authorize fails with an AuthorizationError unless principal is an
// administrator. Without a user store every principal is refused.
func (v *Validator) Authorize(ctx context.Context, principal, op string) error {
	if v.users == nil {
		return &domain.AuthorizationError{Principal: principal, Operation: op}
	}
	ok, err := v.users.IsAdmin(ctx, principal)
	if err != nil {
		return err
	}
	if !ok {
		return &domain.AuthorizationError{Principal: principal, Operation: op}
	}
	return nil
}

// check carries the per-batch state: one ontology session shared by every
// candidate so repeated lookups cost one round trip.
type check struct {
	v     *Validator
	s     *ontology.Session
	rules Rules
	exps  map[domain.ResourceURI]bool
}

func (k *check) candidate(ctx context.Context, i int, c Candidate, r *domain.Report) error {
	subject := c.Key
	if subject == "" {
		subject = fmt.Sprintf("[%d]", i)
	}

	typeOK, err := k.typeCheck(ctx, i, subject, c, r)
	if err != nil {
		return err
	}
	for _, ref := range c.References {
		if err := k.reference(ctx, i, subject, ref, r); err != nil {
			return err
		}
	}
	if err := k.concerned(ctx, i, subject, c.ConcernedItems, r); err != nil {
		return err
	}
	k.required(i, subject, c, r)
	if k.rules.RequireInstant && c.Instant.IsZero() {
		r.Addf(i, subject, domain.KindMissing, vocab.HasTime, "", "date is required")
	}
	for j, a := range c.Annotations {
		if err := k.annotation(ctx, i, fmt.Sprintf("%s.annotations[%d]", subject, j), a, r); err != nil {
			return err
		}
	}
	// Property checks need a trusted type.
	if typeOK {
		return k.properties(ctx, i, subject, c, r)
	}
	return nil
}

func (k *check) required(i int, subject string, c Candidate, r *domain.Report) {
	present := make(map[domain.ResourceURI]bool, len(c.Properties))
	for _, p := range c.Properties {
		if p.Value != "" {
			present[p.Relation] = true
		}
	}
	for _, pred := range c.Required {
		if !present[pred] {
			r.Addf(i, subject, domain.KindMissing, pred, "", "%s is required", pred.LocalName())
		}
	}
}

func (k *check) typeCheck(ctx context.Context, i int, subject string, c Candidate, r *domain.Report) (bool, error) {
	if c.Type.IsZero() {
		r.Addf(i, subject, domain.KindMissing, vocab.Type, "", "type is required")
		return false, nil
	}
	root := c.Root
	if root.IsZero() {
		root = k.rules.Root
	}
	if root.IsZero() {
		return true, nil
	}
	ok, err := k.s.IsSubClassOf(ctx, c.Type, root)
	if err != nil {
		return false, err
	}
	if !ok {
		r.Addf(i, subject, domain.KindWrongType, vocab.Type, c.Type.String(), "%s is not a subclass of %s", c.Type, root)
	}
	return ok, nil
}

func (k *check) reference(ctx context.Context, i int, subject string, ref Reference, r *domain.Report) error {
	if ref.URI.IsZero() {
		if ref.Required {
			r.Addf(i, subject, domain.KindMissing, ref.Predicate, "", "reference is required")
		}
		return nil
	}
	if ref.Type == vocab.Experiment && k.v.exps != nil {
		return k.experiment(ctx, i, subject, ref, r)
	}
	if !ref.Type.IsZero() {
		ok, err := k.s.IsInstanceOf(ctx, ref.URI, ref.Type)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	exists, err := graph.ExistsInGraph(ctx, k.v.store, ref.Graph, ref.URI)
	if err != nil {
		return err
	}
	switch {
	case !exists:
		r.Addf(i, subject, domain.KindUnknownReference, ref.Predicate, ref.URI.String(), "unknown resource %s", ref.URI)
	case !ref.Type.IsZero():
		r.Addf(i, subject, domain.KindWrongType, ref.Predicate, ref.URI.String(), "%s is not a %s", ref.URI, ref.Type)
	}
	return nil
}

func (k *check) experiment(ctx context.Context, i int, subject string, ref Reference, r *domain.Report) error {
	ok, seen := k.exps[ref.URI]
	if !seen {
		var err error
		if ok, err = k.v.exps.ExperimentExists(ctx, ref.URI); err != nil {
			return err
		}
		k.exps[ref.URI] = ok
	}
	if !ok {
		r.Addf(i, subject, domain.KindUnknownReference, ref.Predicate, ref.URI.String(), "unknown experiment %s", ref.URI)
	}
	return nil
}

func (k *check) concerned(ctx context.Context, i int, subject string, items []domain.ResourceURI, r *domain.Report) error {
	if k.rules.RequireConcernedItems && len(items) == 0 {
		r.Addf(i, subject, domain.KindMissing, vocab.Concerns, "", "at least one concerned item is required")
	}
	for _, it := range items {
		if err := k.reference(ctx, i, subject, Reference{Predicate: vocab.Concerns, URI: it}, r); err != nil {
			return err
		}
	}
	return nil
}

func (k *check) annotation(ctx context.Context, i int, subject string, a domain.Annotation, r *domain.Report) error {
	refs := []Reference{
		{Predicate: vocab.Creator, URI: a.Creator, Type: vocab.Person, Required: true},
		{Predicate: vocab.MotivatedBy, URI: a.Motivation, Type: vocab.Motivation, Required: true},
	}
	for _, ref := range refs {
		if err := k.reference(ctx, i, subject, ref, r); err != nil {
			return err
		}
	}
	if len(a.BodyValues) == 0 {
		r.Addf(i, subject, domain.KindMissing, vocab.BodyValue, "", "at least one body value is required")
	}
	return nil
}

func (k *check) properties(ctx context.Context, i int, subject string, c Candidate, r *domain.Report) error {
	for _, p := range c.Properties {
		if p.Relation.IsZero() {
			r.Addf(i, subject, domain.KindMalformed, "", p.Value, "property relation is required")
			continue
		}
		ok, err := k.s.Constraints().SatisfiesDomain(ctx, c.Type, p.Relation)
		if err != nil {
			return err
		}
		if !ok {
			r.Addf(i, subject, domain.KindOutOfDomain, p.Relation, p.Value, "%s is outside the domain of %s", c.Type, p.Relation)
		}
	}
	if k.rules.SkipCardinality {
		return nil
	}
	errs, err := k.s.Constraints().CheckCardinality(ctx, i, subject, c.Type, c.Properties)
	if err != nil {
		return err
	}
	for _, e := range errs {
		r.Add(e)
	}
	return nil
}
