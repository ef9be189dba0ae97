package validate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/engine/graph/graphtest"
	"github.com/phisdata/phis-dal/engine/ontology"
	"github.com/phisdata/phis-dal/engine/validate"
	"github.com/phisdata/phis-dal/engine/vocab"
	"github.com/phisdata/phis-dal/pkg/repo"
)

const (
	ontologyGraph domain.ResourceURI = "http://example.org/set/ontology"
	dataGraph     domain.ResourceURI = "http://example.org/set/data"

	maxTwoBodies domain.ResourceURI = "http://example.org/ontology/r1"
	hasLens      domain.ResourceURI = vocab.OESO + "hasLens"
	camera       domain.ResourceURI = vocab.OESO + "Camera"
	moveEvent    domain.ResourceURI = vocab.OEEV + "MoveFrom"

	alice      domain.ResourceURI = "http://example.org/id/users/alice"
	commenting domain.ResourceURI = vocab.OA + "commenting"
	plotA      domain.ResourceURI = "http://example.org/id/objects/plot-a"
)

func fixture() *graphtest.MemStore {
	return graphtest.New().
		Add(ontologyGraph,
			domain.URITriplet(vocab.Annotation, vocab.SubClassOf, maxTwoBodies),
			domain.URITriplet(maxTwoBodies, vocab.OnProperty, vocab.BodyValue),
			domain.TypedTriplet(maxTwoBodies, vocab.MaxCardinality, "2", vocab.XSD+"nonNegativeInteger"),
			domain.URITriplet(moveEvent, vocab.SubClassOf, vocab.Event),
			domain.URITriplet(camera, vocab.SubClassOf, vocab.SensingDevice),
			domain.URITriplet(hasLens, vocab.Domain, camera),
			domain.URITriplet(commenting, vocab.Type, vocab.Motivation),
		).
		Add(dataGraph,
			domain.URITriplet(alice, vocab.Type, vocab.Person),
			domain.URITriplet(plotA, vocab.Type, vocab.ScientificObject),
			domain.LiteralTriplet(plotA, vocab.Label, "Plot A"),
		)
}

type users map[string]bool

func (u users) IsAdmin(_ context.Context, principal string) (bool, error) {
	return u[principal], nil
}

func annotation(creator domain.ResourceURI, bodies ...string) domain.Annotation {
	return domain.Annotation{
		Creator:    creator,
		Motivation: commenting,
		BodyValues: bodies,
		Targets:    []domain.ResourceURI{plotA},
	}
}

func TestAggregateCollectsEveryError(t *testing.T) {
	v := validate.New(fixture(), validate.Options{})

	report, err := v.Validate(context.Background(), "alice@example.org", validate.Rules{Operation: "create annotations"}, []validate.Candidate{
		validate.AnnotationCandidate("annotations[0]", annotation("http://example.org/id/users/nobody", "dry leaves")),
		validate.AnnotationCandidate("annotations[1]", annotation(alice, "one", "two", "three")),
		validate.AnnotationCandidate("annotations[2]", annotation(alice, "fine")),
	})
	require.NoError(t, err)
	require.Equal(t, 2, report.Len(), "%v", report.Errors)

	first := report.ForIndex(0)
	require.Len(t, first, 1)
	assert.Equal(t, domain.KindUnknownReference, first[0].Kind)
	assert.Equal(t, vocab.Creator, first[0].Predicate)

	second := report.ForIndex(1)
	require.Len(t, second, 1)
	assert.Equal(t, domain.KindCardinality, second[0].Kind)
	assert.Equal(t, vocab.BodyValue, second[0].Predicate)
	assert.Equal(t, "3", second[0].Value)

	assert.Empty(t, report.ForIndex(2))
	assert.Error(t, report.Err())
}

func TestAdminOnlyShortCircuits(t *testing.T) {
	store := fixture()
	v := validate.New(store, validate.Options{Users: users{"root@example.org": true}})
	rules := validate.Rules{Operation: "create germplasm", AdminOnly: true, Root: vocab.Germplasm}
	bad := []validate.Candidate{{Key: "germplasm[0]"}}

	report, err := v.Validate(context.Background(), "alice@example.org", rules, bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAdminOnly))
	var authErr *domain.AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "alice@example.org", authErr.Principal)
	assert.True(t, report.OK())
	assert.Empty(t, store.Queries(), "no candidate is checked")

	report, err = v.Validate(context.Background(), "root@example.org", rules, bad)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Len())
}

func TestAdminOnlyWithoutUsersIsDenied(t *testing.T) {
	v := validate.New(fixture(), validate.Options{})
	_, err := v.Validate(context.Background(), "root@example.org", validate.Rules{AdminOnly: true}, nil)
	assert.ErrorIs(t, err, domain.ErrAdminOnly)
}

func TestTypeAndReferenceChecks(t *testing.T) {
	v := validate.New(fixture(), validate.Options{})
	at := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		rules validate.Rules
		c     validate.Candidate
		kinds []domain.ErrorKind
	}{
		{
			name:  "valid event",
			rules: validate.Rules{Root: vocab.Event, RequireInstant: true, RequireConcernedItems: true},
			c:     validate.Candidate{Type: moveEvent, Instant: at, ConcernedItems: []domain.ResourceURI{plotA}},
		},
		{
			name:  "missing type",
			rules: validate.Rules{Root: vocab.Event},
			c:     validate.Candidate{},
			kinds: []domain.ErrorKind{domain.KindMissing},
		},
		{
			name:  "type outside root",
			rules: validate.Rules{Root: vocab.Event},
			c:     validate.Candidate{Type: camera},
			kinds: []domain.ErrorKind{domain.KindWrongType},
		},
		{
			name:  "candidate root overrides rules",
			rules: validate.Rules{Root: vocab.Event},
			c:     validate.Candidate{Type: camera, Root: vocab.SensingDevice},
		},
		{
			name:  "missing instant and items",
			rules: validate.Rules{Root: vocab.Event, RequireInstant: true, RequireConcernedItems: true},
			c:     validate.Candidate{Type: moveEvent},
			kinds: []domain.ErrorKind{domain.KindMissing, domain.KindMissing},
		},
		{
			name:  "unknown concerned item",
			rules: validate.Rules{Root: vocab.Event},
			c:     validate.Candidate{Type: moveEvent, ConcernedItems: []domain.ResourceURI{"http://example.org/id/objects/ghost"}},
			kinds: []domain.ErrorKind{domain.KindUnknownReference},
		},
		{
			name: "reference of the wrong type",
			c: validate.Candidate{Type: moveEvent, References: []validate.Reference{
				{Predicate: vocab.Creator, URI: plotA, Type: vocab.Person},
			}},
			kinds: []domain.ErrorKind{domain.KindWrongType},
		},
		{
			name: "required reference",
			c: validate.Candidate{Type: moveEvent, References: []validate.Reference{
				{Predicate: vocab.Creator, Required: true},
			}},
			kinds: []domain.ErrorKind{domain.KindMissing},
		},
		{
			name: "property outside its domain",
			c: validate.Candidate{Type: moveEvent, Properties: []domain.Property{
				{Relation: hasLens, Value: "http://example.org/id/lenses/l1"},
			}},
			kinds: []domain.ErrorKind{domain.KindOutOfDomain},
		},
		{
			name: "property without relation",
			c: validate.Candidate{Type: moveEvent, Properties: []domain.Property{
				{Value: "orphan"},
			}},
			kinds: []domain.ErrorKind{domain.KindMalformed},
		},
		{
			name: "annotation on an event",
			c: validate.Candidate{Type: moveEvent, Annotations: []domain.Annotation{
				{Creator: alice, Motivation: "http://example.org/id/users/alice"},
			}},
			kinds: []domain.ErrorKind{domain.KindWrongType, domain.KindMissing},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := v.Validate(context.Background(), "", tt.rules, []validate.Candidate{tt.c})
			require.NoError(t, err)
			var kinds []domain.ErrorKind
			for _, e := range report.Errors {
				kinds = append(kinds, e.Kind)
			}
			assert.Equal(t, tt.kinds, kinds)
		})
	}
}

func TestPlaceholderSubject(t *testing.T) {
	v := validate.New(fixture(), validate.Options{})
	report, err := v.Validate(context.Background(), "", validate.Rules{}, []validate.Candidate{{Type: moveEvent}, {}})
	require.NoError(t, err)
	require.Equal(t, 1, report.Len())
	assert.Equal(t, "[1]", report.Errors[0].Subject)
}

func TestStoreFailureAborts(t *testing.T) {
	store := fixture()
	store.FailQuery = func(string) error {
		return domain.NewPersistenceError("select", domain.PersistenceUnavailable, errors.New("connection refused"))
	}
	v := validate.New(store, validate.Options{})

	_, err := v.Validate(context.Background(), "", validate.Rules{Root: vocab.Event}, []validate.Candidate{{Type: moveEvent}})
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
}

func TestSessionIsSharedAcrossCandidates(t *testing.T) {
	store := fixture()
	v := validate.New(store, validate.Options{})
	cs := make([]validate.Candidate, 5)
	for i := range cs {
		cs[i] = validate.Candidate{Type: moveEvent}
	}

	report, err := v.Validate(context.Background(), "", validate.Rules{Root: vocab.Event}, cs)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Len(t, store.Queries(), 1)
}

// taxonomy answers the subclass query of the Neo4j mirror from a child to
// parents map.
type taxonomy struct {
	parents map[domain.ResourceURI][]domain.ResourceURI
	runs    int
}

func (x *taxonomy) reaches(from, to domain.ResourceURI) bool {
	if from == to {
		return true
	}
	for _, p := range x.parents[from] {
		if x.reaches(p, to) {
			return true
		}
	}
	return false
}

func (x *taxonomy) Run(_ context.Context, _ string, params map[string]any) (repo.Result, error) {
	x.runs++
	from, _ := params["candidate"].(string)
	to, _ := params["expected"].(string)
	ok := x.reaches(domain.ResourceURI(from), domain.ResourceURI(to))
	return &records{recs: []*neo4j.Record{{Keys: []string{"ok"}, Values: []any{ok}}}}, nil
}

func (x *taxonomy) Close(context.Context) error { return nil }

type records struct {
	recs []*neo4j.Record
	i    int
}

func (r *records) Next(context.Context) bool {
	r.i++
	return r.i <= len(r.recs)
}

func (r *records) Record() *neo4j.Record { return r.recs[r.i-1] }
func (r *records) Err() error            { return nil }

func TestNeo4jMirrorAdmitsValidAnnotation(t *testing.T) {
	researcher := domain.ResourceURI(vocab.OESO + "Researcher")
	bob := domain.ResourceURI("http://example.org/id/users/bob")
	store := fixture().Add(dataGraph, domain.URITriplet(bob, vocab.Type, researcher))
	mirror := &taxonomy{parents: map[domain.ResourceURI][]domain.ResourceURI{researcher: {vocab.Person}}}

	v := validate.New(store, validate.Options{
		Hierarchy: ontology.NewNeo4jHierarchy(func(context.Context) repo.Runner { return mirror }, store),
	})
	report, err := v.Validate(context.Background(), "bob@example.org", validate.Rules{Operation: "create annotations"}, []validate.Candidate{
		validate.AnnotationCandidate("annotations[0]", annotation(bob, "dry leaves")),
		validate.AnnotationCandidate("annotations[1]", annotation(plotA, "wrong creator")),
	})
	require.NoError(t, err)
	assert.Empty(t, report.ForIndex(0), "%v", report.Errors)
	second := report.ForIndex(1)
	require.Len(t, second, 1)
	assert.Equal(t, domain.KindWrongType, second[0].Kind)
	assert.Positive(t, mirror.runs, "subclass checks go through the mirror")
}

type experiments struct {
	known map[domain.ResourceURI]bool
	calls int
}

func (e *experiments) ExperimentExists(_ context.Context, uri domain.ResourceURI) (bool, error) {
	e.calls++
	return e.known[uri], nil
}

func TestExperimentReferencesUseRelationalStore(t *testing.T) {
	x1 := domain.ResourceURI("http://example.org/id/experiment/x1")
	ghost := domain.ResourceURI("http://example.org/id/experiment/ghost")
	exps := &experiments{known: map[domain.ResourceURI]bool{x1: true}}
	store := fixture()
	v := validate.New(store, validate.Options{Experiments: exps})

	ref := func(u domain.ResourceURI) validate.Reference {
		return validate.Reference{Predicate: vocab.HasExperiment, URI: u, Type: vocab.Experiment}
	}
	report, err := v.Validate(context.Background(), "", validate.Rules{SkipCardinality: true}, []validate.Candidate{
		{Type: vocab.Provenance, References: []validate.Reference{ref(x1)}},
		{Type: vocab.Provenance, References: []validate.Reference{ref(x1), ref(ghost)}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.Len(), "%v", report.Errors)
	assert.Equal(t, 1, report.Errors[0].Index)
	assert.Equal(t, domain.KindUnknownReference, report.Errors[0].Kind)
	assert.Equal(t, ghost.String(), report.Errors[0].Value)
	assert.Equal(t, 2, exps.calls, "lookups are memoized per batch")
	assert.Empty(t, store.Queries(), "experiments are not looked up in the graph")
}
