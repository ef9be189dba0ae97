package ontology_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/engine/graph/graphtest"
	"github.com/phisdata/phis-dal/engine/ontology"
	"github.com/phisdata/phis-dal/engine/vocab"
)

const (
	ontologyGraph domain.ResourceURI = "http://example.org/set/ontology"
	sensorsGraph  domain.ResourceURI = "http://example.org/set/sensors"

	camera    domain.ResourceURI = vocab.OESO + "Camera"
	rgbCamera domain.ResourceURI = vocab.OESO + "RGBCamera"
	hasLens   domain.ResourceURI = vocab.OESO + "hasLens"
	serial    domain.ResourceURI = vocab.OESO + "serialNumber"
	cam1      domain.ResourceURI = "http://example.org/id/devices/cam1"

	maxOneLens  domain.ResourceURI = "http://example.org/ontology/r1"
	minOneLens  domain.ResourceURI = "http://example.org/ontology/r2"
	exactSerial domain.ResourceURI = "http://example.org/ontology/r3"

	nonNegativeInteger domain.ResourceURI = vocab.XSD + "nonNegativeInteger"
)

func fixture() *graphtest.MemStore {
	return graphtest.New().
		Add(ontologyGraph,
			domain.URITriplet(rgbCamera, vocab.SubClassOf, camera),
			domain.URITriplet(camera, vocab.SubClassOf, vocab.SensingDevice),
			domain.URITriplet(hasLens, vocab.Domain, camera),

			domain.URITriplet(camera, vocab.SubClassOf, maxOneLens),
			domain.URITriplet(maxOneLens, vocab.Type, vocab.Restriction),
			domain.URITriplet(maxOneLens, vocab.OnProperty, hasLens),
			domain.TypedTriplet(maxOneLens, vocab.MaxCardinality, "1", nonNegativeInteger),

			domain.URITriplet(rgbCamera, vocab.SubClassOf, minOneLens),
			domain.URITriplet(minOneLens, vocab.OnProperty, hasLens),
			domain.TypedTriplet(minOneLens, vocab.MinCardinality, "1", nonNegativeInteger),

			domain.URITriplet(vocab.SensingDevice, vocab.SubClassOf, exactSerial),
			domain.URITriplet(exactSerial, vocab.OnProperty, serial),
			domain.TypedTriplet(exactSerial, vocab.Cardinality, "1", nonNegativeInteger),
		).
		Add(sensorsGraph, domain.URITriplet(cam1, vocab.Type, rgbCamera))
}

func TestSubClassOfIsReflexiveTransitive(t *testing.T) {
	store := fixture()
	h := ontology.NewSPARQLHierarchy(store)
	ctx := context.Background()

	ok, err := h.IsSubClassOf(ctx, rgbCamera, rgbCamera)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, store.Queries(), "reflexive case needs no query")

	ok, err = h.IsSubClassOf(ctx, rgbCamera, vocab.SensingDevice)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.IsSubClassOf(ctx, vocab.SensingDevice, rgbCamera)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = h.IsSubClassOf(ctx, "http://example.org/unknown", camera)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsInstanceOfUsesOneQuery(t *testing.T) {
	store := fixture()
	h := ontology.NewSPARQLHierarchy(store)
	ctx := context.Background()

	ok, err := h.IsInstanceOf(ctx, cam1, vocab.SensingDevice)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, store.Queries(), 1)

	ok, err = h.IsInstanceOf(ctx, cam1, vocab.Germplasm)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = h.IsInstanceOf(ctx, "http://example.org/id/devices/missing", vocab.SensingDevice)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTypeOf(t *testing.T) {
	h := ontology.NewSPARQLHierarchy(fixture())
	ctx := context.Background()

	typ, ok, err := h.TypeOf(ctx, cam1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, rgbCamera, typ)

	_, ok, err = h.TypeOf(ctx, "http://example.org/id/devices/missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSatisfiesDomain(t *testing.T) {
	store := fixture()
	c := ontology.NewConstraints(ontology.NewSPARQLHierarchy(store), ontology.NewSPARQLMetadata(store))
	ctx := context.Background()

	tests := []struct {
		name     string
		subject  domain.ResourceURI
		property domain.ResourceURI
		want     bool
	}{
		{"declared domain", camera, hasLens, true},
		{"subclass of domain", rgbCamera, hasLens, true},
		{"outside domain", vocab.Germplasm, hasLens, false},
		{"no declared domain", vocab.Germplasm, vocab.Comment, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := c.SatisfiesDomain(ctx, tt.subject, tt.property)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestCardinalityMergesAncestorRestrictions(t *testing.T) {
	m := ontology.NewSPARQLMetadata(fixture())
	ctx := context.Background()

	b, err := m.Cardinality(ctx, rgbCamera, hasLens)
	require.NoError(t, err)
	assert.Equal(t, ontology.Bounds{Min: 1, Max: 1, Declared: true}, b)

	b, err = m.Cardinality(ctx, camera, hasLens)
	require.NoError(t, err)
	assert.Equal(t, ontology.Bounds{Min: 0, Max: 1, Declared: true}, b)

	b, err = m.Cardinality(ctx, rgbCamera, vocab.Comment)
	require.NoError(t, err)
	assert.False(t, b.Declared)
	assert.True(t, b.Allows(42))
}

func TestCheckCardinalityReportsOncePerPredicate(t *testing.T) {
	store := fixture()
	c := ontology.NewConstraints(ontology.NewSPARQLHierarchy(store), ontology.NewSPARQLMetadata(store))

	props := []domain.Property{
		{Relation: hasLens, Value: "a"},
		{Relation: hasLens, Value: "b"},
		{Relation: hasLens, Value: "c"},
		{Relation: serial, Value: "S-1"},
		{Relation: vocab.Comment, Value: "free"},
	}
	errs, err := c.CheckCardinality(context.Background(), 2, string(cam1), rgbCamera, props)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, hasLens, errs[0].Predicate)
	assert.Equal(t, domain.KindCardinality, errs[0].Kind)
	assert.Equal(t, 2, errs[0].Index)
	assert.Equal(t, "3", errs[0].Value)
}

func TestSessionMemoizes(t *testing.T) {
	store := fixture()
	s := ontology.NewSession(ontology.NewSPARQLHierarchy(store), ontology.NewSPARQLMetadata(store))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := s.IsInstanceOf(ctx, cam1, camera)
		require.NoError(t, err)
		assert.True(t, ok)
		_, err = s.DomainsOf(ctx, hasLens)
		require.NoError(t, err)
		_, _, err = s.TypeOf(ctx, cam1)
		require.NoError(t, err)
	}
	assert.Len(t, store.Queries(), 3)

	ok, err := s.Constraints().SatisfiesDomain(ctx, rgbCamera, hasLens)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBoundsAllows(t *testing.T) {
	b := ontology.Bounds{Min: 1, Max: ontology.Unbounded, Declared: true}
	assert.False(t, b.Allows(0))
	assert.True(t, b.Allows(7))
	assert.Equal(t, "[1..*]", b.String())
}
