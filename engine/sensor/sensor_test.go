package sensor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/engine/graph"
	"github.com/phisdata/phis-dal/engine/graph/graphtest"
	"github.com/phisdata/phis-dal/engine/sensor"
	"github.com/phisdata/phis-dal/engine/validate"
	"github.com/phisdata/phis-dal/engine/vocab"
)

const (
	ontologyGraph domain.ResourceURI = "http://example.org/set/ontology"
	sensorsGraph  domain.ResourceURI = "http://example.org/set/sensors"

	camera     domain.ResourceURI = vocab.OESO + "Camera"
	rgbCamera  domain.ResourceURI = vocab.OESO + "RGBCamera"
	hasLens    domain.ResourceURI = vocab.OESO + "hasLens"
	serial     domain.ResourceURI = vocab.OESO + "serialNumber"
	hasVariety domain.ResourceURI = vocab.OESO + "hasVariety"
	cam1       domain.ResourceURI = "http://example.org/id/devices/cam1"
	lens1      domain.ResourceURI = "http://example.org/id/devices/lens1"
	lens2      domain.ResourceURI = "http://example.org/id/devices/lens2"

	maxOneLens domain.ResourceURI = "http://example.org/ontology/r1"
	xsdString  domain.ResourceURI = vocab.XSD + "string"
)

type users map[string]bool

func (u users) IsAdmin(_ context.Context, principal string) (bool, error) { return u[principal], nil }

func setup() (*graphtest.MemStore, *sensor.DAO) {
	store := graphtest.New().
		Add(ontologyGraph,
			domain.URITriplet(rgbCamera, vocab.SubClassOf, camera),
			domain.URITriplet(camera, vocab.SubClassOf, vocab.SensingDevice),
			domain.URITriplet(hasLens, vocab.Domain, camera),
			domain.URITriplet(hasVariety, vocab.Domain, vocab.Germplasm),
			domain.URITriplet(camera, vocab.SubClassOf, maxOneLens),
			domain.URITriplet(maxOneLens, vocab.OnProperty, hasLens),
			domain.TypedTriplet(maxOneLens, vocab.MaxCardinality, "1", vocab.XSD+"nonNegativeInteger"),
		).
		Add(sensorsGraph,
			domain.URITriplet(cam1, vocab.Type, rgbCamera),
			domain.LiteralTriplet(cam1, vocab.Label, "cam1"),
		)
	v := validate.New(store, validate.Options{Users: users{"admin@example.org": true}})
	return store, sensor.New(store, graph.NewWriter(store, nil, nil), sensor.Options{Graph: sensorsGraph, Validator: v})
}

func profile(lens domain.ResourceURI, sn string) []domain.Property {
	return []domain.Property{
		{Relation: hasLens, Value: string(lens)},
		{Relation: serial, Value: sn, Datatype: xsdString},
	}
}

func TestSaveProfileReplacesPrevious(t *testing.T) {
	store, dao := setup()
	ctx := context.Background()

	report, err := dao.SaveProfile(ctx, "admin@example.org", cam1, profile(lens1, "SN-1"))
	require.NoError(t, err)
	require.True(t, report.OK(), "%v", report.Errors)

	report, err = dao.SaveProfile(ctx, "admin@example.org", cam1, profile(lens2, "SN-2"))
	require.NoError(t, err)
	require.True(t, report.OK(), "%v", report.Errors)

	got, err := dao.Profile(ctx, cam1)
	require.NoError(t, err)
	assert.ElementsMatch(t, profile(lens2, "SN-2"), got)
	// type and label survive
	assert.Len(t, store.Subject(cam1), 4)
	assert.Len(t, store.Updates(), 2)
}

func TestSaveProfileIsAdminOnly(t *testing.T) {
	store, dao := setup()
	_, err := dao.SaveProfile(context.Background(), "alice@example.org", cam1, profile(lens1, "SN-1"))
	assert.ErrorIs(t, err, domain.ErrAdminOnly)
	assert.Empty(t, store.Queries())
}

func TestSaveProfileRejectsInvalidProperties(t *testing.T) {
	store, dao := setup()
	props := []domain.Property{
		{Relation: hasLens, Value: string(lens1)},
		{Relation: hasLens, Value: string(lens2)},
		{Relation: hasVariety, Value: "http://example.org/id/varieties/v1"},
	}
	report, err := dao.SaveProfile(context.Background(), "admin@example.org", cam1, props)
	require.NoError(t, err)
	require.Equal(t, 2, report.Len(), "%v", report.Errors)
	assert.Equal(t, domain.KindOutOfDomain, report.Errors[0].Kind)
	assert.Equal(t, domain.KindCardinality, report.Errors[1].Kind)
	assert.Equal(t, "2", report.Errors[1].Value)
	assert.Empty(t, store.Updates())
}

func TestSaveProfileUnknownSensor(t *testing.T) {
	_, dao := setup()
	report, err := dao.SaveProfile(context.Background(), "admin@example.org", "http://example.org/id/devices/ghost", nil)
	require.NoError(t, err)
	require.Equal(t, 1, report.Len())
	assert.Equal(t, domain.KindUnknownReference, report.Errors[0].Kind)
}

func TestSaveProfileRejectsIdentityPredicates(t *testing.T) {
	store, dao := setup()
	props := append(profile(lens1, "SN-1"),
		domain.Property{Relation: vocab.Type, Value: string(camera)},
		domain.Property{Relation: vocab.Label, Value: "renamed", Datatype: xsdString},
	)
	report, err := dao.SaveProfile(context.Background(), "admin@example.org", cam1, props)
	require.NoError(t, err)
	require.Equal(t, 2, report.Len(), "%v", report.Errors)
	for _, e := range report.Errors {
		assert.Equal(t, domain.KindMalformed, e.Kind)
	}
	assert.Equal(t, vocab.Type, report.Errors[0].Predicate)
	assert.Equal(t, vocab.Label, report.Errors[1].Predicate)
	assert.Empty(t, store.Updates())
	assert.Len(t, store.Subject(cam1), 2)
}
