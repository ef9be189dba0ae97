package data_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phisdata/phis-dal/engine/data"
	"github.com/phisdata/phis-dal/engine/docstore"
	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/engine/graph"
	"github.com/phisdata/phis-dal/engine/graph/graphtest"
	"github.com/phisdata/phis-dal/engine/uri"
	"github.com/phisdata/phis-dal/engine/validate"
	"github.com/phisdata/phis-dal/engine/vocab"
)

const (
	height domain.ResourceURI = "http://example.org/id/variables/height"
	plotA  domain.ResourceURI = "http://example.org/id/objects/plot-a"
	prov   domain.ResourceURI = "http://example.org/id/provenance/station-1"
	exp    domain.ResourceURI = "http://example.org/id/experiment/x1"
)

type experiments map[domain.ResourceURI]bool

func (e experiments) ExperimentExists(_ context.Context, u domain.ResourceURI) (bool, error) {
	return e[u], nil
}

// fakeDocs keeps documents in memory and enforces URI uniqueness.
type fakeDocs struct {
	provenance map[domain.ResourceURI]bool
	docs       map[domain.ResourceURI]domain.Measurement
	inserts    int
	lastFilter docstore.Filter
	created    []docstore.Provenance
}

func (f *fakeDocs) ProvenanceExists(_ context.Context, u domain.ResourceURI) (bool, error) {
	return f.provenance[u], nil
}

func (f *fakeDocs) CreateProvenance(_ context.Context, p docstore.Provenance) error {
	f.provenance[p.URI] = true
	f.created = append(f.created, p)
	return nil
}

func (f *fakeDocs) InsertMeasurements(_ context.Context, ms []domain.Measurement) error {
	f.inserts++
	for _, m := range ms {
		if _, ok := f.docs[m.URI]; ok {
			return domain.NewPersistenceError("insert measurements", domain.PersistenceDuplicate, errors.New("E11000"))
		}
	}
	for _, m := range ms {
		f.docs[m.URI] = m
	}
	return nil
}

func (f *fakeDocs) FindMeasurements(_ context.Context, flt docstore.Filter) ([]domain.Measurement, error) {
	f.lastFilter = flt
	var out []domain.Measurement
	for _, m := range f.docs {
		if flt.Variable.IsZero() || m.Variable == flt.Variable {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeDocs) CountMeasurements(ctx context.Context, flt docstore.Filter) (int64, error) {
	ms, _ := f.FindMeasurements(ctx, flt)
	return int64(len(ms)), nil
}

func setup() (*fakeDocs, *data.DAO) {
	store := graphtest.New().Add("http://example.org/set/variables",
		domain.URITriplet(height, vocab.Type, vocab.Variable),
		domain.URITriplet(plotA, vocab.Type, vocab.ScientificObject),
	)
	docs := &fakeDocs{
		provenance: map[domain.ResourceURI]bool{prov: true},
		docs:       map[domain.ResourceURI]domain.Measurement{},
	}
	dao := data.New(docs, data.Options{
		Validator: validate.New(store, validate.Options{Experiments: experiments{exp: true}}),
		IDs:       uri.New(uri.Options{Namespace: "http://example.org/id/", Exists: graph.Existence(store, "")}),
	})
	return docs, dao
}

func point(day int, v float64) domain.Measurement {
	return domain.Measurement{
		Variable:   height,
		Object:     plotA,
		Provenance: prov,
		Date:       time.Date(2019, 6, day, 12, 0, 0, 0, time.UTC),
		Value:      v,
	}
}

func TestInsertAssignsContentAddressedURIs(t *testing.T) {
	docs, dao := setup()
	ctx := context.Background()

	out, report, err := dao.Insert(ctx, "", []domain.Measurement{point(1, 1.2), point(2, 1.4)})
	require.NoError(t, err)
	require.True(t, report.OK(), "%v", report.Errors)
	require.Len(t, out, 2)
	assert.NotEqual(t, out[0].URI, out[1].URI)
	assert.Contains(t, string(out[0].URI), "http://example.org/id/data/")
	assert.Len(t, docs.docs, 2)

	again, _, err := dao.Insert(ctx, "", []domain.Measurement{point(1, 9.9)})
	assert.True(t, domain.IsDuplicate(err), "same key, same URI: %v", err)
	assert.Nil(t, again)
	assert.Len(t, docs.docs, 2)
}

func TestInsertReportsEveryProblem(t *testing.T) {
	docs, dao := setup()
	bad := point(3, 1)
	bad.Variable = plotA
	missing := domain.Measurement{Object: "http://example.org/id/objects/ghost", Provenance: "http://example.org/id/provenance/nope"}

	_, report, err := dao.Insert(context.Background(), "", []domain.Measurement{point(1, 1), bad, missing})
	require.NoError(t, err)
	assert.Empty(t, report.ForIndex(0))
	require.Len(t, report.ForIndex(1), 1)
	assert.Equal(t, domain.KindWrongType, report.ForIndex(1)[0].Kind)

	var kinds []domain.ErrorKind
	for _, e := range report.ForIndex(2) {
		kinds = append(kinds, e.Kind)
	}
	assert.ElementsMatch(t, []domain.ErrorKind{
		domain.KindMissing,          // variable
		domain.KindUnknownReference, // object
		domain.KindMissing,          // date
		domain.KindMissing,          // value
		domain.KindUnknownReference, // provenance
	}, kinds)
	assert.Zero(t, docs.inserts)
}

func TestSearchDefaultsPageSize(t *testing.T) {
	docs, dao := setup()
	_, _, err := dao.Insert(context.Background(), "", []domain.Measurement{point(1, 1)})
	require.NoError(t, err)

	got, err := dao.Search(context.Background(), docstore.Filter{Variable: height})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 100, docs.lastFilter.PageSize)

	n, err := dao.Count(context.Background(), docstore.Filter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestKeyIsStableAcrossZones(t *testing.T) {
	m := point(1, 1)
	local := m
	local.Date = m.Date.In(time.FixedZone("CEST", 2*3600))
	assert.Equal(t, data.Key(m), data.Key(local))
}

func TestCreateProvenance(t *testing.T) {
	docs, dao := setup()
	ctx := context.Background()

	p, report, err := dao.CreateProvenance(ctx, "", docstore.Provenance{Label: "weather station", Experiments: []domain.ResourceURI{exp}})
	require.NoError(t, err)
	require.True(t, report.OK(), "%v", report.Errors)
	assert.Contains(t, string(p.URI), "http://example.org/id/provenance/")
	assert.False(t, p.Created.IsZero())
	require.Len(t, docs.created, 1)
	assert.Equal(t, []domain.ResourceURI{exp}, docs.created[0].Experiments)

	m := point(1, 1)
	m.Provenance = p.URI
	_, report, err = dao.Insert(ctx, "", []domain.Measurement{m})
	require.NoError(t, err)
	assert.True(t, report.OK(), "%v", report.Errors)
}

func TestCreateProvenanceRejectsUnknownExperiment(t *testing.T) {
	docs, dao := setup()
	ghost := domain.ResourceURI("http://example.org/id/experiment/ghost")

	_, report, err := dao.CreateProvenance(context.Background(), "", docstore.Provenance{Experiments: []domain.ResourceURI{exp, ghost}})
	require.NoError(t, err)
	require.Equal(t, 2, report.Len(), "%v", report.Errors)
	assert.Equal(t, domain.KindUnknownReference, report.Errors[0].Kind)
	assert.Equal(t, ghost.String(), report.Errors[0].Value)
	assert.Equal(t, domain.KindMissing, report.Errors[1].Kind)
	assert.Empty(t, docs.created)
}
