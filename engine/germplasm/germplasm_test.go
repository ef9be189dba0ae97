package germplasm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/engine/germplasm"
	"github.com/phisdata/phis-dal/engine/graph"
	"github.com/phisdata/phis-dal/engine/graph/graphtest"
	"github.com/phisdata/phis-dal/engine/uri"
	"github.com/phisdata/phis-dal/engine/validate"
	"github.com/phisdata/phis-dal/engine/vocab"
)

const (
	germplasmGraph domain.ResourceURI = "http://example.org/set/germplasm"

	variety   domain.ResourceURI = vocab.OESO + "Variety"
	accession domain.ResourceURI = vocab.OESO + "Accession"
	maize     domain.ResourceURI = "http://example.org/id/species/maize"
	existing  domain.ResourceURI = "http://example.org/id/germplasm/g000007"
)

type users map[string]bool

func (u users) IsAdmin(_ context.Context, principal string) (bool, error) { return u[principal], nil }

func setup() (*graphtest.MemStore, *germplasm.DAO) {
	store := graphtest.New().
		Add("http://example.org/set/ontology",
			domain.URITriplet(variety, vocab.SubClassOf, vocab.Germplasm),
			domain.URITriplet(accession, vocab.SubClassOf, vocab.Germplasm),
		).
		Add(germplasmGraph,
			domain.URITriplet(maize, vocab.Type, vocab.Species),
			domain.URITriplet(existing, vocab.Type, variety),
			domain.LiteralTriplet(existing, vocab.Label, "B73"),
			domain.URITriplet(existing, vocab.FromSpecies, maize),
		)
	ids := uri.New(uri.Options{
		Namespace: "http://example.org/id/",
		Exists:    graph.Existence(store, ""),
		MaxSuffix: uri.SPARQLMaxSuffix(store),
	})
	dao := germplasm.New(store, graph.NewWriter(store, nil, nil), germplasm.Options{
		Graph:     germplasmGraph,
		Validator: validate.New(store, validate.Options{Users: users{"admin@example.org": true}}),
		IDs:       ids,
	})
	return store, dao
}

func TestCreateAllocatesSequentialURIs(t *testing.T) {
	_, dao := setup()
	ctx := context.Background()

	created, report, err := dao.Create(ctx, "admin@example.org", []domain.Germplasm{
		{Type: variety, Label: "Mo17", Species: maize},
		{Type: accession, Label: "Mo17-acc-1"},
	})
	require.NoError(t, err)
	require.True(t, report.OK(), "%v", report.Errors)
	assert.Equal(t, domain.ResourceURI("http://example.org/id/germplasm/g000008"), created[0].URI)
	assert.Equal(t, domain.ResourceURI("http://example.org/id/germplasm/g000009"), created[1].URI)

	got, err := dao.Search(ctx, germplasm.SearchParams{Label: "mo17"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.Germplasm{URI: created[0].URI, Type: variety, Label: "Mo17", Species: maize}, got[0])
	assert.Empty(t, got[1].Species)

	got, err = dao.Search(ctx, germplasm.SearchParams{Species: maize})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "B73", got[0].Label)

	got, err = dao.Search(ctx, germplasm.SearchParams{Type: accession})
	require.NoError(t, err)
	require.Len(t, got, 1)

	n, err := dao.Count(ctx, germplasm.SearchParams{Label: "mo17"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = dao.Count(ctx, germplasm.SearchParams{Label: "mo17", PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, n, "paging does not limit the count")
}

func TestCreateIsAdminOnly(t *testing.T) {
	store, dao := setup()
	_, _, err := dao.Create(context.Background(), "alice@example.org", []domain.Germplasm{{Type: variety, Label: "x"}})
	assert.ErrorIs(t, err, domain.ErrAdminOnly)
	assert.Empty(t, store.Queries())
	assert.Empty(t, store.Updates())
}

func TestCreateValidation(t *testing.T) {
	store, dao := setup()
	_, report, err := dao.Create(context.Background(), "admin@example.org", []domain.Germplasm{
		{Type: vocab.SensingDevice, Label: "not a germplasm"},
		{Type: variety, Species: existing},
		{Type: variety, Label: "fine"},
	})
	require.NoError(t, err)
	require.Equal(t, 3, report.Len(), "%v", report.Errors)
	assert.Equal(t, domain.KindWrongType, report.ForIndex(0)[0].Kind)
	assert.ElementsMatch(t, []domain.ErrorKind{domain.KindWrongType, domain.KindMissing},
		[]domain.ErrorKind{report.ForIndex(1)[0].Kind, report.ForIndex(1)[1].Kind})
	assert.Empty(t, report.ForIndex(2))
	assert.Empty(t, store.Updates())
}
