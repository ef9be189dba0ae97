package graph_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/knakk/rdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/engine/graph"
	"github.com/phisdata/phis-dal/pkg/resilience"
)

const selectBody = `{
  "head": {"vars": ["uri", "label", "date"]},
  "results": {"bindings": [
    {
      "uri":   {"type": "uri", "value": "http://example.org/e/1"},
      "label": {"type": "literal", "value": "Plot A", "xml:lang": "en"},
      "date":  {"type": "literal", "value": "2019-05-01T10:00:00Z", "datatype": "http://www.w3.org/2001/XMLSchema#dateTime"}
    },
    {
      "uri":   {"type": "uri", "value": "http://example.org/e/2"},
      "label": {"type": "typed-literal", "value": "Plot B", "datatype": "http://www.w3.org/2001/XMLSchema#string"}
    }
  ]}
}`

func TestClientSelectDecodesBindings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/sparql-results+json", r.Header.Get("Accept"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "phis", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Contains(t, r.PostForm.Get("query"), "SELECT")
		w.Header().Set("Content-Type", "application/sparql-results+json")
		_, _ = w.Write([]byte(selectBody))
	}))
	defer srv.Close()

	c := graph.NewClient(graph.ClientOpts{QueryURL: srv.URL, User: "phis", Password: "secret"})
	rows, err := c.Select(context.Background(), "SELECT * WHERE { ?uri ?p ?o }")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, domain.ResourceURI("http://example.org/e/1"), rows[0].URI("uri"))
	assert.Equal(t, "Plot A", rows[0].String("label"))
	lit, ok := rows[0]["label"].(rdf.Literal)
	require.True(t, ok)
	assert.Equal(t, "en", lit.Lang())
	at, ok := rows[0].Time("date")
	require.True(t, ok)
	assert.Equal(t, time.Date(2019, 5, 1, 10, 0, 0, 0, time.UTC), at)

	assert.Equal(t, "Plot B", rows[1].String("label"))
	_, ok = rows[1].Time("date")
	assert.False(t, ok)
	assert.Empty(t, rows[1].URI("label"))
}

func TestClientAsk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"head": {}, "boolean": true}`))
	}))
	defer srv.Close()

	ok, err := graph.NewClient(graph.ClientOpts{QueryURL: srv.URL}).Ask(context.Background(), "ASK { ?s ?p ?o }")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClientAskMalformedResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"head": {`))
	}))
	defer srv.Close()

	_, err := graph.NewClient(graph.ClientOpts{QueryURL: srv.URL}).Ask(context.Background(), "ASK {}")
	require.Error(t, err)
	assert.Equal(t, domain.PersistenceUnexpected, domain.PersistenceKindOf(err))
}

func TestClientSelectEmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"head": {"vars": ["s"]}, "results": {"bindings": []}}`))
	}))
	defer srv.Close()

	rows, err := graph.NewClient(graph.ClientOpts{QueryURL: srv.URL}).Select(context.Background(), "SELECT ?s {}")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestClientUpdateUsesUpdateEndpoint(t *testing.T) {
	var got string
	mux := http.NewServeMux()
	mux.HandleFunc("/update", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r.PostForm.Get("update")
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := graph.NewClient(graph.ClientOpts{QueryURL: srv.URL + "/query", UpdateURL: srv.URL + "/update"})
	require.NoError(t, c.Update(context.Background(), "INSERT DATA { <a:s> <a:p> <a:o> . }"))
	assert.Equal(t, "INSERT DATA { <a:s> <a:p> <a:o> . }", got)
}

func TestClientStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   domain.PersistenceKind
	}{
		{http.StatusBadRequest, domain.PersistenceMalformed},
		{http.StatusConflict, domain.PersistenceDuplicate},
		{http.StatusTooManyRequests, domain.PersistenceUnavailable},
		{http.StatusBadGateway, domain.PersistenceUnavailable},
		{http.StatusForbidden, domain.PersistenceUnexpected},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			err := graph.NewClient(graph.ClientOpts{QueryURL: srv.URL}).Update(context.Background(), "x")
			require.Error(t, err)
			var pe *domain.PersistenceError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.want, pe.Kind)
			assert.Equal(t, "update", pe.Op)
		})
	}
}

func TestClientTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := graph.NewClient(graph.ClientOpts{QueryURL: url}).Select(context.Background(), "SELECT * WHERE {}")
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
}

func TestClientBreakerShortCircuits(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := graph.NewClient(graph.ClientOpts{
		QueryURL: srv.URL,
		Breaker:  resilience.NewBreaker(resilience.BreakerOpts{FailThreshold: 1, Timeout: time.Hour}),
	})
	ctx := context.Background()

	_, err := c.Ask(ctx, "ASK {}")
	require.Error(t, err)
	_, err = c.Ask(ctx, "ASK {}")
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, domain.PersistenceUnavailable, domain.PersistenceKindOf(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestClientLimiterHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"boolean": false}`))
	}))
	defer srv.Close()

	c := graph.NewClient(graph.ClientOpts{
		QueryURL: srv.URL,
		Limiter:  resilience.NewLimiter(resilience.LimiterOpts{Rate: 0.001, Burst: 1}),
	})
	_, err := c.Ask(context.Background(), "ASK {}")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Ask(ctx, "ASK {}")
	require.Error(t, err)
	assert.Equal(t, domain.PersistenceUnavailable, domain.PersistenceKindOf(err))
}
