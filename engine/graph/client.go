// Package graph talks to the triplestore over the SPARQL 1.1 protocol and
// applies statement changes as all-or-nothing transactions.
package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/knakk/rdf"
	sparqlres "github.com/knakk/sparql"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/pkg/metrics"
	"github.com/phisdata/phis-dal/pkg/resilience"
)

// Store is the triplestore contract used by every other package.
type Store interface {
	Select(ctx context.Context, query string) ([]Binding, error)
	Ask(ctx context.Context, query string) (bool, error)
	Update(ctx context.Context, update string) error
}

// Binding is one solution row: variable name (without '?') to term.
type Binding map[string]rdf.Term

// URI returns the IRI bound to v, or "" when unbound or not an IRI.
func (b Binding) URI(v string) domain.ResourceURI {
	t, ok := b[v]
	if !ok || t == nil || t.Type() != rdf.TermIRI {
		return ""
	}
	return domain.ResourceURI(t.String())
}

// String returns the lexical value bound to v, or "".
func (b Binding) String(v string) string {
	t, ok := b[v]
	if !ok || t == nil {
		return ""
	}
	return t.String()
}

// Time parses the value bound to v as an xsd:dateTime.
func (b Binding) Time(v string) (time.Time, bool) {
	s := b.String(v)
	if s == "" {
		return time.Time{}, false
	}
	t, err := domain.ParseDateTime(s)
	return t, err == nil
}

var tracer = otel.Tracer("github.com/phisdata/phis-dal/engine/graph")

// ClientOpts configures a Client.
type ClientOpts struct {
	QueryURL  string
	UpdateURL string
	User      string
	Password  string
	Timeout   time.Duration
	// HTTPClient overrides the default instrumented client.
	HTTPClient *http.Client
	Limiter    *resilience.Limiter
	Breaker    *resilience.Breaker
	Logger     *slog.Logger
	Metrics    *metrics.DAL
}

// Client is a SPARQL 1.1 protocol client.
type Client struct {
	opts ClientOpts
	http *http.Client
	log  *slog.Logger
}

// NewClient creates a Client. A nil breaker or limiter disables that guard.
func NewClient(opts ClientOpts) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UpdateURL == "" {
		opts.UpdateURL = opts.QueryURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{opts: opts, http: hc, log: log}
}

// Select runs a SELECT query.
func (c *Client) Select(ctx context.Context, query string) ([]Binding, error) {
	var out []Binding
	err := c.do(ctx, "select", c.opts.QueryURL, "query", query, func(body io.Reader) error {
		res, err := sparqlres.ParseJSON(body)
		if err != nil {
			return err
		}
		rows := res.Solutions()
		out = make([]Binding, 0, len(rows))
		for _, row := range rows {
			out = append(out, Binding(row))
		}
		return nil
	})
	return out, err
}

// Ask runs an ASK query.
func (c *Client) Ask(ctx context.Context, query string) (bool, error) {
	var ok bool
	err := c.do(ctx, "ask", c.opts.QueryURL, "query", query, func(body io.Reader) error {
		res, err := sparqlres.ParseJSON(body)
		if err != nil {
			return err
		}
		ok = res.Boolean
		return nil
	})
	return ok, err
}

// Update runs a SPARQL update request. A request is applied atomically by the store.
func (c *Client) Update(ctx context.Context, update string) error {
	return c.do(ctx, "update", c.opts.UpdateURL, "update", update, nil)
}

func (c *Client) do(ctx context.Context, op, endpoint, param, text string, decode func(io.Reader) error) (err error) {
	ctx, span := tracer.Start(ctx, "sparql."+op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "sparql"),
			attribute.String("db.operation", op),
		))
	start := time.Now()
	defer func() {
		c.opts.Metrics.ObserveRequest("sparql", op, start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.opts.Limiter != nil {
		if werr := c.opts.Limiter.Wait(ctx); werr != nil {
			return domain.NewPersistenceError(op, domain.PersistenceUnavailable, werr)
		}
	}

	call := func(ctx context.Context) error { return c.roundTrip(ctx, op, endpoint, param, text, decode) }
	if c.opts.Breaker == nil {
		return call(ctx)
	}
	err = c.opts.Breaker.Call(ctx, call)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return domain.NewPersistenceError(op, domain.PersistenceUnavailable, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, endpoint, param, text string, decode func(io.Reader) error) error {
	form := url.Values{param: {text}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.NewPersistenceError(op, domain.PersistenceUnexpected, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if decode != nil {
		req.Header.Set("Accept", "application/sparql-results+json")
	}
	if c.opts.User != "" {
		req.SetBasicAuth(c.opts.User, c.opts.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("sparql request failed", "op", op, "endpoint", endpoint, "err", err)
		return domain.NewPersistenceError(op, domain.PersistenceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		kind := statusKind(resp.StatusCode)
		c.log.Error("sparql request rejected", "op", op, "status", resp.StatusCode, "body", string(msg))
		return domain.NewPersistenceError(op, kind, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}
	if decode == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := decode(resp.Body); err != nil {
		return domain.NewPersistenceError(op, domain.PersistenceUnexpected, fmt.Errorf("decode results: %w", err))
	}
	return nil
}

func statusKind(status int) domain.PersistenceKind {
	switch {
	case status == http.StatusBadRequest:
		return domain.PersistenceMalformed
	case status == http.StatusConflict:
		return domain.PersistenceDuplicate
	case status == http.StatusTooManyRequests, status >= 500:
		return domain.PersistenceUnavailable
	}
	return domain.PersistenceUnexpected
}
