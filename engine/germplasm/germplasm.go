// Package germplasm creates and searches genetic resources: species,
// varieties, accessions and plant material lots.
package germplasm

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/phisdata/phis-dal/engine/compose"
	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/engine/graph"
	"github.com/phisdata/phis-dal/engine/notify"
	"github.com/phisdata/phis-dal/engine/sparql"
	"github.com/phisdata/phis-dal/engine/uri"
	"github.com/phisdata/phis-dal/engine/validate"
	"github.com/phisdata/phis-dal/engine/vocab"
)

const (
	varType    sparql.Var = "type"
	varLabel   sparql.Var = "label"
	varSpecies sparql.Var = "species"
)

// SearchParams filters germplasm. Zero fields do not constrain.
type SearchParams struct {
	URI     domain.ResourceURI
	Type    domain.ResourceURI
	Species domain.ResourceURI
	// Label matches case-insensitively anywhere in the label.
	Label    string
	Page     int
	PageSize int
}

// Options wires a DAO to its collaborators.
type Options struct {
	Graph     domain.ResourceURI
	Validator *validate.Validator
	IDs       *uri.Generator
	Publisher *notify.Publisher
	Logger    *slog.Logger
}

// DAO is the germplasm data-access object.
type DAO struct {
	store  graph.Store
	writer *graph.Writer
	opts   Options
	log    *slog.Logger
}

// New creates a new germplasm DAO.
func New(store graph.Store, writer *graph.Writer, opts Options) *DAO {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &DAO{store: store, writer: writer, opts: opts, log: log}
}

var createRules = validate.Rules{
	Operation: "create germplasm",
	AdminOnly: true,
	Root:      vocab.Germplasm,
}

func candidate(i int, g domain.Germplasm) validate.Candidate {
	props := append([]domain.Property{{Relation: vocab.Label, Value: g.Label, Datatype: vocab.XSD + "string"}}, g.Properties...)
	return validate.Candidate{
		Key:        fmt.Sprintf("germplasm[%d]", i),
		Type:       g.Type,
		Properties: props,
		References: []validate.Reference{{Predicate: vocab.FromSpecies, URI: g.Species, Type: vocab.Species}},
		Required:   []domain.ResourceURI{vocab.Label},
	}
}

// Create registers gs. Only administrators may create germplasm; identifiers
// are allocated sequentially under the germplasm namespace.
func (d *DAO) Create(ctx context.Context, principal string, gs []domain.Germplasm) ([]domain.Germplasm, domain.Report, error) {
	cs := make([]validate.Candidate, len(gs))
	for i, g := range gs {
		cs[i] = candidate(i, g)
	}
	report, err := d.opts.Validator.Validate(ctx, principal, createRules, cs)
	if err != nil || !report.OK() {
		return nil, report, err
	}

	created := make([]domain.Germplasm, len(gs))
	var ts []domain.Triplet
	for i, g := range gs {
		if g.URI, err = d.opts.IDs.Generate(ctx, uri.Germplasm, ""); err != nil {
			return nil, report, err
		}
		created[i] = g
		ts = append(ts, statements(g)...)
	}
	err = d.writer.Run(ctx, func(tx *graph.Tx) error {
		return tx.ApplyInsert(d.opts.Graph, ts...)
	})
	if err != nil {
		return nil, report, d.fail("create germplasm", err)
	}
	for _, g := range created {
		d.opts.Publisher.Publish(ctx, notify.Change{URI: g.URI, Type: g.Type, Graph: string(d.opts.Graph), Op: notify.OpCreate, Triples: len(statements(g))})
	}
	d.log.Info("germplasm created", "count", len(created), "principal", principal)
	return created, report, nil
}

func statements(g domain.Germplasm) []domain.Triplet {
	ts := []domain.Triplet{
		domain.URITriplet(g.URI, vocab.Type, g.Type),
		domain.LiteralTriplet(g.URI, vocab.Label, g.Label),
	}
	if !g.Species.IsZero() {
		ts = append(ts, domain.URITriplet(g.URI, vocab.FromSpecies, g.Species))
	}
	return append(ts, compose.Properties(g.URI, g.Properties)...)
}

func (d *DAO) query(p SearchParams) *sparql.Query {
	q := sparql.NewQuery().Distinct(true).Select(sparql.URI, varType, varLabel, varSpecies)
	w := q.Where()
	w.Graph(d.opts.Graph, func(b *sparql.Block) {
		b.Triplet(sparql.URI, vocab.Type, varType)
		b.Triplet(sparql.URI, vocab.Label, varLabel)
		b.Optional(func(o *sparql.Block) { o.Triplet(sparql.URI, vocab.FromSpecies, varSpecies) })
	})
	root := vocab.Germplasm
	if !p.Type.IsZero() {
		root = p.Type
	}
	w.Triplet(varType, sparql.ZeroOrMore(vocab.SubClassOf), root)
	if !p.URI.IsZero() {
		w.Values(sparql.URI, p.URI)
	}
	if !p.Species.IsZero() {
		w.Filter(sparql.Equals(varSpecies, p.Species))
	}
	w.Filter(sparql.Contains(varLabel, p.Label))
	return q
}

// Search returns one page of germplasm ordered by label.
func (d *DAO) Search(ctx context.Context, p SearchParams) ([]domain.Germplasm, error) {
	size := p.PageSize
	if size <= 0 {
		size = 20
	}
	q := d.query(p).OrderBy(varLabel, sparql.Asc).OrderBy(sparql.URI, sparql.Asc).Page(p.Page, size)

	rows, err := d.store.Select(ctx, q.SelectQuery())
	if err != nil {
		return nil, d.fail("search germplasm", err)
	}
	out := make([]domain.Germplasm, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Germplasm{
			URI:     row.URI(string(sparql.URI)),
			Type:    row.URI(string(varType)),
			Label:   row.String(string(varLabel)),
			Species: row.URI(string(varSpecies)),
		})
	}
	return out, nil
}

// Count returns the number of germplasm matching p, ignoring paging.
func (d *DAO) Count(ctx context.Context, p SearchParams) (int, error) {
	rows, err := d.store.Select(ctx, d.query(p).CountQuery())
	if err != nil {
		return 0, d.fail("count germplasm", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(rows[0].String(string(sparql.Count)))
	if err != nil {
		return 0, d.fail("count germplasm", err)
	}
	return n, nil
}

func (d *DAO) fail(op string, err error) error {
	d.log.Error("germplasm store failure", "op", op, "err", err)
	return fmt.Errorf("%s: %w", op, err)
}
