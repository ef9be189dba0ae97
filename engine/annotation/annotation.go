// Package annotation reads and writes free-text annotations on resources.
package annotation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

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
	varCreator    sparql.Var = "creator"
	varMotivation sparql.Var = "motivation"
	varCreated    sparql.Var = "created"
	varTarget     sparql.Var = "target"
	varBody       sparql.Var = "body"
)

// SearchParams filters annotations. Zero fields do not constrain.
type SearchParams struct {
	URI        domain.ResourceURI
	Creator    domain.ResourceURI
	Motivation domain.ResourceURI
	Target     domain.ResourceURI
	// BodyValue matches case-insensitively anywhere in a body.
	BodyValue string
	Page      int
	PageSize  int
}

// Options wires a DAO to its collaborators.
type Options struct {
	Graph     domain.ResourceURI
	Validator *validate.Validator
	IDs       *uri.Generator
	Publisher *notify.Publisher
	Logger    *slog.Logger
}

// DAO is the annotation data-access object.
type DAO struct {
	store  graph.Store
	writer *graph.Writer
	opts   Options
	log    *slog.Logger
}

// New creates a new annotation DAO.
func New(store graph.Store, writer *graph.Writer, opts Options) *DAO {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &DAO{store: store, writer: writer, opts: opts, log: log}
}

func (d *DAO) query(p SearchParams) *sparql.Query {
	q := sparql.NewQuery().Distinct(true).Select(sparql.URI, varCreator, varMotivation, varCreated)
	q.Where().Graph(d.opts.Graph, func(b *sparql.Block) {
		b.Triplet(sparql.URI, vocab.Type, vocab.Annotation)
		b.Triplet(sparql.URI, vocab.Creator, varCreator)
		b.Triplet(sparql.URI, vocab.MotivatedBy, varMotivation)
		b.Optional(func(o *sparql.Block) { o.Triplet(sparql.URI, vocab.Created, varCreated) })
		if !p.Target.IsZero() {
			b.Triplet(sparql.URI, vocab.HasTarget, p.Target)
		}
		if p.BodyValue != "" {
			b.Triplet(sparql.URI, vocab.BodyValue, varBody)
			b.Filter(sparql.Contains(varBody, p.BodyValue))
		}
		if !p.URI.IsZero() {
			b.Values(sparql.URI, p.URI)
		}
		if !p.Creator.IsZero() {
			b.Values(varCreator, p.Creator)
		}
		if !p.Motivation.IsZero() {
			b.Values(varMotivation, p.Motivation)
		}
	})
	return q
}

// Search returns one page of annotations, newest first.
func (d *DAO) Search(ctx context.Context, p SearchParams) ([]domain.Annotation, error) {
	size := p.PageSize
	if size <= 0 {
		size = 20
	}
	q := d.query(p).OrderBy(varCreated, sparql.Desc).OrderBy(sparql.URI, sparql.Asc).Page(p.Page, size)
	rows, err := d.store.Select(ctx, q.SelectQuery())
	if err != nil {
		return nil, d.fail("search annotations", err)
	}
	out := make([]domain.Annotation, 0, len(rows))
	for _, row := range rows {
		a := domain.Annotation{
			URI:        row.URI(string(sparql.URI)),
			Creator:    row.URI(string(varCreator)),
			Motivation: row.URI(string(varMotivation)),
		}
		a.Created, _ = row.Time(string(varCreated))
		ts, err := graph.Describe(ctx, d.store, d.opts.Graph, a.URI)
		if err != nil {
			return nil, d.fail("describe annotation", err)
		}
		for _, t := range ts {
			switch t.Predicate {
			case vocab.BodyValue:
				a.BodyValues = append(a.BodyValues, t.Object.String())
			case vocab.HasTarget:
				if target, ok := t.ObjectURI(); ok {
					a.Targets = append(a.Targets, target)
				}
			}
		}
		out = append(out, a)
	}
	return out, nil
}

// Count returns the number of annotations matching p, ignoring paging.
func (d *DAO) Count(ctx context.Context, p SearchParams) (int, error) {
	rows, err := d.store.Select(ctx, d.query(p).CountQuery())
	if err != nil {
		return 0, d.fail("count annotations", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(rows[0].String(string(sparql.Count)))
	if err != nil {
		return 0, d.fail("count annotations", err)
	}
	return n, nil
}

// Create validates anns as one batch and writes them in one transaction.
func (d *DAO) Create(ctx context.Context, principal string, anns []domain.Annotation) ([]domain.Annotation, domain.Report, error) {
	cs := make([]validate.Candidate, len(anns))
	for i, a := range anns {
		cs[i] = validate.AnnotationCandidate(fmt.Sprintf("annotations[%d]", i), a)
	}
	report, err := d.opts.Validator.Validate(ctx, principal, validate.Rules{Operation: "create annotations"}, cs)
	if err != nil || !report.OK() {
		return nil, report, err
	}

	created := make([]domain.Annotation, len(anns))
	var ts []domain.Triplet
	now := time.Now().UTC()
	for i, a := range anns {
		if a.URI, err = d.opts.IDs.Generate(ctx, uri.Annotation, ""); err != nil {
			return nil, report, err
		}
		if a.Created.IsZero() {
			a.Created = now
		}
		created[i] = a
		ts = append(ts, compose.Annotation(a)...)
	}
	err = d.writer.Run(ctx, func(tx *graph.Tx) error {
		return tx.ApplyInsert(d.opts.Graph, ts...)
	})
	if err != nil {
		return nil, report, d.fail("create annotations", err)
	}

	for _, a := range created {
		d.opts.Publisher.Publish(ctx, notify.Change{URI: a.URI, Type: vocab.Annotation, Graph: string(d.opts.Graph), Op: notify.OpCreate, Triples: len(compose.Annotation(a))})
	}
	return created, report, nil
}

func (d *DAO) fail(op string, err error) error {
	d.log.Error("annotation store failure", "op", op, "err", err)
	return fmt.Errorf("%s: %w", op, err)
}
