// Package data inserts and searches measurement data points. Data points
// live in the document store and reference graph resources by URI.
package data

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phisdata/phis-dal/engine/docstore"
	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/engine/notify"
	"github.com/phisdata/phis-dal/engine/uri"
	"github.com/phisdata/phis-dal/engine/validate"
	"github.com/phisdata/phis-dal/engine/vocab"
	"github.com/phisdata/phis-dal/pkg/fn"
)

// Documents is the document store contract used by the DAO.
type Documents interface {
	ProvenanceExists(ctx context.Context, uri domain.ResourceURI) (bool, error)
	CreateProvenance(ctx context.Context, p docstore.Provenance) error
	InsertMeasurements(ctx context.Context, ms []domain.Measurement) error
	FindMeasurements(ctx context.Context, f docstore.Filter) ([]domain.Measurement, error)
	CountMeasurements(ctx context.Context, f docstore.Filter) (int64, error)
}

var _ Documents = (*docstore.Store)(nil)

// Options wires a DAO to its collaborators.
type Options struct {
	Validator *validate.Validator
	IDs       *uri.Generator
	Publisher *notify.Publisher
	Logger    *slog.Logger
}

// DAO is the measurement data-access object.
type DAO struct {
	docs Documents
	opts Options
	log  *slog.Logger
}

// New creates a new data DAO.
func New(docs Documents, opts Options) *DAO {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &DAO{docs: docs, opts: opts, log: log}
}

// Key returns the parts identifying a measurement: two points with the same
// key are the same point.
func Key(m domain.Measurement) []string {
	return []string{m.Variable.String(), m.Object.String(), m.Provenance.String(), domain.FormatDateTime(m.Date)}
}

// Insert validates ms as one batch and inserts them all or none. Identifiers
// are digests of Key, so re-sending a point fails as a duplicate.
func (d *DAO) Insert(ctx context.Context, principal string, ms []domain.Measurement) ([]domain.Measurement, domain.Report, error) {
	cs := make([]validate.Candidate, len(ms))
	for i, m := range ms {
		cs[i] = validate.Candidate{
			Key:  fmt.Sprintf("data[%d]", i),
			Type: uri.Measurement.Type,
			References: []validate.Reference{
				{Predicate: vocab.OESO + "measures", URI: m.Variable, Type: vocab.Variable, Required: true},
				{Predicate: vocab.OESO + "hasTarget", URI: m.Object, Required: true},
			},
		}
	}
	report, err := d.opts.Validator.Validate(ctx, principal, validate.Rules{Operation: "insert data"}, cs)
	if err != nil {
		return nil, report, err
	}
	if err := d.checkDocuments(ctx, ms, &report); err != nil {
		return nil, report, err
	}
	if !report.OK() {
		return nil, report, nil
	}

	out := make([]domain.Measurement, len(ms))
	for i, m := range ms {
		m.URI = d.opts.IDs.Deterministic(uri.Measurement, "", Key(m)...)
		m.Date = m.Date.UTC()
		out[i] = m
	}
	if err := d.docs.InsertMeasurements(ctx, out); err != nil {
		d.log.Error("data insert failed", "count", len(out), "err", err)
		return nil, report, fmt.Errorf("insert data: %w", err)
	}

	groups := fn.GroupBy(out, func(m domain.Measurement) domain.ResourceURI { return m.Provenance })
	changes := make([]notify.Change, 0, len(groups))
	for prov, points := range groups {
		changes = append(changes, notify.Change{URI: prov, Type: vocab.Provenance, Op: notify.OpUpdate, Triples: len(points)})
	}
	d.opts.Publisher.Publish(ctx, changes...)
	return out, report, nil
}

// checkDocuments covers what the graph cannot: provenance lives in the
// document store, and date and value are plain fields.
func (d *DAO) checkDocuments(ctx context.Context, ms []domain.Measurement, r *domain.Report) error {
	known := map[domain.ResourceURI]bool{}
	for i, m := range ms {
		subject := fmt.Sprintf("data[%d]", i)
		if m.Date.IsZero() {
			r.Addf(i, subject, domain.KindMissing, "", "", "date is required")
		}
		if m.Value == nil {
			r.Addf(i, subject, domain.KindMissing, "", "", "value is required")
		}
		if m.Provenance.IsZero() {
			r.Addf(i, subject, domain.KindMissing, vocab.Provenance, "", "provenance is required")
			continue
		}
		ok, seen := known[m.Provenance]
		if !seen {
			var err error
			if ok, err = d.docs.ProvenanceExists(ctx, m.Provenance); err != nil {
				return fmt.Errorf("provenance %s: %w", m.Provenance, err)
			}
			known[m.Provenance] = ok
		}
		if !ok {
			r.Addf(i, subject, domain.KindUnknownReference, vocab.Provenance, m.Provenance.String(), "unknown provenance %s", m.Provenance)
		}
	}
	return nil
}

// CreateProvenance validates p and stores it under a fresh identifier. Every
// experiment p names must exist.
func (d *DAO) CreateProvenance(ctx context.Context, principal string, p docstore.Provenance) (docstore.Provenance, domain.Report, error) {
	c := validate.Candidate{Key: "provenance", Type: vocab.Provenance}
	for _, x := range p.Experiments {
		c.References = append(c.References, validate.Reference{Predicate: vocab.HasExperiment, URI: x, Type: vocab.Experiment, Required: true})
	}
	report, err := d.opts.Validator.Validate(ctx, principal, validate.Rules{Operation: "create provenance", SkipCardinality: true}, []validate.Candidate{c})
	if err != nil {
		return p, report, err
	}
	if strings.TrimSpace(p.Label) == "" {
		report.Addf(0, c.Key, domain.KindMissing, vocab.Label, "", "label is required")
	}
	if !report.OK() {
		return p, report, nil
	}

	if p.URI, err = d.opts.IDs.Generate(ctx, uri.Provenance, ""); err != nil {
		return p, report, fmt.Errorf("provenance identifier: %w", err)
	}
	p.Created = time.Now().UTC()
	if err := d.docs.CreateProvenance(ctx, p); err != nil {
		d.log.Error("provenance insert failed", "uri", p.URI, "err", err)
		return p, report, fmt.Errorf("create provenance: %w", err)
	}
	d.opts.Publisher.Publish(ctx, notify.Change{URI: p.URI, Type: vocab.Provenance, Op: notify.OpCreate})
	return p, report, nil
}

// Search returns the measurements matching f.
func (d *DAO) Search(ctx context.Context, f docstore.Filter) ([]domain.Measurement, error) {
	if f.PageSize <= 0 {
		f.PageSize = 100
	}
	ms, err := d.docs.FindMeasurements(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("search data: %w", err)
	}
	return ms, nil
}

// Count returns the number of measurements matching f, ignoring paging.
func (d *DAO) Count(ctx context.Context, f docstore.Filter) (int64, error) {
	n, err := d.docs.CountMeasurements(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("count data: %w", err)
	}
	return n, nil
}
