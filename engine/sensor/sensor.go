// Package sensor manages sensing-device profiles: the free-form properties a
// device type declares in the ontology.
package sensor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/engine/graph"
	"github.com/phisdata/phis-dal/engine/notify"
	"github.com/phisdata/phis-dal/engine/ontology"
	"github.com/phisdata/phis-dal/engine/validate"
	"github.com/phisdata/phis-dal/engine/vocab"
)

const saveProfile = "save sensor profiles"

// Options wires a DAO to its collaborators.
type Options struct {
	Graph     domain.ResourceURI
	Validator *validate.Validator
	Hierarchy ontology.Hierarchy
	Publisher *notify.Publisher
	Logger    *slog.Logger
}

// DAO is the sensor profile data-access object.
type DAO struct {
	store  graph.Store
	writer *graph.Writer
	h      ontology.Hierarchy
	opts   Options
	log    *slog.Logger
}

// New creates a new sensor DAO.
func New(store graph.Store, writer *graph.Writer, opts Options) *DAO {
	d := &DAO{store: store, writer: writer, h: opts.Hierarchy, opts: opts, log: opts.Logger}
	if d.h == nil {
		d.h = ontology.NewSPARQLHierarchy(store)
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	return d
}

// identity reports whether p describes the device itself rather than its
// profile. Identity statements survive a profile replacement.
func identity(p domain.ResourceURI) bool {
	return p == vocab.Type || p == vocab.Label
}

// Profile returns the stored profile of sensor.
func (d *DAO) Profile(ctx context.Context, sensor domain.ResourceURI) ([]domain.Property, error) {
	ts, err := graph.Describe(ctx, d.store, d.opts.Graph, sensor)
	if err != nil {
		return nil, d.fail("read profile", err)
	}
	var out []domain.Property
	for _, t := range ts {
		if !identity(t.Predicate) {
			out = append(out, t.Property())
		}
	}
	return out, nil
}

// SaveProfile replaces the profile of sensor with props. Only administrators
// may call it. Every property must be allowed on the device type and the
// profile as a whole must respect the type's cardinality restrictions.
func (d *DAO) SaveProfile(ctx context.Context, principal string, sensor domain.ResourceURI, props []domain.Property) (domain.Report, error) {
	var report domain.Report
	if err := d.opts.Validator.Authorize(ctx, principal, saveProfile); err != nil {
		return report, err
	}

	typ, ok, err := d.h.TypeOf(ctx, sensor)
	if err != nil {
		return report, d.fail("sensor type", err)
	}
	if !ok {
		report.Addf(0, sensor.String(), domain.KindUnknownReference, vocab.Type, sensor.String(), "unknown sensor %s", sensor)
		return report, nil
	}

	var profile []domain.Property
	var misplaced domain.Report
	for _, p := range props {
		if identity(p.Relation) {
			misplaced.Addf(0, sensor.String(), domain.KindMalformed, p.Relation, p.Value, "%s is not a profile property", p.Relation.LocalName())
			continue
		}
		profile = append(profile, p)
	}
	props = profile

	c := validate.Candidate{Key: sensor.String(), Type: typ, Root: vocab.SensingDevice, Properties: props}
	report, err = d.opts.Validator.Validate(ctx, principal, validate.Rules{Operation: saveProfile}, []validate.Candidate{c})
	if err != nil {
		return report, err
	}
	for _, e := range misplaced.Errors {
		report.Add(e)
	}
	if !report.OK() {
		return report, nil
	}

	next := make([]domain.Triplet, 0, len(props))
	for _, p := range props {
		next = append(next, domain.Triplet{Subject: sensor, Predicate: p.Relation, Object: p.Object()})
	}
	err = d.writer.Run(ctx, func(tx *graph.Tx) error {
		current, err := graph.Describe(ctx, d.store, d.opts.Graph, sensor)
		if err != nil {
			return err
		}
		var stale []domain.Triplet
		for _, t := range current {
			if !identity(t.Predicate) {
				stale = append(stale, t)
			}
		}
		if err := tx.ApplyDelete(d.opts.Graph, stale...); err != nil {
			return err
		}
		return tx.ApplyInsert(d.opts.Graph, next...)
	})
	if err != nil {
		return report, d.fail("save profile", err)
	}
	d.opts.Publisher.Publish(ctx, notify.Change{URI: sensor, Type: typ, Graph: string(d.opts.Graph), Op: notify.OpUpdate, Triples: len(next)})
	d.log.Info("sensor profile saved", "sensor", sensor, "properties", len(next), "principal", principal)
	return report, nil
}

func (d *DAO) fail(op string, err error) error {
	d.log.Error("sensor store failure", "op", op, "err", err)
	return fmt.Errorf("%s: %w", op, err)
}
