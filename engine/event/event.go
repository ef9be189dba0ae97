// Package event reads and writes events: typed occurrences anchored at an
// instant and linked to the objects they concern.
package event

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
	varType    sparql.Var = "type"
	varInstant sparql.Var = "instant"
	varDate    sparql.Var = "date"
	varItem    sparql.Var = "item"
	varLabel   sparql.Var = "label"
)

// DefaultPageSize applies when a search sets no page size.
const DefaultPageSize = 20

// SearchParams filters events. Zero fields do not constrain.
type SearchParams struct {
	URI                domain.ResourceURI
	Type               domain.ResourceURI
	ConcernedItemURI   domain.ResourceURI
	ConcernedItemLabel string
	Start, End         time.Time
	Page               int
	PageSize           int
}

// Options wires a DAO to its collaborators.
type Options struct {
	Graph            domain.ResourceURI
	AnnotationsGraph domain.ResourceURI
	Validator        *validate.Validator
	IDs              *uri.Generator
	Publisher        *notify.Publisher
	Logger           *slog.Logger
}

// DAO is the event data-access object.
type DAO struct {
	store  graph.Store
	writer *graph.Writer
	opts   Options
	log    *slog.Logger
}

// New creates a new event DAO.
func New(store graph.Store, writer *graph.Writer, opts Options) *DAO {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.AnnotationsGraph.IsZero() {
		opts.AnnotationsGraph = opts.Graph
	}
	return &DAO{store: store, writer: writer, opts: opts, log: log}
}

// query renders the search patterns shared by Search and Count.
func (d *DAO) query(p SearchParams) *sparql.Query {
	q := sparql.NewQuery().Distinct(true).Select(sparql.URI, varType, varInstant, varDate)
	w := q.Where()
	w.Graph(d.opts.Graph, func(b *sparql.Block) {
		b.Triplet(sparql.URI, vocab.Type, varType)
		b.Triplet(sparql.URI, vocab.HasTime, varInstant)
		b.Triplet(varInstant, vocab.InXSDDateTimeStamp, varDate)
		if !p.ConcernedItemURI.IsZero() || p.ConcernedItemLabel != "" {
			b.Triplet(sparql.URI, vocab.Concerns, varItem)
		}
	})
	root := vocab.Event
	if !p.Type.IsZero() {
		root = p.Type
	}
	w.Triplet(varType, sparql.ZeroOrMore(vocab.SubClassOf), root)
	if !p.URI.IsZero() {
		w.Values(sparql.URI, p.URI)
	}
	if !p.ConcernedItemURI.IsZero() {
		w.Values(varItem, p.ConcernedItemURI)
	}
	if p.ConcernedItemLabel != "" {
		w.Triplet(varItem, vocab.Label, varLabel)
		w.Filter(sparql.Contains(varLabel, p.ConcernedItemLabel))
	}
	w.Filter(sparql.DateRange(varDate, p.Start, p.End))
	return q
}

// Search returns one page of events, newest first, with their concerned
// items and properties.
func (d *DAO) Search(ctx context.Context, p SearchParams) ([]domain.Event, error) {
	size := p.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	q := d.query(p).OrderBy(varDate, sparql.Desc).OrderBy(sparql.URI, sparql.Asc).Page(p.Page, size)
	rows, err := d.store.Select(ctx, q.SelectQuery())
	if err != nil {
		return nil, d.fail("search events", err)
	}

	out := make([]domain.Event, 0, len(rows))
	for _, row := range rows {
		ev := domain.Event{
			URI:     row.URI(string(sparql.URI)),
			Type:    row.URI(string(varType)),
			Instant: row.URI(string(varInstant)),
		}
		ev.Date, _ = row.Time(string(varDate))
		if err := d.details(ctx, &ev); err != nil {
			return nil, d.fail("describe event", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// details fills concerned items and free-form properties from the event's
// own statements.
func (d *DAO) details(ctx context.Context, ev *domain.Event) error {
	ts, err := graph.Describe(ctx, d.store, d.opts.Graph, ev.URI)
	if err != nil {
		return err
	}
	for _, t := range ts {
		switch {
		case t.Predicate == vocab.Concerns:
			if item, ok := t.ObjectURI(); ok {
				ev.ConcernedItems = append(ev.ConcernedItems, item)
			}
		case !vocab.Structural(t.Predicate):
			ev.Properties = append(ev.Properties, t.Property())
		}
	}
	return nil
}

// Count returns the number of events matching p, ignoring paging.
func (d *DAO) Count(ctx context.Context, p SearchParams) (int, error) {
	rows, err := d.store.Select(ctx, d.query(p).CountQuery())
	if err != nil {
		return 0, d.fail("count events", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(rows[0].String(string(sparql.Count)))
	if err != nil {
		return 0, d.fail("count events", fmt.Errorf("count binding: %w", err))
	}
	return n, nil
}

// ConcernedItems returns the items linked to event with their type and labels.
func (d *DAO) ConcernedItems(ctx context.Context, event domain.ResourceURI) ([]domain.ConcernedItem, error) {
	q := sparql.NewQuery().Select(varItem, varType, varLabel).OrderBy(varItem, sparql.Asc)
	w := q.Where()
	w.Graph(d.opts.Graph, func(b *sparql.Block) { b.Triplet(event, vocab.Concerns, varItem) })
	w.Optional(func(b *sparql.Block) { b.Triplet(varItem, vocab.Type, varType) })
	w.Optional(func(b *sparql.Block) { b.Triplet(varItem, vocab.Label, varLabel) })
	rows, err := d.store.Select(ctx, q.SelectQuery())
	if err != nil {
		return nil, d.fail("concerned items", err)
	}

	var out []domain.ConcernedItem
	index := map[domain.ResourceURI]int{}
	for _, row := range rows {
		u := row.URI(string(varItem))
		i, ok := index[u]
		if !ok {
			i = len(out)
			index[u] = i
			out = append(out, domain.ConcernedItem{URI: u, Type: row.URI(string(varType))})
		}
		if l := row.String(string(varLabel)); l != "" && !contains(out[i].Labels, l) {
			out[i].Labels = append(out[i].Labels, l)
		}
	}
	return out, nil
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func (d *DAO) candidate(i int, ev domain.Event) validate.Candidate {
	key := fmt.Sprintf("events[%d]", i)
	if !ev.URI.IsZero() {
		key = ev.URI.String()
	}
	return validate.Candidate{
		Key:            key,
		Type:           ev.Type,
		Properties:     ev.Properties,
		ConcernedItems: ev.ConcernedItems,
		Instant:        ev.Date,
		Annotations:    ev.Annotations,
	}
}

var createRules = validate.Rules{
	Operation:             "create events",
	Root:                  vocab.Event,
	RequireInstant:        true,
	RequireConcernedItems: true,
}

// Create validates evs as one batch and, when every event is valid, assigns
// identifiers and writes them in a single transaction. A rejected batch
// returns the report and writes nothing.
func (d *DAO) Create(ctx context.Context, principal string, evs []domain.Event) ([]domain.Event, domain.Report, error) {
	cs := make([]validate.Candidate, len(evs))
	for i, ev := range evs {
		ev.URI = ""
		cs[i] = d.candidate(i, ev)
	}
	report, err := d.opts.Validator.Validate(ctx, principal, createRules, cs)
	if err != nil || !report.OK() {
		return nil, report, err
	}

	created := make([]domain.Event, len(evs))
	var events, annotations []domain.Triplet
	for i, ev := range evs {
		if ev, err = d.assign(ctx, ev); err != nil {
			return nil, report, err
		}
		created[i] = ev
		events = append(events, d.statements(ev)...)
		annotations = append(annotations, compose.Annotations(ev.URI, ev.Annotations)...)
	}

	err = d.writer.Run(ctx, func(tx *graph.Tx) error {
		if err := tx.ApplyInsert(d.opts.Graph, events...); err != nil {
			return err
		}
		return tx.ApplyInsert(d.opts.AnnotationsGraph, annotations...)
	})
	if err != nil {
		return nil, report, d.fail("create events", err)
	}

	changes := make([]notify.Change, len(created))
	for i, ev := range created {
		changes[i] = notify.Change{URI: ev.URI, Type: ev.Type, Graph: string(d.opts.Graph), Op: notify.OpCreate, Triples: len(d.statements(ev))}
	}
	d.opts.Publisher.Publish(ctx, changes...)
	d.log.Info("events created", "count", len(created), "principal", principal)
	return created, report, nil
}

// assign mints the event, instant and annotation identifiers.
func (d *DAO) assign(ctx context.Context, ev domain.Event) (domain.Event, error) {
	var err error
	if ev.URI, err = d.opts.IDs.Generate(ctx, uri.Event, ""); err != nil {
		return ev, err
	}
	if ev.Instant, err = d.opts.IDs.Generate(ctx, uri.Instant, ""); err != nil {
		return ev, err
	}
	anns := make([]domain.Annotation, len(ev.Annotations))
	for j, a := range ev.Annotations {
		if a.URI, err = d.opts.IDs.Generate(ctx, uri.Annotation, ""); err != nil {
			return ev, err
		}
		if a.Created.IsZero() {
			a.Created = time.Now().UTC()
		}
		anns[j] = a
	}
	ev.Annotations = anns
	return ev, nil
}

func (d *DAO) statements(ev domain.Event) []domain.Triplet {
	ts := []domain.Triplet{domain.URITriplet(ev.URI, vocab.Type, ev.Type)}
	ts = append(ts, compose.Instant(ev.URI, ev.Instant, ev.Date)...)
	ts = append(ts, compose.ConcernedItems(ev.URI, vocab.Concerns, ev.ConcernedItems)...)
	return append(ts, compose.Properties(ev.URI, ev.Properties)...)
}

var updateRules = validate.Rules{
	Operation:             "update events",
	Root:                  vocab.Event,
	RequireInstant:        true,
	RequireConcernedItems: true,
}

// Update replaces the stored statements of ev and of its instant with the
// ones derived from ev. The current statements are re-read from the store, so
// applying the same update twice leaves the same statements. Annotations are
// separate resources and are not touched.
func (d *DAO) Update(ctx context.Context, principal string, ev domain.Event) (domain.Report, error) {
	report, err := d.opts.Validator.Validate(ctx, principal, updateRules, []validate.Candidate{d.candidate(0, ev)})
	if err != nil || !report.OK() {
		return report, err
	}

	current, err := graph.Describe(ctx, d.store, d.opts.Graph, ev.URI)
	if err != nil {
		return report, d.fail("update event", err)
	}
	if len(current) == 0 {
		return report, fmt.Errorf("event %s: %w", ev.URI, domain.ErrNotFound)
	}
	ev.Instant = ""
	for _, t := range current {
		if t.Predicate == vocab.HasTime {
			ev.Instant, _ = t.ObjectURI()
		}
	}
	subjects := []domain.ResourceURI{ev.URI}
	if ev.Instant.IsZero() {
		if ev.Instant, err = d.opts.IDs.Generate(ctx, uri.Instant, ""); err != nil {
			return report, err
		}
	} else {
		subjects = append(subjects, ev.Instant)
	}

	next := d.statements(ev)
	if err := d.writer.Replace(ctx, d.opts.Graph, next, subjects...); err != nil {
		return report, d.fail("update event", err)
	}
	d.opts.Publisher.Publish(ctx, notify.Change{URI: ev.URI, Type: ev.Type, Graph: string(d.opts.Graph), Op: notify.OpUpdate, Triples: len(next)})
	return report, nil
}

func (d *DAO) fail(op string, err error) error {
	d.log.Error("event store failure", "op", op, "err", err)
	return fmt.Errorf("%s: %w", op, err)
}
