package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/engine/sparql"
	"github.com/phisdata/phis-dal/pkg/metrics"
)

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("graph transaction already finished")

// Writer opens transactions against a Store.
type Writer struct {
	store   Store
	log     *slog.Logger
	metrics *metrics.DAL
}

// NewWriter creates a Writer. A nil logger uses slog.Default.
func NewWriter(store Store, log *slog.Logger, m *metrics.DAL) *Writer {
	if log == nil {
		log = slog.Default()
	}
	return &Writer{store: store, log: log, metrics: m}
}

type op struct {
	insert   bool
	graph    domain.ResourceURI
	triplets []domain.Triplet
}

// Tx queues deletes and inserts and sends them as one update request on
// Commit. Nothing reaches the store before Commit, so Rollback only discards.
type Tx struct {
	w    *Writer
	ops  []op
	done bool
}

// Begin starts a transaction.
func (w *Writer) Begin() *Tx { return &Tx{w: w} }

// ApplyInsert queues triplets for insertion into graph.
func (tx *Tx) ApplyInsert(graph domain.ResourceURI, ts ...domain.Triplet) error {
	return tx.queue(true, graph, ts)
}

// ApplyDelete queues triplets for deletion from graph.
func (tx *Tx) ApplyDelete(graph domain.ResourceURI, ts ...domain.Triplet) error {
	return tx.queue(false, graph, ts)
}

func (tx *Tx) queue(insert bool, graph domain.ResourceURI, ts []domain.Triplet) error {
	if tx.done {
		return ErrTxDone
	}
	for i, t := range ts {
		if !t.Valid() {
			return fmt.Errorf("triplet %d (%s %s): incomplete statement", i, t.Subject, t.Predicate)
		}
	}
	if len(ts) > 0 {
		tx.ops = append(tx.ops, op{insert: insert, graph: graph, triplets: ts})
	}
	return nil
}

// DeleteCurrent reads subject's statements in graph from the store and queues
// their deletion. The read is fresh so updates never trust client state.
func (tx *Tx) DeleteCurrent(ctx context.Context, graph, subject domain.ResourceURI) error {
	if tx.done {
		return ErrTxDone
	}
	current, err := Describe(ctx, tx.w.store, graph, subject)
	if err != nil {
		return err
	}
	return tx.ApplyDelete(graph, current...)
}

// Len returns the number of queued statements.
func (tx *Tx) Len() int {
	n := 0
	for _, o := range tx.ops {
		n += len(o.triplets)
	}
	return n
}

// Update renders the queued operations in order.
func (tx *Tx) Update() string {
	parts := make([]string, len(tx.ops))
	for i, o := range tx.ops {
		if o.insert {
			parts[i] = sparql.InsertData(o.graph, o.triplets)
		} else {
			parts[i] = sparql.DeleteData(o.graph, o.triplets)
		}
	}
	return sparql.Join(parts...)
}

// Commit sends the queued operations as a single update request. On failure
// the store is left as it was before Begin.
func (tx *Tx) Commit(ctx context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	update := tx.Update()
	if update == "" {
		return nil
	}
	if err := tx.w.store.Update(ctx, update); err != nil {
		tx.w.metrics.Transaction("rollback")
		tx.w.log.Error("graph commit failed", "ops", len(tx.ops), "statements", tx.Len(), "err", err)
		return fmt.Errorf("commit: %w", err)
	}
	tx.w.metrics.Transaction("commit")
	return nil
}

// Rollback discards queued operations. It is safe to call more than once and
// after Commit.
func (tx *Tx) Rollback() {
	if tx.done {
		return
	}
	tx.done = true
	tx.ops = nil
	tx.w.metrics.Transaction("rollback")
}

// Run executes fn in a transaction, committing when it returns nil. Errors and
// panics roll back before propagating.
func (w *Writer) Run(ctx context.Context, fn func(*Tx) error) (err error) {
	tx := w.Begin()
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit(ctx)
}

// Replace swaps the stored statements of subjects in graph for next: the
// current statements are re-read, deleted, and next is inserted, all in one
// update. Applying the same next twice leaves the same statements.
func (w *Writer) Replace(ctx context.Context, graph domain.ResourceURI, next []domain.Triplet, subjects ...domain.ResourceURI) error {
	return w.Run(ctx, func(tx *Tx) error {
		for _, s := range subjects {
			if err := tx.DeleteCurrent(ctx, graph, s); err != nil {
				return err
			}
		}
		return tx.ApplyInsert(graph, next...)
	})
}
