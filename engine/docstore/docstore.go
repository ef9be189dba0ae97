// Package docstore keeps measurement data and provenance documents in
// MongoDB. Documents reference graph resources by URI.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/pkg/metrics"
)

var tracer = otel.Tracer("github.com/phisdata/phis-dal/engine/docstore")

// Provenance describes how a set of measurements was produced.
type Provenance struct {
	URI      domain.ResourceURI `bson:"uri" json:"uri"`
	Label    string             `bson:"label" json:"label"`
	Comment  string             `bson:"comment,omitempty" json:"comment,omitempty"`
	Metadata map[string]any     `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Created  time.Time          `bson:"created" json:"created"`
	// Experiments the measurements were taken in.
	Experiments []domain.ResourceURI `bson:"experiments,omitempty" json:"experiments,omitempty"`
}

// Options names the collections and transaction mode.
type Options struct {
	Data       string
	Provenance string
	// Transactions wraps multi-document writes in a session transaction.
	// Standalone servers do not support them.
	Transactions bool
	Logger       *slog.Logger
	Metrics      *metrics.DAL
}

// Store reads and writes measurement and provenance documents.
type Store struct {
	db   *mongo.Database
	data *mongo.Collection
	prov *mongo.Collection
	opts Options
	log  *slog.Logger
}

// NewStore creates a new Store over db.
func NewStore(db *mongo.Database, opts Options) *Store {
	if opts.Data == "" {
		opts.Data = "data"
	}
	if opts.Provenance == "" {
		opts.Provenance = "provenance"
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		db:   db,
		data: db.Collection(opts.Data),
		prov: db.Collection(opts.Provenance),
		opts: opts,
		log:  log,
	}
}

// Connect opens a client and pings the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, domain.NewPersistenceError("connect", domain.PersistenceUnavailable, err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, domain.NewPersistenceError("ping", domain.PersistenceUnavailable, err)
	}
	return client, nil
}

// EnsureIndexes creates the unique indexes that back duplicate detection.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.data.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "uri", Value: 1}}, Options: options.Index().SetUnique(true)},
		{
			Keys: bson.D{
				{Key: "variable", Value: 1},
				{Key: "object", Value: 1},
				{Key: "provenance", Value: 1},
				{Key: "date", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("measurement_key"),
		},
	})
	if err != nil {
		return s.fail("ensure data indexes", err)
	}
	_, err = s.prov.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "uri", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return s.fail("ensure provenance indexes", err)
	}
	return nil
}

func (s *Store) span(ctx context.Context, op string) (context.Context, trace.Span, time.Time) {
	ctx, span := tracer.Start(ctx, "mongo."+op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.system", "mongodb"), attribute.String("db.operation", op)))
	return ctx, span, time.Now()
}

func (s *Store) end(span trace.Span, op string, start time.Time, err error) {
	s.opts.Metrics.ObserveRequest("mongo", op, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ProvenanceExists reports whether a provenance document has uri.
func (s *Store) ProvenanceExists(ctx context.Context, uri domain.ResourceURI) (ok bool, err error) {
	ctx, span, start := s.span(ctx, "provenance_exists")
	defer func() { s.end(span, "provenance_exists", start, err) }()

	n, err := s.prov.CountDocuments(ctx, bson.D{{Key: "uri", Value: string(uri)}}, options.Count().SetLimit(1))
	if err != nil {
		return false, s.fail("provenance exists", err)
	}
	return n > 0, nil
}

// CreateProvenance inserts one provenance document.
func (s *Store) CreateProvenance(ctx context.Context, p Provenance) (err error) {
	ctx, span, start := s.span(ctx, "create_provenance")
	defer func() { s.end(span, "create_provenance", start, err) }()

	if p.Created.IsZero() {
		p.Created = time.Now().UTC()
	}
	if _, err := s.prov.InsertOne(ctx, p); err != nil {
		return s.fail("create provenance", err)
	}
	return nil
}

// InsertMeasurements writes ms all-or-nothing. With transactions enabled the
// insert runs in a session transaction. Otherwise it is one ordered insert,
// and the documents written before a failure are deleted again.
func (s *Store) InsertMeasurements(ctx context.Context, ms []domain.Measurement) (err error) {
	if len(ms) == 0 {
		return nil
	}
	ctx, span, start := s.span(ctx, "insert_measurements")
	defer func() { s.end(span, "insert_measurements", start, err) }()
	span.SetAttributes(attribute.Int("documents", len(ms)))

	docs := make([]any, len(ms))
	for i, m := range ms {
		docs[i] = m
	}
	insert := func(ctx context.Context) error {
		_, err := s.data.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
		return err
	}
	if !s.opts.Transactions {
		if err := insert(ctx); err != nil {
			s.compensate(ctx, inserted(ms, err))
			return s.fail("insert measurements", err)
		}
		return nil
	}

	sess, err := s.db.Client().StartSession()
	if err != nil {
		return s.fail("start session", err)
	}
	defer sess.EndSession(ctx)
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, insert(sc)
	})
	if err != nil {
		return s.fail("insert measurements", err)
	}
	return nil
}

// inserted returns the URIs an ordered insert wrote before failing with err.
// Without a write error index every document is assumed written.
func inserted(ms []domain.Measurement, err error) []domain.ResourceURI {
	n := len(ms)
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) && len(bwe.WriteErrors) > 0 {
		n = min(bwe.WriteErrors[0].Index, len(ms))
	}
	out := make([]domain.ResourceURI, 0, n)
	for _, m := range ms[:n] {
		if !m.URI.IsZero() {
			out = append(out, m.URI)
		}
	}
	return out
}

// compensate deletes the documents of a failed non-transactional insert.
// It outlives the caller's cancellation.
func (s *Store) compensate(ctx context.Context, uris []domain.ResourceURI) {
	if len(uris) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	res, err := s.data.DeleteMany(ctx, bson.M{"uri": bson.M{"$in": uris}})
	if err != nil {
		s.log.Error("rollback of partial insert failed", "documents", len(uris), "err", err)
		return
	}
	s.log.Warn("rolled back partial insert", "documents", res.DeletedCount)
}

// FindMeasurements returns the measurements matching f.
func (s *Store) FindMeasurements(ctx context.Context, f Filter) (out []domain.Measurement, err error) {
	ctx, span, start := s.span(ctx, "find_measurements")
	defer func() { s.end(span, "find_measurements", start, err) }()

	cur, err := s.data.Find(ctx, f.Document(), f.findOptions())
	if err != nil {
		return nil, s.fail("find measurements", err)
	}
	defer cur.Close(ctx)
	if err := cur.All(ctx, &out); err != nil {
		return nil, s.fail("decode measurements", err)
	}
	return out, nil
}

// CountMeasurements counts the measurements matching f, ignoring paging.
func (s *Store) CountMeasurements(ctx context.Context, f Filter) (n int64, err error) {
	ctx, span, start := s.span(ctx, "count_measurements")
	defer func() { s.end(span, "count_measurements", start, err) }()

	n, err = s.data.CountDocuments(ctx, f.Document())
	if err != nil {
		return 0, s.fail("count measurements", err)
	}
	return n, nil
}

func (s *Store) fail(op string, err error) error {
	kind := classify(err)
	s.log.Error("document store failure", "op", op, "kind", kind.String(), "err", err)
	return domain.NewPersistenceError(op, kind, err)
}

func classify(err error) domain.PersistenceKind {
	switch {
	case mongo.IsDuplicateKeyError(err):
		return domain.PersistenceDuplicate
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, mongo.ErrClientDisconnected):
		return domain.PersistenceUnavailable
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.HasErrorLabel("TransientTransactionError") {
		return domain.PersistenceUnavailable
	}
	return domain.PersistenceUnexpected
}

// String renders f for logs.
func (f Filter) String() string {
	return fmt.Sprintf("%v", f.Document())
}
