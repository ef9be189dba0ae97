package repo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// --- Mock infrastructure ---

type mockResult struct {
	records []*neo4j.Record
	idx     int
	err     error
}

func (m *mockResult) Next(ctx context.Context) bool {
	if m.idx < len(m.records) {
		m.idx++
		return true
	}
	return false
}

func (m *mockResult) Record() *neo4j.Record { return m.records[m.idx-1] }

func (m *mockResult) Err() error { return m.err }

type mockRunner struct {
	result  *mockResult
	err     error
	cyphers []string
	params  []map[string]any
	closed  int
}

func (m *mockRunner) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	m.cyphers = append(m.cyphers, cypher)
	m.params = append(m.params, params)
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &mockResult{}, nil
	}
	return m.result, nil
}

func (m *mockRunner) Close(ctx context.Context) error { m.closed++; return nil }

type class struct {
	URI   string
	Label string
}

func makeRecord(uri, label string) *neo4j.Record {
	return &neo4j.Record{
		Values: []any{map[string]any{"uri": uri, "label": label}},
		Keys:   []string{"n"},
	}
}

func newTestRepo(r *mockRunner) *Neo4jRepo[class, string] {
	return NewNeo4jRepo[class, string](
		func(context.Context) Runner { return r },
		"Class",
		func(c class) map[string]any { return map[string]any{"uri": c.URI, "label": c.Label} },
		func(rec *neo4j.Record) (class, error) {
			if len(rec.Values) == 0 {
				return class{}, errors.New("empty")
			}
			m, ok := rec.Values[0].(map[string]any)
			if !ok {
				return class{}, errors.New("bad type")
			}
			return class{URI: m["uri"].(string), Label: m["label"].(string)}, nil
		},
		WithIDKey[class, string]("uri"),
	)
}

// --- Tests ---

func TestGet_Success(t *testing.T) {
	r := &mockRunner{result: &mockResult{records: []*neo4j.Record{makeRecord("http://x/Sensor", "Sensor")}}}
	c, err := newTestRepo(r).Get(context.Background(), "http://x/Sensor")
	if err != nil {
		t.Fatal(err)
	}
	if c.Label != "Sensor" {
		t.Fatalf("got %+v", c)
	}
	if !strings.Contains(r.cyphers[0], "MATCH (n:Class {uri: $id})") {
		t.Fatalf("cypher = %q", r.cyphers[0])
	}
	if r.closed != 1 {
		t.Fatalf("session closed %d times", r.closed)
	}
}

func TestGet_NotFound(t *testing.T) {
	_, err := newTestRepo(&mockRunner{}).Get(context.Background(), "x")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGet_RunError(t *testing.T) {
	_, err := newTestRepo(&mockRunner{err: errors.New("db down")}).Get(context.Background(), "x")
	if err == nil || err.Error() != "db down" {
		t.Fatalf("expected db down, got %v", err)
	}
}

func TestList(t *testing.T) {
	r := &mockRunner{result: &mockResult{records: []*neo4j.Record{makeRecord("a", "A"), makeRecord("b", "B")}}}
	items, err := newTestRepo(r).List(context.Background(), ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items", len(items))
	}
	if r.params[0]["limit"] != 100 {
		t.Fatalf("default limit = %v", r.params[0]["limit"])
	}
}

func TestList_FromRecordError(t *testing.T) {
	bad := &neo4j.Record{Values: []any{"not a map"}, Keys: []string{"n"}}
	r := &mockRunner{result: &mockResult{records: []*neo4j.Record{bad}}}
	if _, err := newTestRepo(r).List(context.Background(), ListOpts{Limit: 10}); err == nil {
		t.Fatal("expected error")
	}
}

func TestList_ResultError(t *testing.T) {
	r := &mockRunner{result: &mockResult{err: errors.New("stream broke")}}
	if _, err := newTestRepo(r).List(context.Background(), ListOpts{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestUpsert(t *testing.T) {
	r := &mockRunner{}
	if err := newTestRepo(r).Upsert(context.Background(), class{URI: "u", Label: "L"}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(r.cyphers[0], "MERGE (n:Class {uri: $id})") {
		t.Fatalf("cypher = %q", r.cyphers[0])
	}
	if r.params[0]["id"] != "u" {
		t.Fatalf("id param = %v", r.params[0]["id"])
	}
}

func TestDelete(t *testing.T) {
	r := &mockRunner{}
	if err := newTestRepo(r).Delete(context.Background(), "u"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(r.cyphers[0], "DETACH DELETE") {
		t.Fatalf("cypher = %q", r.cyphers[0])
	}
}

func TestExists(t *testing.T) {
	rec := &neo4j.Record{Values: []any{true}, Keys: []string{"ok"}}
	r := &mockRunner{result: &mockResult{records: []*neo4j.Record{rec}}}
	ok, err := newTestRepo(r).Exists(context.Background(), "u")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected exists")
	}
}
