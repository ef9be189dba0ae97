package natsutil

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type change struct {
	URI string `json:"uri"`
	Op  string `json:"op"`
}

type recorder struct {
	msgs []*nats.Msg
	err  error
}

func (r *recorder) PublishMsg(m *nats.Msg) error {
	r.msgs = append(r.msgs, m)
	return r.err
}

func TestHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*headerCarrier)(msg)

	if got := carrier.Get("missing"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if keys := carrier.Keys(); keys != nil {
		t.Fatalf("expected nil keys, got %v", keys)
	}

	carrier.Set("traceparent", "00-abc-def-01")
	if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("expected traceparent, got %q", got)
	}
	if keys := carrier.Keys(); len(keys) != 1 {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestPublishDecodeRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	rec := &recorder{}

	err := Publish(context.Background(), rec, "phis.resources", change{URI: "http://x/e1", Op: "create"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.msgs) != 1 || rec.msgs[0].Subject != "phis.resources" {
		t.Fatalf("unexpected messages: %+v", rec.msgs)
	}

	_, got, err := Decode[change](rec.msgs[0])
	if err != nil {
		t.Fatal(err)
	}
	if got.URI != "http://x/e1" || got.Op != "create" {
		t.Fatalf("got %+v", got)
	}
}

func TestPublishError(t *testing.T) {
	rec := &recorder{err: errors.New("closed")}
	if err := Publish(context.Background(), rec, "s", change{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestPublishMarshalError(t *testing.T) {
	rec := &recorder{}
	if err := Publish(context.Background(), rec, "s", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
	if len(rec.msgs) != 0 {
		t.Fatal("nothing should be published")
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, _, err := Decode[change](&nats.Msg{Data: []byte("{")}); err == nil {
		t.Fatal("expected error")
	}
}
