package natsutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func startTestNATS(t *testing.T) (*natsserver.Server, *nats.Conn) {
	t.Helper()
	opts := &natsserver.Options{Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := Connect(srv.ClientURL(), "natsutil-test", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return srv, nc
}

type discovery struct {
	Roads []string `json:"roads"`
}

func TestNatsHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*natsHeaderCarrier)(msg)

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

func TestRetries(t *testing.T) {
	if Retries(nil) != 0 || Retries(&nats.Msg{}) != 0 {
		t.Fatal("missing header should count as zero")
	}
	msg := nats.NewMsg("x")
	msg.Header.Set(RetryHeader, "2")
	if Retries(msg) != 2 {
		t.Fatalf("Retries = %d", Retries(msg))
	}
	msg.Header.Set(RetryHeader, "two")
	if Retries(msg) != 0 {
		t.Fatal("malformed header should count as zero")
	}
}

func TestPublishSubscribe(t *testing.T) {
	_, nc := startTestNATS(t)

	ch := make(chan discovery, 1)
	sub, err := Subscribe(nc, "roads.test", func(_ context.Context, d discovery) {
		ch <- d
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	// Malformed messages never reach the handler.
	if err := nc.Publish("roads.test", []byte("{invalid json")); err != nil {
		t.Fatal(err)
	}
	if err := Publish(context.Background(), nc, "roads.test", discovery{Roads: []string{"Olaya St"}}); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-ch:
		if len(got.Roads) != 1 || got.Roads[0] != "Olaya St" {
			t.Fatalf("got %+v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestRepublishCarriesRetryCount(t *testing.T) {
	_, nc := startTestNATS(t)

	ch := make(chan int, 1)
	sub, err := SubscribeMsg(nc, "roads.retry", nil, func(_ context.Context, _ discovery, msg *nats.Msg) {
		ch <- Retries(msg)
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	data, _ := json.Marshal(discovery{Roads: []string{"a"}})
	if err := Republish(context.Background(), nc, "roads.retry", data, 2); err != nil {
		t.Fatal(err)
	}
	select {
	case n := <-ch:
		if n != 2 {
			t.Fatalf("retries = %d", n)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout")
	}
}

func TestRequest(t *testing.T) {
	_, nc := startTestNATS(t)

	type req struct{ N int }
	type resp struct{ Result int }

	sub, err := SubscribeMsg(nc, "roads.request", nil, func(_ context.Context, r req, m *nats.Msg) {
		if err := Respond(m, resp{Result: r.N * 2}); err != nil {
			t.Errorf("Respond: %v", err)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	got, err := Request[req, resp](context.Background(), nc, "roads.request", req{N: 21})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if got.Result != 42 {
		t.Fatalf("expected 42, got %d", got.Result)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := Request[req, resp](ctx, nc, "roads.nobody", req{N: 1}); err == nil {
		t.Fatal("expected error without responders")
	}
}
