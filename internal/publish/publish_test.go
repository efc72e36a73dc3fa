package publish

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/arlobrix/triaged/internal/broker"
	"github.com/arlobrix/triaged/internal/model"
	"github.com/arlobrix/triaged/internal/obs"
	"github.com/arlobrix/triaged/internal/pipeline"
)

func TestPublisherPublishesBatch(t *testing.T) {
	b := broker.NewMemoryBroker()
	in := pipeline.NewQueue[model.DomainBatch](4)
	p := New(b, in, obs.Counters{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in.TryPush(model.NewDomainBatch(map[string]int{"a.com": 0, "b.com": 3}))

	go p.Run(ctx)

	deadline := time.After(2 * time.Second)
	for {
		if len(b.Published()) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for publish")
		case <-time.After(time.Millisecond):
		}
	}

	published := b.Published()
	if len(published) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(published))
	}

	var msg wireMessage
	if err := json.Unmarshal(published[0], &msg); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}
	if msg.Domains["a.com"] != 0 || msg.Domains["b.com"] != 3 {
		t.Fatalf("unexpected decoded message: %v", msg.Domains)
	}
}

func TestEncodePrettyPrintsWithFourSpaceIndent(t *testing.T) {
	body, err := encode(model.NewDomainBatch(map[string]int{"a.com": 0}))
	if err != nil {
		t.Fatalf("encode: %s", err)
	}

	want := "{\n    \"domains\": {\n        \"a.com\": 0\n    }\n}"
	if string(body) != want {
		t.Fatalf("expected 4-space-indented JSON, got:\n%s", body)
	}
}

func TestPublisherSkipsEmptyBatch(t *testing.T) {
	b := broker.NewMemoryBroker()
	in := pipeline.NewQueue[model.DomainBatch](4)
	p := New(b, in, obs.Counters{})

	ctx, cancel := context.WithCancel(context.Background())

	in.TryPush(model.NewDomainBatch(map[string]int{}))

	go p.Run(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()

	if len(b.Published()) != 0 {
		t.Fatalf("expected no publishes for an empty batch, got %d", len(b.Published()))
	}
}

func TestPublisherRetriesThenSucceeds(t *testing.T) {
	b := broker.NewMemoryBroker()
	b.FailNextCalls(2)
	in := pipeline.NewQueue[model.DomainBatch](4)
	p := New(b, in, obs.Counters{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in.TryPush(model.NewDomainBatch(map[string]int{"a.com": 0}))

	go p.Run(ctx)

	deadline := time.After(10 * time.Second)
	for {
		if len(b.Published()) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for eventual publish")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestPublisherDropsBatchAfterRetryExhaustion(t *testing.T) {
	b := broker.NewMemoryBroker()
	b.FailNextCalls(100)
	in := pipeline.NewQueue[model.DomainBatch](4)
	p := New(b, in, obs.Counters{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in.TryPush(model.NewDomainBatch(map[string]int{"a.com": 0}))
	in.TryPush(model.NewDomainBatch(map[string]int{"b.com": 0}))

	go p.Run(ctx)

	// Exhausting retries for the first batch takes ~4x2s; give it
	// margin, then confirm the pipeline kept running (ctx not
	// canceled) rather than crashing the publisher.
	time.Sleep(9 * time.Second)

	if ctx.Err() != nil {
		t.Fatal("publisher must not cancel the pipeline on broker exhaustion")
	}
	if len(b.Published()) != 0 {
		t.Fatalf("expected all publishes to fail, got %d", len(b.Published()))
	}
}
