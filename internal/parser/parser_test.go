package parser

import (
	"context"
	"testing"
	"time"

	mkdns "github.com/miekg/dns"

	"github.com/arlobrix/triaged/internal/model"
	"github.com/arlobrix/triaged/internal/obs"
	"github.com/arlobrix/triaged/internal/pipeline"
)

func packResponse(t *testing.T, name string, rcode int) []byte {
	t.Helper()
	msg := mkdns.Msg{}
	msg.SetQuestion(mkdns.Fqdn(name), mkdns.TypeA)
	msg.Response = true
	msg.Rcode = rcode
	out, err := msg.Pack()
	if err != nil {
		t.Fatalf("pack: %s", err)
	}
	return out
}

func packResponseNoQuestions(t *testing.T) []byte {
	t.Helper()
	msg := mkdns.Msg{}
	msg.Response = true
	out, err := msg.Pack()
	if err != nil {
		t.Fatalf("pack: %s", err)
	}
	return out
}

func packQuery(t *testing.T, name string) []byte {
	t.Helper()
	msg := mkdns.Msg{}
	msg.SetQuestion(mkdns.Fqdn(name), mkdns.TypeA)
	out, err := msg.Pack()
	if err != nil {
		t.Fatalf("pack: %s", err)
	}
	return out
}

func TestParserEmitsRecordForResponse(t *testing.T) {
	in := pipeline.NewQueue[*model.Packet](4)
	out := pipeline.NewQueue[model.DnsInfoRecord](4)
	p := New(in, out, obs.Counters{})

	payload := packResponse(t, "example.com.", 0)
	in.TryPush(model.NewPacket(time.Now(), len(payload), len(payload), payload))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got model.DnsInfoRecord
	done := make(chan struct{})
	go func() {
		p.tryParseAndEmit(ctx, mustPop(t, in))
		close(done)
	}()
	<-done

	if !out.TryPop(&got) {
		t.Fatal("expected a record on the output queue")
	}
	if len(got.Names) != 1 || got.Names[0] != "example.com" {
		t.Fatalf("unexpected names: %v", got.Names)
	}
}

func TestParserIgnoresQueries(t *testing.T) {
	in := pipeline.NewQueue[*model.Packet](4)
	out := pipeline.NewQueue[model.DnsInfoRecord](4)
	p := New(in, out, obs.Counters{})

	payload := packQuery(t, "example.com.")
	pkt := model.NewPacket(time.Now(), len(payload), len(payload), payload)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.tryParseAndEmit(ctx, pkt)

	var got model.DnsInfoRecord
	if out.TryPop(&got) {
		t.Fatalf("expected no record for a query packet, got %v", got)
	}
}

func TestParserIgnoresResponsesWithNoQuestions(t *testing.T) {
	in := pipeline.NewQueue[*model.Packet](4)
	out := pipeline.NewQueue[model.DnsInfoRecord](4)
	p := New(in, out, obs.Counters{})

	payload := packResponseNoQuestions(t)
	pkt := model.NewPacket(time.Now(), len(payload), len(payload), payload)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.tryParseAndEmit(ctx, pkt)

	var got model.DnsInfoRecord
	if out.TryPop(&got) {
		t.Fatalf("expected no record for a response with zero questions, got %v", got)
	}
}

func TestParserIgnoresGarbage(t *testing.T) {
	in := pipeline.NewQueue[*model.Packet](4)
	out := pipeline.NewQueue[model.DnsInfoRecord](4)
	p := New(in, out, obs.Counters{})

	pkt := model.NewPacket(time.Now(), 4, 4, []byte{0xff, 0xff, 0xff, 0xff})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.tryParseAndEmit(ctx, pkt)

	var got model.DnsInfoRecord
	if out.TryPop(&got) {
		t.Fatalf("expected no record for garbage input, got %v", got)
	}
}

func mustPop(t *testing.T, q *pipeline.Queue[*model.Packet]) *model.Packet {
	t.Helper()
	var pkt *model.Packet
	if !q.TryPop(&pkt) {
		t.Fatal("expected a queued packet")
	}
	return pkt
}
