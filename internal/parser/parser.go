// Package parser implements the Parser stage (spec.md §4.3, C5): one
// or more identical workers that drain the packet queue, parse DNS
// responses out of each packet, and push the result onto the
// DNS-info queue.
package parser

import (
	"context"
	"time"

	"github.com/arlobrix/triaged/internal/dnsparse"
	"github.com/arlobrix/triaged/internal/model"
	"github.com/arlobrix/triaged/internal/obs"
	"github.com/arlobrix/triaged/internal/pipeline"
)

const idleSleep = 100 * time.Millisecond

// Parser is one C5 worker. Multiple Parsers can share the same in/out
// queues; spec.md §4.3 leaves record ordering on DnsInfoQueue
// unspecified across workers.
type Parser struct {
	in       *pipeline.Queue[*model.Packet]
	out      *pipeline.Queue[model.DnsInfoRecord]
	counters obs.Counters
}

// New builds a Parser reading packets from in and emitting parsed
// records onto out.
func New(in *pipeline.Queue[*model.Packet], out *pipeline.Queue[model.DnsInfoRecord], counters obs.Counters) *Parser {
	return &Parser{in: in, out: out, counters: counters}
}

// Run executes the loop of spec.md §4.3 until ctx is canceled.
func (p *Parser) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		var pkt *model.Packet
		if !p.in.TryPop(&pkt) {
			select {
			case <-time.After(idleSleep):
			case <-ctx.Done():
				return
			}
			continue
		}

		p.tryParseAndEmit(ctx, pkt)
	}
}

// tryParseAndEmit implements spec.md §4.3's single-packet step:
// parse failures, queries (QR bit unset), and responses with zero
// questions return silently, and a successful response record blocks
// on the output queue rather than being dropped.
func (p *Parser) tryParseAndEmit(ctx context.Context, pkt *model.Packet) {
	view, ok := dnsparse.Parse(pkt.Payload())
	if !ok || !view.IsResponse || len(view.Names) == 0 {
		return
	}

	record := model.DnsInfoRecord{
		Names:        view.Names,
		ResponseCode: view.ResponseCode,
	}
	if p.out.Emplace(record, ctx.Done()) && p.counters.RecordsParsed != nil {
		p.counters.RecordsParsed.Update(p.counters.RecordsParsed.Value() + 1)
	}
}
