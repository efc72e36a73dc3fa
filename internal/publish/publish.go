// Package publish implements the Publisher stage (spec.md §4.5, C7):
// it drains domain batches, serializes them, and hands them to a
// Broker, retrying transient failures and degrading gracefully when
// the broker stays unreachable.
package publish

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/arlobrix/triaged/internal/broker"
	"github.com/arlobrix/triaged/internal/model"
	"github.com/arlobrix/triaged/internal/obs"
	"github.com/arlobrix/triaged/internal/pipeline"
)

const idleSleep = 100 * time.Millisecond

// retryAttempts and retryWait implement spec.md §4.5's broker-publish
// retry: up to 5 attempts, 2s apart.
const (
	retryAttempts = 5
	retryWait     = 2 * time.Second
)

// wireMessage is the JSON shape of spec.md §6.5: a single object
// wrapping the batch's domain-to-rcode map.
type wireMessage struct {
	Domains map[string]int `json:"domains"`
}

// Publisher is the C7 worker.
type Publisher struct {
	broker   broker.Broker
	in       *pipeline.Queue[model.DomainBatch]
	counters obs.Counters
}

// New builds a Publisher reading batches from in and publishing them
// to b.
func New(b broker.Broker, in *pipeline.Queue[model.DomainBatch], counters obs.Counters) *Publisher {
	return &Publisher{broker: b, in: in, counters: counters}
}

// Run drains in until ctx is canceled. Unlike the classifier, an
// exhausted broker retry never cancels the pipeline (spec.md §4.5's
// degrade-gracefully path, see SPEC_FULL.md Open Question #3): the
// batch is dropped, logged, and the publisher continues.
func (p *Publisher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		var batch model.DomainBatch
		if !p.in.TryPop(&batch) {
			select {
			case <-time.After(idleSleep):
			case <-ctx.Done():
				return
			}
			continue
		}

		if batch.IsEmpty() {
			continue
		}

		p.publishWithRetry(ctx, batch)
	}
}

func (p *Publisher) publishWithRetry(ctx context.Context, batch model.DomainBatch) {
	body, err := encode(batch)
	if err != nil {
		log.Errorf("publisher: failed to encode batch, dropping: %s", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if err := p.broker.Publish(ctx, body); err == nil {
			if p.counters.BatchesPublished != nil {
				p.counters.BatchesPublished.Update(p.counters.BatchesPublished.Value() + 1)
			}
			return
		} else {
			lastErr = err
		}
		log.Warnf("publisher: broker publish failed (attempt %d/%d): %s", attempt+1, retryAttempts, lastErr)
		if attempt < retryAttempts-1 {
			select {
			case <-time.After(retryWait):
			case <-ctx.Done():
				return
			}
		}
	}
	if p.counters.BatchesDropped != nil {
		p.counters.BatchesDropped.Update(p.counters.BatchesDropped.Value() + 1)
	}
	log.Errorf("publisher: broker unreachable after %d attempts, dropping batch of %d domains: %s", retryAttempts, len(batch.Domains), lastErr)
}

// encode pretty-prints the wire message with a 4-space indent per
// spec.md §4.5, for operational readability when a message is
// inspected off the broker. Sonic is the teacher's own codec
// (util.GetJson in the teacher repo); its stdlib-compatible config
// exposes the same MarshalIndent signature as encoding/json.
func encode(batch model.DomainBatch) ([]byte, error) {
	return sonic.ConfigStd.MarshalIndent(wireMessage{Domains: batch.Domains}, "", "    ")
}
