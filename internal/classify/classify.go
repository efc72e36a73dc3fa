// Package classify implements the Classifier stage (spec.md §4.4,
// C6): it drains parsed DNS records, batches them, strips domains the
// authoritative store already knows about, and hands the remainder to
// the publisher queue.
package classify

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/arlobrix/triaged/internal/model"
	"github.com/arlobrix/triaged/internal/obs"
	"github.com/arlobrix/triaged/internal/pipeline"
	"github.com/arlobrix/triaged/internal/store"
)

const idleSleep = 100 * time.Millisecond

// retryAttempts and retryWait implement the bounded exponential-like
// retry of spec.md §4.4: up to 3 attempts, 1s apart.
const (
	retryAttempts = 3
	retryWait     = 1 * time.Second
)

// Config is the Classifier's tunables, mirroring spec.md's
// max-batch-size/max-cycle-count settings.
type Config struct {
	MaxBatchSize  uint64
	MaxCycleCount uint64
}

// Classifier is the C6 worker: one goroutine drains in, batches, and
// pushes onto out.
type Classifier struct {
	cfg      Config
	store    store.Store
	in       *pipeline.Queue[model.DnsInfoRecord]
	out      *pipeline.Queue[model.DomainBatch]
	counters obs.Counters

	pending    map[string]int
	cycleCount uint64
}

// New builds a Classifier reading from in and writing to out.
func New(cfg Config, st store.Store, in *pipeline.Queue[model.DnsInfoRecord], out *pipeline.Queue[model.DomainBatch], counters obs.Counters) *Classifier {
	return &Classifier{
		cfg:      cfg,
		store:    st,
		in:       in,
		out:      out,
		counters: counters,
		pending:  make(map[string]int),
	}
}

// Run executes the loop of spec.md §4.4 until ctx is canceled or the
// classifier hits a fatal store-retry exhaustion, in which case it
// calls cancel itself (spec.md §4.4's fatal-error path) and returns.
func (c *Classifier) Run(ctx context.Context, cancel context.CancelFunc) {
	for {
		if ctx.Err() != nil {
			return
		}

		var record model.DnsInfoRecord
		if !c.in.TryPop(&record) {
			select {
			case <-time.After(idleSleep):
			case <-ctx.Done():
				return
			}
			continue
		}

		c.accumulate(record)

		if c.shouldFlush() {
			if err := c.flush(ctx); err != nil {
				log.Errorf("classifier: store exhausted during flush, stopping pipeline: %s", err)
				cancel()
				return
			}
		}
	}
}

// accumulate implements the per-record overwrite-and-count step of
// spec.md §4.4: every name assignment, including an overwrite,
// increments cycleCount.
func (c *Classifier) accumulate(record model.DnsInfoRecord) {
	for _, name := range record.Names {
		c.pending[name] = record.ResponseCode
		c.cycleCount++
	}
	if c.counters.PendingDomains != nil {
		c.counters.PendingDomains.Update(int64(len(c.pending)))
	}
}

func (c *Classifier) shouldFlush() bool {
	return uint64(len(c.pending)) >= c.cfg.MaxBatchSize || c.cycleCount > c.cfg.MaxCycleCount
}

// flush implements spec.md §4.4 steps 1-6. It returns a non-nil error
// when the store's retries are exhausted, which is the sole fatal
// condition for the classifier, or ctx's error when ctx is canceled
// during a retry wait.
func (c *Classifier) flush(ctx context.Context) error {
	keys := make([]string, 0, len(c.pending))
	for k := range c.pending {
		keys = append(keys, k)
	}

	blacklistHits, err := c.checkWithRetry(ctx, c.store.CheckBlacklist, keys)
	if err != nil {
		return err
	}
	whitelistHits, err := c.checkWithRetry(ctx, c.store.CheckWhitelist, keys)
	if err != nil {
		return err
	}

	for _, k := range keys {
		if blacklistHits[k] || whitelistHits[k] {
			delete(c.pending, k)
		}
		if blacklistHits[k] {
			c.recordBlacklistHit(ctx, k)
		}
	}

	batch := model.NewDomainBatch(c.pending)
	if !c.out.Emplace(batch, ctx.Done()) {
		return nil // ctx canceled while waiting to push; not a store failure
	}

	c.pending = make(map[string]int)
	c.cycleCount = 0
	return nil
}

type checkFunc func(ctx context.Context, names []string) (map[string]bool, error)

// checkWithRetry layers spec.md §4.4's 3x1s retry above a single
// store call.
func (c *Classifier) checkWithRetry(ctx context.Context, fn checkFunc, names []string) (map[string]bool, error) {
	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		result, err := fn(ctx, names)
		if err == nil {
			return result, nil
		}
		lastErr = err
		log.Warnf("classifier: store call failed (attempt %d/%d): %s", attempt+1, retryAttempts, err)
		if attempt < retryAttempts-1 {
			select {
			case <-time.After(retryWait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

// recordBlacklistHit writes the best-effort "results" side-effect of
// spec.md §4.4. Failures are logged and never abort the flush.
func (c *Classifier) recordBlacklistHit(ctx context.Context, name string) {
	if err := c.store.RecordBlacklistHit(ctx, name, time.Now().Unix()); err != nil {
		log.Warnf("classifier: best-effort blacklist-hit record failed for %s: %s", name, err)
	}
}
