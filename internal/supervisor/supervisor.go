// Package supervisor implements the Supervisor stage (spec.md §4.6,
// C9): it sizes the pipeline, wires every other component together,
// starts them, and drives graceful shutdown on a signal or a fatal
// component error.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/arlobrix/triaged/internal/broker"
	"github.com/arlobrix/triaged/internal/capture"
	"github.com/arlobrix/triaged/internal/classify"
	"github.com/arlobrix/triaged/internal/model"
	"github.com/arlobrix/triaged/internal/obs"
	"github.com/arlobrix/triaged/internal/parser"
	"github.com/arlobrix/triaged/internal/pipeline"
	"github.com/arlobrix/triaged/internal/publish"
	"github.com/arlobrix/triaged/internal/settings"
	"github.com/arlobrix/triaged/internal/store"
)

// shutdownGrace bounds how long a graceful shutdown may take before
// the process is force-exited, mirroring the teacher's
// handleInterrupt emergency-exit fallback.
const shutdownGrace = 10 * time.Second

// Supervisor owns the pipeline's lifetime: one cancellation context
// shared by every stage (spec.md §4.6's single cancellation signal,
// expressed here the same way the teacher threads context.Context
// and a package-level CancelFunc through its capture workers).
type Supervisor struct {
	settings *settings.Settings
	store    store.Store
	broker   broker.Broker
	counters obs.Counters

	cap *capture.Capture
}

// New builds a Supervisor from already-loaded settings and the two
// external dependencies (store, broker) the classifier and publisher
// need. Dependency construction is left to the caller so tests can
// substitute MemoryStore/MemoryBroker.
func New(s *settings.Settings, st store.Store, br broker.Broker) *Supervisor {
	return &Supervisor{settings: s, store: st, broker: br, counters: obs.NewCounters()}
}

// Run sizes the pipeline, opens capture, starts every stage, and
// blocks until ctx is canceled (by a signal, by RunWithSignals, or by
// the classifier's fatal-store-exhaustion path), then drains stages
// and returns the capture driver's final statistics.
func (sup *Supervisor) Run(ctx context.Context) (capture.Stats, error) {
	plan := pipeline.Size(sup.settings.Size)
	log.Infof("supervisor: sizing plan %+v", plan)

	packetQueue := pipeline.NewQueue[*model.Packet](int(plan.PacketQueueCapacity))
	dnsInfoQueue := pipeline.NewQueue[model.DnsInfoRecord](int(plan.DnsInfoQueueCapacity))
	publisherQueue := pipeline.NewQueue[model.DomainBatch](int(plan.PublisherQueueCapacity))

	cap, err := capture.Open(sup.settings.Interface, plan.PacketBufferBytes, packetQueue, sup.counters)
	if err != nil {
		return capture.Stats{}, fmt.Errorf("supervisor: capture init: %w", err)
	}
	sup.cap = cap

	return sup.runPipeline(ctx, packetQueue, dnsInfoQueue, publisherQueue, cap.Run, cap.Close)
}

// runPipeline wires the parser/classifier/publisher stages around the
// given queues and an already-open capture's Run/Close functions. It
// is split out from Run so tests can substitute a fake capture
// lifecycle without a live pcap device.
func (sup *Supervisor) runPipeline(
	ctx context.Context,
	packetQueue *pipeline.Queue[*model.Packet],
	dnsInfoQueue *pipeline.Queue[model.DnsInfoRecord],
	publisherQueue *pipeline.Queue[model.DomainBatch],
	captureRun func(context.Context),
	captureClose func() capture.Stats,
) (capture.Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		captureRun(gCtx)
		return nil
	})

	threads := sup.settings.Threads
	if threads < 1 {
		threads = 1
	}
	for i := 0; i < threads; i++ {
		p := parser.New(packetQueue, dnsInfoQueue, sup.counters)
		g.Go(func() error {
			p.Run(gCtx)
			return nil
		})
	}

	classifierCfg := classify.Config{
		MaxBatchSize:  sup.settings.MaxBatchSize,
		MaxCycleCount: sup.settings.MaxCycleCount,
	}
	c := classify.New(classifierCfg, sup.store, dnsInfoQueue, publisherQueue, sup.counters)
	g.Go(func() error {
		c.Run(gCtx, cancel)
		return nil
	})

	pub := publish.New(sup.broker, publisherQueue, sup.counters)
	g.Go(func() error {
		pub.Run(gCtx)
		return nil
	})

	<-ctx.Done()
	log.Info("supervisor: shutdown signal received, draining pipeline")

	stats := captureClose()
	g.Wait()

	log.Infof("supervisor: final capture stats: received=%d kernel_dropped=%d iface_dropped=%d queue_dropped=%d",
		stats.PacketsReceived, stats.PacketsKernelDropped, stats.PacketsIfaceDropped, stats.PacketsQueueDropped)

	return stats, nil
}

// RunWithSignals wraps Run with the OS signal handling of spec.md
// §6.7: SIGINT and SIGTERM trigger the same graceful-shutdown path
// that a classifier-originated cancellation does.
func RunWithSignals(ctx context.Context, sup *Supervisor) (capture.Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("supervisor: received %s, stopping", sig)
		cancel()
		emergencyExitAfter(shutdownGrace, done)
	}()

	stats, err := sup.Run(ctx)
	close(done)
	return stats, err
}

// emergencyExitAfter force-exits the process if shutdown has not
// completed within d of the signal, mirroring the teacher's
// handleInterrupt emergency-exit fallback.
func emergencyExitAfter(d time.Duration, done <-chan struct{}) {
	select {
	case <-done:
	case <-time.After(d):
		log.Fatal("supervisor: graceful shutdown timed out, exiting")
	}
}
