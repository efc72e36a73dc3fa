// Package capture implements the Capture stage (spec.md §4.2, C4):
// it opens a live pcap handle on a named interface, applies the
// buffer-size downscaling retry, and feeds captured packets into the
// packet queue non-blocking.
package capture

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gopacket/gopacket/pcap"
	log "github.com/sirupsen/logrus"

	"github.com/arlobrix/triaged/internal/model"
	"github.com/arlobrix/triaged/internal/obs"
	"github.com/arlobrix/triaged/internal/pipeline"
)

const (
	snapLen        = 65535
	pollTimeout    = 1 * time.Millisecond
	bpfFilter      = "port 53"
	bufferStepDown = 5 * 1024 * 1024
	bufferFloor    = 1 * 1024 * 1024
)

// Stats mirrors the driver statistics spec.md §4.2 requires at
// shutdown.
type Stats struct {
	PacketsReceived      int
	PacketsKernelDropped int
	PacketsIfaceDropped  int
	PacketsQueueDropped  uint64
}

// Capture is the C4 worker: it owns one pcap handle and pushes
// captured packets, non-blocking, onto a PacketQueue. UDP datagrams
// are enqueued directly; TCP segments are handed to a reassembler
// (tcp.go) that reframes DNS-over-TCP's length-prefixed messages
// before they reach the queue.
type Capture struct {
	handle     *pcap.Handle
	out        *pipeline.Queue[*model.Packet]
	queueDrops uint64
	counters   obs.Counters

	dec *decoder
	tcp *tcpReassembler
}

// Open implements the full open/activate sequence of spec.md §4.2:
// an inactive handle configured with snaplen/promiscuous/timeout/
// immediate mode, a buffer size chosen by downscaling retry, a BPF
// filter, then activation.
func Open(device string, packetBufferBytes uint64, out *pipeline.Queue[*model.Packet], counters obs.Counters) (*Capture, error) {
	inactive, err := pcap.NewInactiveHandle(device)
	if err != nil {
		return nil, fmt.Errorf("capture: open device %s: %w", device, err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(snapLen); err != nil {
		return nil, fmt.Errorf("capture: set snaplen: %w", err)
	}
	if err := inactive.SetPromisc(true); err != nil {
		return nil, fmt.Errorf("capture: set promiscuous: %w", err)
	}
	if err := inactive.SetTimeout(pollTimeout); err != nil {
		return nil, fmt.Errorf("capture: set poll timeout: %w", err)
	}
	if err := inactive.SetImmediateMode(true); err != nil {
		log.Warnf("capture: driver does not support immediate mode: %s", err)
	}

	size, err := chooseBufferSize(inactive, packetBufferBytes)
	if err != nil {
		return nil, err
	}
	log.Infof("capture: using driver buffer size of %d bytes", size)

	handle, err := inactive.Activate()
	if err != nil {
		return nil, fmt.Errorf("capture: activate: %w", err)
	}

	if err := handle.SetBPFFilter(bpfFilter); err != nil {
		handle.Close()
		return nil, fmt.Errorf("capture: install BPF filter %q: %w", bpfFilter, err)
	}

	c := &Capture{handle: handle, out: out, counters: counters, dec: newDecoder()}
	c.tcp = newTCPReassembler(c.ingest)
	return c, nil
}

// chooseBufferSize implements spec.md §4.2's downscaling retry: try
// requested, subtract 5 MiB on rejection, fail below 1 MiB.
func chooseBufferSize(inactive *pcap.InactiveHandle, requested uint64) (uint64, error) {
	size := requested
	for {
		if size < bufferFloor {
			return 0, fmt.Errorf("capture: no buffer size of at least %d bytes was accepted", bufferFloor)
		}
		if err := inactive.SetBufferSize(int(size)); err == nil {
			return size, nil
		}
		if size < bufferStepDown {
			size = 0
		} else {
			size -= bufferStepDown
		}
	}
}

// Run executes the capture loop until ctx is canceled; ctx is checked
// before every read. Read errors other than the poll timeout are
// logged and the loop continues.
func (c *Capture) Run(ctx context.Context) {
	go c.tcp.run(ctx)

	for {
		if ctx.Err() != nil {
			return
		}

		data, ci, err := c.handle.ReadPacketData()
		if err != nil {
			if err == pcap.NextErrorTimeoutExpired {
				continue
			}
			log.Warnf("capture: read error, continuing: %s", err)
			continue
		}

		view, ok := c.dec.decode(data, ci.Timestamp)
		if !ok {
			continue
		}
		if view.isUDP {
			c.ingest(model.NewPacket(ci.Timestamp, len(view.payload), len(view.payload), view.payload))
			continue
		}
		if view.isTCP {
			c.tcp.submit(tcpSegment{flow: view.flow, tcp: view.tcp, ipv6: view.ipv6, timestamp: view.timestamp})
		}
	}
}

// ingest implements the non-blocking enqueue-or-drop step of
// spec.md §4.2; split out from Run so it can be exercised without a
// live pcap handle. It's called both from Run's own goroutine (UDP)
// and from the TCP reassembler's per-stream goroutines, hence the
// atomic counter.
func (c *Capture) ingest(pkt *model.Packet) {
	if !c.out.TryPush(pkt) {
		drops := atomic.AddUint64(&c.queueDrops, 1)
		if c.counters.PacketsQueueDropped != nil {
			c.counters.PacketsQueueDropped.Update(int64(drops))
		}
		return
	}
	if c.counters.PacketsCaptured != nil {
		c.counters.PacketsCaptured.Update(c.counters.PacketsCaptured.Value() + 1)
	}
}

// Close stops the driver and returns the final statistics required by
// spec.md §4.2.
func (c *Capture) Close() Stats {
	stat, err := c.handle.Stats()
	c.handle.Close()
	drops := atomic.LoadUint64(&c.queueDrops)
	if err != nil {
		log.Warnf("capture: driver did not report stats: %s", err)
		return Stats{PacketsQueueDropped: drops}
	}
	return Stats{
		PacketsReceived:      stat.PacketsReceived,
		PacketsKernelDropped: stat.PacketsDropped,
		PacketsIfaceDropped:  stat.PacketsIfDropped,
		PacketsQueueDropped:  drops,
	}
}
