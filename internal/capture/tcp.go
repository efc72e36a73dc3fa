package capture

import (
	"context"
	"encoding/binary"
	"io"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/tcpassembly"
	"github.com/gopacket/gopacket/tcpassembly/tcpreader"
	log "github.com/sirupsen/logrus"

	"github.com/arlobrix/triaged/internal/model"
)

// gcInterval bounds how long a half-open TCP stream is tracked before
// its reassembly state is discarded, mirroring the teacher's
// tcpAssembler gcTime ticker in internal/capture/tcpassembly.go.
const gcInterval = 30 * time.Second

// tcpSegment is one decoded TCP segment handed off from the read loop
// to the reassembler goroutine.
type tcpSegment struct {
	flow      gopacket.Flow
	tcp       layers.TCP
	ipv6      bool
	timestamp time.Time
}

// tcpReassembler reconstructs DNS-over-TCP messages (2-byte
// big-endian length prefix per RFC 1035 §4.2.2) out of a TCP byte
// stream and hands each complete message to ingest, the same
// non-blocking enqueue-or-drop path UDP datagrams use.
type tcpReassembler struct {
	in     chan tcpSegment
	ingest func(pkt *model.Packet)

	poolV4      *tcpassembly.StreamPool
	assemblerV4 *tcpassembly.Assembler
	poolV6      *tcpassembly.StreamPool
	assemblerV6 *tcpassembly.Assembler
}

func newTCPReassembler(ingest func(pkt *model.Packet)) *tcpReassembler {
	r := &tcpReassembler{in: make(chan tcpSegment, 4096), ingest: ingest}
	r.poolV4 = tcpassembly.NewStreamPool(&dnsStreamFactory{ingest: ingest})
	r.assemblerV4 = tcpassembly.NewAssembler(r.poolV4)
	r.poolV6 = tcpassembly.NewStreamPool(&dnsStreamFactory{ingest: ingest})
	r.assemblerV6 = tcpassembly.NewAssembler(r.poolV6)
	return r
}

func (r *tcpReassembler) submit(seg tcpSegment) {
	select {
	case r.in <- seg:
	default:
		// reassembly input is full; dropping a TCP segment here is the
		// same deterministic-loss trade spec.md §4.2 makes for UDP.
	}
}

// run drains segments and periodically flushes stale streams until
// ctx is canceled.
func (r *tcpReassembler) run(ctx context.Context) {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case seg := <-r.in:
			tcp := seg.tcp
			if seg.ipv6 {
				r.assemblerV6.AssembleWithTimestamp(seg.flow, &tcp, seg.timestamp)
			} else {
				r.assemblerV4.AssembleWithTimestamp(seg.flow, &tcp, seg.timestamp)
			}
		case <-ticker.C:
			r.assemblerV4.FlushOlderThan(time.Now().Add(-gcInterval))
			r.assemblerV6.FlushOlderThan(time.Now().Add(-gcInterval))
		case <-ctx.Done():
			return
		}
	}
}

// dnsStreamFactory and dnsStream adapt tcpassembly.tcpreader's
// io.Reader-backed stream into length-prefixed DNS message framing,
// grounded on the teacher's internal/capture/tcpassembly.go.
type dnsStreamFactory struct {
	ingest func(pkt *model.Packet)
}

type dnsStream struct {
	reader tcpreader.ReaderStream
	ingest func(pkt *model.Packet)
}

func (f *dnsStreamFactory) New(net, transport gopacket.Flow) tcpassembly.Stream {
	s := &dnsStream{reader: tcpreader.NewReaderStream(), ingest: f.ingest}
	go s.processStream()
	return &s.reader
}

func (s *dnsStream) processStream() {
	var buf []byte
	tmp := make([]byte, 4096)
	for {
		n, err := s.reader.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			for len(buf) >= 2 {
				want := int(binary.BigEndian.Uint16(buf[:2])) + 2
				if len(buf) < want {
					break
				}
				msg := buf[2:want]
				s.ingest(model.NewPacket(time.Now(), len(msg), len(msg), msg))
				buf = buf[want:]
			}
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			log.Debugf("capture: tcp reassembly read error: %s", err)
			return
		}
	}
}
