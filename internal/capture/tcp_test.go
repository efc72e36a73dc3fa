package capture

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	mkdns "github.com/miekg/dns"

	"github.com/arlobrix/triaged/internal/model"
)

// tcpFrame builds a full Ethernet/IPv4/TCP frame carrying payload at
// the given sequence number, mirroring packUDPFrame in decode_test.go.
func tcpFrame(t *testing.T, seq uint32, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xaa},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2),
		Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP,
	}
	tcp := &layers.TCP{SrcPort: 53, DstPort: 23456, Seq: seq, ACK: true, PSH: true, Window: 65535}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("set network layer: %s", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)); err != nil {
		t.Fatalf("serialize: %s", err)
	}
	return buf.Bytes()
}

func TestTCPReassemblerReframesLengthPrefixedMessage(t *testing.T) {
	msg := mkdns.Msg{}
	msg.SetQuestion(mkdns.Fqdn("example.com."), mkdns.TypeA)
	msg.Response = true
	dnsBytes, err := msg.Pack()
	if err != nil {
		t.Fatalf("pack: %s", err)
	}

	framed := make([]byte, 2+len(dnsBytes))
	binary.BigEndian.PutUint16(framed, uint16(len(dnsBytes)))
	copy(framed[2:], dnsBytes)

	// split the length-prefixed message across two TCP segments to
	// exercise reassembly, not just single-segment framing.
	split := len(framed) / 2
	seg1 := tcpFrame(t, 1000, framed[:split])
	seg2 := tcpFrame(t, 1000+uint32(split), framed[split:])

	d := newDecoder()
	view1, ok := d.decode(seg1, time.Now())
	if !ok || !view1.isTCP {
		t.Fatalf("expected first segment to decode as TCP, ok=%v", ok)
	}
	view2, ok := d.decode(seg2, time.Now())
	if !ok || !view2.isTCP {
		t.Fatalf("expected second segment to decode as TCP, ok=%v", ok)
	}

	got := make(chan *model.Packet, 1)
	r := newTCPReassembler(func(pkt *model.Packet) { got <- pkt })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.run(ctx)

	r.submit(tcpSegment{flow: view1.flow, tcp: view1.tcp, ipv6: view1.ipv6, timestamp: view1.timestamp})
	r.submit(tcpSegment{flow: view2.flow, tcp: view2.tcp, ipv6: view2.ipv6, timestamp: view2.timestamp})

	select {
	case pkt := <-got:
		if string(pkt.Payload()) != string(dnsBytes) {
			t.Fatalf("reassembled message does not match original DNS bytes")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reassembled DNS message")
	}
}
