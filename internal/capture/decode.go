package capture

import (
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// decoder strips Ethernet/IPv4/IPv6/UDP/TCP off a captured frame to
// reach the DNS payload, the same layer stack the teacher's
// inputHandlerWorker walks in internal/capture/packet.go. One decoder
// is reused across every ReadPacketData call on a single goroutine;
// gopacket's DecodingLayerParser is not safe for concurrent use.
type decoder struct {
	eth   layers.Ethernet
	ip4   layers.IPv4
	ip6   layers.IPv6
	udp   layers.UDP
	tcp   layers.TCP
	found []gopacket.LayerType
	dlp   *gopacket.DecodingLayerParser
}

func newDecoder() *decoder {
	d := &decoder{found: make([]gopacket.LayerType, 0, 8)}
	d.dlp = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet,
		&d.eth, &d.ip4, &d.ip6, &d.udp, &d.tcp)
	d.dlp.IgnoreUnsupported = true
	return d
}

// decoded is the transport-layer result of decoding one frame: either
// a complete UDP datagram (payload is the DNS message directly) or a
// TCP segment that must go through reassembly before a DNS message is
// available.
type decoded struct {
	isUDP     bool
	isTCP     bool
	payload   []byte
	flow      gopacket.Flow
	tcp       layers.TCP
	ipv6      bool
	timestamp time.Time
}

// decode returns ok=false for anything that doesn't carry a UDP or
// TCP transport layer (ARP, ICMP, non-IP traffic the BPF filter let
// through incidentally).
func (d *decoder) decode(data []byte, timestamp time.Time) (decoded, bool) {
	if err := d.dlp.DecodeLayers(data, &d.found); err != nil && len(d.found) == 0 {
		return decoded{}, false
	}

	var sawIPv6 bool
	for _, lt := range d.found {
		switch lt {
		case layers.LayerTypeIPv6:
			sawIPv6 = true
		case layers.LayerTypeUDP:
			return decoded{isUDP: true, payload: d.udp.Payload, timestamp: timestamp}, true
		case layers.LayerTypeTCP:
			flow := d.ip4.NetworkFlow()
			if sawIPv6 {
				flow = d.ip6.NetworkFlow()
			}
			return decoded{
				isTCP:     true,
				flow:      flow,
				tcp:       d.tcp,
				ipv6:      sawIPv6,
				timestamp: timestamp,
			}, true
		}
	}
	return decoded{}, false
}
