// Package model holds the pipeline's wire-level data types: the
// captured Packet, the parser's DnsInfoRecord output, and the
// classifier's DomainBatch output unit (spec.md §3).
package model

import "time"

// inlineCapacity is the inline buffer size tuned for the
// DNS-over-UDP payload distribution (spec.md §3, §9): DNS-over-UDP
// responses overwhelmingly fit in 750 bytes, so the inline path
// avoids a heap allocation on the capture hot path, while payloads
// that spill past it fall back to a heap buffer.
const inlineCapacity = 750

// Packet is a captured frame. Storage is hybrid: payloads at or
// under inlineCapacity live in the inline array; larger payloads are
// held in heapPayload. The choice is made once in NewPacket and never
// mutated afterwards.
type Packet struct {
	Timestamp     time.Time
	CaptureLength int
	WireLength    int
	inline        [inlineCapacity]byte
	inlineLen     int
	heapPayload   []byte
	usesHeap      bool
}

// NewPacket builds a Packet from a captured frame, copying payload
// into the inline buffer when it fits and spilling to a heap buffer
// otherwise. captureLength must be <= len(payload) <= wireLength,
// per spec.md §3's invariant; NewPacket panics if the caller violates
// it, since it indicates a bug in the capture driver glue rather than
// a runtime condition to recover from.
func NewPacket(timestamp time.Time, captureLength, wireLength int, payload []byte) *Packet {
	if captureLength > len(payload) || len(payload) > wireLength {
		panic("model: Packet invariant violated: captureLength <= len(payload) <= wireLength")
	}

	p := &Packet{
		Timestamp:     timestamp,
		CaptureLength: captureLength,
		WireLength:    wireLength,
	}
	if len(payload) <= inlineCapacity {
		copy(p.inline[:], payload)
		p.inlineLen = len(payload)
	} else {
		p.usesHeap = true
		p.heapPayload = make([]byte, len(payload))
		copy(p.heapPayload, payload)
	}
	return p
}

// Payload returns the packet's bytes regardless of storage strategy.
func (p *Packet) Payload() []byte {
	if p.usesHeap {
		return p.heapPayload
	}
	return p.inline[:p.inlineLen]
}

// UsesHeap reports whether this packet spilled to the heap path.
func (p *Packet) UsesHeap() bool {
	return p.usesHeap
}
