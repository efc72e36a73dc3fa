package pipeline

import "math"

// Slot-size constants used by the sizing formula (spec.md §4.1).
// PacketSlotBytes and DnsInfoSlotBytes are sized for the hybrid
// inline/heap packet representation (model.Packet) and the parsed
// record shell respectively; DomainBatchShellBytes is the fixed
// publisher-queue slab size.
const (
	PacketSlotBytes       = 16 + 750 // gopacket.CaptureInfo-sized header + the inline payload buffer
	DnsInfoSlotBytes      = 64       // shell: rcode + slice header for names, names themselves live on the heap
	DomainBatchShellBytes = 48       // map header + a handful of pointers; the map's own buckets are not counted
)

const publisherQueueCapacity = 1000

// SizingPlan is the derived capacity for each queue plus the driver's
// ring-buffer size, all as pure functions of a single memory budget.
type SizingPlan struct {
	PacketBufferBytes      uint64
	PacketQueueCapacity    uint64
	DnsInfoQueueCapacity   uint64
	PublisherQueueCapacity uint64
}

// Size derives a SizingPlan from a memory budget B, following
// spec.md §4.1 exactly: 65% of B to the capture ring (saturating at
// int32 max, since that's the driver buffer-size type's range), a
// fixed 1000-slot publisher queue, then 35% of what's left to the
// packet queue and the rest to the DNS-info queue.
func Size(budgetBytes uint64) SizingPlan {
	packetBufferBytes := budgetBytes * 65 / 100
	if packetBufferBytes > math.MaxInt32 {
		packetBufferBytes = math.MaxInt32
	}

	publisherQueueBytes := uint64(publisherQueueCapacity) * DomainBatchShellBytes

	var remaining uint64
	if budgetBytes > packetBufferBytes+publisherQueueBytes {
		remaining = budgetBytes - packetBufferBytes - publisherQueueBytes
	}

	packetQueueBytes := remaining * 35 / 100
	dnsInfoQueueBytes := remaining - packetQueueBytes

	return SizingPlan{
		PacketBufferBytes:      packetBufferBytes,
		PacketQueueCapacity:    packetQueueBytes / PacketSlotBytes,
		DnsInfoQueueCapacity:   dnsInfoQueueBytes / DnsInfoSlotBytes,
		PublisherQueueCapacity: publisherQueueCapacity,
	}
}
