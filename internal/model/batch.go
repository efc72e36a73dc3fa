package model

// DomainBatch is the classifier's output unit: a domain-to-rcode
// mapping built up by last-writer-wins accumulation and stripped of
// already-classified domains before it is handed to the publisher
// (spec.md §3, §4.4). Each key appears exactly once, by construction.
type DomainBatch struct {
	Domains map[string]int
}

// NewDomainBatch wraps a pending map as a DomainBatch. The caller
// gives up the map: DomainBatch owns it from here on.
func NewDomainBatch(pending map[string]int) DomainBatch {
	return DomainBatch{Domains: pending}
}

// IsEmpty reports whether the batch has no domains left to publish,
// the condition the publisher checks before publishing (spec.md §4.5,
// §8 invariant 6).
func (b DomainBatch) IsEmpty() bool {
	return len(b.Domains) == 0
}
