package model

// DnsInfoRecord is the parser's output: the names queried in a DNS
// response and the response code they were answered with. A record
// is only ever built for responses (QR=1); spec.md §3, §8 invariant 2.
type DnsInfoRecord struct {
	Names        []string
	ResponseCode int
}
