// Package dnsparse implements the DNS wire-format parser contract of
// spec.md §6.2 on top of github.com/miekg/dns, the same library the
// teacher uses to unpack UDP and TCP DNS payloads (capture/packet.go).
package dnsparse

import (
	"strings"

	mkdns "github.com/miekg/dns"
)

// View exposes the handful of fields the rest of the pipeline needs
// out of a parsed DNS message: whether it's a response, its response
// code, and the lowercased names in its questions section, in order.
type View struct {
	IsResponse   bool
	ResponseCode int
	Names        []string
}

// Parse unpacks raw DNS wire bytes. It returns ok=false for anything
// miekg/dns can't unpack at all; spec.md's QR=0 (query) filtering
// happens one layer up, in the parser stage, so a successfully
// unpacked query still returns ok=true with IsResponse=false.
func Parse(payload []byte) (View, bool) {
	msg := mkdns.Msg{}
	if err := msg.Unpack(payload); err != nil {
		return View{}, false
	}

	names := make([]string, 0, len(msg.Question))
	for _, q := range msg.Question {
		names = append(names, strings.ToLower(strings.TrimSuffix(q.Name, ".")))
	}

	return View{
		IsResponse:   msg.Response,
		ResponseCode: msg.Rcode,
		Names:        names,
	}, true
}
