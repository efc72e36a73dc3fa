// Package broker defines the message-broker contract (spec.md §6.4)
// and a Kafka-backed implementation of it, grounded in the teacher's
// output/kafka.go writer setup.
package broker

import "context"

// Broker is the publish destination. Publish delivers body as a
// single persistent message; retry semantics are layered above by
// the publisher stage (spec.md §4.5), not by the Broker itself.
type Broker interface {
	Publish(ctx context.Context, body []byte) error
	Close() error
}
