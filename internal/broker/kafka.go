package broker

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rogpeppe/fastuuid"
	"github.com/segmentio/kafka-go"
)

// KafkaBroker backs the broker contract with a kafka-go writer, built
// the same way the teacher's kafConfig.getWriter assembles one, minus
// the TLS/compression knobs that have no counterpart in spec.md's
// settings surface.
type KafkaBroker struct {
	writer *kafka.Writer
	uuids  *fastuuid.Generator
}

// NewKafkaBroker dials brokerAddr (spec.md's "rabbitmq" connection
// string, repurposed here as a broker bootstrap address — see
// DESIGN.md) and targets the given queue/topic name.
func NewKafkaBroker(brokerAddr, queue string) (*KafkaBroker, error) {
	conn, err := (&kafka.Dialer{Timeout: 5 * time.Second, DualStack: true}).Dial("tcp", brokerAddr)
	if err != nil {
		return nil, fmt.Errorf("broker: dial %s: %w", brokerAddr, err)
	}
	conn.Close()

	transport := &kafka.Transport{
		Dial: (&net.Dialer{Timeout: 5 * time.Second, DualStack: true}).DialContext,
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokerAddr),
		Topic:        queue,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    1,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		Transport:    transport,
	}
	return &KafkaBroker{writer: w, uuids: fastuuid.MustNewGenerator()}, nil
}

// Publish implements Broker. A synchronous write (Async: false) and
// RequireOne acks means a failed or unacknowledged publish surfaces
// as an error, which is exactly what the publisher's retry loop
// (spec.md §4.5) needs to drive its 5x2s policy.
func (b *KafkaBroker) Publish(ctx context.Context, body []byte) error {
	key := b.uuids.Next()
	return b.writer.WriteMessages(ctx, kafka.Message{
		Key:   key[:],
		Value: body,
	})
}

// Close implements Broker.
func (b *KafkaBroker) Close() error {
	return b.writer.Close()
}
