package obs

import "testing"

func TestNewCountersRegistersAllGauges(t *testing.T) {
	c := NewCounters()
	if c.PacketsCaptured == nil || c.PacketsQueueDropped == nil || c.RecordsParsed == nil ||
		c.PendingDomains == nil || c.BatchesPublished == nil || c.BatchesDropped == nil {
		t.Fatal("expected every counter to be a registered gauge")
	}
	c.PacketsCaptured.Update(5)
	if c.PacketsCaptured.Value() != 5 {
		t.Fatalf("expected gauge update to stick, got %d", c.PacketsCaptured.Value())
	}
}

func TestSetupRejectsUnknownEndpoint(t *testing.T) {
	if err := Setup(Config{EndpointType: "carrier-pigeon"}); err == nil {
		t.Fatal("expected an error for an unsupported endpoint type")
	}
}

func TestSetupRejectsStatsdWithoutAgent(t *testing.T) {
	if err := Setup(Config{EndpointType: "statsd"}); err == nil {
		t.Fatal("expected an error when the statsd agent address is missing")
	}
}

func TestSetupRejectsPrometheusWithoutEndpoint(t *testing.T) {
	if err := Setup(Config{EndpointType: "prometheus"}); err == nil {
		t.Fatal("expected an error when the prometheus endpoint is missing")
	}
}
