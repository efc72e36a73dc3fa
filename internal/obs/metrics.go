// Package obs wires up the ambient metrics stack: a process-wide
// go-metrics registry exported to stderr, statsd or Prometheus, the
// same three endpoint types the teacher's util.MetricConfig supports.
package obs

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	prometheusmetrics "github.com/deathowl/go-metrics-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	metrics "github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"
	statsd "github.com/syntaqx/go-metrics-datadog"
)

// Registry is the process-wide metrics registry every stage registers
// its counters against.
var Registry = metrics.NewRegistry()

// Counters groups the per-stage gauges the stages update as they run
// (captured and queue-dropped packets, parsed records, pending
// domains, published and dropped batches); the exporter started by
// Setup reports them from Registry. The driver's shutdown statistics
// are not among them: they come back from capture.Capture.Close.
type Counters struct {
	PacketsCaptured     metrics.Gauge
	PacketsQueueDropped metrics.Gauge
	RecordsParsed       metrics.Gauge
	PendingDomains      metrics.Gauge
	BatchesPublished    metrics.Gauge
	BatchesDropped      metrics.Gauge
}

// NewCounters registers every counter against Registry.
func NewCounters() Counters {
	return Counters{
		PacketsCaptured:     metrics.GetOrRegisterGauge("packetsCaptured", Registry),
		PacketsQueueDropped: metrics.GetOrRegisterGauge("packetsQueueDropped", Registry),
		RecordsParsed:       metrics.GetOrRegisterGauge("recordsParsed", Registry),
		PendingDomains:      metrics.GetOrRegisterGauge("pendingDomains", Registry),
		BatchesPublished:    metrics.GetOrRegisterGauge("batchesPublished", Registry),
		BatchesDropped:      metrics.GetOrRegisterGauge("batchesDropped", Registry),
	}
}

// Config is the subset of settings.Settings the metrics endpoint
// needs, kept separate so this package doesn't import settings.
type Config struct {
	EndpointType       string
	StatsdAgent        string
	PrometheusEndpoint string
	FlushInterval      time.Duration
	ServerName         string
}

// Setup starts the configured metrics exporter, the same three-way
// switch as the teacher's MetricConfig.SetupMetrics.
func Setup(cfg Config) error {
	switch cfg.EndpointType {
	case "statsd":
		if cfg.StatsdAgent == "" {
			return fmt.Errorf("obs: statsd agent address is required")
		}
		reporter, err := statsd.NewReporter(Registry, cfg.StatsdAgent,
			statsd.UseFlushInterval(cfg.FlushInterval),
			statsd.UsePercentiles([]float64{0.25, 0.99}),
		)
		if err != nil {
			return fmt.Errorf("obs: statsd reporter: %w", err)
		}
		go reporter.Flush()

	case "prometheus":
		if cfg.PrometheusEndpoint == "" {
			return fmt.Errorf("obs: prometheus endpoint URL is required")
		}
		u, err := url.Parse(cfg.PrometheusEndpoint)
		if err != nil || u.Path == "" {
			return fmt.Errorf("obs: invalid prometheus endpoint URL")
		}
		provider := prometheusmetrics.NewPrometheusProvider(Registry, "triaged", cfg.ServerName, prometheus.DefaultRegisterer, 1*time.Second)
		go provider.UpdatePrometheusMetrics()
		go func() {
			mux := http.NewServeMux()
			mux.Handle(u.Path, promhttp.Handler())
			log.Errorf("obs: prometheus listener exited: %s", http.ListenAndServe(u.Host, mux))
		}()

	case "stderr", "":
		go metrics.Log(Registry, cfg.FlushInterval, log.StandardLogger())

	default:
		return fmt.Errorf("obs: unsupported metric endpoint type %q", cfg.EndpointType)
	}
	return nil
}
