// Package settings loads and validates the pipeline's configuration
// surface: the CLI flags and JSON settings file that together produce
// a Settings value. Environment variables are not read.
package settings

import "time"

// Settings is the value object described by the configuration surface.
// It is loaded once at startup and never mutated afterwards.
type Settings struct {
	Interface     string `mapstructure:"interface"`
	Size          uint64 `mapstructure:"size"`
	Database      string `mapstructure:"database"`
	Rabbitmq      string `mapstructure:"rabbitmq"`
	Queue         string `mapstructure:"queue"`
	Threads       int    `mapstructure:"threads"`
	MaxBatchSize  uint64 `mapstructure:"max-batch-size"`
	MaxCycleCount uint64 `mapstructure:"max-cycle-count"`

	// Ambient stack: never part of the pipeline's own contract, but
	// every field below is loaded through the same surface, the way
	// the teacher folds GeneralConfig and MetricConfig into one parse.
	LogLevel                 uint          `mapstructure:"log-level"`
	LogFormat                string        `mapstructure:"log-format"`
	CPUProfile               string        `mapstructure:"cpuprofile"`
	MemProfile               string        `mapstructure:"memprofile"`
	GoMaxProcs               int           `mapstructure:"gomaxprocs"`
	MetricEndpointType       string        `mapstructure:"metric-endpoint-type"`
	MetricStatsdAgent        string        `mapstructure:"metric-statsd-agent"`
	MetricPrometheusEndpoint string        `mapstructure:"metric-prometheus-endpoint"`
	MetricFlushInterval      time.Duration `mapstructure:"metric-flush-interval"`
}

// DefaultMaxBatchSize and DefaultMaxCycleCount are restored whenever
// the loaded config yields zero for either (spec-mandated fallback).
const (
	DefaultMaxBatchSize  = 100000
	DefaultMaxCycleCount = 50000
)

// defaultThreads mirrors the formula in spec.md §4.3: one thread each
// for capture, classifier and publisher is reserved, the remainder
// goes to parsers, with a floor of one parser.
func defaultThreads(hardwareConcurrency int) int {
	n := hardwareConcurrency - 3
	if n < 1 {
		return 1
	}
	return n
}

// applyDefaults restores the documented fallbacks for fields that a
// config source left at their zero value.
func (s *Settings) applyDefaults(hardwareConcurrency int) {
	if s.Threads <= 0 {
		s.Threads = defaultThreads(hardwareConcurrency)
	}
	if s.MaxBatchSize == 0 {
		s.MaxBatchSize = DefaultMaxBatchSize
	}
	if s.MaxCycleCount == 0 {
		s.MaxCycleCount = DefaultMaxCycleCount
	}
	if s.LogFormat == "" {
		s.LogFormat = "text"
	}
	if s.MetricEndpointType == "" {
		s.MetricEndpointType = "stderr"
	}
	if s.MetricFlushInterval == 0 {
		s.MetricFlushInterval = 10 * time.Second
	}
	if s.GoMaxProcs == 0 {
		s.GoMaxProcs = -1
	}
}
