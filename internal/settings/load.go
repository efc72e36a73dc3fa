package settings

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Load parses the CLI flags and, if one is given, the JSON settings
// file, merges them (CLI wins), validates required fields and
// restores documented defaults. It mirrors the teacher's
// internal/config.LoadConfig, generalized to viper's JSON mode and to
// this pipeline's flag set (spec.md §6.1, §6.6).
func Load(args []string) (*Settings, error) {
	fs := pflag.NewFlagSet("triaged", pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	configFile := fs.String("config", "", "path to a JSON settings file")
	fs.StringP("interface", "i", "", "NIC name to capture on")
	fs.Uint64P("size", "s", 0, "total memory budget for the pipeline, in bytes")
	fs.StringP("database", "d", "", "classification store connection string")
	fs.StringP("rabbitmq", "r", "", "broker connection string")
	fs.StringP("queue", "q", "", "broker destination queue name")
	fs.IntP("threads", "t", 0, "parser thread count")
	fs.Uint64P("max-batch-size", "b", 0, "classifier flush trigger: pending domain count")
	fs.Uint64P("max-cycle-count", "c", 0, "classifier flush trigger: accumulation cycles")
	help := fs.BoolP("help", "h", false, "print usage and exit")

	fs.Uint("log-level", 3, "0:PANIC 1:ERROR 2:WARN 3:INFO 4:DEBUG")
	fs.String("log-format", "text", "text or json")
	fs.String("cpuprofile", "", "write cpu profile to file")
	fs.String("memprofile", "", "write memory profile to file")
	fs.Int("gomaxprocs", -1, "GOMAXPROCS override")
	fs.String("metric-endpoint-type", "stderr", "stderr, statsd or prometheus")
	fs.String("metric-statsd-agent", "", "statsd agent address")
	fs.String("metric-prometheus-endpoint", "", "prometheus exporter URL, e.g. http://0.0.0.0:2112/metrics")
	fs.Duration("metric-flush-interval", 0, "interval between metric flushes")

	if err := fs.Parse(args); err != nil {
		return nil, NewError(ExitArgumentValidation, err.Error())
	}

	if *help {
		fmt.Fprintln(os.Stderr, fs.FlagUsages())
		return nil, HelpRequested{}
	}

	v := viper.New()
	// viper lowercases every key on Set/Get, which is what gives us
	// the case-insensitivity law of spec.md §8.
	if *configFile != "" {
		v.SetConfigFile(*configFile)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, NewError(ExitArgumentValidation, fmt.Sprintf("reading settings file: %s", err))
		}
	}
	if err := v.BindPFlags(fs); err != nil {
		return nil, NewError(ExitArgumentValidation, err.Error())
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, NewError(ExitArgumentValidation, fmt.Sprintf("decoding settings: %s", err))
	}

	s.Interface = TrimQuotes(s.Interface)
	s.Database = TrimQuotes(s.Database)
	s.Rabbitmq = TrimQuotes(s.Rabbitmq)
	s.Queue = TrimQuotes(s.Queue)

	s.applyDefaults(runtime.NumCPU())

	if err := validate(&s); err != nil {
		return nil, err
	}

	return &s, nil
}

func validate(s *Settings) error {
	if s.Interface == "" {
		return NewError(ExitArgumentValidation, "--interface is required")
	}
	if s.Size == 0 {
		return NewError(ExitArgumentValidation, "--size is required")
	}
	if s.Database == "" {
		return NewError(ExitArgumentValidation, "--database is required")
	}
	if s.Rabbitmq == "" {
		return NewError(ExitArgumentValidation, "--rabbitmq is required")
	}
	if s.Queue == "" {
		return NewError(ExitArgumentValidation, "--queue is required")
	}
	if s.Threads < 1 {
		return NewError(ExitArgumentValidation, "--threads must be at least 1")
	}
	return nil
}
