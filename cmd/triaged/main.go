// triaged implements a live DNS-response interceptor: it captures DNS
// traffic off an interface, parses responses, classifies domains
// against an authoritative store, and republishes the surviving
// batches to a message broker.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/pkg/profile"
	log "github.com/sirupsen/logrus"

	"github.com/arlobrix/triaged/internal/broker"
	"github.com/arlobrix/triaged/internal/obs"
	"github.com/arlobrix/triaged/internal/settings"
	"github.com/arlobrix/triaged/internal/store"
	"github.com/arlobrix/triaged/internal/supervisor"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	s, err := settings.Load(args)
	if err != nil {
		if _, ok := err.(settings.HelpRequested); ok {
			return settings.ExitHelp
		}
		if se, ok := err.(*settings.Error); ok {
			fmt.Fprintln(os.Stderr, se.Error())
			return se.Code
		}
		fmt.Fprintln(os.Stderr, err)
		return settings.ExitGenericFailure
	}

	configureLogging(s)

	if s.GoMaxProcs > 0 {
		runtime.GOMAXPROCS(s.GoMaxProcs)
	}
	if s.CPUProfile != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(s.CPUProfile)).Stop()
	}
	if s.MemProfile != "" {
		defer profile.Start(profile.MemProfile, profile.ProfilePath(s.MemProfile)).Stop()
	}

	if err := obs.Setup(obs.Config{
		EndpointType:       s.MetricEndpointType,
		StatsdAgent:        s.MetricStatsdAgent,
		PrometheusEndpoint: s.MetricPrometheusEndpoint,
		FlushInterval:      s.MetricFlushInterval,
		ServerName:         s.Interface,
	}); err != nil {
		log.Errorf("metrics setup failed: %s", err)
		return settings.ExitGenericFailure
	}

	st, err := store.NewClickhouseStore(store.ClickhouseOptions{
		Addr:     []string{s.Database},
		Database: "default",
	})
	if err != nil {
		log.Errorf("store initialization failed: %s", err)
		return settings.ExitArgumentValidation
	}
	defer st.Close()

	br, err := broker.NewKafkaBroker(s.Rabbitmq, s.Queue)
	if err != nil {
		log.Errorf("broker initialization failed: %s", err)
		return settings.ExitBrokerInit
	}
	defer br.Close()

	sup := supervisor.New(s, st, br)

	if _, err := supervisor.RunWithSignals(context.Background(), sup); err != nil {
		log.Errorf("pipeline failed: %s", err)
		return settings.ExitCaptureInit
	}

	return settings.ExitSuccess
}

func configureLogging(s *settings.Settings) {
	if s.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{})
	}

	lvl := log.InfoLevel
	switch s.LogLevel {
	case 0:
		lvl = log.PanicLevel
	case 1:
		lvl = log.ErrorLevel
	case 2:
		lvl = log.WarnLevel
	case 3:
		lvl = log.InfoLevel
	case 4:
		lvl = log.DebugLevel
		log.SetReportCaller(true)
	}
	log.SetLevel(lvl)
}
