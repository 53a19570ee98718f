package main

import (
	"context"
	"flag"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/weatherpico/station/internal/config"
	"github.com/weatherpico/station/internal/forward"
	"github.com/weatherpico/station/internal/metrics"
	"github.com/weatherpico/station/internal/network"
	"github.com/weatherpico/station/internal/recorder"
	"github.com/weatherpico/station/internal/scheduler"
	"github.com/weatherpico/station/internal/sensor"
	"github.com/weatherpico/station/internal/station"
	"github.com/weatherpico/station/pkg/broker"
	"github.com/weatherpico/station/pkg/logging"
)

// deviceRestarter performs the hardware reset the supervisor asks for on
// unrecoverable errors.
type deviceRestarter struct {
	log *logrus.Entry
}

func (r deviceRestarter) Restart() {
	r.log.Info("Restarting device")
	if err := exec.Command("reboot").Run(); err != nil {
		r.log.Errorf("Device restart failed: %v", err)
	}
}

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	strategy := flag.String("strategy", "", "override the publish strategy")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.NewLogrus("info", os.Stderr).Get("station").Errorf("Configuration error: %v", err)
		os.Exit(1)
	}
	if *strategy != "" {
		cfg.Strategy = *strategy
	}

	logs := logging.NewLogrus(cfg.LogLevel, os.Stderr)
	log := logs.Get("station")

	strat, err := scheduler.StrategyFor(scheduler.Kind(cfg.Strategy))
	if err != nil {
		log.Errorf("Configuration error: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	acq := network.NewAcquirer(network.NewNMCLI(), logs.Get("network"))
	sess := broker.New(broker.Config{
		Host:     cfg.Broker.Host,
		Port:     cfg.Broker.Port,
		User:     cfg.Broker.User,
		Password: cfg.Broker.Password,
		ClientID: cfg.Broker.ClientID,
		TLS: broker.TLSConfig{
			Enabled:            cfg.Broker.TLS.Enabled,
			CAFile:             cfg.Broker.TLS.CAFile,
			InsecureSkipVerify: cfg.Broker.TLS.InsecureSkipVerify,
		},
	}, logs.Get("broker"))

	// The BMP280 driver is an external collaborator; the simulator stands
	// in until the hardware build links the real one.
	driver := sensor.NewSimulatedDriver(time.Now().UnixNano())
	agg := sensor.NewAggregator(driver, logs.Get("sensor"))

	sched := scheduler.New(strat, agg, sess, scheduler.Topics{
		Telemetry: cfg.Topics.Telemetry,
		Bulk:      cfg.Topics.Bulk,
	}, logs.Get("scheduler"))

	met := metrics.New()
	sched.SetMetrics(met)
	if cfg.Metrics.Addr != "" {
		go met.Serve(ctx, cfg.Metrics.Addr, sess.Connected, logs.Get("metrics"))
	}

	if cfg.Forward.URL != "" {
		timeout := time.Duration(cfg.Forward.TimeoutMs) * time.Millisecond
		sched.AddSink(forward.New(cfg.Forward.URL, timeout, logs.Get("forward")))
	}
	if cfg.Recorder.URL != "" {
		rec := recorder.New(recorder.Config{
			URL:     cfg.Recorder.URL,
			Token:   cfg.Recorder.Token,
			Org:     cfg.Recorder.Org,
			Bucket:  cfg.Recorder.Bucket,
			Station: cfg.Broker.ClientID,
		}, logs.Get("recorder"))
		defer rec.Close()
		sched.AddSink(rec)
	}

	sup := station.NewSupervisor(acq, sess, sched, deviceRestarter{log: log},
		network.Credentials{SSID: cfg.Network.SSID, Password: cfg.Network.Password},
		logs.Get("supervisor"))

	if err := sup.Run(ctx); err != nil {
		os.Exit(1)
	}
}
