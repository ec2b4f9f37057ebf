// cmd/mk3bridge/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/tamzrod/mk3-bridge/internal/api"
	"github.com/tamzrod/mk3-bridge/internal/command"
	"github.com/tamzrod/mk3-bridge/internal/config"
	"github.com/tamzrod/mk3-bridge/internal/metrics"
	"github.com/tamzrod/mk3-bridge/internal/poller"
	"github.com/tamzrod/mk3-bridge/internal/publish"
	"github.com/tamzrod/mk3-bridge/internal/status"
	"github.com/tamzrod/mk3-bridge/internal/writer"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if len(os.Args) < 2 {
		log.Fatal("usage: mk3bridge <config.yaml>")
	}

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}
	config.Normalize(cfg)

	level, err := logrus.ParseLevel(cfg.Bridge.LogLevel)
	if err != nil {
		log.Fatalf("config log_level invalid: %v", err)
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	board := status.NewBoard()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.WithError(err).Warn("shutdown")
			}
		}
	}()

	// --------------------
	// Build per-device pipelines
	// --------------------

	var (
		ids       []string
		pipelines []*pipeline
		targets   = make(map[string]command.Target)
		devices   = make(map[string]api.Device)
	)

	for _, d := range cfg.Bridge.Devices {
		dlog := log.WithField("unit", d.ID)

		// ---- refresh driver ----
		p, closePoller, err := poller.Build(d, dlog)
		if err != nil {
			dlog.Fatalf("poller build failed: %v", err)
		}
		closers = append(closers, closePoller)

		// ---- writer plan + clients (DATA + STATUS) ----
		plan, err := writer.BuildPlan(cfg.Bridge, d)
		if err != nil {
			dlog.Fatalf("writer plan failed: %v", err)
		}
		clients, closeWriters, err := writer.BuildEndpointClients(plan, writer.ModbusDialer)
		if err != nil {
			dlog.Fatalf("writer clients failed: %v", err)
		}
		closers = append(closers, closeWriters)

		pl := &pipeline{
			id:      d.ID,
			poller:  p,
			data:    writer.New(plan, clients),
			board:   board,
			metrics: m,
			log:     dlog,
		}
		pl.status, pl.statusEnabled = writer.NewDeviceStatusWriter(plan, clients)

		ids = append(ids, d.ID)
		pipelines = append(pipelines, pl)
		targets[d.ID] = p
		devices[d.ID] = p
	}

	dispatcher := command.NewDispatcher(targets, log.WithField("component", "command"))

	// --------------------
	// Sinks
	// --------------------

	var sinks []namedSink

	if mc := cfg.Bridge.MQTT; mc != nil {
		var ready atomic.Pointer[publish.MQTT]
		subscribe := func() {
			sink := ready.Load()
			if sink == nil {
				return
			}
			if err := sink.Subscribe(); err != nil {
				log.WithError(err).Warn("mqtt subscribe failed")
			}
		}

		client := publish.Dial(*mc, func(mqtt.Client) { subscribe() }, log.WithField("sink", "mqtt"))
		sink := publish.NewMQTT(client, mc.TopicPrefix, dispatcher, log)
		ready.Store(sink)
		// the first connect may have completed before the sink existed
		if client.IsConnected() {
			subscribe()
		}
		closers = append(closers, func() error {
			client.Disconnect(250)
			return nil
		})
		sinks = append(sinks, namedSink{name: "mqtt", sink: sink})
	}

	if kc := cfg.Bridge.Kafka; kc != nil {
		k := publish.NewKafka(publish.NewKafkaWriter(*kc), log)
		closers = append(closers, k.Close)
		sinks = append(sinks, namedSink{name: "kafka", sink: k})
	}

	// --------------------
	// Run
	// --------------------

	for _, pl := range pipelines {
		pl.sinks = sinks
		out := make(chan poller.PollResult)
		go pl.run(ctx, out)
		go pl.poller.Run(ctx, out)
	}

	if listen := cfg.Bridge.HTTP.Listen; listen != "" {
		srv := &http.Server{
			Addr:              listen,
			Handler:           api.New(ids, devices, dispatcher, board, m, log).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.WithField("listen", listen).Info("http api listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("http api stopped")
				stop()
			}
		}()
		closers = append(closers, func() error {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	log.WithField("devices", len(pipelines)).Info("bridge started")
	<-ctx.Done()
	log.Info("shutting down")
}
