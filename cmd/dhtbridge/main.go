// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// dhtbridge answers Modbus-like requests on a serial line with median
// filtered readings of a DHT22 sensor.
//
// With -probe it acts as the bus master instead: it sends one request and
// prints the decoded reply.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/dhtbridge/config"
	"github.com/GermanBionicSystems/dhtbridge/dht22"
	"github.com/GermanBionicSystems/dhtbridge/dispatch"
	"github.com/GermanBionicSystems/dhtbridge/link"
	"github.com/GermanBionicSystems/dhtbridge/logging"
	"github.com/GermanBionicSystems/dhtbridge/metrics"
	"github.com/GermanBionicSystems/dhtbridge/sampler"
)

func main() {
	configPath := flag.String("config", "/etc/dhtbridge/config.yaml", "Path to config file")
	port := flag.String("port", "", "Override serial port (e.g. /dev/ttyUSB0)")
	probe := flag.String("probe", "", "Send one request (temperature or humidity) as bus master and print the reply")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dhtbridge: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Serial.Port = *port
	}

	log, closer := logging.New(cfg.Logging, nil)
	defer closer.Close()
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *probe != "" {
		err = runProbe(ctx, cfg, *probe)
	} else {
		err = run(ctx, cfg, log)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("exiting", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("host init: %w", err)
	}

	p := gpioreg.ByName(cfg.Sensor.Pin)
	if p == nil {
		return fmt.Errorf("sensor pin %q not found", cfg.Sensor.Pin)
	}
	sensorOpts := dht22.DefaultOpts
	sensorOpts.Timeout = cfg.Sensor.Timeout()
	dev, err := dht22.New(p, &sensorOpts)
	if err != nil {
		return err
	}
	defer dev.Halt()

	if cfg.Sensor.Samples%2 == 0 {
		log.Warn("even sample count, the two middle readings are averaged", zap.Int("samples", cfg.Sensor.Samples))
	}
	smp, err := sampler.New(dev, &sampler.Opts{Count: cfg.Sensor.Samples, Cooldown: cfg.Sensor.Cooldown()})
	if err != nil {
		return err
	}

	opts := dispatch.Opts{
		Address:      byte(cfg.Slave.Address),
		FrameTimeout: cfg.Slave.FrameTimeout(),
		Pacing:       cfg.Slave.Pacing(),
		FlushHold:    cfg.Slave.FlushHold(),
		Logger:       log.Named("dispatch"),
	}
	if cfg.Indicator.Pin != "" {
		led := gpioreg.ByName(cfg.Indicator.Pin)
		if led == nil {
			return fmt.Errorf("indicator pin %q not found", cfg.Indicator.Pin)
		}
		if err := led.Out(gpio.Low); err != nil {
			return fmt.Errorf("indicator: %w", err)
		}
		opts.Indicator = led
	}
	if cfg.Diag {
		opts.Diag = colorable.NewColorableStdout()
	}
	if cfg.Metrics.ListenAddr != "" {
		reg := metrics.NewRegistry()
		opts.Metrics = metrics.New(reg)
		go serveMetrics(ctx, cfg.Metrics.ListenAddr, reg, log)
	}

	port, err := link.Open(cfg.Serial.Port, cfg.Serial.BaudRate)
	if err != nil {
		return err
	}
	defer port.Close()

	d, err := dispatch.New(port, smp, &opts)
	if err != nil {
		return err
	}
	log.Info("started",
		zap.String("port", cfg.Serial.Port),
		zap.Int("baud", cfg.Serial.BaudRate),
		zap.Stringer("sensor", dev),
	)
	return d.Run(ctx)
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	log.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server", zap.Error(err))
	}
}

func runProbe(ctx context.Context, cfg *config.Config, kind string) error {
	rt, err := parseProbe(kind)
	if err != nil {
		return err
	}
	port, err := link.Open(cfg.Serial.Port, cfg.Serial.BaudRate)
	if err != nil {
		return err
	}
	defer port.Close()

	// The slave takes Samples acquisitions before answering.
	wait := time.Duration(cfg.Sensor.Samples)*(cfg.Sensor.Cooldown()+50*time.Millisecond) + 2*time.Second
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	_, err = probe(ctx, port, byte(cfg.Slave.Address), rt, os.Stdout)
	return err
}
