package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"bmscode-go/bus"
	"bmscode-go/services/config"
	"bmscode-go/services/hal"
	"bmscode-go/services/heartbeat"
)

// Default resource plan per embedded config.
var planFor = map[string]string{
	"bench": "bench",
	"rpi":   "spidev",
}

func main() {
	device := flag.String("device", "bench", "embedded config: bench | rpi")
	plan := flag.String("plan", "", "resource plan: bench | spidev (default follows -device)")
	flag.Parse()
	if *plan == "" {
		*plan = planFor[*device]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = context.WithValue(ctx, config.CtxDeviceKey, *device)

	b := bus.NewBus(32)

	halDone := make(chan struct{})
	go func() {
		defer close(halDone)
		hal.Run(ctx, b.NewConnection("hal"), *plan)
	}()

	if err := (&heartbeat.Service{}).Start(ctx, b.NewConnection("heartbeat")); err != nil {
		println("[main] heartbeat:", err.Error())
	}
	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	println("[main] boot", *device, "plan", *plan)
	<-ctx.Done()
	<-halDone
	println("[main] stopped")
}
