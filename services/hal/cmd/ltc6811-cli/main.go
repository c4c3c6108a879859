// Command ltc6811-cli drives an LTC6811 chain through the HAL from a shell.
//
//	go run ./services/hal/cmd/ltc6811-cli -plan bench
//
// The bench plan simulates the chain, so "sim" commands can shape what the
// HAL reads.
package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"bmscode-go/bus"
	"bmscode-go/services/hal"
	"bmscode-go/services/hal/internal/core"
	"bmscode-go/services/hal/internal/provider"
	"bmscode-go/x/fmtx"
)

func main() {
	plan := flag.String("plan", "bench", "resource plan: bench | spidev")
	wait := flag.Duration("wait", 2*time.Second, "how long to wait for a reply")
	flag.Parse()

	p, ok := hal.Plans[*plan]
	if !ok {
		fmtx.Fprintf(os.Stderr, "unknown plan %q\n", *plan)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reg := provider.NewResourceRegistry(p)
	defer reg.Close()

	b := bus.NewBus(32)
	go core.NewHAL(b.NewConnection("hal"), core.Resources{Reg: reg}).Run(ctx)

	conn := b.NewConnection("cli")
	defer conn.Disconnect()
	conn.Publish(conn.NewMessage(bus.T("config", "hal"), provider.InitialHALConfig, true))

	sh := newShell(conn, reg, os.Stdout)
	sh.wait = *wait
	sh.run(ctx, bufio.NewScanner(os.Stdin))
}
