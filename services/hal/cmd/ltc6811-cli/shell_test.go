package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"bmscode-go/bus"
	"bmscode-go/drivers/ltc6811/ltc6811sim"
	"bmscode-go/services/hal/internal/core"
	"bmscode-go/services/hal/internal/provider"
	"bmscode-go/services/hal/internal/provider/setups"
	"bmscode-go/types"

	_ "bmscode-go/services/hal/devices/ltc6811"
)

type rig struct {
	sh  *shell
	out *bytes.Buffer
	sim *ltc6811sim.Chain
	ctx context.Context
}

// newRig runs the HAL on the bench plan without pollers and waits for the
// first published cells.
func newRig(t *testing.T) *rig {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := provider.NewResourceRegistry(setups.SelectedPlan)
	t.Cleanup(reg.Close)
	sim, ok := reg.Sim("spi0")
	if !ok {
		t.Fatal("bench plan has no simulated chain")
	}

	b := bus.NewBus(32)
	go core.NewHAL(b.NewConnection("hal"), core.Resources{Reg: reg}).Run(ctx)

	conn := b.NewConnection("cli")
	conn.Publish(conn.NewMessage(bus.T("config", "hal"),
		types.HALConfig{Devices: provider.InitialHALConfig.Devices}, true))

	out := &bytes.Buffer{}
	r := &rig{sh: newShell(conn, reg, out), out: out, sim: sim, ctx: ctx}
	waitFor(t, func() bool {
		_, ok := r.sh.retained(r.sh.topic(types.KindCells, "value"))
		return ok
	})
	return r
}

func (r *rig) do(t *testing.T, line string) string {
	t.Helper()
	r.out.Reset()
	if err := r.sh.line(r.ctx, line); err != nil {
		t.Fatalf("%q: %v", line, err)
	}
	return r.out.String()
}

func (r *rig) fail(t *testing.T, line string) error {
	t.Helper()
	r.out.Reset()
	err := r.sh.line(r.ctx, line)
	if err == nil {
		t.Fatalf("%q: expected error, output %q", line, r.out.String())
	}
	return err
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestShell_ReadShowsSimulatedCells(t *testing.T) {
	r := newRig(t)
	r.do(t, "sim cells 0 3600 3650")
	out := r.do(t, "read")
	if !strings.Contains(out, "dev 0: 3600 3650 3700") {
		t.Fatalf("read output:\n%s", out)
	}
	if !strings.Contains(out, "min 3600 mV  max 3700 mV  rejected 0b0") {
		t.Fatalf("summary missing:\n%s", out)
	}
}

func TestShell_ReadReportsRejectedDevice(t *testing.T) {
	r := newRig(t)
	r.do(t, "sim corrupt 1")
	out := r.do(t, "read")
	if !strings.Contains(out, "rejected 0b10") {
		t.Fatalf("read output:\n%s", out)
	}
}

func TestShell_TempsAndStack(t *testing.T) {
	r := newRig(t)
	if out := r.do(t, "temps"); !strings.Contains(out, "dev 1: 27.0 C") {
		t.Fatalf("temps:\n%s", out)
	}
	if out := r.do(t, "stack"); !strings.Contains(out, "stack 88800 mV") {
		t.Fatalf("stack:\n%s", out)
	}
	out := r.do(t, "status")
	for _, want := range []string{"hal: ready", "cells: up", "stack: up"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status missing %q:\n%s", want, out)
		}
	}
}

func TestShell_BalanceAndClear(t *testing.T) {
	r := newRig(t)
	if out := r.do(t, "balance 1 0x5 60"); out != "ok\n" {
		t.Fatalf("balance output %q", out)
	}
	waitFor(t, func() bool { return r.sim.Config(1).DCC == 0x5 })

	r.do(t, "clear")
	waitFor(t, func() bool { return r.sim.Config(1).DCC == 0 })
}

func TestShell_SelfTest(t *testing.T) {
	r := newRig(t)
	if out := r.do(t, "selftest"); out != "cvst: passed\n" {
		t.Fatalf("selftest output %q", out)
	}
}

func TestShell_PollStartStop(t *testing.T) {
	r := newRig(t)
	r.do(t, "poll 20")
	r.do(t, "sim cells 0 3500")
	waitFor(t, func() bool {
		p, _ := r.sh.retained(r.sh.topic(types.KindCells, "value"))
		v, ok := p.(types.CellsValue)
		return ok && len(v.Cells) > 0 && v.Cells[0] == 3500
	})
	if out := r.do(t, "stop"); out != "ok\n" {
		t.Fatalf("stop output %q", out)
	}
}

func TestShell_Errors(t *testing.T) {
	r := newRig(t)
	cases := map[string]string{
		"bogus":            "unknown command",
		"balance 9 1":      "invalid_payload",
		"balance 0":        "usage",
		"poll 0":           "usage",
		"sim cells 5 3600": "bad device",
		"sim warp":         "unknown sim command",
		`balance "1`:       "",
	}
	for line, want := range cases {
		err := r.fail(t, line)
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("%q: error %q does not mention %q", line, err, want)
		}
	}
}

func TestShell_Quit(t *testing.T) {
	r := newRig(t)
	if err := r.sh.line(r.ctx, "quit"); err != errQuit {
		t.Fatalf("quit returned %v", err)
	}
	if err := r.sh.line(r.ctx, "   "); err != nil {
		t.Fatalf("blank line returned %v", err)
	}
}
