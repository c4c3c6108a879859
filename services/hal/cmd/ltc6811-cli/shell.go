package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/shlex"

	"bmscode-go/bus"
	"bmscode-go/drivers/ltc6811"
	"bmscode-go/drivers/ltc6811/ltc6811sim"
	"bmscode-go/errcode"
	"bmscode-go/services/hal"
	"bmscode-go/services/hal/internal/core"
	"bmscode-go/services/hal/internal/provider"
	"bmscode-go/types"
	"bmscode-go/x/fmtx"
	"bmscode-go/x/strconvx"
	"bmscode-go/x/timex"
)

var errQuit = errors.New("quit")

const helpText = `commands:
  read                      sample the chain and print cells
  cells | temps | stack     print the last published values
  status                    print HAL and capability status
  balance <dev> <mask> [s]  discharge cells in mask (bit 0 = cell 1)
  clear                     open every discharge switch
  selftest                  run the cell ADC self test
  poll <ms> | stop          start or stop periodic reads
  sim cells <dev> <mV>...   set simulated cell voltages
  sim gpio <dev> <mV>...    set simulated GPIO voltages
  sim corrupt <dev> [n]     corrupt the next n reads of a device
  sim fail                  fail the next bus transfer
  help | quit
`

type shell struct {
	conn *bus.Connection
	reg  *provider.Registry
	out  io.Writer

	domain string
	name   string
	bus    core.ResourceID
	wait   time.Duration
}

func newShell(conn *bus.Connection, reg *provider.Registry, out io.Writer) *shell {
	return &shell{
		conn:   conn,
		reg:    reg,
		out:    out,
		domain: "power",
		name:   "pack",
		bus:    "spi0",
		wait:   2 * time.Second,
	}
}

// run executes lines from sc until quit, EOF or ctx ends.
func (s *shell) run(ctx context.Context, sc *bufio.Scanner) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	fmtx.Fprint(s.out, "> ")
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := s.line(ctx, line); err != nil {
				if err == errQuit {
					return
				}
				fmtx.Fprintf(s.out, "error: %v\n", err)
			}
			fmtx.Fprint(s.out, "> ")
		}
	}
}

// line splits one command line with shell quoting rules and runs it.
func (s *shell) line(ctx context.Context, line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	return s.exec(ctx, args)
}

func (s *shell) exec(ctx context.Context, args []string) error {
	switch args[0] {
	case "help", "?":
		fmtx.Fprint(s.out, helpText)
		return nil
	case "quit", "exit":
		return errQuit
	case "read":
		return s.read(ctx)
	case "cells":
		return s.showCells()
	case "temps":
		return s.showTemps()
	case "stack":
		return s.showStack()
	case "status":
		return s.showStatus()
	case "balance":
		return s.balance(ctx, args[1:])
	case "clear":
		return s.ok(s.control(ctx, types.KindCells, "clear_balance", types.ClearBalance{}))
	case "selftest":
		return s.selfTest(ctx)
	case "poll":
		if len(args) != 2 {
			return errUsage("poll <ms>")
		}
		ms, err := strconvx.ParseUint(args[1], 10, 32)
		if err != nil || ms == 0 {
			return errUsage("poll <ms>")
		}
		return s.ok(s.control(ctx, types.KindCells, "poll_start",
			types.PollStart{Verb: "read", IntervalMs: uint32(ms)}))
	case "stop":
		return s.ok(s.control(ctx, types.KindCells, "poll_stop", types.PollStop{Verb: "read"}))
	case "sim":
		return s.sim(args[1:])
	}
	return fmtx.Errorf("unknown command %q (try help)", args[0])
}

func errUsage(u string) error { return errors.New("usage: " + u) }

func (s *shell) topic(kind types.Kind, leaf ...any) bus.Topic {
	return hal.CapTopic(s.domain, kind, s.name, leaf...)
}

// control sends verb to a capability and maps the reply to an error.
func (s *shell) control(ctx context.Context, kind types.Kind, verb string, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, s.wait)
	defer cancel()
	rep, err := s.conn.RequestWait(ctx, s.conn.NewMessage(s.topic(kind, "control", verb), payload, false))
	if err != nil {
		return errcode.Timeout
	}
	switch r := rep.Payload.(type) {
	case types.OKReply:
		return nil
	case types.ErrorReply:
		return errcode.Code(r.Error)
	}
	return fmtx.Errorf("unexpected reply %T", rep.Payload)
}

func (s *shell) ok(err error) error {
	if err == nil {
		fmtx.Fprint(s.out, "ok\n")
	}
	return err
}

// retained returns the retained payload on t, if any.
func (s *shell) retained(t bus.Topic) (any, bool) {
	sub := s.conn.Subscribe(t)
	defer s.conn.Unsubscribe(sub)
	select {
	case m := <-sub.Channel():
		return m.Payload, true
	default:
		return nil, false
	}
}

// read requests a sample and waits for the status that follows it.
func (s *shell) read(ctx context.Context) error {
	sub := s.conn.Subscribe(s.topic(types.KindCells, "status"))
	defer s.conn.Unsubscribe(sub)

	t0 := timex.NowNs()
	if err := s.control(ctx, types.KindCells, "read", nil); err != nil {
		return err
	}
	t := time.NewTimer(s.wait)
	defer t.Stop()
	for {
		select {
		case m := <-sub.Channel():
			st, ok := m.Payload.(types.CapabilityStatus)
			if !ok || st.TS < t0 {
				continue
			}
			if st.Link != types.LinkUp {
				return errcode.Code(st.Error)
			}
			return s.showCells()
		case <-t.C:
			return errcode.Timeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *shell) showCells() error {
	p, ok := s.retained(s.topic(types.KindCells, "value"))
	v, isCells := p.(types.CellsValue)
	if !ok || !isCells {
		return errors.New("no cell values yet")
	}
	per := v.CellsPer
	if per <= 0 {
		per = ltc6811.CellsPerDevice
	}
	for dev := 0; dev*per < len(v.Cells); dev++ {
		fmtx.Fprintf(s.out, "dev %d:", dev)
		for _, mv := range v.Cells[dev*per : (dev+1)*per] {
			fmtx.Fprintf(s.out, " %4d", mv)
		}
		fmtx.Fprint(s.out, " mV")
		if n := len(v.GPIO) / (len(v.Cells) / per); n > 0 && (dev+1)*n <= len(v.GPIO) {
			fmtx.Fprint(s.out, "  gpio")
			for _, mv := range v.GPIO[dev*n : (dev+1)*n] {
				fmtx.Fprintf(s.out, " %d", mv)
			}
		}
		fmtx.Fprint(s.out, "\n")
	}
	fmtx.Fprintf(s.out, "min %d mV  max %d mV  rejected %#b\n", v.MinMV, v.MaxMV, v.Rejected)
	return nil
}

func (s *shell) showTemps() error {
	p, _ := s.retained(s.topic(types.KindTemperature, "value"))
	v, ok := p.(types.DieTempValue)
	if !ok {
		return errors.New("no temperatures yet")
	}
	for dev, mc := range v.DieMilliC {
		fmtx.Fprintf(s.out, "dev %d: %.1f C\n", dev, float64(mc)/1000)
	}
	fmtx.Fprintf(s.out, "max %.1f C\n", float64(v.MaxMilliC)/1000)
	return nil
}

func (s *shell) showStack() error {
	p, _ := s.retained(s.topic(types.KindStack, "value"))
	v, ok := p.(types.StackValue)
	if !ok {
		return errors.New("no stack values yet")
	}
	for dev, d := range v.Devices {
		fmtx.Fprintf(s.out, "dev %d: sum %d mV  va %d mV  vd %d mV  cuv %#03x  cov %#03x  rev %d",
			dev, d.SumMilliV, d.VA_mV, d.VD_mV, d.CUV, d.COV, d.Rev)
		it := types.NewBitIter(d.Flags, types.StackFlagsTable[:])
		for name, more := it.Next(); more; name, more = it.Next() {
			fmtx.Fprint(s.out, " ", name)
		}
		fmtx.Fprint(s.out, "\n")
	}
	fmtx.Fprintf(s.out, "stack %d mV\n", v.SumMilliV)
	return nil
}

func (s *shell) showStatus() error {
	if p, ok := s.retained(bus.T("hal", "state")); ok {
		if st, ok := p.(types.HALState); ok {
			fmtx.Fprintf(s.out, "hal: %s (%s)\n", st.Level, st.Status)
		}
	}
	for _, k := range []types.Kind{types.KindCells, types.KindTemperature, types.KindStack} {
		p, ok := s.retained(s.topic(k, "status"))
		st, isStatus := p.(types.CapabilityStatus)
		if !ok || !isStatus {
			fmtx.Fprintf(s.out, "%s: unknown\n", k)
			continue
		}
		if st.Error != "" {
			fmtx.Fprintf(s.out, "%s: %s (%s)\n", k, st.Link, st.Error)
		} else {
			fmtx.Fprintf(s.out, "%s: %s\n", k, st.Link)
		}
	}
	return nil
}

func (s *shell) balance(ctx context.Context, args []string) error {
	const usage = "balance <dev> <mask> [timeout_s]"
	if len(args) < 2 || len(args) > 3 {
		return errUsage(usage)
	}
	dev, err := strconvx.Atoi(args[0])
	if err != nil {
		return errUsage(usage)
	}
	mask, err := strconvx.ParseUint(args[1], 0, 16)
	if err != nil {
		return errUsage(usage)
	}
	var secs uint64
	if len(args) == 3 {
		if secs, err = strconvx.ParseUint(args[2], 10, 32); err != nil {
			return errUsage(usage)
		}
	}
	return s.ok(s.control(ctx, types.KindCells, "set_balance", types.SetBalance{
		Device: dev, Cells: uint16(mask), TimeoutS: uint32(secs),
	}))
}

func (s *shell) selfTest(ctx context.Context) error {
	sub := s.conn.Subscribe(s.topic(types.KindCells, "event", types.EventSelfTest))
	defer s.conn.Unsubscribe(sub)

	if err := s.control(ctx, types.KindCells, "self_test", nil); err != nil {
		return err
	}
	t := time.NewTimer(s.wait)
	defer t.Stop()
	select {
	case m := <-sub.Channel():
		r, ok := m.Payload.(types.SelfTestResult)
		if !ok {
			return fmtx.Errorf("unexpected event %T", m.Payload)
		}
		if r.Passed {
			fmtx.Fprintf(s.out, "%s: passed\n", r.Test)
		} else {
			fmtx.Fprintf(s.out, "%s: failed on %v\n", r.Test, r.Failed)
		}
		return nil
	case <-t.C:
		return errcode.Timeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sim adjusts the simulated chain behind the bench plan.
func (s *shell) sim(args []string) error {
	chain, ok := s.reg.Sim(s.bus)
	if !ok {
		return errors.New("no simulated chain on " + string(s.bus))
	}
	if len(args) == 0 {
		return errUsage("sim cells|gpio|corrupt|fail ...")
	}
	switch args[0] {
	case "cells", "gpio":
		if len(args) < 3 {
			return errUsage("sim " + args[0] + " <dev> <mV>...")
		}
		dev, err := s.simDevice(chain, args[1])
		if err != nil {
			return err
		}
		codes := make([]uint16, 0, len(args)-2)
		for _, a := range args[2:] {
			mv, err := strconvx.ParseUint(a, 10, 16)
			if err != nil || mv > 6553 {
				return fmtx.Errorf("bad voltage %q", a)
			}
			codes = append(codes, uint16(mv*10))
		}
		if args[0] == "cells" {
			chain.SetCells(dev, codes...)
		} else {
			chain.SetGPIO(dev, codes...)
		}
	case "corrupt":
		if len(args) < 2 || len(args) > 3 {
			return errUsage("sim corrupt <dev> [reads]")
		}
		dev, err := s.simDevice(chain, args[1])
		if err != nil {
			return err
		}
		n := 1
		if len(args) == 3 {
			if n, err = strconvx.Atoi(args[2]); err != nil || n < 1 {
				return errUsage("sim corrupt <dev> [reads]")
			}
		}
		chain.Corrupt(dev, n)
	case "fail":
		chain.FailNext(errors.New("sim: injected bus fault"))
	default:
		return fmtx.Errorf("unknown sim command %q", strings.Join(args, " "))
	}
	fmtx.Fprint(s.out, "ok\n")
	return nil
}

func (s *shell) simDevice(chain *ltc6811sim.Chain, arg string) (int, error) {
	dev, err := strconvx.Atoi(arg)
	if err != nil || dev < 0 || dev >= chain.Devices() {
		return 0, fmtx.Errorf("bad device %q", arg)
	}
	return dev, nil
}
