package core

import (
	"context"
	"time"

	"bmscode-go/bus"
	"bmscode-go/errcode"
	"bmscode-go/types"
	"bmscode-go/x/timex"
)

const (
	eventQueueLen = 16
	pollQueueLen  = 8

	verbPollStart = "poll_start"
	verbPollStop  = "poll_stop"
)

type HAL struct {
	conn *bus.Connection
	res  Resources

	// Device registry
	dev map[string]Device // devID -> device

	// Capability index: (domain,kind,name) -> devID
	capIndex map[CapAddr]string

	cfgSub  *bus.Subscription
	ctrlSub *bus.Subscription

	// Single-threaded publication of device events
	evCh chan Event

	poller *Poller
	pollCh chan PollReq
}

func NewHAL(conn *bus.Connection, res Resources) *HAL {
	h := &HAL{
		conn:     conn,
		res:      res,
		dev:      map[string]Device{},
		capIndex: map[CapAddr]string{},
		evCh:     make(chan Event, eventQueueLen),
		pollCh:   make(chan PollReq, pollQueueLen),
	}
	// HAL provides the emitter to devices.
	h.res.Pub = h
	h.poller = NewPoller(h.pollCh)
	return h
}

func (h *HAL) Run(ctx context.Context) {
	h.cfgSub = h.conn.Subscribe(topicConfigHAL())
	h.ctrlSub = h.conn.Subscribe(ctrlWildcard())
	defer h.conn.Unsubscribe(h.cfgSub)
	defer h.conn.Unsubscribe(h.ctrlSub)

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go h.poller.Run(pctx)

	h.pubHALState("idle", "awaiting_config")
	ready := false
	for {
		select {
		case <-ctx.Done():
			h.closeDevices()
			h.pubHALState("stopped", "context_cancelled")
			return
		case msg := <-h.cfgSub.Channel():
			cfg, ok := decodeHALConfig(msg.Payload)
			if !ok {
				println("[hal] ignoring malformed config")
				continue
			}
			// applyConfig is additive/idempotent for existing devices.
			h.applyConfig(ctx, cfg)
			if !ready {
				ready = true
				h.pubHALState("ready", "")
			}
		case m := <-h.ctrlSub.Channel():
			if !ready {
				// Reject controls until HAL has a configuration.
				h.replyErr(m, errcode.HALNotReady)
				continue
			}
			h.handleControl(m) // strictly non-blocking
		case ev := <-h.evCh:
			// All device→HAL telemetry is published from this goroutine.
			h.handleEvent(ev)
		case pr := <-h.pollCh:
			h.handlePoll(pr)
		}
	}
}

func decodeHALConfig(p any) (types.HALConfig, bool) {
	if p == nil {
		return types.HALConfig{}, false
	}
	cfg, code := As[types.HALConfig](p)
	return cfg, code == ""
}

func (h *HAL) applyConfig(ctx context.Context, cfg types.HALConfig) {
	for i := range cfg.Devices {
		dc := cfg.Devices[i]
		if _, exists := h.dev[dc.ID]; exists {
			continue
		}
		b, ok := lookupBuilder(dc.Type)
		if !ok {
			println("[hal] no builder for type:", dc.Type, "id:", dc.ID)
			continue
		}
		dev, err := b.Build(ctx, BuilderInput{
			ID:     dc.ID,
			Type:   dc.Type,
			Params: dc.Params,
			Res:    h.res,
		})
		if err != nil {
			println("[hal] build failed for:", dc.ID, "err:", err.Error())
			continue
		}

		// Register capabilities, publish retained info + initial status:down
		// before Init so that the first values land on announced topics.
		for _, cs := range dev.Capabilities() {
			addr := h.resolve(dev, cs)
			k := string(addr.Kind)
			h.capIndex[addr] = dev.ID()

			h.conn.Publish(h.conn.NewMessage(
				capInfo(addr.Domain, k, addr.Name),
				types.Info{SchemaVersion: cs.Info.SchemaVersion, Driver: cs.Info.Driver, Detail: cs.Info.Detail},
				true,
			))
			// Initial status (retained)
			h.conn.Publish(h.conn.NewMessage(
				capStatus(addr.Domain, k, addr.Name),
				types.CapabilityStatus{Link: types.LinkDown, TS: timex.NowNs()},
				true,
			))
		}
		h.dev[dev.ID()] = dev

		if err := dev.Init(ctx); err != nil {
			println("[hal] init failed for:", dc.ID, "err:", err.Error())
			h.dropDevice(dev, errcode.MapDriverErr(err))
			continue
		}
	}

	for _, ps := range cfg.Pollers {
		verb := ps.Verb
		if verb == "" {
			verb = "read"
		}
		h.poller.Upsert(CapAddr{Domain: ps.Domain, Kind: ps.Kind, Name: ps.Name}, verb,
			time.Duration(ps.IntervalMs)*time.Millisecond,
			time.Duration(ps.JitterMs)*time.Millisecond)
	}
}

// resolve fills the defaults of a capability spec.
func (h *HAL) resolve(dev Device, cs CapabilitySpec) CapAddr {
	domain := cs.Domain
	if domain == "" {
		domain = defaultDomainFor(cs.Kind)
	}
	name := cs.Name
	if name == "" {
		name = dev.ID()
	}
	return CapAddr{Domain: domain, Kind: cs.Kind, Name: name}
}

// dropDevice unregisters a device whose Init failed and marks its
// capabilities degraded.
func (h *HAL) dropDevice(dev Device, code errcode.Code) {
	for _, cs := range dev.Capabilities() {
		addr := h.resolve(dev, cs)
		delete(h.capIndex, addr)
		h.conn.Publish(h.conn.NewMessage(
			capStatus(addr.Domain, string(addr.Kind), addr.Name),
			types.CapabilityStatus{Link: types.LinkDegraded, TS: timex.NowNs(), Error: string(code)},
			true,
		))
	}
	delete(h.dev, dev.ID())
	_ = dev.Close()
}

func (h *HAL) closeDevices() {
	for id, d := range h.dev {
		if err := d.Close(); err != nil {
			println("[hal] close failed for:", id, "err:", err.Error())
		}
	}
}

func (h *HAL) handleControl(msg *bus.Message) {
	// hal/cap/<domain>/<kind>/<name>/control/<verb>
	if msg.Topic.Len() < 7 {
		h.replyErr(msg, errcode.InvalidTopic)
		return
	}
	domain, _ := msg.Topic.At(2).(string)
	kind, _ := msg.Topic.At(3).(string)
	name, _ := msg.Topic.At(4).(string)
	verb, _ := msg.Topic.At(6).(string)
	addr := CapAddr{Domain: domain, Kind: types.Kind(kind), Name: name}

	ownerID, ok := h.capIndex[addr]
	if !ok {
		h.replyErr(msg, errcode.UnknownCapability)
		return
	}
	dev := h.dev[ownerID]
	if dev == nil {
		h.replyErr(msg, errcode.Error)
		return
	}

	switch verb {
	case verbPollStart:
		ps, code := As[types.PollStart](msg.Payload)
		if code != "" || ps.IntervalMs == 0 {
			h.replyErr(msg, errcode.InvalidPayload)
			return
		}
		if ps.Verb == "" {
			ps.Verb = "read"
		}
		h.poller.Upsert(addr, ps.Verb,
			time.Duration(ps.IntervalMs)*time.Millisecond,
			time.Duration(ps.JitterMs)*time.Millisecond)
		h.replyOK(msg)
		return
	case verbPollStop:
		ps, code := As[types.PollStop](msg.Payload)
		if code != "" {
			h.replyErr(msg, code)
			return
		}
		if ps.Verb == "" {
			ps.Verb = "read"
		}
		h.poller.Stop(addr, ps.Verb)
		h.replyOK(msg)
		return
	}

	res, err := dev.Control(addr, verb, msg.Payload)
	if err != nil {
		h.replyFromError(msg, err)
		return
	}
	if !msg.CanReply() {
		return
	}
	if res.OK {
		h.replyOK(msg)
		return
	}
	code := res.Error
	if code == "" {
		code = errcode.Busy
	}
	h.conn.Reply(msg, types.ErrorReply{OK: false, Error: string(code)}, false)
}

// handlePoll issues a scheduled control. A busy device skips this round.
func (h *HAL) handlePoll(pr PollReq) {
	ownerID, ok := h.capIndex[pr.Addr]
	if !ok {
		h.poller.Stop(pr.Addr, pr.Verb)
		return
	}
	dev := h.dev[ownerID]
	if dev == nil {
		return
	}
	_, _ = dev.Control(pr.Addr, pr.Verb, nil)
}

func (h *HAL) handleEvent(ev Event) {
	d := ev.Addr.Domain
	k := string(ev.Addr.Kind)
	n := ev.Addr.Name
	ts := ev.TS
	if ts == 0 {
		ts = timex.NowNs()
	}

	// 1) Error → retained status:degraded; no value/event published.
	if ev.Err != "" {
		h.conn.Publish(h.conn.NewMessage(
			capStatus(d, k, n),
			types.CapabilityStatus{Link: types.LinkDegraded, TS: ts, Error: ev.Err},
			true,
		))
		return
	}

	// 2) Success: event vs value
	if ev.IsEvent {
		if ev.EventTag != "" {
			h.conn.Publish(h.conn.NewMessage(capEventTagged(d, k, n, ev.EventTag), ev.Payload, false))
		} else {
			h.conn.Publish(h.conn.NewMessage(capEvent(d, k, n), ev.Payload, false))
		}
	} else {
		h.conn.Publish(h.conn.NewMessage(capValue(d, k, n), ev.Payload, true))
		h.poller.BumpAfter(ev.Addr, "read", ts)
	}
	// Retained status: up
	h.conn.Publish(h.conn.NewMessage(
		capStatus(d, k, n),
		types.CapabilityStatus{Link: types.LinkUp, TS: ts},
		true,
	))
}

func (h *HAL) pubHALState(level, status string) {
	h.conn.Publish(h.conn.NewMessage(
		topicHALState(),
		types.HALState{Level: level, Status: status, TS: timex.NowNs()},
		true,
	))
}

func defaultDomainFor(kind types.Kind) string {
	switch kind {
	case types.KindCells, types.KindStack, types.KindTemperature:
		return "power"
	default:
		return "io"
	}
}

// ---- HAL as EventEmitter (enqueue to single publisher) ----

func (h *HAL) Emit(ev Event) bool {
	select {
	case h.evCh <- ev:
		return true
	default:
		return false
	}
}
