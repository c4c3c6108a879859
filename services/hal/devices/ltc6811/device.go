package ltc6811dev

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"bmscode-go/drivers/ltc6811"
	"bmscode-go/errcode"
	"bmscode-go/services/hal/internal/core"
	"bmscode-go/types"
	"bmscode-go/x/mathx"

	"tinygo.org/x/drivers"
)

// Device is a single-goroutine HAL device for an LTC6811 chain.
type Device struct {
	id    string
	aCell core.CapAddr // <domain>/cells/<name>
	aTemp core.CapAddr // <domain>/temperature/<name>
	aStk  core.CapAddr // <domain>/stack/<name>

	res    core.Resources
	spi    core.SPIOwner
	bus    *busGate
	mode   ltc6811.Mode
	adcopt bool
	alive  atomic.Bool
	freed  atomic.Bool

	params Params

	// Owned by the worker only:
	dev *ltc6811.Device
	cfg []ltc6811.Cfgr // last configuration written, chain order

	// Single-owner worker channels
	reqCh chan request
	done  chan struct{}
}

type opCode uint8

const (
	opRead opCode = iota
	opSetBalance
	opClearBalance
	opSelfTest
	opStop
)

type request struct {
	op  opCode
	arg any
}

// Event tags on the cells capability.
const (
	tagBalance  = types.EventBalance
	tagSelfTest = types.EventSelfTest
	tagMuxFail  = types.EventMuxFail
)

// ---- core.Device interface ----

func (d *Device) ID() string { return d.id }

func (d *Device) Capabilities() []core.CapabilitySpec {
	vuv := ltc6811.UnderVoltageCode(d.params.VUVmV)
	vov := d.vovCode()
	ci := types.CellsInfo{
		Bus:       d.params.Bus,
		Devices:   d.params.Devices,
		CellsPer:  ltc6811.CellsPerDevice,
		Mode:      d.params.Mode,
		VUV_mV:    ltc6811.UnderVoltageMilliVolts(vuv),
		VOV_mV:    ltc6811.OverVoltageMilliVolts(vov),
		PollLimit: d.params.PollLimit,
	}
	info := func(detail any) types.Info {
		return types.Info{SchemaVersion: 1, Driver: "ltc6811", Detail: detail}
	}
	return []core.CapabilitySpec{
		{Domain: d.aCell.Domain, Kind: types.KindCells, Name: d.aCell.Name, Info: info(ci)},
		{Domain: d.aTemp.Domain, Kind: types.KindTemperature, Name: d.aTemp.Name, Info: info(nil)},
		{Domain: d.aStk.Domain, Kind: types.KindStack, Name: d.aStk.Name, Info: info(nil)},
	}
}

func (d *Device) Init(ctx context.Context) error {
	d.bus = &busGate{SPIOwner: d.spi}
	d.dev = ltc6811.New(d.bus, d.bus.ChipSelect, ltc6811.Config{
		Devices:   d.params.Devices,
		Mode:      d.mode,
		PollLimit: d.params.PollLimit,
	})

	// Set up worker channels and start the single worker goroutine.
	d.reqCh = make(chan request, 8)
	d.done = make(chan struct{})

	d.alive.Store(true)
	go d.worker(ctx)
	return nil
}

func (d *Device) Close() error {
	if d.alive.Load() {
		// best-effort stop
		select {
		case d.reqCh <- request{op: opStop}:
			d.alive.Store(false)
		default:
		}
		// bounded wait; rely on HAL ctx cancellation in normal shutdown
		t := time.NewTimer(300 * time.Millisecond)
		select {
		case <-d.done:
		case <-t.C:
			// Worker is stuck; fence the bus before handing it back.
			d.alive.Store(false)
			d.release()
		}
		t.Stop()
		return nil
	}
	d.release()
	return nil
}

func (d *Device) Control(addr core.CapAddr, verb string, payload any) (core.EnqueueResult, error) {
	// Map verbs to requests; all controls are non-blocking enqueue-only.
	send := func(req request) (core.EnqueueResult, error) {
		if !d.alive.Load() {
			return core.EnqueueResult{OK: false, Error: errcode.Unavailable}, nil
		}
		select {
		case d.reqCh <- req:
			return core.EnqueueResult{OK: true}, nil
		default:
			return core.EnqueueResult{OK: false, Error: errcode.Busy}, nil
		}
	}

	switch verb {
	case "read":
		// Any capability triggers a full chain read; all three are published.
		return send(request{op: opRead})
	case "set_balance":
		if addr.Kind != types.KindCells {
			return core.EnqueueResult{OK: false, Error: errcode.Unsupported}, nil
		}
		v, code := core.As[types.SetBalance](payload)
		if code != "" || payload == nil {
			return core.EnqueueResult{OK: false, Error: errcode.InvalidPayload}, nil
		}
		if v.Device < 0 || v.Device >= d.params.Devices || v.Cells > 0x0FFF {
			return core.EnqueueResult{OK: false, Error: errcode.InvalidPayload}, nil
		}
		return send(request{op: opSetBalance, arg: v})
	case "clear_balance":
		if addr.Kind != types.KindCells {
			return core.EnqueueResult{OK: false, Error: errcode.Unsupported}, nil
		}
		return send(request{op: opClearBalance})
	case "self_test":
		if addr.Kind != types.KindCells {
			return core.EnqueueResult{OK: false, Error: errcode.Unsupported}, nil
		}
		return send(request{op: opSelfTest})
	default:
		return core.EnqueueResult{OK: false, Error: errcode.Unsupported}, nil
	}
}

// ---- Worker ----

func (d *Device) worker(ctx context.Context) {
	defer func() { d.alive.Store(false) }()
	defer close(d.done)

	// All chip access happens here (single owner).
	d.configureChain()

	for {
		if d.freed.Load() {
			return
		}
		select {
		case <-ctx.Done():
			d.cleanup()
			return

		case req := <-d.reqCh:
			switch req.op {
			case opRead:
				d.sampleAndPublish()
			case opSetBalance:
				if v, ok := req.arg.(types.SetBalance); ok {
					d.setBalance(v)
				}
			case opClearBalance:
				d.clearBalance()
			case opSelfTest:
				d.selfTest()
			case opStop:
				d.cleanup()
				return
			}
		}
	}
}

// ---- Worker helpers (single-owner context) ----

func (d *Device) vovCode() uint16 {
	if d.params.VOVmV <= 0 {
		return 0x0FFF
	}
	return ltc6811.OverVoltageCode(d.params.VOVmV)
}

func (d *Device) configureChain() {
	base := ltc6811.Cfgr{
		ADCOPT: d.adcopt,
		REFON:  !d.params.RefOff,
		GPIO:   0x1F, // pull-downs off; GPIOs are analog inputs
		VUV:    ltc6811.UnderVoltageCode(d.params.VUVmV),
		VOV:    d.vovCode(),
	}
	d.cfg = make([]ltc6811.Cfgr, d.params.Devices)
	for i := range d.cfg {
		d.cfg[i] = base
	}

	if err := d.dev.WakeUp(); err != nil {
		d.emitErr(errcode.MapDriverErr(err), d.aCell, d.aTemp, d.aStk)
		return
	}
	if err := d.dev.WriteConfig(d.cfg); err != nil {
		d.emitErr(errcode.MapDriverErr(err), d.aCell, d.aTemp, d.aStk)
		return
	}
	d.diagnose()

	// Enqueue initial sample to seed retained values
	select {
	case d.reqCh <- request{op: opRead}:
	default:
		// ignore if queue temporarily full
	}
}

// diagnose runs the multiplexer self test and reports failing devices.
func (d *Device) diagnose() {
	if err := d.dev.StartDiagnose(); err != nil {
		return
	}
	if err := d.dev.WaitConversion(); err != nil {
		return
	}
	stat := make([]ltc6811.Str, d.params.Devices)
	if err := d.dev.ReadStatus(stat); err != nil && err != ltc6811.ErrPEC {
		return
	}
	var failed []int
	for i := range stat {
		if stat[i].MUXFAIL {
			failed = append(failed, i)
		}
	}
	if len(failed) > 0 {
		println("[ltc6811]", d.id, "mux self test failed on", len(failed), "devices")
		d.emitEvent(tagMuxFail, types.SelfTestResult{Test: "diagn", Failed: failed})
	}
}

func (d *Device) sampleAndPublish() {
	if err := d.dev.WakeUp(); err != nil {
		d.emitErr(errcode.MapDriverErr(err), d.aCell, d.aTemp, d.aStk)
		return
	}
	err := d.dev.Update(drivers.Voltage | drivers.Temperature)
	if err != nil && err != ltc6811.ErrPEC {
		d.emitErr(errcode.MapDriverErr(err), d.aCell, d.aTemp, d.aStk)
		return
	}

	ts := time.Now().UnixNano()
	rejected := d.dev.Rejected()
	n := d.params.Devices

	cells := types.CellsValue{
		Cells:    make([]int32, n*ltc6811.CellsPerDevice),
		CellsPer: ltc6811.CellsPerDevice,
		GPIO:     make([]int32, n*ltc6811.AuxPerDevice),
		Rejected: rejected,
	}
	temps := types.DieTempValue{DieMilliC: make([]int32, n)}
	stack := types.StackValue{Devices: make([]types.StackDevice, n)}

	for dev := 0; dev < n; dev++ {
		for c := 0; c < ltc6811.CellsPerDevice; c++ {
			cells.Cells[dev*ltc6811.CellsPerDevice+c] = d.dev.CellMilliVolts(dev, c)
		}
		for k := 0; k < ltc6811.AuxPerDevice; k++ {
			cells.GPIO[dev*ltc6811.AuxPerDevice+k] = ltc6811.CodeMilliVolts(d.dev.AuxCode(dev, k))
		}
		st := d.dev.Status(dev)
		temps.DieMilliC[dev] = ltc6811.DieMilliC(st.ITMP)
		stack.Devices[dev] = stackDevice(st, rejected&(1<<uint(dev)) != 0)
		stack.SumMilliV += stack.Devices[dev].SumMilliV
	}
	cells.MinMV, cells.MaxMV = span(cells.Cells)
	_, temps.MaxMilliC = span(temps.DieMilliC)

	_ = d.res.Pub.Emit(core.Event{Addr: d.aCell, Payload: cells, TS: ts})
	_ = d.res.Pub.Emit(core.Event{Addr: d.aTemp, Payload: temps, TS: ts})
	_ = d.res.Pub.Emit(core.Event{Addr: d.aStk, Payload: stack, TS: ts})

	// Partial chain: values above are kept, status follows as degraded.
	if err == ltc6811.ErrPEC {
		d.emitErr(errcode.PECMismatch, d.aCell, d.aTemp, d.aStk)
	}
}

func stackDevice(st ltc6811.Str, rejected bool) types.StackDevice {
	var f types.StackFlags
	if st.CUV != 0 {
		f |= types.StackUnderVoltage
	}
	if st.COV != 0 {
		f |= types.StackOverVoltage
	}
	if st.MUXFAIL {
		f |= types.StackMuxFail
	}
	if st.THSD {
		f |= types.StackThermalSD
	}
	if rejected {
		f |= types.StackRejected
	}
	return types.StackDevice{
		SumMilliV: ltc6811.SumOfCellsMilliVolts(st.SC),
		VA_mV:     ltc6811.SupplyMilliVolts(st.VA),
		VD_mV:     ltc6811.SupplyMilliVolts(st.VD),
		Flags:     f,
		CUV:       st.CUV,
		COV:       st.COV,
		Rev:       st.REV,
	}
}

func span(v []int32) (lo, hi int32) {
	if len(v) == 0 {
		return 0, 0
	}
	lo, hi = v[0], v[0]
	for _, x := range v[1:] {
		lo = mathx.Min(lo, x)
		hi = mathx.Max(hi, x)
	}
	return lo, hi
}

func (d *Device) setBalance(v types.SetBalance) {
	prev := d.cfg[v.Device]
	d.cfg[v.Device].DCC = v.Cells & 0x0FFF
	d.cfg[v.Device].DCTO = ltc6811.DischargeTimeoutFor(time.Duration(v.TimeoutS) * time.Second)
	if err := d.writeConfig(); err != nil {
		d.cfg[v.Device].DCC, d.cfg[v.Device].DCTO = prev.DCC, prev.DCTO
		d.emitErr(errcode.MapDriverErr(err), d.aCell)
		return
	}
	d.emitEvent(tagBalance, v)
}

func (d *Device) clearBalance() {
	for i := range d.cfg {
		d.cfg[i].DCC = 0
		d.cfg[i].DCTO = ltc6811.DCTOOff
	}
	if err := d.writeConfig(); err != nil {
		d.emitErr(errcode.MapDriverErr(err), d.aCell)
		return
	}
	d.emitEvent(tagBalance, types.ClearBalance{})
}

func (d *Device) writeConfig() error {
	if err := d.dev.WakeUp(); err != nil {
		return err
	}
	return d.dev.WriteConfig(d.cfg)
}

// selfTest runs the digital filter test on the cell registers and reports
// the devices whose registers do not read back the expected pattern.
func (d *Device) selfTest() {
	if err := d.dev.WakeUp(); err != nil {
		d.emitErr(errcode.MapDriverErr(err), d.aCell)
		return
	}
	want := ltc6811.SelfTestCode(d.mode, d.adcopt, ltc6811.SelfTest1)
	cells := make([]uint16, d.params.Devices*ltc6811.CellsPerDevice)
	err := d.dev.StartCellSelfTest(d.mode, ltc6811.SelfTest1)
	if err == nil {
		err = d.dev.WaitConversion()
	}
	if err == nil {
		err = d.dev.ReadCellVoltages(cells)
	}
	if err != nil && err != ltc6811.ErrPEC {
		d.emitErr(errcode.MapDriverErr(err), d.aCell)
		return
	}
	rejected := d.dev.Rejected()
	res := types.SelfTestResult{Test: "cvst"}
	for dev := 0; dev < d.params.Devices; dev++ {
		ok := rejected&(1<<uint(dev)) == 0
		for c := 0; ok && c < ltc6811.CellsPerDevice; c++ {
			ok = cells[dev*ltc6811.CellsPerDevice+c] == want
		}
		if !ok {
			res.Failed = append(res.Failed, dev)
		}
	}
	res.Passed = len(res.Failed) == 0
	// The cell registers hold the test pattern until the next conversion.
	_ = d.dev.ClearCells()
	d.emitEvent(tagSelfTest, res)
}

func (d *Device) emitEvent(tag string, payload any) {
	_ = d.res.Pub.Emit(core.Event{
		Addr: d.aCell, Payload: payload, TS: time.Now().UnixNano(),
		IsEvent: true, EventTag: tag,
	})
}

func (d *Device) emitErr(code errcode.Code, addrs ...core.CapAddr) {
	ts := time.Now().UnixNano()
	for _, a := range addrs {
		_ = d.res.Pub.Emit(core.Event{Addr: a, TS: ts, Err: string(code)})
	}
}

// cleanup opens every discharge switch and releases the bus.
func (d *Device) cleanup() {
	if d.cfg != nil {
		for i := range d.cfg {
			d.cfg[i].DCC = 0
		}
		if err := d.writeConfig(); err != nil {
			println("[ltc6811]", d.id, "balance off failed:", err.Error())
		}
	}
	d.release()
}

// release fences the bus and returns it to the registry once.
func (d *Device) release() {
	if d.bus != nil {
		d.bus.fence()
	}
	if d.freed.CompareAndSwap(false, true) {
		d.res.Reg.ReleaseSPI(d.id, core.ResourceID(d.params.Bus))
	}
}

// busGate refuses bus access once fenced. fence waits for an in-flight
// transfer, which the bus owner bounds with its own timeout.
type busGate struct {
	core.SPIOwner
	mu     sync.Mutex
	closed bool
}

func (g *busGate) Tx(w, r []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return errcode.Unavailable
	}
	return g.SPIOwner.Tx(w, r)
}

func (g *busGate) Transfer(b byte) (byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, errcode.Unavailable
	}
	return g.SPIOwner.Transfer(b)
}

func (g *busGate) ChipSelect(level bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.SPIOwner.ChipSelect(level)
	}
}

func (g *busGate) fence() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}
